package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opensoc/notebooklets/pkg/cache"
)

// TIConfig holds settings for the HTTP threat intel client.
type TIConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	APIKey    string        `yaml:"-"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// HTTPTI is a TIProvider backed by an OTX-style pulse/indicator HTTP
// API. Lookups are one request per indicator; a failed item is recorded
// as a per-item error marker rather than aborting the batch.
type HTTPTI struct {
	log     logrus.FieldLogger
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPTI creates the HTTP threat intel client.
func NewHTTPTI(log logrus.FieldLogger, cfg TIConfig) (*HTTPTI, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("tilookup: base_url is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPTI{
		log:     log.WithField("component", "ti_provider"),
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Name implements Provider.
func (t *HTTPTI) Name() string { return "tilookup" }

// Lookup implements TIProvider.
func (t *HTTPTI) Lookup(ctx context.Context, iocs []string) ([]TIVerdict, error) {
	verdicts := make([]TIVerdict, 0, len(iocs))

	for _, ioc := range iocs {
		verdict, err := t.lookupOne(ctx, ioc)
		if err != nil {
			t.log.WithField("ioc", ioc).WithError(err).Warn("TI lookup failed for indicator")

			verdicts = append(verdicts, TIVerdict{IoC: ioc, Provider: t.Name(), Err: err.Error()})

			continue
		}

		verdicts = append(verdicts, verdict)
	}

	return verdicts, nil
}

type tiResponse struct {
	Type       string `json:"type"`
	PulseCount int    `json:"pulse_count"`
	Reputation int    `json:"reputation"`
	Pulses     []struct {
		Name string   `json:"name"`
		Tags []string `json:"tags"`
	} `json:"pulses"`
}

func (t *HTTPTI) lookupOne(ctx context.Context, ioc string) (TIVerdict, error) {
	endpoint := fmt.Sprintf("%s/api/v1/indicators/general/%s", t.baseURL, url.PathEscape(ioc))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return TIVerdict{}, err
	}

	if t.apiKey != "" {
		req.Header.Set("X-OTX-API-KEY", t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return TIVerdict{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return TIVerdict{IoC: ioc, Provider: t.Name(), Severity: "information"}, nil
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return TIVerdict{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	var parsed tiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return TIVerdict{}, fmt.Errorf("decoding response: %w", err)
	}

	verdict := TIVerdict{
		IoC:        ioc,
		IoCType:    parsed.Type,
		Provider:   t.Name(),
		Severity:   severityFromPulses(parsed.PulseCount),
		Confidence: parsed.PulseCount,
		Details:    map[string]any{"reputation": parsed.Reputation},
	}

	if len(parsed.Pulses) > 0 {
		names := make([]string, 0, len(parsed.Pulses))
		for _, pulse := range parsed.Pulses {
			names = append(names, pulse.Name)
		}

		verdict.Details["pulses"] = names
	}

	return verdict, nil
}

func severityFromPulses(count int) string {
	switch {
	case count >= 10:
		return "high"
	case count >= 1:
		return "warning"
	default:
		return "information"
	}
}

// CachedTI wraps a TIProvider with a byte cache so repeated lookups of
// the same indicator within the TTL are served locally.
type CachedTI struct {
	inner TIProvider
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedTI wraps inner with the given cache. A zero ttl defaults to
// one hour.
func NewCachedTI(inner TIProvider, c cache.Cache, ttl time.Duration) *CachedTI {
	if ttl == 0 {
		ttl = time.Hour
	}

	return &CachedTI{inner: inner, cache: c, ttl: ttl}
}

// Name implements Provider; the wrapper keeps the inner provider's name
// so req_providers requirements bind to it transparently.
func (c *CachedTI) Name() string { return c.inner.Name() }

// Lookup implements TIProvider, serving cached verdicts where present
// and delegating the remainder in a single batch.
func (c *CachedTI) Lookup(ctx context.Context, iocs []string) ([]TIVerdict, error) {
	verdicts := make(map[string]TIVerdict, len(iocs))
	var misses []string

	for _, ioc := range iocs {
		data, ok, err := c.cache.Get(ctx, "ti:"+ioc)
		if err != nil || !ok {
			misses = append(misses, ioc)

			continue
		}

		var verdict TIVerdict
		if err := json.Unmarshal(data, &verdict); err != nil {
			misses = append(misses, ioc)

			continue
		}

		verdicts[ioc] = verdict
	}

	if len(misses) > 0 {
		fresh, err := c.inner.Lookup(ctx, misses)
		if err != nil {
			return nil, err
		}

		for _, verdict := range fresh {
			verdicts[verdict.IoC] = verdict

			// Error-marked verdicts are not cached so transient
			// failures can be retried.
			if verdict.Err != "" {
				continue
			}

			if data, err := json.Marshal(verdict); err == nil {
				_ = c.cache.Set(ctx, "ti:"+verdict.IoC, data, c.ttl)
			}
		}
	}

	ordered := make([]TIVerdict, 0, len(iocs))
	for _, ioc := range iocs {
		if verdict, ok := verdicts[ioc]; ok {
			ordered = append(ordered, verdict)
		}
	}

	return ordered, nil
}
