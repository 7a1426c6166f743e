package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opensoc/notebooklets/pkg/types"
)

// GeoIPConfig holds settings for the HTTP geolocation client.
type GeoIPConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// HTTPGeoIP is a GeoIPProvider backed by an ip-api style JSON endpoint.
// Batch lookups tolerate per-address failures.
type HTTPGeoIP struct {
	log     logrus.FieldLogger
	baseURL string
	client  *http.Client
}

// NewHTTPGeoIP creates the HTTP geolocation client.
func NewHTTPGeoIP(log logrus.FieldLogger, cfg GeoIPConfig) (*HTTPGeoIP, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("geolookup: base_url is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPGeoIP{
		log:     log.WithField("component", "geoip_provider"),
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Name implements Provider.
func (g *HTTPGeoIP) Name() string { return "geolookup" }

// Locate implements GeoIPProvider. Private and invalid addresses are
// marked per item without issuing a request.
func (g *HTTPGeoIP) Locate(ctx context.Context, addresses []string) ([]GeoResult, error) {
	results := make([]GeoResult, 0, len(addresses))

	for _, addr := range addresses {
		if ClassifyIP(addr) != types.IPTypePublic {
			results = append(results, GeoResult{Address: addr, Err: "not a public address"})

			continue
		}

		location, err := g.locateOne(ctx, addr)
		if err != nil {
			g.log.WithField("address", addr).WithError(err).Warn("Geolocation lookup failed")

			results = append(results, GeoResult{Address: addr, Err: err.Error()})

			continue
		}

		results = append(results, GeoResult{Address: addr, Location: location})
	}

	return results, nil
}

type geoResponse struct {
	CountryCode string  `json:"countryCode"`
	Country     string  `json:"country"`
	City        string  `json:"city"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	AS          string  `json:"as"`
	ASName      string  `json:"asname"`
	Status      string  `json:"status"`
	Message     string  `json:"message"`
}

func (g *HTTPGeoIP) locateOne(ctx context.Context, addr string) (*types.GeoLocation, error) {
	endpoint := fmt.Sprintf("%s/json/%s", g.baseURL, url.PathEscape(addr))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if parsed.Status == "fail" {
		return nil, fmt.Errorf("lookup failed: %s", parsed.Message)
	}

	return &types.GeoLocation{
		CountryCode: parsed.CountryCode,
		CountryName: parsed.Country,
		City:        parsed.City,
		Latitude:    parsed.Lat,
		Longitude:   parsed.Lon,
		ASN:         parsed.AS,
		ASNDesc:     parsed.ASName,
	}, nil
}

// ClassifyIP categorizes an address string without any network access.
func ClassifyIP(address string) types.IPAddressType {
	ip := net.ParseIP(address)
	if ip == nil {
		return types.IPTypeInvalid
	}

	switch {
	case ip.IsLoopback():
		return types.IPTypeLoopback
	case ip.IsMulticast():
		return types.IPTypeMulticast
	case ip.IsPrivate(), ip.IsLinkLocalUnicast():
		return types.IPTypePrivate
	case ip.IsUnspecified():
		return types.IPTypeReserved
	default:
		return types.IPTypePublic
	}
}
