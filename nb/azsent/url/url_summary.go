// Package url contains the URL-focused notebooklet.
package url

import (
	"context"
	_ "embed"
	neturl "net/url"
	"strings"

	"github.com/opensoc/notebooklets/nb/nblib"
	"github.com/opensoc/notebooklets/pkg/display"
	"github.com/opensoc/notebooklets/pkg/metadata"
	"github.com/opensoc/notebooklets/pkg/nberrors"
	"github.com/opensoc/notebooklets/pkg/notebooklet"
	"github.com/opensoc/notebooklets/pkg/types"
)

//go:embed url_summary.yaml
var urlSummaryMeta []byte

// URLSummaryMetadata returns the raw metadata document for catalog
// registration.
func URLSummaryMetadata() []byte { return urlSummaryMeta }

// URLSummaryResult is the structured output of a URLSummary run.
type URLSummaryResult struct {
	notebooklet.CoreResult

	// URLEntity is the decomposed URL record.
	URLEntity *types.URL `json:"url_entity,omitempty"`
	// TIResults holds threat intel verdicts for the URL and its domain.
	TIResults *types.Table `json:"ti_results,omitempty"`
	// Whois holds the domain registration record.
	Whois *types.Table `json:"whois,omitempty"`
	// DNSLookups lists DNS queries for the domain.
	DNSLookups *types.Table `json:"dns_lookups,omitempty"`
	// RelatedAlerts lists alerts referencing the URL.
	RelatedAlerts *types.Table `json:"related_alerts,omitempty"`
	// Flows lists network events mentioning the URL.
	Flows *types.Table `json:"flows,omitempty"`
}

// Fields implements notebooklet.Result.
func (r *URLSummaryResult) Fields() []notebooklet.ResultField {
	return []notebooklet.ResultField{
		{Name: "url_entity", Description: "Decomposed URL entity", Value: r.URLEntity},
		{Name: "ti_results", Description: "Threat intel verdicts for the URL and domain", Value: r.TIResults},
		{Name: "whois", Description: "Domain registration data", Value: r.Whois},
		{Name: "dns_lookups", Description: "DNS lookups of the domain", Value: r.DNSLookups},
		{Name: "related_alerts", Description: "Alerts related to the URL", Value: r.RelatedAlerts},
		{Name: "flows", Description: "Network events mentioning the URL", Value: r.Flows},
	}
}

// URLSummary decomposes a URL and collects enrichment and related
// activity for it and its domain.
type URLSummary struct {
	notebooklet.Base
}

// NewURLSummary constructs the notebooklet against the environment.
func NewURLSummary(env *notebooklet.Environment) (notebooklet.Notebooklet, error) {
	meta, err := metadata.Parse(urlSummaryMeta, "azsent.url.URLSummary")
	if err != nil {
		return nil, err
	}

	base, err := notebooklet.NewBase(meta, env)
	if err != nil {
		return nil, err
	}

	return &URLSummary{Base: base}, nil
}

// Run executes the enabled steps for the URL in params.Value.
func (n *URLSummary) Run(ctx context.Context, params notebooklet.RunParams) (notebooklet.Result, error) {
	if err := n.Begin(params); err != nil {
		return nil, err
	}

	if params.Value == "" {
		return nil, nberrors.NewMissingParameterError("value")
	}

	if params.Timespan.IsZero() {
		return nil, nberrors.NewMissingParameterError("timespan")
	}

	entity, err := DecomposeURL(params.Value)
	if err != nil {
		return nil, err
	}

	e := n.Emitter()
	e.EmitSection("run")

	result := &URLSummaryResult{
		CoreResult: notebooklet.NewCoreResult(n.Description(), n.Timespan()),
		URLEntity:  entity,
	}

	if n.OptionEnabled("ti") {
		if err := n.runTI(ctx, entity, result); err != nil {
			return nil, err
		}
	}

	if n.OptionEnabled("whois") {
		if err := n.runWhois(ctx, entity.Domain, result); err != nil {
			return nil, err
		}
	}

	qp := n.QueryProvider()

	if n.OptionEnabled("dns") {
		e.EmitSection("dns")

		lookups, err := qp.Query(ctx, "dns_lookups_url", n.Timespan(), map[string]any{"domain": entity.Domain})
		if err != nil {
			return nil, err
		}

		result.DNSLookups = lookups
		e.Table(lookups, nil)
	}

	if n.OptionEnabled("alerts") {
		e.EmitSection("alerts")

		alerts, err := qp.Query(ctx, "related_alerts", n.Timespan(), map[string]any{"value": params.Value})
		if err != nil {
			return nil, err
		}

		result.RelatedAlerts = alerts
		e.Timeline(alerts, display.Hints{"time_column": "timestamp", "group_by": "alert_name"})
	}

	if n.OptionEnabled("flows") {
		e.EmitSection("flows")

		flows, err := qp.Query(ctx, "url_network_events", n.Timespan(), map[string]any{"url": params.Value})
		if err != nil {
			return nil, err
		}

		result.Flows = flows
		e.Table(flows, nil)
	}

	n.SetLastResult(result)

	return result, nil
}

// runTI looks the URL and its domain up against threat intelligence.
// Skipped when no TI provider is configured.
func (n *URLSummary) runTI(ctx context.Context, entity *types.URL, result *URLSummaryResult) error {
	ti, err := n.Providers().TI("tilookup")
	if err != nil {
		n.Log().Debug("No tilookup provider configured, skipping ti step")

		return nil
	}

	iocs := []string{entity.URL}
	if entity.Domain != "" && entity.Domain != entity.URL {
		iocs = append(iocs, entity.Domain)
	}

	n.Emitter().EmitSection("ti")

	verdicts, err := ti.Lookup(ctx, iocs)
	if err != nil {
		return err
	}

	result.TIResults = nblib.VerdictTable(verdicts)
	n.Emitter().Table(result.TIResults, nil)

	return nil
}

// runWhois looks up registration data for the domain. Skipped when no
// WHOIS provider is configured.
func (n *URLSummary) runWhois(ctx context.Context, domain string, result *URLSummaryResult) error {
	if domain == "" {
		return nil
	}

	who, err := n.Providers().Whois("whois")
	if err != nil {
		n.Log().Debug("No whois provider configured, skipping whois step")

		return nil
	}

	n.Emitter().EmitSection("whois")

	record, err := who.Whois(ctx, domain)
	if err != nil {
		return err
	}

	result.Whois = nblib.WhoisTable(record)
	n.Emitter().Table(result.Whois, nil)

	return nil
}

// DecomposeURL parses a URL into its entity form. A bare host with no
// scheme is accepted and treated as the host part.
func DecomposeURL(value string) (*types.URL, error) {
	raw := value
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	parsed, err := neturl.Parse(raw)
	if err != nil || parsed.Hostname() == "" {
		return nil, nberrors.NewMissingParameterError("value")
	}

	host := strings.ToLower(parsed.Hostname())

	entity := &types.URL{
		URL:    value,
		Scheme: parsed.Scheme,
		Host:   host,
		Domain: registeredDomain(host),
	}

	if idx := strings.LastIndex(host, "."); idx >= 0 && idx < len(host)-1 {
		entity.TLD = host[idx+1:]
	}

	return entity, nil
}

// registeredDomain reduces a host name to its registrable domain: the
// last two labels, or three when the second-level label is a common
// country-code registry suffix.
func registeredDomain(host string) string {
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}

	keep := 2

	second := labels[len(labels)-2]
	switch second {
	case "co", "com", "org", "net", "ac", "gov", "edu":
		if len(labels) >= 3 {
			keep = 3
		}
	}

	return strings.Join(labels[len(labels)-keep:], ".")
}
