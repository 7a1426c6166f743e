// Package network contains the network-focused notebooklets: IP address
// summary and network flow analysis.
package network

import (
	"context"
	_ "embed"

	"github.com/opensoc/notebooklets/nb/nblib"
	"github.com/opensoc/notebooklets/pkg/display"
	"github.com/opensoc/notebooklets/pkg/metadata"
	"github.com/opensoc/notebooklets/pkg/nberrors"
	"github.com/opensoc/notebooklets/pkg/notebooklet"
	"github.com/opensoc/notebooklets/pkg/providers"
	"github.com/opensoc/notebooklets/pkg/types"
)

//go:embed ip_summary.yaml
var ipSummaryMeta []byte

// IPSummaryMetadata returns the raw metadata document for catalog
// registration.
func IPSummaryMetadata() []byte { return ipSummaryMeta }

// IPSummaryResult is the structured output of an IpAddressSummary run.
type IPSummaryResult struct {
	notebooklet.CoreResult

	// IPEntity is the classified, optionally geolocated address record.
	IPEntity *types.IPAddress `json:"ip_entity,omitempty"`
	// GeoIP holds the geolocation lookup result.
	GeoIP *types.Table `json:"geoip,omitempty"`
	// Whois holds the registration record for the address.
	Whois *types.Table `json:"whois,omitempty"`
	// Heartbeat is the latest agent heartbeat reporting the address.
	Heartbeat *types.Table `json:"heartbeat,omitempty"`
	// RelatedAlerts lists alerts referencing the address.
	RelatedAlerts *types.Table `json:"related_alerts,omitempty"`
	// Flows lists network flows to and from the address.
	Flows *types.Table `json:"flows,omitempty"`
	// FlowSummary aggregates flows by protocol and direction.
	FlowSummary *types.Table `json:"flow_summary,omitempty"`
	// TIResults holds threat intel verdicts for the address.
	TIResults *types.Table `json:"ti_results,omitempty"`
}

// Fields implements notebooklet.Result.
func (r *IPSummaryResult) Fields() []notebooklet.ResultField {
	return []notebooklet.ResultField{
		{Name: "ip_entity", Description: "Classified IP address entity", Value: r.IPEntity},
		{Name: "geoip", Description: "Geolocation lookup result", Value: r.GeoIP},
		{Name: "whois", Description: "Registration data", Value: r.Whois},
		{Name: "heartbeat", Description: "Latest heartbeat reporting the address", Value: r.Heartbeat},
		{Name: "related_alerts", Description: "Alerts related to the address", Value: r.RelatedAlerts},
		{Name: "flows", Description: "Network flows to and from the address", Value: r.Flows},
		{Name: "flow_summary", Description: "Flow counts by protocol and direction", Value: r.FlowSummary},
		{Name: "ti_results", Description: "Threat intel verdicts for the address", Value: r.TIResults},
	}
}

// IPSummary classifies an IP address and collects enrichment and
// related activity around it. Private and reserved addresses skip the
// external enrichment steps.
type IPSummary struct {
	notebooklet.Base
}

// NewIPSummary constructs the notebooklet against the environment.
func NewIPSummary(env *notebooklet.Environment) (notebooklet.Notebooklet, error) {
	meta, err := metadata.Parse(ipSummaryMeta, "azsent.network.IpAddressSummary")
	if err != nil {
		return nil, err
	}

	base, err := notebooklet.NewBase(meta, env)
	if err != nil {
		return nil, err
	}

	return &IPSummary{Base: base}, nil
}

// Run executes the enabled steps for the address in params.Value.
func (n *IPSummary) Run(ctx context.Context, params notebooklet.RunParams) (notebooklet.Result, error) {
	if err := n.Begin(params); err != nil {
		return nil, err
	}

	if params.Value == "" {
		return nil, nberrors.NewMissingParameterError("value")
	}

	if params.Timespan.IsZero() {
		return nil, nberrors.NewMissingParameterError("timespan")
	}

	e := n.Emitter()
	e.EmitSection("run")

	result := &IPSummaryResult{
		CoreResult: notebooklet.NewCoreResult(n.Description(), n.Timespan()),
		IPEntity: &types.IPAddress{
			Address: params.Value,
			Type:    providers.ClassifyIP(params.Value),
		},
	}

	if result.IPEntity.Type == types.IPTypeInvalid {
		return nil, nberrors.NewMissingParameterError("value")
	}

	public := result.IPEntity.Type == types.IPTypePublic

	if n.OptionEnabled("geoip") && public {
		if err := n.runGeoIP(ctx, params.Value, result); err != nil {
			return nil, err
		}
	}

	if n.OptionEnabled("whois") && public {
		if err := n.runWhois(ctx, params.Value, result); err != nil {
			return nil, err
		}
	}

	qp := n.QueryProvider()

	if n.OptionEnabled("heartbeat") {
		e.EmitSection("heartbeat")

		heartbeat, err := qp.Query(ctx, "ip_heartbeat", n.Timespan(), map[string]any{"ip_address": params.Value})
		if err != nil {
			return nil, err
		}

		result.Heartbeat = heartbeat
		e.Table(heartbeat, nil)

		if !heartbeat.IsEmpty() {
			result.IPEntity.Hostname = heartbeat.StringValue(0, "computer")
		}
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

		flows, err := qp.Query(ctx, "network_flows", n.Timespan(), map[string]any{"ip_address": params.Value})
		if err != nil {
			return nil, err
		}

		result.Flows = flows
		e.Table(flows, nil)
	}

	if n.OptionEnabled("flow_summary") && !result.Flows.IsEmpty() {
		e.EmitSection("flow_summary")

		result.FlowSummary = nblib.GroupCount(result.Flows,
			flowColumn(result.Flows, "protocol", "Protocol"),
			flowColumn(result.Flows, "direction", "FlowDirection"),
		)
		e.Table(result.FlowSummary, nil)
	}

	if n.OptionEnabled("ti") && public {
		if err := n.runTI(ctx, params.Value, result); err != nil {
			return nil, err
		}
	}

	n.SetLastResult(result)

	return result, nil
}

// runGeoIP locates the address. Skipped when no geolocation provider is
// configured.
func (n *IPSummary) runGeoIP(ctx context.Context, address string, result *IPSummaryResult) error {
	geo, err := n.Providers().GeoIP("geolookup")
	if err != nil {
		n.Log().Debug("No geolookup provider configured, skipping geoip step")

		return nil
	}

	n.Emitter().EmitSection("geoip")

	located, err := geo.Locate(ctx, []string{address})
	if err != nil {
		return err
	}

	result.GeoIP = nblib.GeoTable(located)
	n.Emitter().Table(result.GeoIP, nil)

	if len(located) > 0 && located[0].Err == "" {
		result.IPEntity.Location = located[0].Location
	}

	return nil
}

// runWhois looks up registration data. Skipped when no WHOIS provider
// is configured.
func (n *IPSummary) runWhois(ctx context.Context, address string, result *IPSummaryResult) error {
	who, err := n.Providers().Whois("whois")
	if err != nil {
		n.Log().Debug("No whois provider configured, skipping whois step")

		return nil
	}

	n.Emitter().EmitSection("whois")

	record, err := who.Whois(ctx, address)
	if err != nil {
		return err
	}

	result.Whois = nblib.WhoisTable(record)
	n.Emitter().Table(result.Whois, nil)

	return nil
}

// runTI looks the address up against threat intelligence. Skipped when
// no TI provider is configured.
func (n *IPSummary) runTI(ctx context.Context, address string, result *IPSummaryResult) error {
	ti, err := n.Providers().TI("tilookup")
	if err != nil {
		n.Log().Debug("No tilookup provider configured, skipping ti step")

		return nil
	}

	n.Emitter().EmitSection("ti")

	verdicts, err := ti.Lookup(ctx, []string{address})
	if err != nil {
		return err
	}

	result.TIResults = nblib.VerdictTable(verdicts)
	n.Emitter().Table(result.TIResults, nil)

	return nil
}

// flowColumn picks the first present column name from the candidates,
// falling back to the first candidate.
func flowColumn(table *types.Table, candidates ...string) string {
	for _, name := range candidates {
		if table.HasColumn(name) {
			return name
		}
	}

	return candidates[0]
}
