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

//go:embed network_flow_summary.yaml
var networkFlowSummaryMeta []byte

// NetworkFlowSummaryMetadata returns the raw metadata document for
// catalog registration.
func NetworkFlowSummaryMetadata() []byte { return networkFlowSummaryMeta }

// NetworkFlowSummaryResult is the structured output of a
// NetworkFlowSummary run.
type NetworkFlowSummaryResult struct {
	notebooklet.CoreResult

	// Flows lists the raw network flows.
	Flows *types.Table `json:"flows,omitempty"`
	// FlowSummary aggregates flows by protocol and direction.
	FlowSummary *types.Table `json:"flow_summary,omitempty"`
	// FlowIndex lists the distinct remote endpoints with flow counts.
	FlowIndex *types.Table `json:"flow_index,omitempty"`
	// GeoMap holds remote endpoints resolved to location and ASN.
	GeoMap *types.Table `json:"geo_map,omitempty"`
	// TINetflow holds threat intel verdicts for remote endpoints.
	TINetflow *types.Table `json:"ti_netflow,omitempty"`
}

// Fields implements notebooklet.Result.
func (r *NetworkFlowSummaryResult) Fields() []notebooklet.ResultField {
	return []notebooklet.ResultField{
		{Name: "flows", Description: "Raw network flows", Value: r.Flows},
		{Name: "flow_summary", Description: "Flow counts by protocol and direction", Value: r.FlowSummary},
		{Name: "flow_index", Description: "Distinct remote endpoints with flow counts", Value: r.FlowIndex},
		{Name: "geo_map", Description: "Remote endpoints resolved to location and ASN", Value: r.GeoMap},
		{Name: "ti_netflow", Description: "Threat intel verdicts for remote endpoints", Value: r.TINetflow},
	}
}

// NetworkFlowSummary summarizes network flows around a host or address:
// protocol/direction aggregation, remote endpoint resolution and
// optional threat intel lookup of the endpoints.
type NetworkFlowSummary struct {
	notebooklet.Base
}

// NewNetworkFlowSummary constructs the notebooklet against the
// environment.
func NewNetworkFlowSummary(env *notebooklet.Environment) (notebooklet.Notebooklet, error) {
	meta, err := metadata.Parse(networkFlowSummaryMeta, "azsent.network.NetworkFlowSummary")
	if err != nil {
		return nil, err
	}

	base, err := notebooklet.NewBase(meta, env)
	if err != nil {
		return nil, err
	}

	return &NetworkFlowSummary{Base: base}, nil
}

// Run executes the enabled steps for the address in params.Value.
func (n *NetworkFlowSummary) Run(ctx context.Context, params notebooklet.RunParams) (notebooklet.Result, error) {
	if err := n.Begin(params); err != nil {
		return nil, err
	}

	if params.Value == "" {
		return nil, nberrors.NewMissingParameterError("value")
	}

	if params.Timespan.IsZero() && params.Data == nil {
		return nil, nberrors.NewMissingParameterError("timespan")
	}

	e := n.Emitter()
	e.EmitSection("run")

	result := &NetworkFlowSummaryResult{
		CoreResult: notebooklet.NewCoreResult(n.Description(), n.Timespan()),
	}

	flows := params.Data

	if flows == nil {
		var err error

		flows, err = n.QueryProvider().Query(ctx, "network_flows", n.Timespan(), map[string]any{"ip_address": params.Value})
		if err != nil {
			return nil, err
		}
	}

	result.Flows = flows

	// No flows in the window is a valid empty result.
	if flows.IsEmpty() {
		e.Markdown("No network flows found for the selected address and time range.")
		n.SetLastResult(result)

		return result, nil
	}

	if n.OptionEnabled("flows") {
		e.EmitSection("flows")
		e.Table(flows, nil)
	}

	if n.OptionEnabled("flow_summary") {
		e.EmitSection("flow_summary")

		result.FlowSummary = nblib.GroupCount(flows,
			flowColumn(flows, "protocol", "Protocol"),
			flowColumn(flows, "direction", "FlowDirection"),
		)
		e.Table(result.FlowSummary, nil)
	}

	remotes := remoteEndpoints(flows, params.Value)
	result.FlowIndex = endpointIndex(flows, params.Value)

	if n.OptionEnabled("geo_map") {
		if err := n.runGeoMap(ctx, remotes, result); err != nil {
			return nil, err
		}
	}

	if n.OptionEnabled("ti_netflow") {
		if err := n.runTINetflow(ctx, remotes, result); err != nil {
			return nil, err
		}
	}

	n.SetLastResult(result)

	return result, nil
}

// runGeoMap resolves remote endpoints to location and hosting ASN.
// Skipped when no geolocation provider is configured.
func (n *NetworkFlowSummary) runGeoMap(ctx context.Context, remotes []string, result *NetworkFlowSummaryResult) error {
	if len(remotes) == 0 {
		return nil
	}

	geo, err := n.Providers().GeoIP("geolookup")
	if err != nil {
		n.Log().Debug("No geolookup provider configured, skipping geo_map step")

		return nil
	}

	n.Emitter().EmitSection("geo_map")

	located, err := geo.Locate(ctx, remotes)
	if err != nil {
		return err
	}

	result.GeoMap = nblib.GeoTable(located)
	n.Emitter().Map(result.GeoMap, display.Hints{"lat_column": "latitude", "lon_column": "longitude"})

	return nil
}

// runTINetflow looks public remote endpoints up against threat
// intelligence. Skipped when no TI provider is configured.
func (n *NetworkFlowSummary) runTINetflow(ctx context.Context, remotes []string, result *NetworkFlowSummaryResult) error {
	public := make([]string, 0, len(remotes))

	for _, addr := range remotes {
		if providers.ClassifyIP(addr) == types.IPTypePublic {
			public = append(public, addr)
		}
	}

	if len(public) == 0 {
		return nil
	}

	ti, err := n.Providers().TI("tilookup")
	if err != nil {
		n.Log().Debug("No tilookup provider configured, skipping ti_netflow step")

		return nil
	}

	n.Emitter().EmitSection("ti_netflow")

	verdicts, err := ti.Lookup(ctx, public)
	if err != nil {
		return err
	}

	result.TINetflow = nblib.VerdictTable(verdicts)
	n.Emitter().Table(result.TINetflow, nil)

	return nil
}

// RemoteEndpoints returns the distinct remote flow endpoints from the
// last run.
func (n *NetworkFlowSummary) RemoteEndpoints(localAddress string) []string {
	if !notebooklet.FieldHasData(n.LastResult(), "flows") {
		n.Log().Warn("Run must be called before listing remote endpoints")

		return nil
	}

	result := n.LastResult().(*NetworkFlowSummaryResult)

	return remoteEndpoints(result.Flows, localAddress)
}

// remoteEndpoints collects the distinct far side of each flow: for rows
// where the local address is the source, the destination, and vice
// versa. Rows not involving the local address contribute both sides.
func remoteEndpoints(flows *types.Table, localAddress string) []string {
	srcCol := flowColumn(flows, "src_ip", "SrcIP", "SourceIP")
	destCol := flowColumn(flows, "dest_ip", "DestIP", "DestinationIP")

	seen := make(map[string]struct{})
	remotes := make([]string, 0)

	add := func(addr string) {
		if addr == "" || addr == localAddress {
			return
		}

		if _, ok := seen[addr]; ok {
			return
		}

		seen[addr] = struct{}{}
		remotes = append(remotes, addr)
	}

	for row := range flows.Rows {
		add(flows.StringValue(row, srcCol))
		add(flows.StringValue(row, destCol))
	}

	return remotes
}

// endpointIndex counts flows per remote endpoint, ordered by flow count
// descending.
func endpointIndex(flows *types.Table, localAddress string) *types.Table {
	srcCol := flowColumn(flows, "src_ip", "SrcIP", "SourceIP")
	destCol := flowColumn(flows, "dest_ip", "DestIP", "DestinationIP")

	counts := make(map[string]int)
	order := make([]string, 0)

	for row := range flows.Rows {
		remote := flows.StringValue(row, destCol)
		if remote == localAddress {
			remote = flows.StringValue(row, srcCol)
		}

		if remote == "" || remote == localAddress {
			continue
		}

		if _, ok := counts[remote]; !ok {
			order = append(order, remote)
		}

		counts[remote]++
	}

	index := types.NewTable("remote_ip", "count")
	for _, remote := range order {
		index.Rows = append(index.Rows, []any{remote, counts[remote]})
	}

	return index.SortBy("count", true)
}
