// Package host contains the host-focused notebooklets: entity summary,
// logon analysis, Windows event decoding and logon session rarity
// scoring.
package host

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

//go:embed host_summary.yaml
var hostSummaryMeta []byte

// HostSummaryMetadata returns the raw metadata document for catalog
// registration.
func HostSummaryMetadata() []byte { return hostSummaryMeta }

// HostSummaryResult is the structured output of a HostSummary run.
type HostSummaryResult struct {
	notebooklet.CoreResult

	// HostEntity is the assembled host record.
	HostEntity *types.Host `json:"host_entity,omitempty"`
	// Heartbeat is the latest heartbeat record for the host.
	Heartbeat *types.Table `json:"heartbeat,omitempty"`
	// AzureNetwork lists network interfaces attached to the host.
	AzureNetwork *types.Table `json:"azure_network,omitempty"`
	// AzureDetails holds management-plane metadata for the host.
	AzureDetails *types.Table `json:"azure_details,omitempty"`
	// RelatedAlerts lists alerts referencing the host.
	RelatedAlerts *types.Table `json:"related_alerts,omitempty"`
	// RelatedBookmarks lists hunting bookmarks referencing the host.
	RelatedBookmarks *types.Table `json:"related_bookmarks,omitempty"`
	// Processes lists process execution events on the host.
	Processes *types.Table `json:"processes,omitempty"`
	// ProcessTI holds threat intel verdicts for command line indicators.
	ProcessTI *types.Table `json:"process_ti,omitempty"`
}

// Fields implements notebooklet.Result.
func (r *HostSummaryResult) Fields() []notebooklet.ResultField {
	return []notebooklet.ResultField{
		{Name: "host_entity", Description: "Assembled host entity", Value: r.HostEntity},
		{Name: "heartbeat", Description: "Latest heartbeat record", Value: r.Heartbeat},
		{Name: "azure_network", Description: "Network interface topology", Value: r.AzureNetwork},
		{Name: "azure_details", Description: "Cloud management plane details", Value: r.AzureDetails},
		{Name: "related_alerts", Description: "Alerts related to the host", Value: r.RelatedAlerts},
		{Name: "related_bookmarks", Description: "Hunting bookmarks related to the host", Value: r.RelatedBookmarks},
		{Name: "processes", Description: "Process execution events", Value: r.Processes},
		{Name: "process_ti", Description: "Threat intel verdicts for process indicators", Value: r.ProcessTI},
	}
}

// HostSummary collects heartbeat, topology, alert and bookmark data for
// a single host into one result.
type HostSummary struct {
	notebooklet.Base
}

// NewHostSummary constructs the notebooklet against the environment.
func NewHostSummary(env *notebooklet.Environment) (notebooklet.Notebooklet, error) {
	meta, err := metadata.Parse(hostSummaryMeta, "azsent.host.HostSummary")
	if err != nil {
		return nil, err
	}

	base, err := notebooklet.NewBase(meta, env)
	if err != nil {
		return nil, err
	}

	return &HostSummary{Base: base}, nil
}

// Run executes the enabled steps for the host named by params.Value.
func (n *HostSummary) Run(ctx context.Context, params notebooklet.RunParams) (notebooklet.Result, error) {
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

	result := &HostSummaryResult{
		CoreResult: notebooklet.NewCoreResult(n.Description(), n.Timespan()),
	}

	qp := n.QueryProvider()

	if n.OptionEnabled("heartbeat") {
		e.EmitSection("heartbeat")

		heartbeat, err := qp.Query(ctx, "host_heartbeat", n.Timespan(), map[string]any{"host_name": params.Value})
		if err != nil {
			return nil, err
		}

		result.Heartbeat = heartbeat
		e.Table(heartbeat, nil)
	}

	result.HostEntity = nblib.HostFromHeartbeat(params.Value, result.Heartbeat)

	if n.OptionEnabled("azure_net") {
		e.EmitSection("azure_net")

		topology, err := qp.Query(ctx, "az_net_topology", n.Timespan(), map[string]any{"host_name": params.Value})
		if err != nil {
			return nil, err
		}

		result.AzureNetwork = topology
		e.Table(topology, nil)

		if !topology.IsEmpty() && result.HostEntity.IPAddress == "" {
			result.HostEntity.IPAddress = topology.StringValue(0, "private_ip")
		}
	}

	if n.OptionEnabled("azure_api") {
		if err := n.runAzureAPI(ctx, params.Value, result); err != nil {
			return nil, err
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

	if n.OptionEnabled("bookmarks") {
		e.EmitSection("bookmarks")

		bookmarks, err := qp.Query(ctx, "related_bookmarks", n.Timespan(), map[string]any{"value": params.Value})
		if err != nil {
			return nil, err
		}

		result.RelatedBookmarks = bookmarks
		e.Table(bookmarks, nil)
	}

	if n.OptionEnabled("processes") {
		e.EmitSection("processes")

		processes, err := qp.Query(ctx, "process_events", n.Timespan(), map[string]any{"host_name": params.Value})
		if err != nil {
			return nil, err
		}

		result.Processes = processes
		e.Table(processes, nil)
	}

	if n.OptionEnabled("process_ti") && !result.Processes.IsEmpty() {
		if err := n.runProcessTI(ctx, result); err != nil {
			return nil, err
		}
	}

	n.SetLastResult(result)

	return result, nil
}

// runAzureAPI queries the management-plane provider when one is
// configured. The step is skipped, not failed, when the provider is
// absent.
func (n *HostSummary) runAzureAPI(ctx context.Context, hostName string, result *HostSummaryResult) error {
	p, err := n.Provider("azuredata")
	if err != nil {
		n.Log().Debug("No azuredata provider configured, skipping azure_api step")

		return nil
	}

	qp, ok := p.(providers.QueryProvider)
	if !ok {
		n.Log().Warn("azuredata provider does not support queries, skipping azure_api step")

		return nil
	}

	n.Emitter().EmitSection("azure_api")

	details, err := qp.Query(ctx, "host_azure_details", n.Timespan(), map[string]any{"host_name": hostName})
	if err != nil {
		return err
	}

	result.AzureDetails = details
	n.Emitter().Table(details, nil)

	return nil
}

// runProcessTI extracts indicators from process command lines and looks
// them up against the threat intel provider when one is configured.
func (n *HostSummary) runProcessTI(ctx context.Context, result *HostSummaryResult) error {
	ti, err := n.Providers().TI("tilookup")
	if err != nil {
		n.Log().Debug("No tilookup provider configured, skipping process_ti step")

		return nil
	}

	iocs := nblib.ExtractIoCs(result.Processes, "command_line", "CommandLine")
	if len(iocs) == 0 {
		return nil
	}

	n.Emitter().EmitSection("process_ti")

	verdicts, err := ti.Lookup(ctx, iocs)
	if err != nil {
		return err
	}

	result.ProcessTI = nblib.VerdictTable(verdicts)
	n.Emitter().Table(result.ProcessTI, nil)

	return nil
}

// AlertTimeline re-renders the related alerts timeline from the last
// run. Warns when Run has not populated alerts yet.
func (n *HostSummary) AlertTimeline() {
	if !notebooklet.FieldHasData(n.LastResult(), "related_alerts") {
		n.Log().Warn("Run must be called before viewing the alert timeline")

		return
	}

	result := n.LastResult().(*HostSummaryResult)
	n.Emitter().Timeline(result.RelatedAlerts, display.Hints{"time_column": "timestamp", "group_by": "alert_name"})
}
