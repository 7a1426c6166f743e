package host

import (
	"context"
	_ "embed"

	"github.com/opensoc/notebooklets/nb/nblib"
	"github.com/opensoc/notebooklets/pkg/display"
	"github.com/opensoc/notebooklets/pkg/metadata"
	"github.com/opensoc/notebooklets/pkg/nberrors"
	"github.com/opensoc/notebooklets/pkg/notebooklet"
	"github.com/opensoc/notebooklets/pkg/types"
)

//go:embed host_logons_summary.yaml
var hostLogonsSummaryMeta []byte

// HostLogonsSummaryMetadata returns the raw metadata document for
// catalog registration.
func HostLogonsSummaryMetadata() []byte { return hostLogonsSummaryMeta }

// HostLogonsSummaryResult is the structured output of a
// HostLogonsSummary run.
type HostLogonsSummaryResult struct {
	notebooklet.CoreResult

	// LogonSessions lists the raw logon events.
	LogonSessions *types.Table `json:"logon_sessions,omitempty"`
	// LogonMatrix counts logons by account and logon type.
	LogonMatrix *types.Table `json:"logon_matrix,omitempty"`
	// FailedSuccess counts logons by result.
	FailedSuccess *types.Table `json:"failed_success,omitempty"`
	// LogonMap holds geolocated logon source addresses.
	LogonMap *types.Table `json:"logon_map,omitempty"`
}

// Fields implements notebooklet.Result.
func (r *HostLogonsSummaryResult) Fields() []notebooklet.ResultField {
	return []notebooklet.ResultField{
		{Name: "logon_sessions", Description: "Logon events for the host", Value: r.LogonSessions},
		{Name: "logon_matrix", Description: "Logon counts by account and logon type", Value: r.LogonMatrix},
		{Name: "failed_success", Description: "Logon counts by result", Value: r.FailedSuccess},
		{Name: "logon_map", Description: "Geolocated logon source addresses", Value: r.LogonMap},
	}
}

// HostLogonsSummary summarizes logon activity on a host: raw events,
// account/type matrix, success/failure counts and source geolocation.
type HostLogonsSummary struct {
	notebooklet.Base
}

// NewHostLogonsSummary constructs the notebooklet against the
// environment.
func NewHostLogonsSummary(env *notebooklet.Environment) (notebooklet.Notebooklet, error) {
	meta, err := metadata.Parse(hostLogonsSummaryMeta, "azsent.host.HostLogonsSummary")
	if err != nil {
		return nil, err
	}

	base, err := notebooklet.NewBase(meta, env)
	if err != nil {
		return nil, err
	}

	return &HostLogonsSummary{Base: base}, nil
}

// Run executes the enabled steps. Accepts pre-fetched logon data via
// params.Data; otherwise queries for the host named by params.Value.
func (n *HostLogonsSummary) Run(ctx context.Context, params notebooklet.RunParams) (notebooklet.Result, error) {
	if err := n.Begin(params); err != nil {
		return nil, err
	}

	if params.Value == "" && params.Data == nil {
		return nil, nberrors.NewMissingParameterError("value")
	}

	if params.Timespan.IsZero() && params.Data == nil {
		return nil, nberrors.NewMissingParameterError("timespan")
	}

	e := n.Emitter()
	e.EmitSection("run")

	result := &HostLogonsSummaryResult{
		CoreResult: notebooklet.NewCoreResult(n.Description(), n.Timespan()),
	}

	logons := params.Data

	if logons == nil {
		var err error

		logons, err = n.QueryProvider().Query(ctx, "host_logons", n.Timespan(), map[string]any{"host_name": params.Value})
		if err != nil {
			return nil, err
		}
	}

	// No logons in the window is a valid empty result.
	if logons.IsEmpty() {
		e.Markdown("No logon events found for the selected host and time range.")
		result.LogonSessions = logons
		n.SetLastResult(result)

		return result, nil
	}

	if n.OptionEnabled("logon_sessions") {
		e.EmitSection("logon_sessions")
		result.LogonSessions = logons
		e.Table(logons, nil)
	}

	if n.OptionEnabled("logon_matrix") {
		e.EmitSection("logon_matrix")

		result.LogonMatrix = nblib.GroupCount(logons, logonColumn(logons, "account", "Account"), logonColumn(logons, "logon_type", "LogonType"))
		e.Table(result.LogonMatrix, nil)
	}

	if n.OptionEnabled("failed_success") {
		e.EmitSection("failed_success")

		result.FailedSuccess = nblib.GroupCount(logons, logonColumn(logons, "logon_result", "LogonResult"))
		e.Table(result.FailedSuccess, nil)
	}

	if n.OptionEnabled("timeline") {
		e.EmitSection("timeline")
		e.Timeline(logons, display.Hints{
			"time_column": logonColumn(logons, "timestamp", "TimeGenerated"),
			"group_by":    logonColumn(logons, "account", "Account"),
		})
	}

	if n.OptionEnabled("map") {
		if err := n.runLogonMap(ctx, logons, result); err != nil {
			return nil, err
		}
	}

	n.SetLastResult(result)

	return result, nil
}

// runLogonMap geolocates distinct logon source addresses. Skipped when
// no geolocation provider is configured.
func (n *HostLogonsSummary) runLogonMap(ctx context.Context, logons *types.Table, result *HostLogonsSummaryResult) error {
	geo, err := n.Providers().GeoIP("geolookup")
	if err != nil {
		n.Log().Debug("No geolookup provider configured, skipping map step")

		return nil
	}

	addresses := logons.UniqueStrings(logonColumn(logons, "source_ip", "IpAddress"))
	if len(addresses) == 0 {
		return nil
	}

	n.Emitter().EmitSection("map")

	located, err := geo.Locate(ctx, addresses)
	if err != nil {
		return err
	}

	result.LogonMap = nblib.GeoTable(located)
	n.Emitter().Map(result.LogonMap, display.Hints{"lat_column": "latitude", "lon_column": "longitude"})

	return nil
}

// FailedLogons returns the logon events whose result column indicates a
// failure, from the last run.
func (n *HostLogonsSummary) FailedLogons() *types.Table {
	if !notebooklet.FieldHasData(n.LastResult(), "logon_sessions") {
		n.Log().Warn("Run must be called before drilling into failed logons")

		return nil
	}

	result := n.LastResult().(*HostLogonsSummaryResult)
	col := logonColumn(result.LogonSessions, "logon_result", "LogonResult")

	return result.LogonSessions.FilterEquals(col, "Failure")
}

// logonColumn picks the first present column name from the candidates,
// falling back to the first candidate.
func logonColumn(table *types.Table, candidates ...string) string {
	for _, name := range candidates {
		if table.HasColumn(name) {
			return name
		}
	}

	return candidates[0]
}
