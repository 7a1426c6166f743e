// Package alert contains the alert enrichment notebooklet.
package alert

import (
	"context"
	_ "embed"

	"github.com/opensoc/notebooklets/nb/nblib"
	"github.com/opensoc/notebooklets/pkg/metadata"
	"github.com/opensoc/notebooklets/pkg/nberrors"
	"github.com/opensoc/notebooklets/pkg/notebooklet"
	"github.com/opensoc/notebooklets/pkg/types"
)

//go:embed enrich_alerts.yaml
var enrichAlertsMeta []byte

// EnrichAlertsMetadata returns the raw metadata document for catalog
// registration.
func EnrichAlertsMetadata() []byte { return enrichAlertsMeta }

// EnrichAlertsResult is the structured output of an EnrichAlerts run.
type EnrichAlertsResult struct {
	notebooklet.CoreResult

	// EnrichedAlerts is the input alert table with the highest matched
	// verdict severity attached per alert.
	EnrichedAlerts *types.Table `json:"enriched_alerts,omitempty"`
	// Verdicts holds the per-indicator lookup outcomes.
	Verdicts *types.Table `json:"verdicts,omitempty"`
	// IoCs lists the distinct indicators extracted from the alerts.
	IoCs []string `json:"iocs,omitempty"`
}

// Fields implements notebooklet.Result.
func (r *EnrichAlertsResult) Fields() []notebooklet.ResultField {
	return []notebooklet.ResultField{
		{Name: "enriched_alerts", Description: "Alerts with matched verdict severity", Value: r.EnrichedAlerts},
		{Name: "verdicts", Description: "Per-indicator verdicts", Value: r.Verdicts},
		{Name: "iocs", Description: "Indicators extracted from the alerts", Value: r.IoCs},
	}
}

// EnrichAlerts extracts indicators from a table of alerts, looks them
// up against threat intelligence in one batch and joins the highest
// matched severity back to each alert.
type EnrichAlerts struct {
	notebooklet.Base
}

// NewEnrichAlerts constructs the notebooklet against the environment.
func NewEnrichAlerts(env *notebooklet.Environment) (notebooklet.Notebooklet, error) {
	meta, err := metadata.Parse(enrichAlertsMeta, "azsent.alert.EnrichAlerts")
	if err != nil {
		return nil, err
	}

	base, err := notebooklet.NewBase(meta, env)
	if err != nil {
		return nil, err
	}

	return &EnrichAlerts{Base: base}, nil
}

// Run enriches the alerts in params.Data, or queries the alert window
// when no data is supplied.
func (n *EnrichAlerts) Run(ctx context.Context, params notebooklet.RunParams) (notebooklet.Result, error) {
	if err := n.Begin(params); err != nil {
		return nil, err
	}

	alerts := params.Data

	if alerts == nil {
		if params.Timespan.IsZero() {
			return nil, nberrors.NewMissingParameterError("timespan")
		}

		var err error

		alerts, err = n.QueryProvider().Query(ctx, "alerts_window", n.Timespan(), nil)
		if err != nil {
			return nil, err
		}
	}

	e := n.Emitter()
	e.EmitSection("run")

	result := &EnrichAlertsResult{
		CoreResult:     notebooklet.NewCoreResult(n.Description(), n.Timespan()),
		EnrichedAlerts: alerts,
	}

	// No alerts in the window is a valid empty result.
	if alerts.IsEmpty() {
		e.Markdown("No alerts found for the selected time range.")
		n.SetLastResult(result)

		return result, nil
	}

	entityCol := alertColumn(alerts, "entities", "Entities", "description")
	result.IoCs = nblib.ExtractIoCs(alerts, entityCol)

	if n.OptionEnabled("ti") && len(result.IoCs) > 0 {
		ti, err := n.Providers().TI("tilookup")
		if err != nil {
			return nil, err
		}

		verdicts, err := ti.Lookup(ctx, result.IoCs)
		if err != nil {
			return nil, err
		}

		result.Verdicts = nblib.VerdictTable(verdicts)

		severities := make([]any, alerts.Len())
		for row := range alerts.Rows {
			severities[row] = nblib.MaxSeverity(alerts.StringValue(row, entityCol), verdicts)
		}

		enriched := &types.Table{
			Columns: append([]string{}, alerts.Columns...),
			Rows:    make([][]any, len(alerts.Rows)),
		}
		for i, row := range alerts.Rows {
			enriched.Rows[i] = append([]any{}, row...)
		}

		if err := enriched.AddColumn("MatchedSeverity", severities); err != nil {
			return nil, err
		}

		result.EnrichedAlerts = enriched
	}

	if n.OptionEnabled("details") {
		e.EmitSection("details")
		e.Table(result.EnrichedAlerts, nil)
	}

	if n.OptionEnabled("raw_verdicts") && !result.Verdicts.IsEmpty() {
		e.EmitSection("raw_verdicts")
		e.Table(result.Verdicts, nil)
	}

	n.SetLastResult(result)

	return result, nil
}

// HighSeverityAlerts returns the enriched alerts whose matched verdict
// severity is "high", from the last run.
func (n *EnrichAlerts) HighSeverityAlerts() *types.Table {
	if !notebooklet.FieldHasData(n.LastResult(), "enriched_alerts") {
		n.Log().Warn("Run must be called before filtering enriched alerts")

		return nil
	}

	result := n.LastResult().(*EnrichAlertsResult)

	return result.EnrichedAlerts.FilterEquals("MatchedSeverity", "high")
}

// alertColumn picks the first present column name from the candidates,
// falling back to the first candidate.
func alertColumn(table *types.Table, candidates ...string) string {
	for _, name := range candidates {
		if table.HasColumn(name) {
			return name
		}
	}

	return candidates[0]
}
