package host

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/opensoc/notebooklets/nb/nblib"
	"github.com/opensoc/notebooklets/pkg/display"
	"github.com/opensoc/notebooklets/pkg/metadata"
	"github.com/opensoc/notebooklets/pkg/nberrors"
	"github.com/opensoc/notebooklets/pkg/notebooklet"
	"github.com/opensoc/notebooklets/pkg/types"
)

//go:embed win_host_events.yaml
var winHostEventsMeta []byte

// WinHostEventsMetadata returns the raw metadata document for catalog
// registration.
func WinHostEventsMetadata() []byte { return winHostEventsMeta }

// WinHostEventsResult is the structured output of a WinHostEvents run.
type WinHostEventsResult struct {
	notebooklet.CoreResult

	// AllEvents lists every security event retrieved.
	AllEvents *types.Table `json:"all_events,omitempty"`
	// EventPivot counts events by event ID and activity.
	EventPivot *types.Table `json:"event_pivot,omitempty"`
	// AccountEvents lists account management events.
	AccountEvents *types.Table `json:"account_events,omitempty"`
	// AccountPivot counts account management events by target account.
	AccountPivot *types.Table `json:"account_pivot,omitempty"`
	// ExpandedEvents holds the packed event data parsed into columns.
	ExpandedEvents *types.Table `json:"expanded_events,omitempty"`
}

// Fields implements notebooklet.Result.
func (r *WinHostEventsResult) Fields() []notebooklet.ResultField {
	return []notebooklet.ResultField{
		{Name: "all_events", Description: "All security events for the host", Value: r.AllEvents},
		{Name: "event_pivot", Description: "Event counts by event ID", Value: r.EventPivot},
		{Name: "account_events", Description: "Account management events", Value: r.AccountEvents},
		{Name: "account_pivot", Description: "Account management counts by target", Value: r.AccountPivot},
		{Name: "expanded_events", Description: "Event data expanded into columns", Value: r.ExpandedEvents},
	}
}

// WinHostEvents retrieves and decodes Windows security events for a
// host, with optional expansion of the packed event data payload.
type WinHostEvents struct {
	notebooklet.Base
}

// NewWinHostEvents constructs the notebooklet against the environment.
func NewWinHostEvents(env *notebooklet.Environment) (notebooklet.Notebooklet, error) {
	meta, err := metadata.Parse(winHostEventsMeta, "azsent.host.WinHostEvents")
	if err != nil {
		return nil, err
	}

	base, err := notebooklet.NewBase(meta, env)
	if err != nil {
		return nil, err
	}

	return &WinHostEvents{Base: base}, nil
}

// Run executes the enabled steps for the host named by params.Value.
func (n *WinHostEvents) Run(ctx context.Context, params notebooklet.RunParams) (notebooklet.Result, error) {
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

	result := &WinHostEventsResult{
		CoreResult: notebooklet.NewCoreResult(n.Description(), n.Timespan()),
	}

	qp := n.QueryProvider()

	events, err := qp.Query(ctx, "win_security_events", n.Timespan(), map[string]any{"host_name": params.Value})
	if err != nil {
		return nil, err
	}

	result.AllEvents = events

	if events.IsEmpty() {
		e.Markdown("No security events found for the selected host and time range.")
		n.SetLastResult(result)

		return result, nil
	}

	if n.OptionEnabled("event_pivot") {
		e.EmitSection("event_pivot")

		result.EventPivot = nblib.GroupCount(events, eventColumn(events, "event_id", "EventID"), eventColumn(events, "activity", "Activity"))
		e.Table(result.EventPivot, nil)
	}

	if n.OptionEnabled("acct_events") {
		e.EmitSection("acct_events")

		acctEvents, err := qp.Query(ctx, "account_mgmt_events", n.Timespan(), map[string]any{"host_name": params.Value})
		if err != nil {
			return nil, err
		}

		result.AccountEvents = acctEvents

		if !acctEvents.IsEmpty() {
			result.AccountPivot = nblib.GroupCount(acctEvents, eventColumn(acctEvents, "target_account", "TargetUserName"), eventColumn(acctEvents, "event_id", "EventID"))
			e.Table(result.AccountPivot, nil)
			e.Timeline(acctEvents, display.Hints{
				"time_column": eventColumn(acctEvents, "timestamp", "TimeGenerated"),
				"group_by":    eventColumn(acctEvents, "event_id", "EventID"),
			})
		}
	}

	if n.OptionEnabled("expand_events") {
		e.EmitSection("expand_events")

		result.ExpandedEvents = expandEventData(events, eventColumn(events, "event_data", "EventData"))
		e.Table(result.ExpandedEvents, nil)
	}

	n.SetLastResult(result)

	return result, nil
}

// ExpandEvents parses the packed event data column of the last run's
// events, filtered to the given event IDs (all events when empty).
func (n *WinHostEvents) ExpandEvents(eventIDs ...string) *types.Table {
	if !notebooklet.FieldHasData(n.LastResult(), "all_events") {
		n.Log().Warn("Run must be called before expanding events")

		return nil
	}

	result := n.LastResult().(*WinHostEventsResult)
	events := result.AllEvents

	if len(eventIDs) > 0 {
		idCol := eventColumn(events, "event_id", "EventID")
		want := make(map[string]struct{}, len(eventIDs))

		for _, id := range eventIDs {
			want[id] = struct{}{}
		}

		idIdx := events.ColumnIndex(idCol)
		events = events.Filter(func(row []any) bool {
			if idIdx < 0 {
				return false
			}

			_, ok := want[stringCell(row[idIdx])]

			return ok
		})
	}

	expanded := expandEventData(events, eventColumn(events, "event_data", "EventData"))
	result.ExpandedEvents = expanded

	return expanded
}

// expandEventData parses a packed "key=value;key=value" payload column
// into one flat column per key. Rows missing a key get an empty cell.
func expandEventData(events *types.Table, dataColumn string) *types.Table {
	idx := events.ColumnIndex(dataColumn)
	if idx < 0 {
		return types.NewTable(events.Columns...)
	}

	parsed := make([]map[string]string, events.Len())
	keyOrder := make([]string, 0)
	seenKeys := make(map[string]struct{})

	for i, row := range events.Rows {
		fields := make(map[string]string)

		for _, pair := range strings.Split(stringCell(row[idx]), ";") {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				continue
			}

			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}

			fields[key] = strings.TrimSpace(value)

			if _, ok := seenKeys[key]; !ok {
				seenKeys[key] = struct{}{}
				keyOrder = append(keyOrder, key)
			}
		}

		parsed[i] = fields
	}

	// Original columns minus the packed payload, then one column per
	// discovered key.
	columns := make([]string, 0, len(events.Columns)+len(keyOrder))
	keep := make([]int, 0, len(events.Columns))

	for i, col := range events.Columns {
		if i == idx {
			continue
		}

		columns = append(columns, col)
		keep = append(keep, i)
	}

	columns = append(columns, keyOrder...)
	expanded := types.NewTable(columns...)

	for i, row := range events.Rows {
		values := make([]any, 0, len(columns))

		for _, keepIdx := range keep {
			values = append(values, row[keepIdx])
		}

		for _, key := range keyOrder {
			values = append(values, parsed[i][key])
		}

		expanded.Rows = append(expanded.Rows, values)
	}

	return expanded
}

func eventColumn(table *types.Table, candidates ...string) string {
	for _, name := range candidates {
		if table.HasColumn(name) {
			return name
		}
	}

	return candidates[0]
}

func stringCell(v any) string {
	if v == nil {
		return ""
	}

	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprint(v)
}
