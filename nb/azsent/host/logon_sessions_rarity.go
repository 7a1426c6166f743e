package host

import (
	"context"
	_ "embed"

	"github.com/opensoc/notebooklets/pkg/display"
	"github.com/opensoc/notebooklets/pkg/metadata"
	"github.com/opensoc/notebooklets/pkg/nberrors"
	"github.com/opensoc/notebooklets/pkg/notebooklet"
	"github.com/opensoc/notebooklets/pkg/types"
)

//go:embed logon_sessions_rarity.yaml
var logonSessionsRarityMeta []byte

// LogonSessionsRarityMetadata returns the raw metadata document for
// catalog registration.
func LogonSessionsRarityMetadata() []byte { return logonSessionsRarityMeta }

// LogonSessionsRarityResult is the structured output of a
// LogonSessionsRarity run.
type LogonSessionsRarityResult struct {
	notebooklet.CoreResult

	// ProcessClusters holds one exemplar process per cluster with its
	// population.
	ProcessClusters *types.Table `json:"process_clusters,omitempty"`
	// ProcessesWithCluster is the full event data with cluster ID,
	// cluster size and rarity assigned per event.
	ProcessesWithCluster *types.Table `json:"processes_with_cluster,omitempty"`
	// SessionRarity ranks logon sessions by mean process rarity.
	SessionRarity *types.Table `json:"session_rarity,omitempty"`
}

// Fields implements notebooklet.Result.
func (r *LogonSessionsRarityResult) Fields() []notebooklet.ResultField {
	return []notebooklet.ResultField{
		{Name: "process_clusters", Description: "One example process from each cluster", Value: r.ProcessClusters},
		{Name: "processes_with_cluster", Description: "Events with rarity assigned", Value: r.ProcessesWithCluster},
		{Name: "session_rarity", Description: "Sessions ranked by mean process rarity", Value: r.SessionRarity},
	}
}

// LogonSessionsRarity clusters process events on account, process path
// and command line structure, scores each pattern's rarity as the
// inverse of its cluster population and ranks logon sessions by mean
// rarity.
type LogonSessionsRarity struct {
	notebooklet.Base

	columns sessionColumns
}

// NewLogonSessionsRarity constructs the notebooklet against the
// environment.
func NewLogonSessionsRarity(env *notebooklet.Environment) (notebooklet.Notebooklet, error) {
	meta, err := metadata.Parse(logonSessionsRarityMeta, "azsent.host.LogonSessionsRarity")
	if err != nil {
		return nil, err
	}

	base, err := notebooklet.NewBase(meta, env)
	if err != nil {
		return nil, err
	}

	return &LogonSessionsRarity{Base: base}, nil
}

// Run scores the process events in params.Data, or queries process
// events for the host named by params.Value when no data is supplied.
func (n *LogonSessionsRarity) Run(ctx context.Context, params notebooklet.RunParams) (notebooklet.Result, error) {
	if err := n.Begin(params); err != nil {
		return nil, err
	}

	data := params.Data

	if data == nil {
		if params.Value == "" {
			return nil, nberrors.NewMissingParameterError("data")
		}

		if params.Timespan.IsZero() {
			return nil, nberrors.NewMissingParameterError("timespan")
		}

		var err error

		data, err = n.QueryProvider().Query(ctx, "process_events", n.Timespan(), map[string]any{"host_name": params.Value})
		if err != nil {
			return nil, err
		}
	}

	e := n.Emitter()
	e.EmitSection("run")

	result := &LogonSessionsRarityResult{
		CoreResult: notebooklet.NewCoreResult(n.Description(), n.Timespan()),
	}

	if data.IsEmpty() {
		e.Markdown("No process events to analyze.")
		n.SetLastResult(result)

		return result, nil
	}

	n.columns = mapSessionColumns(data)

	features := addSessionFeatures(data, n.columns)
	clusters, labeled := clusterSessions(features)

	result.ProcessClusters = clusters
	result.ProcessesWithCluster = labeled
	result.SessionRarity = sessionRaritySummary(labeled, n.columns)
	n.SetLastResult(result)

	if n.OptionEnabled("process_clusters") {
		e.EmitSection("process_clusters")
		e.Table(clusters, nil)
	}

	if n.OptionEnabled("session_rarity") {
		e.EmitSection("session_rarity")
		e.Table(result.SessionRarity, display.Hints{"bar_column": "MeanRarity"})
	}

	if n.OptionEnabled("process_tree") && result.SessionRarity.Len() > 0 {
		e.EmitSection("process_tree")

		rarest := result.SessionRarity.StringValue(0, n.columns.Session)
		e.Tree(n.sessionEvents(rarest), display.Hints{"legend_column": colRarity})
	}

	return result, nil
}

// ListSessionsByRarity re-renders the session ranking from the last
// run, rarest first.
func (n *LogonSessionsRarity) ListSessionsByRarity() {
	if !notebooklet.FieldHasData(n.LastResult(), "session_rarity") {
		n.Log().Warn("Run must be called before listing sessions by rarity")

		return
	}

	result := n.LastResult().(*LogonSessionsRarityResult)
	n.Emitter().Table(result.SessionRarity, display.Hints{"bar_column": "MeanRarity"})
}

// ProcessTree renders a process tree filtered by account or session
// from the last run. With neither given, the full labeled event set is
// rendered.
func (n *LogonSessionsRarity) ProcessTree(account, session string) {
	if !notebooklet.FieldHasData(n.LastResult(), "processes_with_cluster") {
		n.Log().Warn("Run must be called before viewing a process tree")

		return
	}

	result := n.LastResult().(*LogonSessionsRarityResult)
	data := result.ProcessesWithCluster

	switch {
	case account != "" && account != "all":
		data = data.FilterEquals(n.columns.Account, account)
	case session != "":
		data = data.FilterEquals(n.columns.Session, session)
	}

	n.Emitter().Tree(data, display.Hints{"legend_column": colRarity})
}

// SessionEvents returns the labeled events of one logon session from
// the last run, ordered by time.
func (n *LogonSessionsRarity) SessionEvents(session string) *types.Table {
	if !notebooklet.FieldHasData(n.LastResult(), "processes_with_cluster") {
		n.Log().Warn("Run must be called before browsing session events")

		return nil
	}

	return n.sessionEvents(session)
}

func (n *LogonSessionsRarity) sessionEvents(session string) *types.Table {
	result := n.LastResult().(*LogonSessionsRarityResult)

	return result.ProcessesWithCluster.
		FilterEquals(n.columns.Session, session).
		SortBy(n.columns.Timestamp, false)
}
