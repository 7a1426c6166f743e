// Package account contains the account-focused notebooklets.
package account

import (
	"context"
	_ "embed"
	"strings"

	"github.com/opensoc/notebooklets/nb/nblib"
	"github.com/opensoc/notebooklets/pkg/display"
	"github.com/opensoc/notebooklets/pkg/metadata"
	"github.com/opensoc/notebooklets/pkg/nberrors"
	"github.com/opensoc/notebooklets/pkg/notebooklet"
	"github.com/opensoc/notebooklets/pkg/types"
)

//go:embed account_summary.yaml
var accountSummaryMeta []byte

// AccountSummaryMetadata returns the raw metadata document for catalog
// registration.
func AccountSummaryMetadata() []byte { return accountSummaryMeta }

// AccountSummaryResult is the structured output of an AccountSummary
// run.
type AccountSummaryResult struct {
	notebooklet.CoreResult

	// AccountEntity is the parsed account record.
	AccountEntity *types.Account `json:"account_entity,omitempty"`
	// Activity lists logon and activity events for the account.
	Activity *types.Table `json:"account_activity,omitempty"`
	// ActivityByHost counts activity events per host.
	ActivityByHost *types.Table `json:"activity_by_host,omitempty"`
	// RelatedAlerts lists alerts referencing the account.
	RelatedAlerts *types.Table `json:"related_alerts,omitempty"`
	// RelatedBookmarks lists hunting bookmarks referencing the account.
	RelatedBookmarks *types.Table `json:"related_bookmarks,omitempty"`
	// AADSignins lists cloud directory sign-in events.
	AADSignins *types.Table `json:"aad_signins,omitempty"`
}

// Fields implements notebooklet.Result.
func (r *AccountSummaryResult) Fields() []notebooklet.ResultField {
	return []notebooklet.ResultField{
		{Name: "account_entity", Description: "Parsed account entity", Value: r.AccountEntity},
		{Name: "account_activity", Description: "Logon and activity events", Value: r.Activity},
		{Name: "activity_by_host", Description: "Activity counts per host", Value: r.ActivityByHost},
		{Name: "related_alerts", Description: "Alerts related to the account", Value: r.RelatedAlerts},
		{Name: "related_bookmarks", Description: "Hunting bookmarks related to the account", Value: r.RelatedBookmarks},
		{Name: "aad_signins", Description: "Cloud directory sign-in events", Value: r.AADSignins},
	}
}

// AccountSummary collects activity, alerts and bookmarks for a single
// account. The account name may be bare, "DOMAIN\name" or a UPN; the
// entity parse records which form was given.
type AccountSummary struct {
	notebooklet.Base
}

// NewAccountSummary constructs the notebooklet against the environment.
func NewAccountSummary(env *notebooklet.Environment) (notebooklet.Notebooklet, error) {
	meta, err := metadata.Parse(accountSummaryMeta, "azsent.account.AccountSummary")
	if err != nil {
		return nil, err
	}

	base, err := notebooklet.NewBase(meta, env)
	if err != nil {
		return nil, err
	}

	return &AccountSummary{Base: base}, nil
}

// Run executes the enabled steps for the account named by params.Value.
func (n *AccountSummary) Run(ctx context.Context, params notebooklet.RunParams) (notebooklet.Result, error) {
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

	result := &AccountSummaryResult{
		CoreResult:    notebooklet.NewCoreResult(n.Description(), n.Timespan()),
		AccountEntity: ParseAccount(params.Value),
	}

	qp := n.QueryProvider()

	if n.OptionEnabled("account_activity") {
		e.EmitSection("account_activity")

		activity, err := qp.Query(ctx, "account_activity", n.Timespan(), map[string]any{"account_name": params.Value})
		if err != nil {
			return nil, err
		}

		result.Activity = activity
		e.Table(activity, nil)

		if !activity.IsEmpty() {
			if result.AccountEntity.SourceOS == "" {
				result.AccountEntity.SourceOS = sourceOS(activity)
			}

			result.ActivityByHost = nblib.GroupCount(activity, accountColumn(activity, "computer", "Computer", "host_name"))
			e.Table(result.ActivityByHost, nil)
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

	if n.OptionEnabled("aad_signins") {
		e.EmitSection("aad_signins")

		signins, err := qp.Query(ctx, "aad_signins", n.Timespan(), map[string]any{"account_name": params.Value})
		if err != nil {
			return nil, err
		}

		result.AADSignins = signins
		e.Table(signins, nil)

		if !signins.IsEmpty() && result.AccountEntity.SourceOS == "" {
			result.AccountEntity.SourceOS = "Entra"
		}
	}

	if n.OptionEnabled("activity_timeline") && !result.Activity.IsEmpty() {
		e.EmitSection("activity_timeline")
		e.Timeline(result.Activity, display.Hints{
			"time_column": accountColumn(result.Activity, "timestamp", "TimeGenerated"),
			"group_by":    accountColumn(result.Activity, "computer", "Computer"),
		})
	}

	n.SetLastResult(result)

	return result, nil
}

// ActivityOnHost returns the account's activity events on one host from
// the last run.
func (n *AccountSummary) ActivityOnHost(hostName string) *types.Table {
	if !notebooklet.FieldHasData(n.LastResult(), "account_activity") {
		n.Log().Warn("Run must be called before drilling into host activity")

		return nil
	}

	result := n.LastResult().(*AccountSummaryResult)
	col := accountColumn(result.Activity, "computer", "Computer", "host_name")

	return result.Activity.FilterEquals(col, hostName)
}

// ParseAccount decomposes an account identifier. "DOMAIN\name" yields a
// domain-qualified Windows account, "name@domain" a UPN, anything else
// a bare name.
func ParseAccount(value string) *types.Account {
	if domain, name, ok := strings.Cut(value, `\`); ok && domain != "" && name != "" {
		return &types.Account{Name: name, Domain: domain, SourceOS: "Windows"}
	}

	if name, domain, ok := strings.Cut(value, "@"); ok && name != "" && domain != "" {
		return &types.Account{Name: name, Domain: domain, UPN: value}
	}

	return &types.Account{Name: value}
}

// sourceOS infers the account's source platform from an os column in
// the activity data, when one is present.
func sourceOS(activity *types.Table) string {
	for _, col := range []string{"os_family", "os_type", "OSType"} {
		if activity.HasColumn(col) {
			return activity.StringValue(0, col)
		}
	}

	return ""
}

// accountColumn picks the first present column name from the
// candidates, falling back to the first candidate.
func accountColumn(table *types.Table, candidates ...string) string {
	for _, name := range candidates {
		if table.HasColumn(name) {
			return name
		}
	}

	return candidates[0]
}
