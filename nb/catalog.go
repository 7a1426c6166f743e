// Package nb bundles the concrete notebooklets shipped with the
// framework into a single static catalog.
package nb

import (
	"github.com/opensoc/notebooklets/nb/azsent/account"
	"github.com/opensoc/notebooklets/nb/azsent/alert"
	"github.com/opensoc/notebooklets/nb/azsent/host"
	"github.com/opensoc/notebooklets/nb/azsent/network"
	"github.com/opensoc/notebooklets/nb/azsent/url"
	"github.com/opensoc/notebooklets/pkg/registry"
)

// Catalog returns the descriptors of every bundled notebooklet, keyed
// by hierarchical path. Pass the result to registry.Discover.
func Catalog() []registry.Descriptor {
	return []registry.Descriptor{
		{
			Path:     "azsent.host.HostSummary",
			Metadata: host.HostSummaryMetadata(),
			New:      host.NewHostSummary,
		},
		{
			Path:     "azsent.host.HostLogonsSummary",
			Metadata: host.HostLogonsSummaryMetadata(),
			New:      host.NewHostLogonsSummary,
		},
		{
			Path:     "azsent.host.WinHostEvents",
			Metadata: host.WinHostEventsMetadata(),
			New:      host.NewWinHostEvents,
		},
		{
			Path:     "azsent.host.LogonSessionsRarity",
			Metadata: host.LogonSessionsRarityMetadata(),
			New:      host.NewLogonSessionsRarity,
		},
		{
			Path:     "azsent.network.IpAddressSummary",
			Metadata: network.IPSummaryMetadata(),
			New:      network.NewIPSummary,
		},
		{
			Path:     "azsent.network.NetworkFlowSummary",
			Metadata: network.NetworkFlowSummaryMetadata(),
			New:      network.NewNetworkFlowSummary,
		},
		{
			Path:     "azsent.account.AccountSummary",
			Metadata: account.AccountSummaryMetadata(),
			New:      account.NewAccountSummary,
		},
		{
			Path:     "azsent.url.URLSummary",
			Metadata: url.URLSummaryMetadata(),
			New:      url.NewURLSummary,
		},
		{
			Path:     "azsent.alert.EnrichAlerts",
			Metadata: alert.EnrichAlertsMetadata(),
			New:      alert.NewEnrichAlerts,
		},
	}
}
