// Package nblib holds helpers shared by the bundled notebooklets:
// entity construction from query results, IoC extraction and conversion
// of enrichment results to tables.
package nblib

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/opensoc/notebooklets/pkg/providers"
	"github.com/opensoc/notebooklets/pkg/types"
)

// VerdictTable converts threat intel verdicts into a table for display
// and result storage.
func VerdictTable(verdicts []providers.TIVerdict) *types.Table {
	table := types.NewTable("ioc", "ioc_type", "provider", "severity", "confidence", "error")

	for _, v := range verdicts {
		table.Rows = append(table.Rows, []any{
			v.IoC, v.IoCType, v.Provider, v.Severity, v.Confidence, v.Err,
		})
	}

	return table
}

// GeoTable converts geolocation results into a table. Addresses that
// failed to resolve carry their error marker in the last column.
func GeoTable(results []providers.GeoResult) *types.Table {
	table := types.NewTable(
		"address", "country_code", "country_name", "city",
		"latitude", "longitude", "asn", "asn_description", "error",
	)

	for _, r := range results {
		loc := r.Location
		if loc == nil {
			loc = &types.GeoLocation{}
		}

		table.Rows = append(table.Rows, []any{
			r.Address, loc.CountryCode, loc.CountryName, loc.City,
			loc.Latitude, loc.Longitude, loc.ASN, loc.ASNDesc, r.Err,
		})
	}

	return table
}

// WhoisTable converts a WHOIS record into a single-row table.
func WhoisTable(record *providers.WhoisRecord) *types.Table {
	table := types.NewTable("query", "registrar", "created", "expires", "name_server")

	if record != nil {
		table.Rows = append(table.Rows, []any{
			record.Query, record.Registrar, record.Created, record.Expires, record.NameServer,
		})
	}

	return table
}

var (
	ipv4Pattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	// Hostnames with at least one dot and an alphabetic TLD.
	domainPattern = regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}\b`)
	// MD5, SHA-1 or SHA-256 hex digests.
	hashPattern = regexp.MustCompile(`\b(?:[a-fA-F0-9]{64}|[a-fA-F0-9]{40}|[a-fA-F0-9]{32})\b`)
)

// ExtractIoCs scans the named columns of a table for IP addresses,
// domains and file hashes, returning the distinct values in first-seen
// order. Unknown columns are skipped.
func ExtractIoCs(table *types.Table, columns ...string) []string {
	if table == nil {
		return nil
	}

	seen := make(map[string]struct{})
	iocs := make([]string, 0)

	add := func(values ...string) {
		for _, v := range values {
			if _, ok := seen[v]; ok {
				continue
			}

			seen[v] = struct{}{}
			iocs = append(iocs, v)
		}
	}

	for _, column := range columns {
		if !table.HasColumn(column) {
			continue
		}

		for row := range table.Rows {
			text := table.StringValue(row, column)
			if text == "" {
				continue
			}

			add(ipv4Pattern.FindAllString(text, -1)...)
			add(hashPattern.FindAllString(text, -1)...)

			for _, domain := range domainPattern.FindAllString(text, -1) {
				// The IPv4 pattern already claimed dotted numerics.
				if ipv4Pattern.MatchString(domain) {
					continue
				}

				add(strings.ToLower(domain))
			}
		}
	}

	return iocs
}

// HostFromHeartbeat builds a Host entity from the most recent heartbeat
// row, tolerating schema variations in column naming.
func HostFromHeartbeat(hostName string, heartbeat *types.Table) *types.Host {
	host := &types.Host{HostName: hostName}

	if heartbeat.IsEmpty() {
		return host
	}

	pick := func(names ...string) string {
		for _, name := range names {
			if heartbeat.HasColumn(name) {
				if v := heartbeat.StringValue(0, name); v != "" {
					return v
				}
			}
		}

		return ""
	}

	if v := pick("computer", "Computer", "host_name"); v != "" {
		host.HostName = v
	}

	host.DNSDomain = pick("dns_domain", "DnsDomain")
	host.OSFamily = pick("os_family", "os_type", "OSType")
	host.OSVersion = pick("os_version", "OSMajorVersion", "Version")
	host.Environment = pick("environment", "ComputerEnvironment")
	host.IPAddress = pick("computer_ip", "ComputerIP", "ip_address")

	return host
}

// SeverityRank orders threat intel severities for join/aggregation.
// Unknown severities rank lowest.
func SeverityRank(severity string) int {
	switch strings.ToLower(severity) {
	case "high":
		return 3
	case "warning", "medium":
		return 2
	case "information", "low":
		return 1
	default:
		return 0
	}
}

// MaxSeverity returns the highest-ranked severity of the verdicts whose
// IoC appears in text. Empty when nothing matches.
func MaxSeverity(text string, verdicts []providers.TIVerdict) string {
	best := ""
	bestRank := 0

	lower := strings.ToLower(text)

	for _, v := range verdicts {
		if v.Err != "" || v.Severity == "" {
			continue
		}

		if !strings.Contains(lower, strings.ToLower(v.IoC)) {
			continue
		}

		if rank := SeverityRank(v.Severity); rank > bestRank {
			best = v.Severity
			bestRank = rank
		}
	}

	return best
}

// GroupCount aggregates a table by the named columns, producing one row
// per distinct key combination with a trailing "count" column, ordered
// by descending count.
func GroupCount(table *types.Table, columns ...string) *types.Table {
	out := types.NewTable(append(append([]string{}, columns...), "count")...)

	if table == nil {
		return out
	}

	idxs := make([]int, len(columns))
	for i, col := range columns {
		idxs[i] = table.ColumnIndex(col)
	}

	counts := make(map[string]int)
	values := make(map[string][]any)
	order := make([]string, 0)

	for _, row := range table.Rows {
		parts := make([]string, len(idxs))
		vals := make([]any, len(idxs))

		for i, idx := range idxs {
			if idx >= 0 {
				vals[i] = row[idx]
				parts[i] = stringify(row[idx])
			}
		}

		key := strings.Join(parts, "\x00")
		if _, ok := counts[key]; !ok {
			values[key] = vals
			order = append(order, key)
		}

		counts[key]++
	}

	for _, key := range order {
		out.Rows = append(out.Rows, append(append([]any{}, values[key]...), counts[key]))
	}

	return out.SortBy("count", true)
}

func stringify(v any) string {
	if v == nil {
		return ""
	}

	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprint(v)
}
