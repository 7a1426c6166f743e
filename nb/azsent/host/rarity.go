package host

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/opensoc/notebooklets/pkg/types"
)

// Engineered feature column names.
const (
	colPathScore  = "PathScore"
	colCmdTokens  = "CommandlineTokensFull"
	colAccountNum = "AccountNum"
	colSysSession = "IsSystemSession"
	colClusterID  = "ClusterId"
	colClusterLen = "ClusterSize"
	colRarity     = "Rarity"
)

// sessionColumns maps logical event fields to the column name found in
// the data, tolerating the common schema variants.
type sessionColumns struct {
	Account   string
	Timestamp string
	Process   string
	CmdLine   string
	Session   string
	ParentPID string
}

func mapSessionColumns(data *types.Table) sessionColumns {
	pick := func(def string, candidates ...string) string {
		for _, name := range candidates {
			if data.HasColumn(name) {
				return name
			}
		}

		return def
	}

	return sessionColumns{
		Account:   pick("account", "account", "Account", "SubjectUserName", "uid"),
		Timestamp: pick("timestamp", "timestamp", "TimeGenerated", "EventStartTime"),
		Process:   pick("process_name", "process_name", "NewProcessName", "exe"),
		CmdLine:   pick("command_line", "command_line", "CommandLine", "cmd"),
		Session:   pick("logon_id", "logon_id", "SubjectLogonId", "session_id"),
		ParentPID: pick("parent_process", "parent_process", "ParentProcessName"),
	}
}

var delimPattern = regexp.MustCompile(`[\s\-\\/\.,"'|&:;%$()]`)

// charOrdScore sums the ordinal value of every rune in the string. A
// cheap categorical hash of path-like strings: structurally similar
// values score close together.
func charOrdScore(value string) int {
	score := 0
	for _, r := range value {
		score += int(r)
	}

	return score
}

// delimCount counts delimiter characters in a command line, a proxy for
// its structural complexity.
func delimCount(value string) int {
	return len(delimPattern.FindAllString(value, -1))
}

// systemSessions are the well-known identifiers of the local system
// logon session on Windows and Linux respectively.
func isSystemSession(sessionID string) bool {
	return sessionID == "0x3e7" || sessionID == "-1"
}

// addSessionFeatures returns a copy of the event data with the
// engineered feature columns appended.
func addSessionFeatures(data *types.Table, cols sessionColumns) *types.Table {
	out := &types.Table{
		Columns: append(append([]string{}, data.Columns...), colPathScore, colCmdTokens, colAccountNum, colSysSession),
		Rows:    make([][]any, 0, data.Len()),
	}

	for row := range data.Rows {
		path := data.StringValue(row, cols.Process)
		cmd := data.StringValue(row, cols.CmdLine)
		acct := data.StringValue(row, cols.Account)
		sess := data.StringValue(row, cols.Session)

		features := []any{
			charOrdScore(path),
			delimCount(cmd),
			charOrdScore(acct),
			isSystemSession(sess),
		}

		out.Rows = append(out.Rows, append(append([]any{}, data.Rows[row]...), features...))
	}

	return out
}

// clusterSessions groups events whose engineered features are
// identical. With categorical integer features an exact-match grouping
// is equivalent to density clustering at near-zero distance: every
// structurally identical invocation lands in the same cluster and
// anything unique forms a singleton. Returns one exemplar row per
// cluster plus the labeled event table.
func clusterSessions(data *types.Table) (clusters, labeled *types.Table) {
	featureKey := func(row int) string {
		return fmt.Sprintf("%v|%v|%v|%v",
			data.Value(row, colPathScore),
			data.Value(row, colCmdTokens),
			data.Value(row, colAccountNum),
			data.Value(row, colSysSession),
		)
	}

	ids := make(map[string]int)
	sizes := make(map[int]int)
	exemplar := make(map[int]int)
	rowIDs := make([]int, data.Len())

	for row := range data.Rows {
		key := featureKey(row)

		id, ok := ids[key]
		if !ok {
			id = len(ids)
			ids[key] = id
			exemplar[id] = row
		}

		rowIDs[row] = id
		sizes[id]++
	}

	labeled = &types.Table{
		Columns: append(append([]string{}, data.Columns...), colClusterID, colClusterLen, colRarity),
		Rows:    make([][]any, 0, data.Len()),
	}

	for row := range data.Rows {
		id := rowIDs[row]
		size := sizes[id]
		labeled.Rows = append(labeled.Rows, append(
			append([]any{}, data.Rows[row]...),
			id, size, 1.0/float64(size),
		))
	}

	clusters = &types.Table{Columns: labeled.Columns}

	ordered := make([]int, 0, len(exemplar))
	for id := range exemplar {
		ordered = append(ordered, id)
	}

	sort.Ints(ordered)

	for _, id := range ordered {
		clusters.Rows = append(clusters.Rows, labeled.Rows[exemplar[id]])
	}

	return clusters, labeled
}

// sessionRaritySummary aggregates labeled events per (account, session):
// mean and max rarity plus the process count, ordered by mean rarity
// descending.
func sessionRaritySummary(labeled *types.Table, cols sessionColumns) *types.Table {
	type agg struct {
		account string
		session string
		sum     float64
		max     float64
		count   int
	}

	aggs := make(map[string]*agg)
	order := make([]string, 0)

	rarityIdx := labeled.ColumnIndex(colRarity)

	for row := range labeled.Rows {
		account := labeled.StringValue(row, cols.Account)
		session := labeled.StringValue(row, cols.Session)
		key := account + "\x00" + session

		a, ok := aggs[key]
		if !ok {
			a = &agg{account: account, session: session}
			aggs[key] = a
			order = append(order, key)
		}

		rarity, _ := labeled.Rows[row][rarityIdx].(float64)
		a.sum += rarity
		a.count++

		if rarity > a.max {
			a.max = rarity
		}
	}

	summary := types.NewTable(cols.Account, cols.Session, "MeanRarity", "MaxRarity", "ProcessCount")

	for _, key := range order {
		a := aggs[key]
		summary.Rows = append(summary.Rows, []any{
			a.account, a.session, a.sum / float64(a.count), a.max, a.count,
		})
	}

	return summary.SortBy("MeanRarity", true)
}
