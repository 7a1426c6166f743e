package nblib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensoc/notebooklets/pkg/providers"
	"github.com/opensoc/notebooklets/pkg/types"
)

func TestExtractIoCs(t *testing.T) {
	table := types.NewTable("entities")
	require.NoError(t, table.AppendRow(`{"ip": "203.0.113.7", "host": "evil.example.com"}`))
	require.NoError(t, table.AppendRow(`hash d41d8cd98f00b204e9800998ecf8427e seen from 203.0.113.7`))

	iocs := ExtractIoCs(table, "entities")

	assert.Contains(t, iocs, "203.0.113.7")
	assert.Contains(t, iocs, "evil.example.com")
	assert.Contains(t, iocs, "d41d8cd98f00b204e9800998ecf8427e")

	// Duplicates collapse.
	count := 0
	for _, ioc := range iocs {
		if ioc == "203.0.113.7" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestExtractIoCsUnknownColumn(t *testing.T) {
	table := types.NewTable("a")
	require.NoError(t, table.AppendRow("203.0.113.7"))

	assert.Empty(t, ExtractIoCs(table, "missing"))
}

func TestHostFromHeartbeat(t *testing.T) {
	hb := types.NewTable("computer", "os_family", "os_version", "computer_ip")
	require.NoError(t, hb.AppendRow("victim01.corp.local", "Windows", "10.0.19044", "10.1.2.3"))

	host := HostFromHeartbeat("victim01", hb)

	assert.Equal(t, "victim01.corp.local", host.HostName)
	assert.Equal(t, "Windows", host.OSFamily)
	assert.Equal(t, "10.1.2.3", host.IPAddress)
}

func TestHostFromHeartbeatEmpty(t *testing.T) {
	host := HostFromHeartbeat("victim01", types.NewTable("computer"))

	assert.Equal(t, "victim01", host.HostName)
	assert.Empty(t, host.OSFamily)
}

func TestMaxSeverity(t *testing.T) {
	verdicts := []providers.TIVerdict{
		{IoC: "203.0.113.7", Severity: "warning"},
		{IoC: "evil.example.com", Severity: "high"},
		{IoC: "198.51.100.9", Severity: "high", Err: "timeout"},
	}

	assert.Equal(t, "high", MaxSeverity("seen EVIL.example.com and 203.0.113.7", verdicts))
	assert.Equal(t, "warning", MaxSeverity("only 203.0.113.7", verdicts))
	// Errored verdicts never contribute.
	assert.Equal(t, "", MaxSeverity("198.51.100.9", verdicts))
	assert.Equal(t, "", MaxSeverity("nothing here", verdicts))
}

func TestGroupCount(t *testing.T) {
	flows := types.NewTable("protocol", "direction", "bytes")
	require.NoError(t, flows.AppendRow("tcp", "out", 100))
	require.NoError(t, flows.AppendRow("tcp", "out", 250))
	require.NoError(t, flows.AppendRow("udp", "in", 80))

	summary := GroupCount(flows, "protocol", "direction")

	require.Equal(t, []string{"protocol", "direction", "count"}, summary.Columns)
	require.Equal(t, 2, summary.Len())
	assert.Equal(t, "tcp", summary.StringValue(0, "protocol"))
	assert.Equal(t, 2, summary.Value(0, "count"))
}

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, SeverityRank("high"), SeverityRank("warning"))
	assert.Greater(t, SeverityRank("warning"), SeverityRank("information"))
	assert.Equal(t, 0, SeverityRank("unknown"))
}
