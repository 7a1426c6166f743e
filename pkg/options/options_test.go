package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensoc/notebooklets/pkg/metadata"
	"github.com/opensoc/notebooklets/pkg/nberrors"
)

const testDoc = `
metadata:
  name: TestNotebooklet
  description: Resolver fixture
  default_options:
    - heartbeat: Heartbeat step.
    - azure_net: Topology step.
    - alerts: Alerts step.
  other_options:
    - processes: Process step.
    - process_ti: Process TI step.
`

func testMeta(t *testing.T) *metadata.Metadata {
	t.Helper()

	meta, err := metadata.Parse([]byte(testDoc), "test")
	require.NoError(t, err)

	return meta
}

func TestResolve(t *testing.T) {
	meta := testMeta(t)

	tests := []struct {
		name      string
		requested []string
		want      []string
	}{
		{
			name:      "empty request yields defaults",
			requested: nil,
			want:      []string{"heartbeat", "azure_net", "alerts"},
		},
		{
			name:      "bare names replace the defaults",
			requested: []string{"processes"},
			want:      []string{"processes"},
		},
		{
			name:      "bare names preserve declaration order",
			requested: []string{"alerts", "heartbeat"},
			want:      []string{"heartbeat", "alerts"},
		},
		{
			name:      "plus adds to the defaults",
			requested: []string{"+processes"},
			want:      []string{"heartbeat", "azure_net", "alerts", "processes"},
		},
		{
			name:      "minus removes from the defaults",
			requested: []string{"-azure_net"},
			want:      []string{"heartbeat", "alerts"},
		},
		{
			name:      "plus and minus combine",
			requested: []string{"+process_ti", "-alerts"},
			want:      []string{"heartbeat", "azure_net", "process_ti"},
		},
		{
			name:      "adding a default is idempotent",
			requested: []string{"+heartbeat"},
			want:      []string{"heartbeat", "azure_net", "alerts"},
		},
		{
			name:      "removing an absent option is a no-op",
			requested: []string{"-processes"},
			want:      []string{"heartbeat", "azure_net", "alerts"},
		},
		{
			name:      "all expands to every declared option",
			requested: []string{"all"},
			want:      []string{"heartbeat", "azure_net", "alerts", "processes", "process_ti"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := Resolve(meta, tt.requested)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resolved)
		})
	}
}

func TestResolveErrors(t *testing.T) {
	meta := testMeta(t)

	tests := []struct {
		name      string
		requested []string
	}{
		{name: "unknown bare name", requested: []string{"bogus"}},
		{name: "unknown prefixed name", requested: []string{"+bogus"}},
		{name: "mixed syntax", requested: []string{"heartbeat", "+processes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(meta, tt.requested)

			var invalid *nberrors.InvalidOptionError
			require.ErrorAs(t, err, &invalid)
		})
	}
}

func TestResolveIsPure(t *testing.T) {
	meta := testMeta(t)

	first, err := Resolve(meta, []string{"+processes"})
	require.NoError(t, err)

	second, err := Resolve(meta, []string{"+processes"})
	require.NoError(t, err)

	assert.Equal(t, first, second)

	// The metadata defaults are untouched by resolution.
	defaults, err := Resolve(meta, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"heartbeat", "azure_net", "alerts"}, defaults)
}

func TestEnabled(t *testing.T) {
	resolved := []string{"heartbeat", "alerts"}

	assert.True(t, Enabled(resolved, "heartbeat"))
	assert.False(t, Enabled(resolved, "processes"))
	assert.False(t, Enabled(nil, "heartbeat"))
}
