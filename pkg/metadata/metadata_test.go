package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensoc/notebooklets/pkg/nberrors"
)

const fullDoc = `
metadata:
  name: HostSummary
  description: Host summary
  default_options:
    - heartbeat: Heartbeat step.
    - alerts
  other_options:
    - processes: Process step.
  entity_types:
    - host
  keywords:
    - host
    - summary
  req_providers:
    - clickhouse|localdata
    - tilookup
output:
  run:
    title: Host Entity Summary
    hd_level: 1
    text: Summary of host activity.
  heartbeat:
    title: Latest heartbeat
`

func TestParse(t *testing.T) {
	meta, err := Parse([]byte(fullDoc), "test")
	require.NoError(t, err)

	assert.Equal(t, "HostSummary", meta.Name)
	assert.Equal(t, []string{"heartbeat", "alerts"}, meta.DefaultOptionNames())
	assert.Equal(t, []string{"processes"}, meta.OtherOptionNames())
	assert.Equal(t, []string{"heartbeat", "alerts", "processes"}, meta.AllOptionNames())

	// Bare option entries normalize to an empty description.
	assert.Equal(t, "", meta.DefaultOptions[1].Description)
	assert.Equal(t, "Heartbeat step.", meta.DefaultOptions[0].Description)

	// Inputs default to the single target value.
	assert.Equal(t, []string{"value"}, meta.Inputs)

	require.Contains(t, meta.Sections, "run")
	assert.Equal(t, 1, meta.Sections["run"].HDLevel)
	assert.Equal(t, "Latest heartbeat", meta.Sections["heartbeat"].Title)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "missing name",
			doc: `
metadata:
  description: no name here
`,
		},
		{
			name: "overlapping option sets",
			doc: `
metadata:
  name: Overlap
  default_options:
    - alerts
  other_options:
    - alerts
`,
		},
		{
			name: "malformed yaml",
			doc:  "metadata: [",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), "test")

			var confErr *nberrors.ConfigurationError
			require.ErrorAs(t, err, &confErr)
		})
	}
}

func TestAlternatives(t *testing.T) {
	assert.Equal(t, []string{"clickhouse", "localdata"}, Alternatives("clickhouse|localdata"))
	assert.Equal(t, []string{"tilookup"}, Alternatives("tilookup"))
	assert.Equal(t, []string{"a", "b"}, Alternatives(" a | b "))
	assert.Empty(t, Alternatives(""))
}

func TestSearchTerms(t *testing.T) {
	meta, err := Parse([]byte(fullDoc), "test")
	require.NoError(t, err)

	terms := meta.SearchTerms()

	assert.Equal(t, "HostSummary", terms[0])
	assert.Contains(t, terms, "host")
	assert.Contains(t, terms, "summary")
	assert.Contains(t, terms, "heartbeat")
	assert.Contains(t, terms, "processes")
}

func TestOptionsDoc(t *testing.T) {
	meta, err := Parse([]byte(fullDoc), "test")
	require.NoError(t, err)

	doc := meta.OptionsDoc()
	assert.Contains(t, doc, "Default Options")
	assert.Contains(t, doc, "- heartbeat: Heartbeat step.")
	assert.Contains(t, doc, "Other Options")
	assert.Contains(t, doc, "- processes: Process step.")
}
