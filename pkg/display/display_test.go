package display

import (
	"bytes"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensoc/notebooklets/pkg/metadata"
	"github.com/opensoc/notebooklets/pkg/types"
)

type recordedCall struct {
	kind  Kind
	data  any
	hints Hints
}

type recordingRenderer struct {
	calls []recordedCall
}

func (r *recordingRenderer) Render(kind Kind, data any, hints Hints) error {
	r.calls = append(r.calls, recordedCall{kind: kind, data: data, hints: hints})

	return nil
}

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func testSections() map[string]metadata.Section {
	return map[string]metadata.Section{
		"run": {
			Title:   "Host Entity Summary",
			HDLevel: 1,
			Text:    "Summary of host activity.",
		},
		"heartbeat": {
			Title: "Latest heartbeat",
		},
		"notes": {
			Text:     "Some *markdown* notes.",
			Markdown: true,
		},
	}
}

func TestEmitSection(t *testing.T) {
	renderer := &recordingRenderer{}
	emitter := NewEmitter(testLog(), renderer).WithSections(testSections())

	emitter.EmitSection("run")

	require.Len(t, renderer.calls, 2)
	assert.Equal(t, KindMarkdown, renderer.calls[0].kind)
	assert.Equal(t, "# Host Entity Summary", renderer.calls[0].data)
	assert.Equal(t, KindText, renderer.calls[1].kind)
	assert.Equal(t, "Summary of host activity.", renderer.calls[1].data)
}

func TestEmitSectionDefaults(t *testing.T) {
	renderer := &recordingRenderer{}
	emitter := NewEmitter(testLog(), renderer).WithSections(testSections())

	// A zero hd_level falls back to a level-2 heading.
	emitter.EmitSection("heartbeat")

	require.Len(t, renderer.calls, 1)
	assert.Equal(t, "## Latest heartbeat", renderer.calls[0].data)

	// A titleless markdown section renders only its text.
	renderer.calls = nil
	emitter.EmitSection("notes")

	require.Len(t, renderer.calls, 1)
	assert.Equal(t, KindMarkdown, renderer.calls[0].kind)
	assert.Equal(t, "Some *markdown* notes.", renderer.calls[0].data)
}

func TestEmitSectionUnknownKey(t *testing.T) {
	renderer := &recordingRenderer{}
	emitter := NewEmitter(testLog(), renderer).WithSections(testSections())

	emitter.EmitSection("nothere")

	assert.Empty(t, renderer.calls)
}

func TestSilentSuppressesAllOutput(t *testing.T) {
	renderer := &recordingRenderer{}
	emitter := NewEmitter(testLog(), renderer).WithSections(testSections()).WithSilent(true)

	require.True(t, emitter.Silent())

	emitter.EmitSection("run")
	emitter.Text("plain")
	emitter.Markdown("## heading")
	emitter.Table(types.NewTable("a"), Hints{"title": "t"})
	emitter.Timeline(nil, nil)
	emitter.Map(nil, nil)
	emitter.Tree(nil, nil)

	assert.Empty(t, renderer.calls)
}

func TestWithSilentReturnsCopy(t *testing.T) {
	renderer := &recordingRenderer{}
	emitter := NewEmitter(testLog(), renderer)

	silenced := emitter.WithSilent(true)

	assert.False(t, emitter.Silent())
	assert.True(t, silenced.Silent())

	// The original still renders.
	emitter.Text("still here")
	require.Len(t, renderer.calls, 1)
}

func TestNilRendererIsSafe(t *testing.T) {
	emitter := NewEmitter(testLog(), nil).WithSections(testSections())

	assert.NotPanics(t, func() {
		emitter.EmitSection("run")
		emitter.Text("nobody listening")
	})
}

func TestTableHintsPassThrough(t *testing.T) {
	renderer := &recordingRenderer{}
	emitter := NewEmitter(testLog(), renderer)

	table := types.NewTable("time", "event")
	emitter.Timeline(table, Hints{"time_column": "time"})

	require.Len(t, renderer.calls, 1)
	assert.Equal(t, KindTimeline, renderer.calls[0].kind)
	assert.Equal(t, "time", renderer.calls[0].hints["time_column"])
}

func TestConsoleRenderer(t *testing.T) {
	var buf bytes.Buffer

	console := NewConsole(&buf)
	emitter := NewEmitter(testLog(), console)

	emitter.Markdown("# Title")
	emitter.Text("hello")

	table := types.NewTable("name", "count")
	require.NoError(t, table.AppendRow("alice", 2))
	emitter.Table(table, nil)

	out := buf.String()
	assert.Contains(t, out, "# Title")
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "name")
}
