package host

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensoc/notebooklets/pkg/notebooklet"
	"github.com/opensoc/notebooklets/pkg/types"
)

func TestWinHostEventsRun(t *testing.T) {
	nb, err := NewWinHostEvents(testEnv(t))
	require.NoError(t, err)

	res, err := nb.Run(context.Background(), notebooklet.RunParams{
		Value:    "workstn01",
		Timespan: testSpan(t),
	})
	require.NoError(t, err)

	result := res.(*WinHostEventsResult)

	require.Equal(t, 4, result.AllEvents.Len())

	// 4624 occurs twice, 4625 and 4720 once each.
	require.Equal(t, 3, result.EventPivot.Len())
	assert.Equal(t, "4624", result.EventPivot.StringValue(0, "event_id"))
	assert.Equal(t, 2, result.EventPivot.Value(0, "count"))

	require.Equal(t, 2, result.AccountEvents.Len())
	assert.Equal(t, "backdoor", result.AccountPivot.StringValue(0, "target_account"))

	// expand_events is not a default option.
	assert.Nil(t, result.ExpandedEvents)
}

func TestWinHostEventsExpandOption(t *testing.T) {
	nb, err := NewWinHostEvents(testEnv(t))
	require.NoError(t, err)

	res, err := nb.Run(context.Background(), notebooklet.RunParams{
		Value:    "workstn01",
		Timespan: testSpan(t),
		Options:  []string{"+expand_events"},
	})
	require.NoError(t, err)

	result := res.(*WinHostEventsResult)
	require.NotNil(t, result.ExpandedEvents)

	expanded := result.ExpandedEvents
	assert.Equal(t, 4, expanded.Len())
	assert.False(t, expanded.HasColumn("event_data"))
	assert.True(t, expanded.HasColumn("TargetUserName"))
	assert.Equal(t, "alice", expanded.StringValue(0, "TargetUserName"))
	assert.Equal(t, "4", expanded.StringValue(0, "LogonType"))

	// Keys absent from a row render as empty cells.
	assert.Equal(t, "", expanded.StringValue(0, "SubjectUserName"))
	assert.Equal(t, "alice", expanded.StringValue(3, "SubjectUserName"))
}

func TestWinHostEventsExpandEventsFiltered(t *testing.T) {
	nb, err := NewWinHostEvents(testEnv(t))
	require.NoError(t, err)

	_, err = nb.Run(context.Background(), notebooklet.RunParams{
		Value:    "workstn01",
		Timespan: testSpan(t),
	})
	require.NoError(t, err)

	expanded := nb.(*WinHostEvents).ExpandEvents("4625")
	require.Equal(t, 1, expanded.Len())
	assert.Equal(t, "guest", expanded.StringValue(0, "TargetUserName"))
}

func TestWinHostEventsExpandBeforeRun(t *testing.T) {
	nb, err := NewWinHostEvents(testEnv(t))
	require.NoError(t, err)

	assert.Nil(t, nb.(*WinHostEvents).ExpandEvents())
}

func TestExpandEventData(t *testing.T) {
	events := types.NewTable("event_id", "payload")
	require.NoError(t, events.AppendRow("1", "a=1;b=2"))
	require.NoError(t, events.AppendRow("2", "b=3;c=4"))
	require.NoError(t, events.AppendRow("3", "malformed"))

	expanded := expandEventData(events, "payload")

	assert.Equal(t, []string{"event_id", "a", "b", "c"}, expanded.Columns)
	require.Equal(t, 3, expanded.Len())
	assert.Equal(t, "1", expanded.StringValue(0, "a"))
	assert.Equal(t, "3", expanded.StringValue(1, "b"))
	assert.Equal(t, "4", expanded.StringValue(1, "c"))
	assert.Equal(t, "", expanded.StringValue(2, "a"))
}

func TestExpandEventDataMissingColumn(t *testing.T) {
	events := types.NewTable("event_id")
	require.NoError(t, events.AppendRow("1"))

	expanded := expandEventData(events, "payload")
	assert.True(t, expanded.IsEmpty())
}
