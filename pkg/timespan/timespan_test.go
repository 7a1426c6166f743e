package timespan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)

	ts, err := New(start, end)
	require.NoError(t, err)
	assert.Equal(t, start, ts.Start)
	assert.Equal(t, end, ts.End)
	assert.Equal(t, 24*time.Hour, ts.Duration())

	// Reversed bounds are rejected.
	_, err = New(end, start)
	assert.Error(t, err)

	// A zero start is rejected.
	_, err = New(time.Time{}, end)
	assert.Error(t, err)
}

func TestFromPeriod(t *testing.T) {
	end := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)

	ts, err := FromPeriod(6*time.Hour, end)
	require.NoError(t, err)
	assert.Equal(t, end.Add(-6*time.Hour), ts.Start)
	assert.Equal(t, end, ts.End)

	_, err = FromPeriod(0, end)
	assert.Error(t, err)

	// Zero end means now.
	ts, err = FromPeriod(time.Hour, time.Time{})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), ts.End, time.Minute)
}

func TestParse(t *testing.T) {
	ts, err := Parse("2026-08-01", "2026-08-02")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, ts.Duration())

	ts, err = Parse("2026-08-01T10:00:00Z", "2026-08-01T12:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 150*time.Minute, ts.Duration())

	// Empty end means now.
	ts, err = Parse("2026-08-01", "")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), ts.End, time.Minute)

	_, err = Parse("", "")
	assert.Error(t, err)

	_, err = Parse("not a date", "")
	assert.Error(t, err)
}

func TestIsZeroAndContains(t *testing.T) {
	var zero TimeSpan
	assert.True(t, zero.IsZero())

	ts, err := Parse("2026-08-01", "2026-08-02")
	require.NoError(t, err)
	assert.False(t, ts.IsZero())

	assert.True(t, ts.Contains(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)))
	assert.False(t, ts.Contains(time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)))
}
