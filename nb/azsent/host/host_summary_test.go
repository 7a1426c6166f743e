package host

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensoc/notebooklets/pkg/nberrors"
	"github.com/opensoc/notebooklets/pkg/notebooklet"
	"github.com/opensoc/notebooklets/pkg/providers"
	"github.com/opensoc/notebooklets/pkg/timespan"
)

func testEnv(t *testing.T) *notebooklet.Environment {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	local, err := providers.NewLocalData(log, providers.LocalDataConfig{Path: "testdata"})
	require.NoError(t, err)

	set := providers.NewSet(log)
	set.Register(local)

	return &notebooklet.Environment{
		Providers: set,
		Log:       log,
		Silent:    true,
	}
}

func testSpan(t *testing.T) timespan.TimeSpan {
	t.Helper()

	ts, err := timespan.New(
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)

	return ts
}

func TestHostSummaryRunDefaults(t *testing.T) {
	nb, err := NewHostSummary(testEnv(t))
	require.NoError(t, err)

	res, err := nb.Run(context.Background(), notebooklet.RunParams{
		Value:    "workstn01",
		Timespan: testSpan(t),
	})
	require.NoError(t, err)

	result, ok := res.(*HostSummaryResult)
	require.True(t, ok)

	require.NotNil(t, result.HostEntity)
	assert.Equal(t, "workstn01", result.HostEntity.HostName)
	assert.Equal(t, "Windows", result.HostEntity.OSFamily)
	assert.Equal(t, "10.0.0.5", result.HostEntity.IPAddress)
	assert.Equal(t, "contoso.com", result.HostEntity.DNSDomain)

	assert.Equal(t, 1, result.Heartbeat.Len())
	assert.Equal(t, 1, result.AzureNetwork.Len())
	assert.Equal(t, 2, result.RelatedAlerts.Len())
	assert.Equal(t, 1, result.RelatedBookmarks.Len())

	// Non-default steps stay untouched.
	assert.Nil(t, result.Processes)
	assert.Nil(t, result.ProcessTI)

	// No management-plane provider configured, so the step is skipped.
	assert.Nil(t, result.AzureDetails)

	assert.Same(t, res, nb.LastResult())
}

func TestHostSummaryProcessesOption(t *testing.T) {
	nb, err := NewHostSummary(testEnv(t))
	require.NoError(t, err)

	res, err := nb.Run(context.Background(), notebooklet.RunParams{
		Value:    "workstn01",
		Timespan: testSpan(t),
		Options:  []string{"+processes"},
	})
	require.NoError(t, err)

	result := res.(*HostSummaryResult)
	assert.Equal(t, 4, result.Processes.Len())
	// Defaults remain in effect alongside the added option.
	assert.Equal(t, 1, result.Heartbeat.Len())
}

func TestHostSummaryMissingValue(t *testing.T) {
	nb, err := NewHostSummary(testEnv(t))
	require.NoError(t, err)

	_, err = nb.Run(context.Background(), notebooklet.RunParams{Timespan: testSpan(t)})

	var missing *nberrors.MissingParameterError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "value", missing.Parameter)
}

func TestHostSummaryMissingTimespan(t *testing.T) {
	nb, err := NewHostSummary(testEnv(t))
	require.NoError(t, err)

	_, err = nb.Run(context.Background(), notebooklet.RunParams{Value: "workstn01"})

	var missing *nberrors.MissingParameterError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "timespan", missing.Parameter)
}

func TestHostSummaryUnknownOption(t *testing.T) {
	nb, err := NewHostSummary(testEnv(t))
	require.NoError(t, err)

	_, err = nb.Run(context.Background(), notebooklet.RunParams{
		Value:    "workstn01",
		Timespan: testSpan(t),
		Options:  []string{"heartbeat", "bogus"},
	})

	var invalid *nberrors.InvalidOptionError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Options, "bogus")
}
