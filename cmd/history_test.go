package cmd

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecheck/internal/config"
	"github.com/xkilldash9x/gatecheck/internal/driver/drivertest"
	"github.com/xkilldash9x/gatecheck/internal/scenario"
	"github.com/xkilldash9x/gatecheck/internal/store"
)

type fakeHistory struct {
	saved   []scenario.Summary
	targets []string
	runs    []store.Run
	results map[string][]scenario.Result
	saveErr error
	closed  bool
}

func (f *fakeHistory) SaveRun(_ context.Context, target string, sum scenario.Summary) error {
	f.targets = append(f.targets, target)
	f.saved = append(f.saved, sum)
	return f.saveErr
}

func (f *fakeHistory) RecentRuns(_ context.Context, limit int) ([]store.Run, error) {
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f *fakeHistory) RunResults(_ context.Context, runID string) ([]scenario.Result, error) {
	return f.results[runID], nil
}

func useHistory(t *testing.T, h *fakeHistory, openErr error) {
	t.Helper()
	original := openStore
	openStore = func(context.Context, config.StoreConfig, *zap.Logger) (historyStore, func(), error) {
		if openErr != nil {
			return nil, nil, openErr
		}
		return h, func() { h.closed = true }, nil
	}
	t.Cleanup(func() { openStore = original })
}

const storeConfig = `
store:
  database_url: postgres://gatecheck@localhost/gatecheck
`

func TestHistoryCmd_RequiresDatabase(t *testing.T) {
	_, err := executeCommand(t, "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url")
}

func TestHistoryCmd_ListsRuns(t *testing.T) {
	started := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	h := &fakeHistory{runs: []store.Run{
		{ID: "run-2", Target: testBaseURL, Started: started, Duration: 4500 * time.Millisecond, Passed: 4, Failed: 1},
		{ID: "run-1", Target: testBaseURL, Started: started.Add(-time.Hour), Duration: 3 * time.Second, Passed: 5},
	}}
	useHistory(t, h, nil)

	out, err := executeCommand(t, "history", "--config", createTempConfig(t, storeConfig), "--limit", "1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "run-2")
	assert.Contains(t, lines[1], "2026-03-02T14:30:00Z")
	assert.Contains(t, lines[1], "4.5s")
	assert.True(t, h.closed)
}

func TestHistoryCmd_ShowsRunResults(t *testing.T) {
	h := &fakeHistory{results: map[string][]scenario.Result{
		"run-1": {{Scenario: "valid credentials", Outcome: "authenticated", Attempts: 1, Passed: true}},
	}}
	useHistory(t, h, nil)
	cfgFile := createTempConfig(t, storeConfig)

	out, err := executeCommand(t, "history", "--config", cfgFile, "--run", "run-1")
	require.NoError(t, err)
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "1 passed, 0 failed")

	_, err = executeCommand(t, "history", "--config", cfgFile, "--run", "missing")
	assert.ErrorContains(t, err, "no results stored for run missing")
}

func TestHistoryCmd_OpenFailure(t *testing.T) {
	useHistory(t, nil, errors.New("connection refused"))
	_, err := executeCommand(t, "history", "--config", createTempConfig(t, storeConfig))
	assert.ErrorContains(t, err, "connection refused")
}

func TestRunCmd_SavesHistory(t *testing.T) {
	useSite(t, drivertest.SiteOptions{})
	h := &fakeHistory{saveErr: errors.New("disk full")}
	useHistory(t, h, nil)

	_, err := executeCommand(t, "run", "valid credentials",
		"--config", createTempConfig(t, fastTiming+storeConfig), "--base-url", testBaseURL)
	require.NoError(t, err, "a history failure must not fail the run")

	require.Len(t, h.saved, 1)
	assert.Equal(t, []string{testBaseURL}, h.targets)
	assert.Equal(t, 1, h.saved[0].Passed)
	assert.NotEmpty(t, h.saved[0].RunID)
	assert.True(t, h.closed)
}

func TestRunCmd_WithoutDatabaseSkipsHistory(t *testing.T) {
	useSite(t, drivertest.SiteOptions{})
	h := &fakeHistory{}
	useHistory(t, h, nil)

	_, err := executeCommand(t, "run", "valid credentials", "--config", createTempConfig(t, fastTiming), "--base-url", testBaseURL)
	require.NoError(t, err)
	assert.Empty(t, h.saved)
}
