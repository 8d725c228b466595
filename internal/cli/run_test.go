package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pollsim/internal/store"
)

func newTestRunCommand(opts *RootOptions) *RunOptions {
	return &RunOptions{
		RootOptions: opts,
		Endpoints:   2,
		Interval:    5 * time.Millisecond,
		Duration:    150 * time.Millisecond,
		RunID:       func() (string, error) { return "run-test", nil },
	}
}

func executeRun(t *testing.T, runOpts *RunOptions) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRunCommand(runOpts.RootOptions)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetContext(context.Background())
	err := runLive(runOpts, cmd)
	return buf.String(), err
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRunCommand(&RootOptions{})

	for name, def := range map[string]string{
		"endpoints": "3",
		"interval":  "100ms",
		"duration":  "0s",
		"db":        "",
	} {
		flag := cmd.Flags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, def, flag.DefValue, name)
	}
}

func TestRunRejectsBadFlags(t *testing.T) {
	opts := newTestRunCommand(&RootOptions{Format: "text"})
	opts.Endpoints = 0
	_, err := executeRun(t, opts)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "endpoints must be positive")

	opts = newTestRunCommand(&RootOptions{Format: "text"})
	opts.Interval = 0
	_, err = executeRun(t, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval must be positive")
}

func TestRunBadConfig(t *testing.T) {
	opts := newTestRunCommand(&RootOptions{Format: "text", Config: "/nonexistent/sim.cue"})
	out, err := executeRun(t, opts)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E010]")
}

func TestRunEchoesUntilDuration(t *testing.T) {
	opts := newTestRunCommand(&RootOptions{Format: "json", Config: writeConfig(t)})

	start := time.Now()
	out, err := executeRun(t, opts)
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.Less(t, elapsed, 2*time.Second)

	var resp struct {
		Status string     `json:"status"`
		RunID  string     `json:"run_id"`
		Data   RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-test", resp.RunID)

	s := resp.Data
	assert.Equal(t, 2, s.Endpoints)
	assert.Positive(t, s.Delivered)
	assert.Positive(t, s.Dispatched)
	assert.Positive(t, s.Echoed)
	assert.LessOrEqual(t, int64(s.Echoed), s.Delivered)
	assert.Zero(t, s.Errors)
	assert.Len(t, s.SnapshotDigest, 64)
}

func TestRunWritesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "run.db")
	opts := newTestRunCommand(&RootOptions{Format: "text", Config: writeConfig(t)})
	opts.Database = dbPath

	out, err := executeRun(t, opts)
	require.NoError(t, err)
	assert.Contains(t, out, "run run-test: 2 endpoints")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	endpoints, err := st.ReadEndpoints(ctx)
	require.NoError(t, err)
	require.Len(t, endpoints, 2)
	assert.Equal(t, "client-1", endpoints[0].Name)
	assert.Equal(t, "read", endpoints[0].Interest)

	dispatches, err := st.ReadDispatches(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, dispatches)
	assert.Equal(t, int64(1), dispatches[0].Seq)
}

func TestRunHelpText(t *testing.T) {
	cmd := NewRunCommand(&RootOptions{})
	assert.Contains(t, cmd.Long, "SIGINT")
	assert.Contains(t, cmd.Long, "--db")
}

func TestNewRunIDIsUUIDv7(t *testing.T) {
	id, err := newRunID(nil)
	require.NoError(t, err)
	require.Len(t, id, 36)
	assert.Equal(t, byte('7'), id[14])
}
