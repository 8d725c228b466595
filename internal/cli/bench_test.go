package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeBench(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewBenchCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestBenchCommandFlags(t *testing.T) {
	cmd := NewBenchCommand(&RootOptions{})
	for name, def := range map[string]string{
		"endpoints":  "2000",
		"ready":      "100",
		"iterations": "10",
		"timeout":    "1ms",
		"seed":       "1",
	} {
		flag := cmd.Flags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, def, flag.DefValue, name)
	}
}

func TestBenchCommandText(t *testing.T) {
	out, err := executeBench(t, &RootOptions{Format: "text"},
		"--endpoints", "50", "--ready", "5", "--iterations", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "50 endpoints, 3 iterations")
	assert.Contains(t, out, "level:")
	assert.Contains(t, out, "persistent:")
}

func TestBenchCommandJSON(t *testing.T) {
	out, err := executeBench(t, &RootOptions{Format: "json"},
		"--endpoints", "40", "--ready", "4", "--iterations", "2", "--timeout", "0s")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   BenchResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(2), resp.Data.Level.Syscalls)
	assert.Equal(t, int64(80), resp.Data.Level.Checks)
	assert.Equal(t, 8, resp.Data.Level.Returned)
	assert.Equal(t, 8, resp.Data.Persistent.Returned)
}

func TestBenchCommandInvalidFlags(t *testing.T) {
	out, err := executeBench(t, &RootOptions{Format: "text"}, "--endpoints", "5", "--ready", "6")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E030]")
	assert.Contains(t, out, "ready must be between 0 and 5")
}

func TestBenchCommandBadConfig(t *testing.T) {
	opts := &RootOptions{Format: "text", Config: filepath.Join("..", "config", "testdata", "bad_type.cue")}
	out, err := executeBench(t, opts, "--endpoints", "10", "--ready", "1", "--iterations", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E010]")
}

func TestBenchCommandUsesConfigFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slow.cue")
	require.NoError(t, os.WriteFile(path, []byte(`level: quantum: "1h"`), 0o644))

	out, err := executeBench(t, &RootOptions{Format: "json", Config: path},
		"--endpoints", "5", "--ready", "0", "--iterations", "1", "--timeout", "20ms")
	require.NoError(t, err)

	var resp struct {
		Data BenchResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, int64(10), resp.Data.Level.Checks, "the configured quantum leaves one scan on entry and one at the deadline")
}
