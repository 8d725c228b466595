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

const echoScenario = `
name: echo_one
description: "one delivery, one dispatch"
endpoints: [a]
register: [a]
steps:
  - deliver: {endpoint: a, data: hi}
  - drain: {max_events: 1, timeout: 0s}
assertions:
  - type: trace_order
    events: ["deliver:a", "dispatch:a", "callback:a"]
  - type: final_state
    table: endpoints
    where: {name: a}
    expect: {inbound: 0, outbound: 1}
`

const failingScenario = `
name: never_dispatched
description: "expects a dispatch without a delivery"
endpoints: [a]
register: [a]
steps:
  - drain: {max_events: 1, timeout: 0s}
assertions:
  - type: trace_contains
    kind: dispatch
    subject: a
`

func writeScenario(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func executeTest(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := executeTest(t, &RootOptions{Format: "text"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := executeTest(t, &RootOptions{Format: "text"}, "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, err := executeTest(t, &RootOptions{Format: "text"}, t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommandPassingScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "echo_one", echoScenario)

	out, err := executeTest(t, &RootOptions{Format: "text"}, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ echo_one")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "echo_one", echoScenario)
	writeScenario(t, dir, "never_dispatched", failingScenario)

	out, err := executeTest(t, &RootOptions{Format: "text"}, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ never_dispatched")
	assert.Contains(t, out, "trace_contains")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestTestCommandFilter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "echo_one", echoScenario)
	writeScenario(t, dir, "never_dispatched", failingScenario)

	out, err := executeTest(t, &RootOptions{Format: "text"}, dir, "--filter", "echo_*")
	require.NoError(t, err)
	assert.NotContains(t, out, "never_dispatched")
	assert.Contains(t, out, "1 total")
}

func TestTestCommandInvalidFilter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "echo_one", echoScenario)

	_, err := executeTest(t, &RootOptions{Format: "text"}, dir, "--filter", "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestTestCommandLoadError(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken", "name: broken\nsteps: [}\n")

	out, err := executeTest(t, &RootOptions{Format: "text"}, dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommandGoldenUpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "echo_one", echoScenario)

	out, err := executeTest(t, &RootOptions{Format: "text"}, dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "(golden updated)")

	golden := goldenFilePath(path)
	assert.Equal(t, filepath.Join(dir, "golden", "echo_one.golden"), golden)
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario_name":"echo_one"`)

	_, err = executeTest(t, &RootOptions{Format: "text"}, dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario_name":"echo_one","trace":[]}`), 0o644))
	out, err = executeTest(t, &RootOptions{Format: "text"}, dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommandJSON(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "echo_one", echoScenario)
	writeScenario(t, dir, "never_dispatched", failingScenario)

	out, err := executeTest(t, &RootOptions{Format: "json"}, dir)
	require.Error(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Failed)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeScenario, resp.Error.Code)

	require.Len(t, resp.Data.Scenarios, 2)
	assert.Equal(t, "echo_one", resp.Data.Scenarios[0].Name)
	assert.Len(t, resp.Data.Scenarios[0].Digest, 64)
}

func TestTestCommandUsesConfigFlag(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "first_id", `
name: first_id
description: "ids follow the config file"
endpoints: [a]
steps:
  - flush: a
assertions:
  - type: final_state
    table: endpoints
    where: {name: a}
    expect: {id: 100}
`)
	cfgPath := filepath.Join(t.TempDir(), "ids.cue")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`kernel: first_id: 100`), 0o644))

	_, err := executeTest(t, &RootOptions{Format: "text", Config: cfgPath}, dir)
	assert.NoError(t, err)

	_, err = executeTest(t, &RootOptions{Format: "text"}, dir)
	assert.Error(t, err)
}

func TestTestCommandBadConfig(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "echo_one", echoScenario)
	cfgPath := filepath.Join(t.TempDir(), "bad.cue")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`reactor: batch_size: 0`), 0o644))

	_, err := executeTest(t, &RootOptions{Format: "text", Config: cfgPath}, dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "b", echoScenario)
	writeScenario(t, dir, "a", echoScenario)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	writeScenario(t, filepath.Join(dir, "nested"), "c", echoScenario)

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "nested", "c.yaml"),
	}, files)
}
