package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture builds a complete working directory: config, one rule file,
// and one ICS calendar with a single timed event two days out.
func fixture(t *testing.T) (configPath string) {
	t.Helper()
	dir := t.TempDir()

	rulesDir := filepath.Join(dir, "rules")
	require.NoError(t, os.Mkdir(rulesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rulesDir, "work.cue"), []byte(`
rules: standup: {
	name:    "Standup heads-up"
	pattern: "standup"
	lead:    "10m"
}
`), 0o644))

	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	icsPath := filepath.Join(dir, "work.ics")
	body := fmt.Sprintf("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//chime//test//EN\r\n"+
		"BEGIN:VEVENT\r\nUID:ev-standup\r\nDTSTAMP:20260820T120000Z\r\n"+
		"DTSTART:%s\r\nDTEND:%s\r\nSUMMARY:Team standup\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n",
		start.Format("20060102T150405Z"), start.Add(30*time.Minute).Format("20060102T150405Z"))
	require.NoError(t, os.WriteFile(icsPath, []byte(body), 0o644))

	configPath = filepath.Join(dir, "chime.yaml")
	cfg := fmt.Sprintf("database: %s\nrules_dir: %s\nics:\n  - id: work\n    name: Work\n    url: %s\n",
		filepath.Join(dir, "chime.db"), rulesDir, icsPath)
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o644))
	return configPath
}

// runCLI executes one chime invocation and returns the decoded JSON
// response from stdout.
func runCLI(t *testing.T, args ...string) (CLIResponse, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append(args, "--format", "json"))
	execErr := cmd.Execute()

	var resp CLIResponse
	if buf.Len() > 0 {
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	}
	return resp, execErr
}

func TestCLI_PassAndDismissFlow(t *testing.T) {
	cfg := fixture(t)

	// First pass schedules the matching event.
	resp, err := runCLI(t, "pass", "--config", cfg)
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(1), data["scheduled_count"])

	// The alarm row is visible and carries the 10m lead.
	resp, err = runCLI(t, "alarms", "--all", "--config", cfg)
	require.NoError(t, err)
	rows := resp.Data.([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, "ev-standup", row["event_id"])
	assert.Equal(t, "10m0s", row["lead"])
	alarmID := row["id"].(string)

	// Dismiss it; a second pass leaves the row alone.
	_, err = runCLI(t, "dismiss", alarmID, "--config", cfg)
	require.NoError(t, err)

	resp, err = runCLI(t, "pass", "--config", cfg)
	require.NoError(t, err)
	data = resp.Data.(map[string]any)
	assert.Equal(t, float64(0), data["scheduled_count"])
	assert.Equal(t, float64(1), data["skipped_count"])

	resp, err = runCLI(t, "alarms", "--all", "--config", cfg)
	require.NoError(t, err)
	rows = resp.Data.([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, true, rows[0].(map[string]any)["dismissed"])
}

func TestCLI_RulesCommand(t *testing.T) {
	cfg := fixture(t)

	resp, err := runCLI(t, "rules", "--config", cfg)
	require.NoError(t, err)
	data := resp.Data.(map[string]any)
	rules := data["rules"].([]any)
	require.Len(t, rules, 1)
	assert.Equal(t, "standup", rules[0].(map[string]any)["id"])
}

func TestCLI_MatchTitle(t *testing.T) {
	cfg := fixture(t)

	resp, err := runCLI(t, "match", "Morning standup", "--config", cfg)
	require.NoError(t, err)
	data := resp.Data.(map[string]any)
	matches := data["matches"].([]any)
	require.Len(t, matches, 1)
	assert.Equal(t, "standup", matches[0].(map[string]any)["rule_id"])
}

func TestCLI_DismissMissingAlarm(t *testing.T) {
	cfg := fixture(t)

	_, err := runCLI(t, "dismiss", "ghost", "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCLI_MissingConfig(t *testing.T) {
	_, err := runCLI(t, "pass", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
