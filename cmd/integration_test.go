package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/funnelscope/internal/ai"
	"github.com/KaramelBytes/funnelscope/internal/dataset"
)

const touchesCSV = `Member Id,Channel,Meeting Booked,Opportunity ID,Pipeline,Closed Won,Interaction Status,Region,Tier
1,Email,Yes,o1,1000,0,Attended,US,A
2,Email,No,,,,Attended,EU,B
3,Events,Yes,o2,5000,5000,Visited Booth,US,A
4,Events,No,,,,Badge Scanned,EU,B
5,Paid,No,,,,Sent,US,C
6,Paid,No,,,,Sent,EU,C
`

// resetFlags restores every flag to its default; flag values are package-level
// and persist between Execute calls in one test binary.
func resetFlags(c *cobra.Command) {
	reset := func(fl *pflag.Flag) {
		_ = fl.Value.Set(fl.DefValue)
		fl.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCmd executes the root command with args and returns stdout.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	rootCmd.SetOut(nil)
	return buf.String(), err
}

func isolatedHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	return home
}

func writeTouches(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "touches.csv")
	require.NoError(t, os.WriteFile(p, []byte(touchesCSV), 0o644))
	return p
}

func TestCLI_Columns(t *testing.T) {
	home := isolatedHome(t)
	out, err := runCmd(t, "columns", writeTouches(t, home))
	require.NoError(t, err)
	assert.Contains(t, out, "Source: touches.csv (6 rows, 9 columns)")
	assert.Regexp(t, `channel\s+Channel`, out)
	assert.Regexp(t, `opp_stage\s+-`, out)
	assert.Contains(t, out, "Dimensions: Channel, Interaction Status, Region, Tier")

	out, err = runCmd(t, "columns", writeTouches(t, home), "--json")
	require.NoError(t, err)
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Contains(t, v, "roles")
}

func TestCLI_AnalyzeFormats(t *testing.T) {
	home := isolatedHome(t)
	src := writeTouches(t, home)

	out, err := runCmd(t, "analyze", src)
	require.NoError(t, err)
	assert.Contains(t, out, "[FUNNEL BY CHANNEL]")
	assert.Contains(t, out, "[CROSS-CUT BY REGION]")

	out, err = runCmd(t, "analyze", src, "--dimension", "Region", "--format", "json")
	require.NoError(t, err)
	var rep map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "Region", rep["dimension"])

	out, err = runCmd(t, "analyze", src, "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "dimension: Channel")

	md := filepath.Join(home, "out", "report.md")
	out, err = runCmd(t, "analyze", src, "--format", "markdown", "--output", md)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Wrote "+md)
	b, err := os.ReadFile(md)
	require.NoError(t, err)
	assert.Contains(t, string(b), "| Segment | Touches |")

	_, err = runCmd(t, "analyze", src, "--format", "pdf")
	assert.Error(t, err)
	_, err = runCmd(t, "analyze", src, "--dimension", "Nope")
	assert.Error(t, err)
	_, err = runCmd(t, "analyze", filepath.Join(home, "missing.csv"))
	assert.Error(t, err)
}

func TestCLI_AnalyzeSQLite(t *testing.T) {
	home := isolatedHome(t)
	dbPath := filepath.Join(home, "crm.db")
	db, err := dataset.OpenSQLite(dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`create table touches (channel text, meeting_booked text, pipeline real);
insert into touches values ('Email','Yes',100),('Email','No',null),('Events','Yes',900);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out, err := runCmd(t, "analyze", dbPath, "--sql-driver", "sqlite", "--sql-query", "select * from touches", "--format", "json")
	require.NoError(t, err)
	var rep map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "channel", rep["dimension"])
	assert.Equal(t, float64(3), rep["rows"])

	// Flags from the previous run must not leak into this one.
	out, err = runCmd(t, "analyze", writeTouches(t, home))
	require.NoError(t, err)
	assert.Contains(t, out, "Source: touches.csv")
}

func TestCLI_Context(t *testing.T) {
	home := isolatedHome(t)
	src := writeTouches(t, home)
	out, err := runCmd(t, "context", src, "--quiet")
	require.NoError(t, err)
	assert.Contains(t, out, "MARKETING PERFORMANCE DATA SUMMARY (6 records):")

	cfgPath := filepath.Join(home, "tiny.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("analysis:\n  max_context_length: 20\n"), 0o644))
	_, err = runCmd(t, "context", src, "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data context too long")
}

func TestCLI_AskDryRun(t *testing.T) {
	home := isolatedHome(t)
	out, err := runCmd(t, "ask", writeTouches(t, home), "Which channel works?", "--dry-run", "--provider", "anthropic")
	require.NoError(t, err)
	assert.Contains(t, out, "--dry-run: no API call will be made")
	assert.Contains(t, out, `"model": "claude-sonnet-4-20250514"`)
	assert.Contains(t, out, "WHAT'S HAPPENING")
	assert.Contains(t, out, "Which channel works?")

	out, err = runCmd(t, "ask", writeTouches(t, home), "Which channel works?", "--dry-run", "--prompt-limit", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "Truncating before send")

	_, err = runCmd(t, "ask", writeTouches(t, home), "q", "--provider", "gemini")
	assert.Error(t, err)
}

func TestCLI_AskOllama(t *testing.T) {
	home := isolatedHome(t)
	var got struct {
		Model    string       `json:"model"`
		Messages []ai.Message `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3.1:8b","message":{"role":"assistant","content":"Events carry the pipeline."},"done":true,"prompt_eval_count":10,"eval_count":5}`))
	}))
	defer srv.Close()

	histPath := filepath.Join(home, "history.json")
	require.NoError(t, os.WriteFile(histPath, []byte(`[{"role":"user","content":"Hi"},{"role":"assistant","content":"Hello"}]`), 0o644))
	convPath := filepath.Join(home, "conv.json")

	out, err := runCmd(t, "ask", writeTouches(t, home), "Where is pipeline?",
		"--provider", "ollama", "--ollama-host", srv.URL, "--history", histPath, "--output", convPath)
	require.NoError(t, err)
	assert.Contains(t, out, "=== Analyst ===")
	assert.Contains(t, out, "Events carry the pipeline.")

	assert.Equal(t, "llama3.1:8b", got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, ai.RoleSystem, got.Messages[0].Role)
	assert.Equal(t, "Where is pipeline?", got.Messages[3].Content)

	var conv []ai.Message
	b, err := os.ReadFile(convPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &conv))
	require.Len(t, conv, 4)
	assert.Equal(t, ai.RoleAssistant, conv[3].Role)

	out, err = runCmd(t, "ask", writeTouches(t, home), "Again?", "--provider", "ollama", "--ollama-host", srv.URL, "--json")
	require.NoError(t, err)
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "Events carry the pipeline.", v["content"])
	assert.Equal(t, "ollama", v["provider"])
}

func TestCLI_ConfigSetShow(t *testing.T) {
	home := isolatedHome(t)
	_, err := runCmd(t, "config", "set", "default_provider", "claude")
	require.NoError(t, err)
	_, err = runCmd(t, "config", "set", "analysis.recovery_rate", "0.25")
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(home, ".funnelscope", "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "default_provider: anthropic")

	out, err := runCmd(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "default_provider: anthropic")
	assert.Contains(t, out, "recovery_rate: 0.25")

	_, err = runCmd(t, "config", "set", "nope", "1")
	assert.Error(t, err)
}

func TestCLI_ModelsShow(t *testing.T) {
	isolatedHome(t)
	out, err := runCmd(t, "models", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "claude-sonnet-4-20250514")
	assert.Contains(t, out, "Providers: [anthropic ollama openrouter]")
}
