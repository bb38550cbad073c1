package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"opsbot/internal/app"
	"opsbot/internal/config"
	"opsbot/internal/logging"
	"opsbot/internal/observability"
	"opsbot/internal/tools/k8s"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "opsbot.yaml")
	body := `llm:
  provider: mock
  model: mock
tools:
  simulate_latency: false
observability:
  metrics:
    enabled: false
` + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runWithInput(t, "", args...)
}

func runWithInput(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	cmd.SetIn(strings.NewReader(input))
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMain(m *testing.M) {
	color.NoColor = true
	buildRuntime = func(ctx context.Context, cfg config.Config, opts ...app.Option) (*app.Runtime, error) {
		reg := prometheus.NewRegistry()
		opts = append(opts, app.WithMetrics(observability.NewMetrics(reg, reg)), app.WithLogger(logging.Nop()))
		return app.New(ctx, cfg, opts...)
	}
	os.Exit(m.Run())
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "opsbot dev\n", out)
}

func TestToolsList(t *testing.T) {
	out, err := run(t, "--config", writeConfig(t, ""), "tools", "list")
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("%d tools available", len(k8s.Tools())))
	assert.Contains(t, out, k8s.ToolGetPods)
	assert.Contains(t, out, "pod_name*")
}

func TestToolsCall(t *testing.T) {
	path := writeConfig(t, "")

	out, err := run(t, "--config", path, "tools", "call", k8s.ToolGetLogs, "--params", `{"pod_name":"web-1","lines":5}`)
	require.NoError(t, err)
	assert.Contains(t, out, k8s.ToolGetLogs)
	assert.Contains(t, out, "**web-1** logs")

	out, err = run(t, "--config", path, "tools", "call", k8s.ToolGetPods, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"tool_name": "k8s-get-pods"`)

	_, err = run(t, "--config", path, "tools", "call", k8s.ToolGetLogs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_PARAMETERS")

	_, err = run(t, "--config", path, "tools", "call", k8s.ToolGetLogs, "--params", "{nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --params")
}

func TestChatAndShortcut(t *testing.T) {
	path := writeConfig(t, "")

	out, err := run(t, "--config", path, "chat", "list", "the", "pods")
	require.NoError(t, err)
	assert.Contains(t, out, "**Tool call details:**")

	out, err = run(t, "--config", path, "chat", "--no-tools", "list", "the", "pods")
	require.NoError(t, err)
	assert.NotContains(t, out, "**Tool call details:**")

	out, err = run(t, "--config", path, "shortcut", "nope")
	require.NoError(t, err)
	assert.Contains(t, out, "Unknown shortcut: /nope")
}

func TestChatReadsPipedMessage(t *testing.T) {
	path := writeConfig(t, "")

	out, err := runWithInput(t, "list the pods\n", "--config", path, "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "**Tool call details:**")

	_, err = runWithInput(t, "   ", "--config", path, "chat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message required")
}

func TestMissingConfigFile(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "tools", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestHistory(t *testing.T) {
	_, err := run(t, "--config", writeConfig(t, ""), "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")

	dsn := filepath.Join(t.TempDir(), "history.db")
	path := writeConfig(t, fmt.Sprintf("history:\n  enabled: true\n  dsn: %s\n", dsn))

	out, err := run(t, "--config", path, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No calls recorded")

	_, err = run(t, "--config", path, "tools", "call", k8s.ToolGetPods)
	require.NoError(t, err)

	out, err = run(t, "--config", path, "history", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, k8s.ToolGetPods)
}

func TestStatsFromServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/stats", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total_calls":4,"successful_calls":3,"failed_calls":1,"average_execution_time":12.5,"cache_hit_rate":0.25,"active_tools":7}`))
	}))
	defer srv.Close()

	out, err := run(t, "stats", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Total calls:      4")
	assert.Contains(t, out, "Avg time:         12.5ms")
	assert.Contains(t, out, "Cache hit rate:   25%")
}

func TestStatsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := run(t, "stats", "--server", srv.URL)
	require.Error(t, err)
}
