package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"opsbot/internal/app"
	"opsbot/internal/config"
	"opsbot/internal/logging"
	"opsbot/internal/observability"
	"opsbot/internal/tools/k8s"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, mutate func(*config.Config)) (*gin.Engine, *app.Runtime) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.LLM.Provider = "mock"
	cfg.LLM.Model = "mock"
	cfg.Tools.SimulateLatency = false
	if mutate != nil {
		mutate(&cfg)
	}
	reg := prometheus.NewRegistry()
	rt, err := app.New(context.Background(), cfg,
		app.WithMetrics(observability.NewMetrics(reg, reg)),
		app.WithLogger(logging.Nop()),
		app.WithRetireDelay(0),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	return NewRouter(rt, RouterConfig{AllowedOrigins: []string{"*"}, Logger: logging.Nop()}), rt
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return errObj["code"].(string)
}

func TestHealthAndStatus(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := doJSON(t, router, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "connected", body["state"])
	assert.Equal(t, float64(len(k8s.Tools())), body["tools"])
	assert.Equal(t, "mock", body["llm_model"])
}

func TestListTools(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := doJSON(t, router, http.MethodGet, "/api/tools", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	tools := body["tools"].([]any)
	require.Len(t, tools, len(k8s.Tools()))
	assert.Equal(t, k8s.ToolDescribePod, tools[0].(map[string]any)["name"])
}

func TestListToolsWhenDisconnected(t *testing.T) {
	router, rt := newTestRouter(t, nil)
	rt.Current().Client.Disconnect()

	rec := doJSON(t, router, http.MethodGet, "/api/tools", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "NOT_CONNECTED", errorCode(t, rec))
}

func TestTestToolSuccessAndErrors(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/tools/test", map[string]any{
		"tool_name":  k8s.ToolGetLogs,
		"parameters": map[string]any{"pod_name": "web-1", "lines": 10},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "web-1", body["result"].(map[string]any)["pod_name"])

	rec = doJSON(t, router, http.MethodPost, "/api/tools/test", map[string]any{"tool_name": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "TOOL_NOT_FOUND", errorCode(t, rec))

	rec = doJSON(t, router, http.MethodPost, "/api/tools/test", map[string]any{"tool_name": k8s.ToolGetLogs})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETERS", errorCode(t, rec))

	rec = doJSON(t, router, http.MethodPost, "/api/tools/test", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))
}

func TestBatchKeepsOrder(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/tools/batch", map[string]any{
		"calls": []map[string]any{
			{"tool_name": k8s.ToolGetPods},
			{"tool_name": "missing"},
			{"tool_name": k8s.ToolDescribePod, "parameters": map[string]any{"pod_name": "web-1"}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode(t, rec)["results"].([]any)
	require.Len(t, results, 3)
	assert.Equal(t, k8s.ToolGetPods, results[0].(map[string]any)["tool_name"])
	assert.Equal(t, false, results[1].(map[string]any)["success"])
	assert.Equal(t, true, results[2].(map[string]any)["success"])
}

func TestStatsAndReset(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	doJSON(t, router, http.MethodPost, "/api/tools/test", map[string]any{"tool_name": k8s.ToolGetPods})

	body := decode(t, doJSON(t, router, http.MethodGet, "/api/stats", nil))
	assert.Equal(t, float64(1), body["total_calls"])

	body = decode(t, doJSON(t, router, http.MethodPost, "/api/stats/reset", nil))
	assert.Equal(t, float64(0), body["total_calls"])
	assert.Equal(t, float64(len(k8s.Tools())), body["active_tools"])
}

func TestChatRunsTools(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/chat", map[string]any{"message": "list the pods please"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["markdown"])
	assert.Contains(t, body["content"], "**Tool call details:**")
	assert.Len(t, body["function_calls"], 1)

	rec = doJSON(t, router, http.MethodPost, "/api/chat", map[string]any{"message": "list the pods please", "enable_tools": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode(t, rec)["function_calls"])

	rec = doJSON(t, router, http.MethodPost, "/api/chat", map[string]any{"message": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShortcuts(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	body := decode(t, doJSON(t, router, http.MethodGet, "/api/shortcuts", nil))
	assert.Len(t, body["shortcuts"], 5+len(k8s.Tools()))

	rec := doJSON(t, router, http.MethodPost, "/api/shortcuts/unknown", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(decode(t, rec)["content"].(string), "Unknown shortcut: /unknown"))

	rec = doJSON(t, router, http.MethodPost, "/api/shortcuts/pods", map[string]any{"content": "namespace prod"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["function_calls"], 1)
}

func TestConfigSections(t *testing.T) {
	router, rt := newTestRouter(t, nil)

	rec := doJSON(t, router, http.MethodGet, "/api/config/client", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(5), decode(t, rec)["max_concurrent_calls"])

	rec = doJSON(t, router, http.MethodPost, "/api/config/client", map[string]any{"max_concurrent_calls": 3})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), decode(t, rec)["max_concurrent_calls"])
	assert.Equal(t, 3, rt.Current().Config.Client.MaxConcurrentCalls)

	rec = doJSON(t, router, http.MethodPost, "/api/config/client", map[string]any{"max_concurrent_calls": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_CONFIG", errorCode(t, rec))

	rec = doJSON(t, router, http.MethodGet, "/api/config/secrets", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	rec := doJSON(t, router, http.MethodGet, "/api/history", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	dsn := filepath.Join(t.TempDir(), "history.db")
	router, _ = newTestRouter(t, func(cfg *config.Config) {
		cfg.History.Enabled = true
		cfg.History.DSN = dsn
	})
	doJSON(t, router, http.MethodPost, "/api/tools/test", map[string]any{"tool_name": k8s.ToolGetPods})

	rec = doJSON(t, router, http.MethodGet, "/api/history?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["records"], 1)

	rec = doJSON(t, router, http.MethodGet, "/api/history?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	doJSON(t, router, http.MethodPost, "/api/tools/test", map[string]any{"tool_name": k8s.ToolGetPods})

	rec := doJSON(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "opsbot_tool_calls_total")
}
