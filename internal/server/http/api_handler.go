package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"opsbot/internal/agent/ports"
	"opsbot/internal/app"
	"opsbot/internal/logging"
	"opsbot/internal/orchestrator"
	id "opsbot/internal/shared/id"

	"github.com/gin-gonic/gin"
)

// ChatPersona frames free-form chat requests.
const ChatPersona = "You are a professional Kubernetes operations assistant who helps users manage and monitor K8s clusters."

// APIHandler serves the REST API from the runtime's current instance.
type APIHandler struct {
	runtime *app.Runtime
	logger  logging.Logger
}

// NewAPIHandler binds handlers to rt.
func NewAPIHandler(rt *app.Runtime, logger logging.Logger) *APIHandler {
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("api")
	}
	return &APIHandler{runtime: rt, logger: logger}
}

type toolCallRequest struct {
	ToolName   string         `json:"tool_name" binding:"required"`
	Parameters map[string]any `json:"parameters"`
}

type batchRequest struct {
	Calls []toolCallRequest `json:"calls" binding:"required"`
}

type chatRequest struct {
	Message     string `json:"message" binding:"required"`
	EnableTools *bool  `json:"enable_tools"`
}

type shortcutRequest struct {
	Content string `json:"content"`
}

type chatResponse struct {
	Content       string                            `json:"content"`
	Markdown      bool                              `json:"markdown"`
	FunctionCalls []orchestrator.FunctionCallResult `json:"function_calls"`
	Usage         ports.TokenUsage                  `json:"usage"`
}

func (h *APIHandler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *APIHandler) HandleStatus(c *gin.Context) {
	inst := h.runtime.Current()
	c.JSON(http.StatusOK, gin.H{
		"state":         inst.Client.State(),
		"tools":         inst.Client.Stats().ActiveTools,
		"stats":         inst.Client.Stats(),
		"cache_enabled": inst.Client.CacheEnabled(),
		"llm_model":     inst.LLM.Model(),
		"llm_provider":  inst.Config.LLM.Provider,
		"built_at":      inst.BuiltAt,
	})
}

func (h *APIHandler) HandleListTools(c *gin.Context) {
	tools, err := h.runtime.Current().Client.ListTools(c.Request.Context())
	if err != nil {
		h.writeToolError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tools": tools, "count": len(tools)})
}

// HandleTestTool dispatches one call and returns its ToolResult.
func (h *APIHandler) HandleTestTool(c *gin.Context) {
	var req toolCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", err)
		return
	}
	result := h.runtime.Current().Client.Invoke(c.Request.Context(), ports.ToolCall{
		ID:         id.NewCallID(),
		Name:       req.ToolName,
		Parameters: req.Parameters,
	})
	if !result.Success {
		h.writeDescriptor(c, result.Error)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleBatch runs every call concurrently. Per-call failures are reported
// inside the results, so the response is 200 whenever the body is valid.
func (h *APIHandler) HandleBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", err)
		return
	}
	calls := make([]ports.ToolCall, len(req.Calls))
	for i, call := range req.Calls {
		calls[i] = ports.ToolCall{Name: call.ToolName, Parameters: call.Parameters}
	}
	results := h.runtime.Current().Client.CallToolsBatch(c.Request.Context(), calls)
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *APIHandler) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.runtime.Current().Client.Stats())
}

func (h *APIHandler) HandleResetStats(c *gin.Context) {
	client := h.runtime.Current().Client
	client.ResetStats()
	c.JSON(http.StatusOK, client.Stats())
}

func (h *APIHandler) HandleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		h.writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "message is required", err)
		return
	}
	enableTools := req.EnableTools == nil || *req.EnableTools
	inst := h.runtime.Current()
	result, err := inst.Orchestrator.Chat(c.Request.Context(), []ports.Message{
		{Role: ports.RoleSystem, Content: ChatPersona},
		{Role: ports.RoleUser, Content: req.Message},
	}, enableTools)
	if err != nil {
		h.writeToolError(c, err)
		return
	}
	c.JSON(http.StatusOK, shape(result, inst.Config.Orchestrator.MaxOutputLength))
}

func (h *APIHandler) HandleShortcut(c *gin.Context) {
	var req shortcutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", err)
			return
		}
	}
	trigger := "/" + strings.TrimPrefix(c.Param("name"), "/")
	inst := h.runtime.Current()
	result, err := inst.Orchestrator.ChatWithShortcut(c.Request.Context(), trigger, req.Content)
	if err != nil {
		h.writeToolError(c, err)
		return
	}
	c.JSON(http.StatusOK, shape(result, inst.Config.Orchestrator.MaxOutputLength))
}

func (h *APIHandler) HandleListShortcuts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"shortcuts": h.runtime.Current().Orchestrator.AvailableShortcuts(c.Request.Context())})
}

func (h *APIHandler) HandleGetConfig(c *gin.Context) {
	section, err := h.runtime.Current().Config.Section(c.Param("section"))
	if err != nil {
		h.writeConfigError(c, err)
		return
	}
	c.JSON(http.StatusOK, section)
}

// HandleUpdateConfig merges the JSON body into a section and reloads the
// runtime with the result.
func (h *APIHandler) HandleUpdateConfig(c *gin.Context) {
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", err)
		return
	}
	name := c.Param("section")
	next, err := h.runtime.UpdateSection(c.Request.Context(), name, patch)
	if err != nil {
		if errors.Is(err, app.ErrPersist) {
			h.writeError(c, http.StatusInternalServerError, "PERSIST_FAILED", "configuration applied but not saved", err)
			return
		}
		h.writeConfigError(c, err)
		return
	}
	section, err := next.Section(name)
	if err != nil {
		h.writeConfigError(c, err)
		return
	}
	c.JSON(http.StatusOK, section)
}

func (h *APIHandler) HandleHistory(c *gin.Context) {
	store := h.runtime.History()
	if store == nil {
		h.writeError(c, http.StatusServiceUnavailable, "HISTORY_DISABLED", "call history is disabled", nil)
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a non-negative integer", nil)
			return
		}
		limit = parsed
	}
	records, err := store.List(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, http.StatusInternalServerError, "HISTORY_FAILED", "failed to read history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func shape(result *orchestrator.ProcessResult, maxLen int) chatResponse {
	out := orchestrator.ShapeOutput(result.Content, maxLen)
	return chatResponse{
		Content:       out.Content,
		Markdown:      out.Markdown,
		FunctionCalls: result.FunctionCalls,
		Usage:         result.Usage,
	}
}
