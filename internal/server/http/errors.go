package http

import (
	"errors"
	"net/http"

	"opsbot/internal/config"
	apperrors "opsbot/internal/errors"

	"github.com/gin-gonic/gin"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

// statusForCode maps a tool engine error code to an HTTP status.
func statusForCode(code apperrors.Code) int {
	switch code {
	case apperrors.CodeToolNotFound:
		return http.StatusNotFound
	case apperrors.CodeInvalidParameters, apperrors.CodeArgumentParseFailed:
		return http.StatusBadRequest
	case apperrors.CodeNotConnected:
		return http.StatusServiceUnavailable
	case apperrors.CodeExecutionFailed, apperrors.CodeLLMProcessingFailed, apperrors.CodeConnectionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *APIHandler) writeError(c *gin.Context, status int, code, message string, err error) {
	if err != nil {
		h.logger.Error("HTTP %d - %s: %v", status, message, err)
	} else {
		h.logger.Warn("HTTP %d - %s", status, message)
	}
	c.AbortWithStatusJSON(status, apiErrorResponse{Error: apiError{Code: code, Message: message}})
}

// writeToolError renders a ToolError descriptor, or a generic 500 for
// anything outside the taxonomy.
func (h *APIHandler) writeToolError(c *gin.Context, err error) {
	var toolErr *apperrors.ToolError
	if !errors.As(err, &toolErr) {
		h.writeError(c, http.StatusInternalServerError, "INTERNAL", "internal error", err)
		return
	}
	h.writeDescriptor(c, toolErr)
}

func (h *APIHandler) writeDescriptor(c *gin.Context, toolErr *apperrors.ToolError) {
	status := statusForCode(toolErr.Code)
	h.logger.Warn("HTTP %d - %v", status, toolErr)
	c.AbortWithStatusJSON(status, apiErrorResponse{Error: apiError{
		Code:    string(toolErr.Code),
		Message: toolErr.Message,
		Details: toolErr.Details,
	}})
}

func (h *APIHandler) writeConfigError(c *gin.Context, err error) {
	var unknown config.UnknownSectionError
	if errors.As(err, &unknown) {
		h.writeError(c, http.StatusNotFound, "UNKNOWN_SECTION", err.Error(), nil)
		return
	}
	h.writeError(c, http.StatusBadRequest, "INVALID_CONFIG", err.Error(), nil)
}
