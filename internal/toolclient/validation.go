package toolclient

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"opsbot/internal/agent/ports"
	apperrors "opsbot/internal/errors"
	jsonx "opsbot/internal/shared/json"
)

// validateParameters checks required presence first, then the declared
// primitive type of every supplied parameter. Extra parameters are allowed
// and nil values skip the type check.
func validateParameters(tool ports.Tool, params map[string]any) error {
	for _, name := range tool.InputSchema.Required {
		if _, ok := params[name]; !ok {
			return apperrors.MissingParameter(tool.Name, name)
		}
	}

	for key, val := range params {
		prop, ok := tool.InputSchema.Properties[key]
		if !ok || val == nil {
			continue
		}
		if err := checkType(key, prop.Type, val); err != nil {
			return &apperrors.ToolError{
				Code:    apperrors.CodeInvalidParameters,
				Message: err.Error(),
				Tool:    tool.Name,
			}
		}
		if len(prop.Enum) > 0 && !inEnum(val, prop.Enum) {
			return &apperrors.ToolError{
				Code:    apperrors.CodeInvalidParameters,
				Message: fmt.Sprintf("parameter %q: value %v is not one of %v", key, val, prop.Enum),
				Tool:    tool.Name,
			}
		}
	}
	return nil
}

func checkType(key, expectedType string, val any) error {
	switch strings.ToLower(expectedType) {
	case "":
		return nil
	case "string":
		if _, ok := val.(string); !ok {
			return fmt.Errorf("parameter %q: expected string, got %T", key, val)
		}
	case "number":
		if _, ok := toFloat(val); !ok {
			return fmt.Errorf("parameter %q: expected number, got %T", key, val)
		}
	case "integer":
		f, ok := toFloat(val)
		if !ok || f != math.Trunc(f) {
			return fmt.Errorf("parameter %q: expected integer, got %v", key, val)
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("parameter %q: expected boolean, got %T", key, val)
		}
	case "array":
		kind := reflect.TypeOf(val).Kind()
		if kind != reflect.Slice && kind != reflect.Array {
			return fmt.Errorf("parameter %q: expected array, got %T", key, val)
		}
	case "object":
		if _, ok := val.(map[string]any); !ok {
			return fmt.Errorf("parameter %q: expected object, got %T", key, val)
		}
	}
	return nil
}

func toFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case jsonx.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func inEnum(val any, enum []any) bool {
	for _, candidate := range enum {
		if reflect.DeepEqual(candidate, val) {
			return true
		}
		if a, ok := toFloat(candidate); ok {
			if b, ok := toFloat(val); ok && a == b {
				return true
			}
		}
	}
	return false
}
