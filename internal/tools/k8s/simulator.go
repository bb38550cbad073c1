// Package k8s provides a simulated Kubernetes tool set used as the default
// tool source and executor.
package k8s

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"opsbot/internal/agent/ports"
)

const (
	ToolGetPods         = "k8s-get-pods"
	ToolScaleDeployment = "k8s-scale-deployment"
	ToolGetLogs         = "k8s-get-logs"
	ToolDescribePod     = "k8s-describe-pod"

	defaultNamespace = "default"
	defaultLogLines  = 100
)

// Latency is the simulated execution delay range. A zero Max disables it.
type Latency struct {
	Min time.Duration
	Max time.Duration
}

// DefaultLatency approximates a round trip to a real cluster.
func DefaultLatency() Latency {
	return Latency{Min: 200 * time.Millisecond, Max: 500 * time.Millisecond}
}

// Simulator answers the Kubernetes tools with canned payloads. It is both a
// ports.ToolSource and a ports.ToolExecutor.
type Simulator struct {
	latency Latency
	now     func() time.Time
}

// NewSimulator creates a simulator with the given latency range.
func NewSimulator(latency Latency) *Simulator {
	return &Simulator{latency: latency, now: time.Now}
}

// Discover returns the Kubernetes tool catalog.
func (s *Simulator) Discover(ctx context.Context) ([]ports.Tool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Tools(), nil
}

// Tools lists the simulated tool definitions.
func Tools() []ports.Tool {
	namespace := ports.Property{Type: "string", Description: "Namespace"}
	podName := ports.Property{Type: "string", Description: "Pod name"}
	return []ports.Tool{
		newTool(ToolGetPods, "List Kubernetes pods", ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"namespace":      namespace,
				"label_selector": {Type: "string", Description: "Label selector"},
			},
		}),
		newTool(ToolScaleDeployment, "Scale a Kubernetes deployment", ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"name":      {Type: "string", Description: "Deployment name"},
				"replicas":  {Type: "number", Description: "Replica count"},
				"namespace": namespace,
			},
			Required: []string{"name", "replicas"},
		}),
		newTool(ToolGetLogs, "Fetch pod logs", ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"pod_name":  podName,
				"namespace": namespace,
				"lines":     {Type: "number", Description: "Number of lines"},
			},
			Required: []string{"pod_name"},
		}),
		newTool(ToolDescribePod, "Show pod details", ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"pod_name":  podName,
				"namespace": namespace,
			},
			Required: []string{"pod_name"},
		}),
	}
}

func newTool(name, description string, schema ports.ParameterSchema) ports.Tool {
	return ports.Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
		Category:    "kubernetes",
		Version:     "1.0.0",
		Provider:    "builtin",
	}
}

// Execute returns the canned payload for call after the simulated delay.
func (s *Simulator) Execute(ctx context.Context, call ports.ToolCall) (any, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	params := call.Parameters
	namespace := stringParam(params, "namespace", defaultNamespace)

	switch call.Name {
	case ToolGetPods:
		return map[string]any{
			"items": []any{
				pod("nginx-deployment-1", namespace, "nginx", "nginx:1.20"),
				pod("redis-deployment-1", namespace, "redis", "redis:6.2"),
			},
		}, nil
	case ToolScaleDeployment:
		return map[string]any{
			"deployment_name":   params["name"],
			"namespace":         namespace,
			"previous_replicas": 2,
			"target_replicas":   params["replicas"],
			"current_replicas":  params["replicas"],
			"success":           true,
		}, nil
	case ToolGetLogs:
		lines, ok := params["lines"]
		if !ok || lines == nil {
			lines = defaultLogLines
		}
		return map[string]any{
			"pod_name":  params["pod_name"],
			"namespace": namespace,
			"content":   s.logContent(),
			"lines":     lines,
		}, nil
	case ToolDescribePod:
		return map[string]any{
			"pod_name":  params["pod_name"],
			"namespace": namespace,
			"status":    "Running",
			"node":      "worker-node-1",
			"ip":        "10.244.1.10",
			"containers": []any{
				map[string]any{"name": "main", "image": "nginx:1.20", "status": "Running"},
			},
			"events": []any{
				map[string]any{"type": "Normal", "reason": "Scheduled", "message": "Successfully assigned pod to node"},
				map[string]any{"type": "Normal", "reason": "Pulled", "message": "Container image pulled successfully"},
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown tool: %s", call.Name)
	}
}

func (s *Simulator) wait(ctx context.Context) error {
	if s.latency.Max <= 0 {
		return ctx.Err()
	}
	delay := s.latency.Min
	if spread := s.latency.Max - s.latency.Min; spread > 0 {
		delay += time.Duration(rand.Int64N(int64(spread)))
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Simulator) logContent() string {
	ts := s.now().Format("2006-01-02T15:04:05.000000")
	lines := []string{
		"INFO: Application started successfully",
		"INFO: Listening on port 8080",
		"INFO: Health check passed",
	}
	for i, line := range lines {
		lines[i] = "[" + ts + "] " + line
	}
	return strings.Join(lines, "\n")
}

func pod(name, namespace, container, image string) map[string]any {
	return map[string]any{
		"metadata": map[string]any{"name": name, "namespace": namespace},
		"status":   map[string]any{"phase": "Running"},
		"spec": map[string]any{
			"containers": []any{map[string]any{"name": container, "image": image}},
		},
	}
}

func stringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
