// Package executor defines the uniform contract under which workflow-graph
// nodes invoke external effects, and the registration table mapping node
// type ids to implementations. Third-party node types register at runtime.
package executor

import (
	"fmt"
	"time"
)

// Error kinds carried on failed results. Failures are data: an executor
// never lets an external fault escape as a panic or a raw error that could
// abort a whole workflow run.
const (
	ErrKindConfiguration = "configuration" // missing/invalid node config, detected before any I/O
	ErrKindConnection    = "connection"    // could not reach the external dependency
	ErrKindExecution     = "execution"     // the external call itself failed
)

// Node is one typed, configured unit of work in a workflow graph.
type Node struct {
	ID     string         `json:"id"`   // instance id within the graph
	Type   string         `json:"type"` // node definition id
	Config map[string]any `json:"config"`
}

// Context is the per-workflow-run state passed to every executor.
type Context struct {
	// EmulationMode forces executors to simulate external effects instead
	// of performing them. The only mode guaranteed available without the
	// real external dependency configured.
	EmulationMode bool

	TraceID string
	RunID   string
	Vars    map[string]any
}

// Result is the outcome of one node execution.
type Result struct {
	Success  bool           `json:"success"`
	Output   map[string]any `json:"output,omitempty"`
	Err      string         `json:"error,omitempty"`
	ErrKind  string         `json:"error_kind,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Emulated marks a result as produced in emulation mode.
func (r *Result) Emulated() bool {
	if r.Metadata == nil {
		return false
	}
	v, _ := r.Metadata["emulated"].(bool)
	return v
}

// ConfigError builds the failed result for missing required configuration.
func ConfigError(node *Node, field string) *Result {
	return &Result{
		Success: false,
		Err:     fmt.Sprintf("node %s (%s): required config %q missing", node.ID, node.Type, field),
		ErrKind: ErrKindConfiguration,
	}
}

// emulatedResult builds a structurally faithful simulated success.
func emulatedResult(output map[string]any) *Result {
	return &Result{
		Success:  true,
		Output:   output,
		Metadata: map[string]any{"emulated": true, "at": time.Now().UTC().Format(time.RFC3339)},
	}
}

// stringConfig reads a required string from node config.
func stringConfig(node *Node, key string) (string, bool) {
	v, ok := node.Config[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// optionalString reads an optional string from node config.
func optionalString(node *Node, key, def string) string {
	if s, ok := stringConfig(node, key); ok {
		return s
	}
	return def
}
