package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Xhuk/continuitybridge/internal/metrics"
)

// Executor runs one workflow node. Implementations must honor emulation
// mode and return failures as results, never as panics.
type Executor interface {
	Execute(ctx context.Context, node *Node, input map[string]any, execCtx *Context) *Result
}

// ErrUnknownNodeType is wrapped with the offending type id.
var ErrUnknownNodeType = errUnknownNodeType{}

type errUnknownNodeType struct{}

func (errUnknownNodeType) Error() string { return "unknown node type" }

// Registry maps node type ids to executor implementations. The set is open:
// plugin-supplied types register at runtime. Thread-safe.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register adds (or replaces) the executor for a node type id.
func (r *Registry) Register(typeID string, e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[typeID] = e
}

// Get returns the executor for a node type id.
func (r *Registry) Get(typeID string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[typeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNodeType, typeID)
	}
	return e, nil
}

// Has reports whether a node type id is registered.
func (r *Registry) Has(typeID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.executors[typeID]
	return ok
}

// Types returns all registered node type ids, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Execute looks up the node's executor and runs it, recording metrics. An
// unregistered type yields a failed result, not an error, so a workflow run
// can decide how to continue.
func (r *Registry) Execute(ctx context.Context, node *Node, input map[string]any, execCtx *Context) *Result {
	e, err := r.Get(node.Type)
	if err != nil {
		res := &Result{Success: false, Err: err.Error(), ErrKind: ErrKindConfiguration}
		metrics.RecordNodeExecution(node.Type, execCtx != nil && execCtx.EmulationMode, false)
		return res
	}

	res := e.Execute(ctx, node, input, execCtx)
	metrics.RecordNodeExecution(node.Type, res.Emulated(), res.Success)
	return res
}
