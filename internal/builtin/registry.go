// Package builtin is the scalar/aggregate function registry spec.md
// §4.6 requires the Physical Operators layer to consult for any
// function name internal/plan/eval doesn't already special-case.
// Grounded directly on the teacher's pkg/builtin.FunctionRegistry
// (Register/Get/List over a name-keyed map of FunctionInfo), trimmed to
// the scalar-function surface since spec.md's aggregate set already has
// a dedicated closed enum in plan.AggFunc.Fn.
package builtin

import (
	"fmt"
	"sort"
	"sync"
)

// Handle computes a scalar function's result from already-evaluated
// argument values.
type Handle func(args []interface{}) (interface{}, error)

// Info describes one registered function.
type Info struct {
	Name        string
	Category    string // math, string, date, encoding, ...
	Variadic    bool
	Handler     Handle
	Description string
}

// Registry is a concurrency-safe name-keyed function table.
type Registry struct {
	mu        sync.RWMutex
	functions map[string]*Info
}

func NewRegistry() *Registry {
	return &Registry{functions: make(map[string]*Info)}
}

func (r *Registry) Register(info *Info) error {
	if info == nil || info.Name == "" {
		return fmt.Errorf("builtin: function info must have a name")
	}
	if info.Handler == nil {
		return fmt.Errorf("builtin: function %q has no handler", info.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.functions[info.Name] = info
	return nil
}

func (r *Registry) Get(name string) (*Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.functions[name]
	return f, ok
}

func (r *Registry) Call(name string, args []interface{}) (interface{}, error) {
	f, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("builtin: unknown function %q", name)
	}
	return f.Handler(args)
}

// List returns every registered function name, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.functions))
	for name := range r.functions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Default returns a Registry pre-populated with the math/string/date
// builtins of default.go, mirroring the teacher's pkg/builtin/init.go
// RegisterAllFunctions entry point.
func Default() *Registry {
	r := NewRegistry()
	for _, info := range defaultFunctions() {
		_ = r.Register(info)
	}
	return r
}
