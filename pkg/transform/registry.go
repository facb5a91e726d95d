package transform

import (
	"fmt"
	"sort"

	"github.com/secreport/secreport/pkg/dataset"
)

// Result is the named outputs of a custom function. Single-output
// functions use the "default" key.
type Result = map[string]*dataset.Dataset

// Function is a named custom transform. Implementations must also
// satisfy at least one of the capability interfaces below; the engine
// dispatches on whichever the value implements.
type Function interface {
	Name() string
}

// RowsFunction transforms a dataset with no outside context.
type RowsFunction interface {
	Function
	Transform(d *dataset.Dataset) (*dataset.Dataset, error)
}

// ContextFunction additionally sees the run context (report window,
// clock).
type ContextFunction interface {
	Function
	TransformContext(rctx RunContext, d *dataset.Dataset) (*dataset.Dataset, error)
}

// MultiOutputFunction sees the auxiliary datasets and may emit
// several named outputs, each rendered as its own report section.
type MultiOutputFunction interface {
	Function
	TransformMulti(rctx RunContext, d *dataset.Dataset, aux map[string]*dataset.Dataset) (Result, error)
}

// Registry maps names to custom functions. Registration happens at
// startup; lookups are read-only after that.
type Registry struct {
	funcs map[string]Function
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Function)}
}

// Register adds fn under its own name. Duplicate names and functions
// without any capability interface are rejected.
func (r *Registry) Register(fn Function) error {
	name := fn.Name()
	if name == "" {
		return fmt.Errorf("transform: function has empty name")
	}
	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("transform: function %q already registered", name)
	}
	switch fn.(type) {
	case RowsFunction, ContextFunction, MultiOutputFunction:
	default:
		return fmt.Errorf("transform: function %q implements no transform capability", name)
	}
	r.funcs[name] = fn
	return nil
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (Function, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names lists registered functions, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
