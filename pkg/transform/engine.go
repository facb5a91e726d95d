package transform

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/secreport/secreport/pkg/dataset"
)

// RunContext carries run-wide values into steps and custom functions.
type RunContext struct {
	StartDate string // YYYY-MM-DD
	EndDate   string // YYYY-MM-DD
	Now       time.Time
}

func (rc RunContext) now() time.Time {
	if rc.Now.IsZero() {
		return time.Now()
	}
	return rc.Now
}

// Engine executes step pipelines. It is stateless apart from the
// custom function registry and safe to share across recipes.
type Engine struct {
	registry *Registry
	logger   *slog.Logger
}

// NewEngine returns an engine. Nil registry means no custom functions;
// nil logger falls back to slog.Default.
func NewEngine(registry *Registry, logger *slog.Logger) *Engine {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{registry: registry, logger: logger}
}

// Apply runs the steps in order over d. Aux holds the auxiliary
// datasets join steps may reference. The input dataset is never
// mutated. Errors carry the step index and kind.
func (e *Engine) Apply(rctx RunContext, d *dataset.Dataset, steps []Step, aux map[string]*dataset.Dataset) (*dataset.Dataset, error) {
	cur := d.Clone()
	for i, step := range steps {
		if err := step.Validate(); err != nil {
			return nil, &StepError{Index: i, Kind: step.Kind(), Err: err}
		}
		next, err := e.applyStep(rctx, cur, step, aux)
		if err != nil {
			return nil, &StepError{Index: i, Kind: step.Kind(), Err: err}
		}
		cur = next
	}
	return cur, nil
}

func (e *Engine) applyStep(rctx RunContext, d *dataset.Dataset, step Step, aux map[string]*dataset.Dataset) (*dataset.Dataset, error) {
	switch step.Kind() {
	case KindGroupBy:
		return e.applyGroupBy(d, step.GroupBy)
	case KindCalc:
		return e.applyCalc(rctx, d, step.Calc)
	case KindFilter:
		return e.applyFilter(d, *step.Filter)
	case KindSort:
		return e.applySort(d, step.Sort)
	case KindPivot:
		return e.applyPivot(d, step.Pivot)
	case KindJoin:
		return e.applyJoin(d, step.Join, aux)
	case KindSelect:
		return e.applySelect(d, step.Select)
	case KindFlatten:
		return e.applyFlatten(d, step.Flatten)
	case KindRename:
		return e.applyRename(d, step.Rename)
	case KindCustom:
		return e.applyCustom(rctx, d, step.Custom, aux)
	}
	return nil, fmt.Errorf("empty step")
}

// applyCustom runs a registered function as a mid-pipeline step. A
// multi-output function must provide a "default" output to continue
// the pipeline with.
func (e *Engine) applyCustom(rctx RunContext, d *dataset.Dataset, name string, aux map[string]*dataset.Dataset) (*dataset.Dataset, error) {
	fn, ok := e.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown custom function %q", name)
	}
	switch f := fn.(type) {
	case RowsFunction:
		return f.Transform(d)
	case ContextFunction:
		return f.TransformContext(rctx, d)
	case MultiOutputFunction:
		result, err := f.TransformMulti(rctx, d, aux)
		if err != nil {
			return nil, err
		}
		if out, ok := result["default"]; ok {
			return out, nil
		}
		return nil, fmt.Errorf("custom function %q produced no default output", name)
	}
	return nil, fmt.Errorf("custom function %q has no usable capability", name)
}

// ApplyFunction runs a registered function standalone, as a recipe's
// top-level transform. Single-output functions come back under the
// "default" key.
func (e *Engine) ApplyFunction(rctx RunContext, name string, d *dataset.Dataset, aux map[string]*dataset.Dataset) (Result, error) {
	fn, ok := e.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown custom function %q", name)
	}
	switch f := fn.(type) {
	case MultiOutputFunction:
		return f.TransformMulti(rctx, d, aux)
	case ContextFunction:
		out, err := f.TransformContext(rctx, d)
		if err != nil {
			return nil, err
		}
		return Result{"default": out}, nil
	case RowsFunction:
		out, err := f.Transform(d)
		if err != nil {
			return nil, err
		}
		return Result{"default": out}, nil
	}
	return nil, fmt.Errorf("custom function %q has no usable capability", name)
}
