package tools

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hession/haxu-mcp/internal/logger"
)

// Result is the outcome of exactly one dispatch: either Output (Success)
// or a human-readable Error.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Ok builds a successful result.
func Ok(output string) Result {
	return Result{Success: true, Output: output}
}

// Err builds a failed result.
func Err(message string) Result {
	return Result{Success: false, Error: message}
}

// Observation describes one finished dispatch.
type Observation struct {
	Tool     string
	Duration time.Duration
	Success  bool
	Kind     string // error classification, empty on success
}

// Observer receives one Observation per dispatch.
type Observer interface {
	ObserveInvoke(ctx context.Context, obs Observation)
}

// Dispatcher resolves, binds and invokes tools.
type Dispatcher struct {
	registry *Registry
	observer Observer
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithObserver reports every dispatch to o.
func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{registry: registry}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the dispatcher resolves against.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch runs the named tool. It never panics and never returns a
// partially populated Result.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, raw map[string]any) Result {
	start := time.Now()
	result, kind := d.dispatch(ctx, name, raw)

	if d.observer != nil {
		d.observer.ObserveInvoke(ctx, Observation{
			Tool:     name,
			Duration: time.Since(start),
			Success:  result.Success,
			Kind:     kind,
		})
	}
	log := logger.With("tool", name)
	if !result.Success {
		log.With("kind", kind).Warn("failed: %s", result.Error)
	} else {
		log.Debug("completed in %s", time.Since(start))
	}
	return result
}

func (d *Dispatcher) dispatch(ctx context.Context, name string, raw map[string]any) (Result, string) {
	tool, err := d.registry.Resolve(name)
	if err != nil {
		return Err(err.Error()), ErrorKind(err)
	}

	args, err := Bind(tool.Parameters(), raw)
	if err != nil {
		return Err(err.Error()), ErrorKind(err)
	}

	output, err := invoke(ctx, tool, args)
	if err != nil {
		return Err(err.Error()), ErrorKind(err)
	}
	return Ok(output), ""
}

// errPanic marks a handler that panicked.
var errPanic = errors.New("tool failed unexpectedly")

// invoke is the per-call isolation boundary.
func invoke(ctx context.Context, tool Tool, args Args) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.With("tool", tool.Name()).Error("panicked: %v\n%s", r, debug.Stack())
			output = ""
			err = fmt.Errorf("%s: %w", tool.Name(), errPanic)
		}
	}()
	return tool.Execute(ctx, args)
}

// Kinder is implemented by errors that classify themselves.
type Kinder interface {
	Kind() string
}

// ErrorKind classifies err for logs and metrics.
func ErrorKind(err error) string {
	var (
		notFound *NotFoundError
		missing  *MissingArgumentError
		mismatch *TypeMismatchError
		kinder   Kinder
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &missing):
		return "missing_argument"
	case errors.As(err, &mismatch):
		return "type_mismatch"
	case errors.Is(err, errPanic):
		return "panic"
	case errors.As(err, &kinder):
		return kinder.Kind()
	default:
		return "tool_error"
	}
}
