// Package worker hosts versioned worker instances. Each version has its own
// Scope and a dispatch table mapping event kinds to handlers; a Registration
// installs, activates and retires versions.
package worker

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/estoca-ai/estoca-worker/internal/errors"
	"github.com/estoca-ai/estoca-worker/internal/lifecycle"
	"github.com/estoca-ai/estoca-worker/internal/logger"
)

// Worker is one version of the worker.
type Worker struct {
	scope    *Scope
	handlers map[EventKind]HandlerFunc
}

// New creates a worker using the default dispatch table.
func New(scope *Scope) *Worker {
	return &Worker{scope: scope, handlers: DefaultHandlers()}
}

// Scope returns the worker's scope.
func (w *Worker) Scope() *Scope {
	return w.scope
}

// Version returns the version token, e.g. "estoca-ai-v1.2".
func (w *Worker) Version() string {
	return w.scope.Version
}

// State returns the lifecycle state.
func (w *Worker) State() string {
	return w.scope.Machine.Current()
}

// SetHandler replaces the handler for kind.
func (w *Worker) SetHandler(kind EventKind, fn HandlerFunc) {
	w.handlers[kind] = fn
}

// Dispatch runs the handler for ev. Panics are recovered and returned as
// errors; handler errors are logged and reported. Dispatch never panics.
func (w *Worker) Dispatch(ctx context.Context, ev *Event) (res *Result, err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			res = nil
			err = errors.Newf("panic in %s handler: %v", ev.Kind, rec).
				Component("worker").
				Category(errors.CategoryGeneric).
				Context("event", string(ev.Kind)).
				Context("stack", string(debug.Stack())).
				Build()
		}
		w.scope.Metrics.RecordEvent(string(ev.Kind), err)
		if err != nil {
			w.scope.Log.Error("event handler failed",
				logger.String("event", string(ev.Kind)),
				logger.Duration("duration", time.Since(start)),
				logger.Error(err))
			var ee *errors.EnhancedError
			if !errors.As(err, &ee) {
				errors.Report(err)
			}
		}
	}()

	fn, ok := w.handlers[ev.Kind]
	if !ok {
		return nil, errors.Newf("no handler for event %q", ev.Kind).
			Component("worker").
			Category(errors.CategoryValidation).
			Build()
	}
	return fn(ctx, w.scope, ev)
}

// retire marks the version redundant and drains its background work.
func (w *Worker) retire(ctx context.Context) {
	w.scope.Executor.Close()
	if w.scope.Machine.Is(lifecycle.StateRedundant) {
		return
	}
	if err := w.scope.Machine.Fire(ctx, lifecycle.EventRetire); err != nil {
		w.scope.Log.Warn("failed to retire worker", logger.Error(err))
	}
}
