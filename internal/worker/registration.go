package worker

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/estoca-ai/estoca-worker/internal/conf"
	"github.com/estoca-ai/estoca-worker/internal/errors"
	"github.com/estoca-ai/estoca-worker/internal/lifecycle"
	"github.com/estoca-ai/estoca-worker/internal/logger"
)

// ErrNoActiveWorker is returned when dispatching before any version activated.
var ErrNoActiveWorker = errors.NewStd("no active worker")

// activationTimeout bounds one activation; it does not depend on the request
// that triggered it.
const activationTimeout = 30 * time.Second

// Registration owns the installed worker versions: at most one active and
// one waiting. Updates and activations are serialized.
type Registration struct {
	base *url.URL
	deps Deps
	log  logger.Logger

	mu      sync.Mutex
	active  atomic.Pointer[Worker]
	waiting atomic.Pointer[Worker]
	bus     *Bus
}

// NewRegistration creates an empty registration. Relative URLs resolve
// against base.
func NewRegistration(base *url.URL, deps Deps) *Registration {
	r := &Registration{
		base: base,
		deps: deps,
		log:  deps.Log.Module("registration"),
	}
	r.bus = NewBus(r.dispatchAsync, deps.Log)
	return r
}

// Active returns the active worker or nil.
func (r *Registration) Active() *Worker {
	return r.active.Load()
}

// Waiting returns the installed worker waiting to activate, or nil.
func (r *Registration) Waiting() *Worker {
	return r.waiting.Load()
}

// Update installs the version described by settings. If installation fails
// the previous version keeps serving. The new version activates right away
// when it skips waiting, when nothing is active or when no client is
// connected; otherwise it waits for SKIP_WAITING or for clients to leave.
func (r *Registration) Update(ctx context.Context, settings conf.WorkerSettings) (*Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur := r.active.Load(); cur != nil && cur.Version() == settings.VersionToken() {
		return cur, nil
	}

	scope, err := NewScope(settings, r.base, r.deps, r)
	if err != nil {
		return nil, err
	}
	w := New(scope)

	if _, err := w.Dispatch(ctx, &Event{Kind: EventInstall}); err != nil {
		scope.Executor.Close()
		r.log.Error("install failed, keeping previous version",
			logger.String("version", w.Version()),
			logger.String("active", r.activeVersion()),
			logger.Error(err))
		return nil, err
	}

	if prev := r.waiting.Swap(w); prev != nil {
		prev.retire(ctx)
	}

	if scope.Machine.SkipsWaiting() || r.active.Load() == nil || r.deps.Clients.Count() == 0 {
		if err := r.activateLocked(ctx); err != nil {
			return nil, err
		}
	} else {
		r.log.Info("worker installed and waiting", logger.String("version", w.Version()))
	}
	return w, nil
}

func (r *Registration) activeVersion() string {
	if w := r.active.Load(); w != nil {
		return w.Version()
	}
	return ""
}

// SkipWaiting activates the waiting worker, if any.
func (r *Registration) SkipWaiting(ctx context.Context) error {
	// SKIP_WAITING from the installing worker arrives while Update holds mu.
	if !r.mu.TryLock() {
		return nil
	}
	defer r.mu.Unlock()
	return r.activateLocked(ctx)
}

// ClientsChanged activates the waiting worker once no client is connected.
func (r *Registration) ClientsChanged(ctx context.Context) error {
	if r.waiting.Load() == nil || r.deps.Clients.Count() > 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activateLocked(ctx)
}

// activateLocked promotes the waiting worker. The old version stops writing
// before the eviction sweep and is drained once the new one is active. If
// activation fails the old version resumes and the waiting one stays
// installed for the next attempt.
func (r *Registration) activateLocked(ctx context.Context) error {
	next := r.waiting.Load()
	if next == nil || !next.scope.Machine.Is(lifecycle.StateInstalled) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), activationTimeout)
	defer cancel()

	old := r.active.Load()
	if old != nil {
		old.scope.Executor.Retire()
	}

	if _, err := next.Dispatch(ctx, &Event{Kind: EventActivate}); err != nil {
		if old != nil {
			old.scope.Executor.Resume()
		}
		next.scope.Machine.Reset(lifecycle.StateInstalled)
		r.log.Error("activation failed, keeping previous version",
			logger.String("version", next.Version()),
			logger.String("active", r.activeVersion()),
			logger.Error(err))
		return err
	}

	r.active.Store(next)
	r.waiting.CompareAndSwap(next, nil)
	if old != nil {
		old.retire(ctx)
	}
	r.log.Info("worker activated",
		logger.String("version", next.Version()),
		logger.Int("clients", r.deps.Clients.Count()))
	return nil
}

// Dispatch runs ev on the active worker.
func (r *Registration) Dispatch(ctx context.Context, ev *Event) (*Result, error) {
	w := r.active.Load()
	if w == nil {
		return nil, ErrNoActiveWorker
	}
	return w.Dispatch(ctx, ev)
}

// Message handles a control message. SKIP_WAITING targets the waiting
// worker when one exists; everything else goes to the active worker.
func (r *Registration) Message(ctx context.Context, msg Message) (*Result, error) {
	ev := NewMessageEvent(msg)
	if msg.Type == MessageSkipWaiting {
		if w := r.waiting.Load(); w != nil {
			return w.Dispatch(ctx, ev)
		}
	}
	return r.Dispatch(ctx, ev)
}

// Publish queues ev for the active worker without blocking.
func (r *Registration) Publish(ev *Event) bool {
	return r.bus.Publish(ev)
}

func (r *Registration) dispatchAsync(ctx context.Context, ev *Event) {
	if _, err := r.Dispatch(ctx, ev); err != nil && errors.Is(err, ErrNoActiveWorker) {
		r.log.Warn("dropping event, no active worker", logger.String("event", string(ev.Kind)))
	}
}

// Close drains the bus and every version's background work.
func (r *Registration) Close(ctx context.Context) {
	r.bus.Stop()
	r.mu.Lock()
	defer r.mu.Unlock()
	if w := r.waiting.Swap(nil); w != nil {
		w.retire(ctx)
	}
	if w := r.active.Load(); w != nil {
		w.scope.Executor.Close()
	}
}
