// Package lifecycle drives a worker version through install and activation:
// precaching the static manifest, seeding offline data, evicting partitions
// of other generations and claiming clients.
package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/looplab/fsm"

	"github.com/estoca-ai/estoca-worker/internal/errors"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/observability/metrics"
)

// Lifecycle states.
const (
	StateParsed     = "parsed"
	StateInstalling = "installing"
	StateInstalled  = "installed" // waiting
	StateActivating = "activating"
	StateActivated  = "activated"
	StateRedundant  = "redundant"
)

// Lifecycle events.
const (
	EventInstall       = "install"
	EventInstallDone   = "install_done"
	EventInstallFailed = "install_failed"
	EventActivate      = "activate"
	EventActivateDone  = "activate_done"
	EventRetire        = "retire"
)

// States lists every state, for metrics.
func States() []string {
	return []string{StateParsed, StateInstalling, StateInstalled, StateActivating, StateActivated, StateRedundant}
}

// Machine is the lifecycle state machine of one worker version.
type Machine struct {
	version string
	log     logger.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	fsm         *fsm.FSM
	skipWaiting atomic.Bool
}

// NewMachine creates a machine in the parsed state.
func NewMachine(version string, m *metrics.Metrics, log logger.Logger) *Machine {
	mach := &Machine{
		version: version,
		log:     log.Module("lifecycle").With(logger.String("version", version)),
		metrics: m,
	}
	mach.fsm = fsm.NewFSM(
		StateParsed,
		fsm.Events{
			{Name: EventInstall, Src: []string{StateParsed}, Dst: StateInstalling},
			{Name: EventInstallDone, Src: []string{StateInstalling}, Dst: StateInstalled},
			{Name: EventInstallFailed, Src: []string{StateInstalling}, Dst: StateRedundant},
			{Name: EventActivate, Src: []string{StateInstalled}, Dst: StateActivating},
			{Name: EventActivateDone, Src: []string{StateActivating}, Dst: StateActivated},
			{Name: EventRetire, Src: []string{StateInstalled, StateActivating, StateActivated}, Dst: StateRedundant},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				mach.log.Info("lifecycle transition",
					logger.String("event", e.Event),
					logger.String("from", e.Src),
					logger.String("to", e.Dst))
				mach.metrics.SetLifecycleState(mach.version, e.Dst, States())
			},
		},
	)
	m.SetLifecycleState(version, StateParsed, States())
	return mach
}

// Version returns the version token.
func (m *Machine) Version() string {
	return m.version
}

// Current returns the current state.
func (m *Machine) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fsm.Current()
}

// Is reports whether the machine is in state.
func (m *Machine) Is(state string) bool {
	return m.Current() == state
}

// Fire applies event. Invalid transitions return a validation error.
// Transitions ignore cancellation of ctx: fsm leaves a cancelled transition
// pending and rejects every later event.
func (m *Machine) Fire(ctx context.Context, event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fsm.Event(context.WithoutCancel(ctx), event); err != nil {
		return errors.New(err).
			Component("lifecycle").
			Category(errors.CategoryValidation).
			Context("event", event).
			Context("state", m.fsm.Current()).
			Context("version", m.version).
			Build()
	}
	return nil
}

// Reset forces the machine into state, e.g. back to installed after a
// failed activation so it can be retried.
func (m *Machine) Reset(state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from := m.fsm.Current()
	m.fsm.SetState(state)
	m.metrics.SetLifecycleState(m.version, state, States())
	m.log.Warn("lifecycle reset", logger.String("from", from), logger.String("to", state))
}

// SkipWaiting marks the version to activate as soon as it is installed.
func (m *Machine) SkipWaiting() {
	m.skipWaiting.Store(true)
}

// SkipsWaiting reports whether SkipWaiting was called.
func (m *Machine) SkipsWaiting() bool {
	return m.skipWaiting.Load()
}
