package worker

import (
	"context"

	"github.com/estoca-ai/estoca-worker/internal/errors"
	"github.com/estoca-ai/estoca-worker/internal/lifecycle"
	"github.com/estoca-ai/estoca-worker/internal/logger"
)

// HandlerFunc handles one event kind.
type HandlerFunc func(ctx context.Context, s *Scope, ev *Event) (*Result, error)

// DefaultHandlers returns a fresh dispatch table covering every event kind.
func DefaultHandlers() map[EventKind]HandlerFunc {
	return map[EventKind]HandlerFunc{
		EventInstall:           HandleInstall,
		EventActivate:          HandleActivate,
		EventFetch:             HandleFetch,
		EventPush:              HandlePush,
		EventNotificationClick: HandleNotificationClick,
		EventSync:              HandleSync,
		EventMessage:           HandleMessage,
	}
}

// HandleInstall precaches the manifest and seeds the offline dataset. A
// failure makes the version redundant.
func HandleInstall(ctx context.Context, s *Scope, _ *Event) (*Result, error) {
	if err := s.Machine.Fire(ctx, lifecycle.EventInstall); err != nil {
		return nil, err
	}
	if err := s.Installer.Install(ctx); err != nil {
		if ferr := s.Machine.Fire(context.WithoutCancel(ctx), lifecycle.EventInstallFailed); ferr != nil {
			s.Log.Warn("failed to mark install failure", logger.Error(ferr))
		}
		return nil, err
	}
	if s.SkipWait {
		s.Machine.SkipWaiting()
	}
	if err := s.Machine.Fire(ctx, lifecycle.EventInstallDone); err != nil {
		return nil, err
	}
	return &Result{}, nil
}

// HandleActivate evicts other generations, then claims clients.
func HandleActivate(ctx context.Context, s *Scope, _ *Event) (*Result, error) {
	if err := s.Machine.Fire(ctx, lifecycle.EventActivate); err != nil {
		return nil, err
	}
	evicted, err := s.Activator.Activate(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Machine.Fire(ctx, lifecycle.EventActivateDone); err != nil {
		return nil, err
	}
	return &Result{Evicted: evicted}, nil
}

// HandleFetch routes the request through the caching strategies.
func HandleFetch(ctx context.Context, s *Scope, ev *Event) (*Result, error) {
	if ev.Request == nil {
		return nil, errors.Newf("fetch event without a request").
			Component("worker").
			Category(errors.CategoryValidation).
			Build()
	}
	resp, strat, err := s.Executor.Handle(ctx, ev.Request)
	if err != nil {
		return nil, err
	}
	return &Result{Response: resp, Strategy: strat}, nil
}

// HandlePush displays a notification for the payload.
func HandlePush(ctx context.Context, s *Scope, ev *Event) (*Result, error) {
	if s.Push == nil {
		return nil, errNotConfigured("push")
	}
	n, err := s.Push.HandlePush(ctx, ev.Payload, ev.Transport)
	if err != nil {
		return nil, err
	}
	return &Result{Notification: n}, nil
}

// HandleNotificationClick closes the notification and opens the dashboard
// for the default and open actions.
func HandleNotificationClick(ctx context.Context, s *Scope, ev *Event) (*Result, error) {
	if s.Push == nil {
		return nil, errNotConfigured("push")
	}
	if err := s.Push.HandleClick(ctx, ev.NotificationID, ev.Action); err != nil {
		return nil, err
	}
	return &Result{}, nil
}

// HandleSync replays the sync queue. Tags other than the queue's are logged
// and ignored.
func HandleSync(ctx context.Context, s *Scope, ev *Event) (*Result, error) {
	if s.Sync == nil {
		return nil, errNotConfigured("sync")
	}
	if ev.Tag != s.Sync.Tag() {
		s.Log.Info("ignoring sync event", logger.String("tag", ev.Tag))
		return &Result{}, nil
	}
	res := s.Sync.Replay(ctx, ev.Tag)
	return &Result{Sync: &res}, res.Err
}

// HandleMessage answers control messages.
func HandleMessage(ctx context.Context, s *Scope, ev *Event) (*Result, error) {
	switch ev.Message.Type {
	case MessageSkipWaiting:
		s.Machine.SkipWaiting()
		if s.Waiter != nil {
			if err := s.Waiter.SkipWaiting(ctx); err != nil {
				return nil, err
			}
		}
		return &Result{}, nil
	case MessageGetVersion:
		return &Result{Reply: VersionReply{Version: s.Version}}, nil
	default:
		s.Log.Debug("ignoring message", logger.String("type", ev.Message.Type))
		return &Result{}, nil
	}
}

func errNotConfigured(what string) error {
	return errors.Newf("%s is not configured", what).
		Component("worker").
		Category(errors.CategoryConfiguration).
		Build()
}
