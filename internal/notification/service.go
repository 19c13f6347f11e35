package notification

import (
	"context"
	"sync"

	"github.com/estoca-ai/estoca-worker/internal/errors"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/observability/metrics"
)

const (
	defaultHistoryLimit = 100
	subscriberBuffer    = 16
)

// ErrNotFound is returned for an unknown notification ID.
var ErrNotFound = errors.NewStd("notification not found")

// ServiceConfig configures a Service.
type ServiceConfig struct {
	HistoryLimit int
	Providers    []Provider
	Log          logger.Logger
	Metrics      *metrics.Metrics
}

// Service holds displayed notifications, broadcasts changes to subscribers
// and forwards new notifications to the configured providers.
type Service struct {
	mu          sync.RWMutex
	items       []*Notification
	byID        map[string]*Notification
	limit       int
	subscribers map[chan Event]struct{}

	providers []Provider
	log       logger.Logger
	metrics   *metrics.Metrics
}

// NewService creates a notification service.
func NewService(config *ServiceConfig) *Service {
	if config == nil {
		config = &ServiceConfig{}
	}
	limit := config.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	log := config.Log
	if log == nil {
		log = logger.Global()
	}
	return &Service{
		byID:        make(map[string]*Notification),
		limit:       limit,
		subscribers: make(map[chan Event]struct{}),
		providers:   config.Providers,
		log:         log.Module("notification"),
		metrics:     config.Metrics,
	}
}

// Show records n as displayed, notifies subscribers and forwards it to
// every provider. Provider failures are logged and do not fail Show.
func (s *Service) Show(ctx context.Context, n *Notification) error {
	if n == nil || n.ID == "" {
		return errors.Newf("notification requires an ID").
			Component("notification").
			Category(errors.CategoryValidation).
			Build()
	}

	stored := n.Clone()
	s.mu.Lock()
	if _, exists := s.byID[stored.ID]; !exists {
		s.items = append(s.items, stored)
	} else {
		for i, it := range s.items {
			if it.ID == stored.ID {
				s.items[i] = stored
			}
		}
	}
	s.byID[stored.ID] = stored
	s.trimLocked()
	s.mu.Unlock()

	s.metrics.RecordNotification("shown")
	s.log.Info("notification shown",
		logger.String("id", stored.ID),
		logger.String("title", stored.Title))
	s.broadcast(Event{Type: EventShown, Notification: stored.Clone()})

	s.forward(ctx, stored)
	return nil
}

func (s *Service) trimLocked() {
	for len(s.items) > s.limit {
		delete(s.byID, s.items[0].ID)
		s.items = s.items[1:]
	}
}

func (s *Service) forward(ctx context.Context, n *Notification) {
	for _, p := range s.providers {
		if err := p.Send(ctx, n); err != nil {
			s.metrics.RecordNotification("forward_error")
			s.log.Warn("notification provider failed",
				logger.String("provider", p.Name()),
				logger.String("id", n.ID),
				logger.Error(err))
		}
	}
}

// Get returns a copy of the notification with id.
func (s *Service) Get(id string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return n.Clone(), nil
}

// List returns copies of the open notifications, newest first.
func (s *Service) List() []*Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Notification, 0, len(s.items))
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].Closed {
			continue
		}
		out = append(out, s.items[i].Clone())
	}
	return out
}

// Close marks a notification closed. Closing twice is a no-op.
func (s *Service) Close(id string) error {
	s.mu.Lock()
	n, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if n.Closed {
		s.mu.Unlock()
		return nil
	}
	n.Closed = true
	snapshot := n.Clone()
	s.mu.Unlock()

	s.metrics.RecordNotification("closed")
	s.broadcast(Event{Type: EventClosed, Notification: snapshot})
	return nil
}

// Subscribe registers a listener. Slow listeners miss events rather than
// blocking Show. The returned func unsubscribes and closes the channel.
func (s *Service) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Service) broadcast(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			s.log.Debug("dropping notification event for slow subscriber",
				logger.String("id", ev.Notification.ID))
		}
	}
}
