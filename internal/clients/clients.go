// Package clients tracks the dashboard pages connected to the worker's
// message channel and implements claim, navigation and messaging for them.
package clients

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/estoca-ai/estoca-worker/internal/errors"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/observability/metrics"
)

// Message types sent to pages.
const (
	TypeControllerChanged = "CONTROLLER_CHANGED"
	TypeNavigate          = "NAVIGATE"
)

// ErrClientNotFound is returned when addressing an unknown page.
var ErrClientNotFound = errors.NewStd("client not found")

// Conn is a page connection. *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Message is a worker to page message.
type Message struct {
	Type    string `json:"type"`
	Version string `json:"version,omitempty"`
	URL     string `json:"url,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Info describes a connected page.
type Info struct {
	ID           string    `json:"id"`
	ConnectedAt  time.Time `json:"connectedAt"`
	ControlledBy string    `json:"controlledBy,omitempty"`
}

type page struct {
	Info
	conn Conn
	wmu  sync.Mutex
}

func (p *page) send(msg Message) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return p.conn.WriteJSON(msg)
}

// Registry holds the connected pages in connection order.
type Registry struct {
	mu          sync.RWMutex
	pages       []*page
	controller  string
	pendingOpen string

	log     logger.Logger
	metrics *metrics.Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry(m *metrics.Metrics, log logger.Logger) *Registry {
	return &Registry{log: log.Module("clients"), metrics: m}
}

// Register adds a page and returns its ID. The page is controlled by the
// current controller, if any, and receives a pending navigation.
func (r *Registry) Register(conn Conn) string {
	p := &page{
		Info: Info{ID: uuid.NewString(), ConnectedAt: time.Now()},
		conn: conn,
	}

	r.mu.Lock()
	p.ControlledBy = r.controller
	r.pages = append(r.pages, p)
	pending := r.pendingOpen
	r.pendingOpen = ""
	count := len(r.pages)
	r.mu.Unlock()

	r.metrics.SetConnectedClients(count)
	r.log.Debug("client connected", logger.String("client", p.ID))

	if pending != "" {
		if err := p.send(Message{Type: TypeNavigate, URL: pending}); err != nil {
			r.log.Warn("pending navigation failed", logger.String("client", p.ID), logger.Error(err))
			r.drop(p.ID)
		}
	}
	return p.ID
}

// Unregister removes a page. Unknown IDs are ignored.
func (r *Registry) Unregister(id string) {
	r.drop(id)
}

func (r *Registry) drop(id string) {
	r.mu.Lock()
	for i, p := range r.pages {
		if p.ID == id {
			r.pages = append(r.pages[:i], r.pages[i+1:]...)
			break
		}
	}
	count := len(r.pages)
	r.mu.Unlock()
	r.metrics.SetConnectedClients(count)
}

func (r *Registry) snapshot() []*page {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*page(nil), r.pages...)
}

// Claim makes version the controller of every connected page and
// notifies them. Pages whose connection fails are dropped.
func (r *Registry) Claim(ctx context.Context, version string) error {
	r.mu.Lock()
	r.controller = version
	for _, p := range r.pages {
		p.ControlledBy = version
	}
	r.mu.Unlock()

	for _, p := range r.snapshot() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.send(Message{Type: TypeControllerChanged, Version: version}); err != nil {
			r.log.Warn("controller change not delivered", logger.String("client", p.ID), logger.Error(err))
			r.drop(p.ID)
		}
	}
	r.log.Info("clients claimed", logger.String("version", version), logger.Int("clients", r.Count()))
	return nil
}

// Controller returns the version controlling the pages.
func (r *Registry) Controller() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.controller
}

// OpenWindow focuses the first connected page and navigates it to url.
// With no page connected, the next page to connect is navigated instead.
func (r *Registry) OpenWindow(ctx context.Context, url string) error {
	for _, p := range r.snapshot() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.send(Message{Type: TypeNavigate, URL: url}); err != nil {
			r.log.Warn("navigation failed", logger.String("client", p.ID), logger.Error(err))
			r.drop(p.ID)
			continue
		}
		return nil
	}

	r.mu.Lock()
	r.pendingOpen = url
	r.mu.Unlock()
	r.log.Debug("no client connected, navigation deferred", logger.String("url", url))
	return nil
}

// PendingOpen returns the deferred navigation target, if any.
func (r *Registry) PendingOpen() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pendingOpen
}

// PostMessage sends msg to a single page.
func (r *Registry) PostMessage(id string, msg Message) error {
	for _, p := range r.snapshot() {
		if p.ID != id {
			continue
		}
		if err := p.send(msg); err != nil {
			r.drop(id)
			return errors.New(err).
				Component("clients").
				Category(errors.CategoryNetwork).
				Context("client", id).
				Build()
		}
		return nil
	}
	return ErrClientNotFound
}

// Broadcast sends msg to every page and returns how many received it.
func (r *Registry) Broadcast(msg Message) int {
	delivered := 0
	for _, p := range r.snapshot() {
		if err := p.send(msg); err != nil {
			r.drop(p.ID)
			continue
		}
		delivered++
	}
	return delivered
}

// List describes the connected pages.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.pages))
	for _, p := range r.pages {
		out = append(out, p.Info)
	}
	return out
}

// Count returns the number of connected pages.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pages)
}

// CloseAll closes every page connection.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	pages := r.pages
	r.pages = nil
	r.mu.Unlock()
	for _, p := range pages {
		_ = p.conn.Close()
	}
	r.metrics.SetConnectedClients(0)
}
