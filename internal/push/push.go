// Package push turns incoming push payloads into displayed notifications
// and routes notification clicks back to the dashboard.
package push

import (
	"context"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/k3a/html2text"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"github.com/estoca-ai/estoca-worker/internal/errors"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/notification"
	"github.com/estoca-ai/estoca-worker/internal/observability/metrics"
)

// Click actions.
const (
	ActionOpen  = "open"
	ActionClose = "close"
)

// Transports a push can arrive on.
const (
	TransportHTTP = "http"
	TransportMQTT = "mqtt"
)

// DefaultVibrate is the vibration pattern of every notification.
var DefaultVibrate = []int{200, 100, 200}

// Config holds the fixed descriptor fields.
type Config struct {
	Title       string
	DefaultBody string
	Icon        string
	DefaultURL  string
}

// Notifier displays and closes notifications.
type Notifier interface {
	Show(ctx context.Context, n *notification.Notification) error
	Close(id string) error
}

// Opener opens or focuses a dashboard page.
type Opener interface {
	OpenWindow(ctx context.Context, url string) error
}

// Handler handles push and notification click events.
type Handler struct {
	cfg      Config
	notifier Notifier
	opener   Opener
	metrics  *metrics.Metrics
	log      logger.Logger
	now      func() time.Time
}

// NewHandler creates a push handler.
func NewHandler(cfg Config, notifier Notifier, opener Opener, m *metrics.Metrics, log logger.Logger) *Handler {
	return &Handler{
		cfg:      cfg,
		notifier: notifier,
		opener:   opener,
		metrics:  m,
		log:      log.Module("push"),
		now:      time.Now,
	}
}

// Descriptor builds the notification for payload. An empty payload uses the
// default body. A JSON object payload may carry "title" and "body"; without
// a "body" the payload text is the body.
func (h *Handler) Descriptor(payload []byte) *notification.Notification {
	title, body := h.cfg.Title, h.parseBody(payload)
	if obj, err := jason.NewObjectFromBytes(payload); err == nil {
		if s, err := obj.GetString("title"); err == nil && strings.TrimSpace(s) != "" {
			title = clean(s)
		}
		if s, err := obj.GetString("body"); err == nil {
			body = clean(s)
		}
	}
	if body == "" {
		body = h.cfg.DefaultBody
	}

	n := notification.NewNotification(title, body)
	n.CreatedAt = h.now()
	n.Icon = h.cfg.Icon
	n.Badge = h.cfg.Icon
	n.Vibrate = append([]int(nil), DefaultVibrate...)
	n.Data = map[string]any{
		"url":       h.cfg.DefaultURL,
		"timestamp": n.CreatedAt.UnixMilli(),
	}
	n.Actions = []notification.Action{
		{Action: ActionOpen, Title: "Abrir App", Icon: h.cfg.Icon},
		{Action: ActionClose, Title: "Fechar"},
	}
	return n
}

func (h *Handler) parseBody(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	return clean(string(payload))
}

// clean flattens HTML markup and normalizes the text to NFC.
func clean(s string) string {
	if hasMarkup(s) {
		s = html2text.HTML2Text(s)
	}
	return strings.TrimSpace(norm.NFC.String(s))
}

// hasMarkup reports whether s contains at least one tag or comment. A bare
// "<" or ">" in text, as in "estoque < 10", is not markup.
func hasMarkup(s string) bool {
	if !strings.Contains(s, "<") {
		return false
	}
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken, html.CommentToken:
			return true
		}
	}
}

// HandlePush displays the notification built from payload.
func (h *Handler) HandlePush(ctx context.Context, payload []byte, transport string) (*notification.Notification, error) {
	h.metrics.RecordPush(transport)
	n := h.Descriptor(payload)
	h.log.Info("push notification received",
		logger.String("transport", transport),
		logger.Int("payload_bytes", len(payload)))

	if err := h.notifier.Show(ctx, n); err != nil {
		return nil, errors.New(err).
			Component("push").
			Category(errors.CategoryPush).
			Context("notification_id", n.ID).
			Build()
	}
	return n, nil
}

// HandleClick closes the notification and, for the default or open action,
// opens the dashboard root page. The close action does nothing more.
func (h *Handler) HandleClick(ctx context.Context, id, action string) error {
	h.log.Info("notification clicked", logger.String("id", id), logger.String("action", action))

	if err := h.notifier.Close(id); err != nil {
		if errors.Is(err, notification.ErrNotFound) {
			return errors.New(err).
				Component("push").
				Category(errors.CategoryNotFound).
				Context("notification_id", id).
				Build()
		}
		return err
	}

	switch action {
	case "", ActionOpen:
		if err := h.opener.OpenWindow(ctx, h.cfg.DefaultURL); err != nil {
			return errors.New(err).
				Component("push").
				Category(errors.CategoryPush).
				Context("action", action).
				Build()
		}
	case ActionClose:
	default:
		h.log.Warn("unknown notification action", logger.String("action", action))
	}
	return nil
}
