package worker

import (
	"encoding/json"
	"time"

	"github.com/estoca-ai/estoca-worker/internal/cachestore"
	"github.com/estoca-ai/estoca-worker/internal/notification"
	"github.com/estoca-ai/estoca-worker/internal/strategy"
	"github.com/estoca-ai/estoca-worker/internal/syncqueue"
)

// EventKind names a worker event.
type EventKind string

const (
	EventInstall           EventKind = "install"
	EventActivate          EventKind = "activate"
	EventFetch             EventKind = "fetch"
	EventPush              EventKind = "push"
	EventNotificationClick EventKind = "notificationclick"
	EventSync              EventKind = "sync"
	EventMessage           EventKind = "message"
)

// Control message types.
const (
	MessageSkipWaiting = "SKIP_WAITING"
	MessageGetVersion  = "GET_VERSION"
)

// Message is a control message posted by a page.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// VersionReply answers GET_VERSION.
type VersionReply struct {
	Version string `json:"version"`
}

// Event is one unit of work for a worker. Only the fields of its kind are set.
type Event struct {
	Kind      EventKind
	Timestamp time.Time

	Request *strategy.Request // fetch

	Payload   []byte // push
	Transport string // push

	NotificationID string // notificationclick
	Action         string // notificationclick

	Tag string // sync

	Message Message // message
}

// Result is what a handler produced.
type Result struct {
	Response *cachestore.Response
	Strategy strategy.Strategy

	Notification *notification.Notification
	Sync         *syncqueue.Result
	Evicted      []string
	Reply        any
}

// NewFetchEvent wraps a request.
func NewFetchEvent(req *strategy.Request) *Event {
	return &Event{Kind: EventFetch, Request: req, Timestamp: time.Now()}
}

// NewPushEvent wraps a push payload.
func NewPushEvent(payload []byte, transport string) *Event {
	return &Event{Kind: EventPush, Payload: payload, Transport: transport, Timestamp: time.Now()}
}

// NewClickEvent wraps a notification click.
func NewClickEvent(id, action string) *Event {
	return &Event{Kind: EventNotificationClick, NotificationID: id, Action: action, Timestamp: time.Now()}
}

// NewSyncEvent wraps a sync trigger.
func NewSyncEvent(tag string) *Event {
	return &Event{Kind: EventSync, Tag: tag, Timestamp: time.Now()}
}

// NewMessageEvent wraps a control message.
func NewMessageEvent(msg Message) *Event {
	return &Event{Kind: EventMessage, Message: msg, Timestamp: time.Now()}
}
