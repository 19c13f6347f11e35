package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action is a button rendered on a notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Notification is a displayed notification descriptor.
type Notification struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Icon      string         `json:"icon,omitempty"`
	Badge     string         `json:"badge,omitempty"`
	Vibrate   []int          `json:"vibrate,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Actions   []Action       `json:"actions,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	Closed    bool           `json:"closed"`
}

// NewNotification creates a notification with a fresh ID.
func NewNotification(title, body string) *Notification {
	return &Notification{
		ID:        uuid.NewString(),
		Title:     title,
		Body:      body,
		CreatedAt: time.Now(),
	}
}

// Clone returns a deep copy of n.
func (n *Notification) Clone() *Notification {
	c := *n
	c.Vibrate = append([]int(nil), n.Vibrate...)
	c.Actions = append([]Action(nil), n.Actions...)
	if n.Data != nil {
		c.Data = make(map[string]any, len(n.Data))
		for k, v := range n.Data {
			c.Data[k] = v
		}
	}
	return &c
}

// Provider forwards shown notifications to an external channel.
type Provider interface {
	Name() string
	ValidateConfig() error
	Send(ctx context.Context, n *Notification) error
}

// EventType describes a change to the notification set.
type EventType string

const (
	EventShown  EventType = "shown"
	EventClosed EventType = "closed"
)

// Event is delivered to subscribers when a notification is shown or closed.
type Event struct {
	Type         EventType     `json:"type"`
	Notification *Notification `json:"notification"`
}
