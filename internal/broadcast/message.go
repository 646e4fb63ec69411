package broadcast

import (
	"time"

	"github.com/google/uuid"
)

// MessageType indicates what a broadcast message carries.
type MessageType string

const (
	// MessageValueSync carries a counter's new raw value.
	MessageValueSync MessageType = "value_sync"
	// MessageSpendNotification carries a successful spend for display.
	MessageSpendNotification MessageType = "spend_notification"
)

// Notification is the payload of a spend notification.
type Notification struct {
	ID         string    `json:"id"`
	ActorLabel string    `json:"actor_label"`
	Kind       string    `json:"kind"`
	Cost       int       `json:"cost"`
	ActionName string    `json:"action_name"`
	At         time.Time `json:"at"`
}

// Message is one fire-and-forget broadcast between participants of a session.
type Message struct {
	ID           string        `json:"id"`
	Type         MessageType   `json:"type"`
	Session      string        `json:"session"`
	Origin       string        `json:"origin"` // participant that published it
	Kind         string        `json:"kind,omitempty"`
	Value        int           `json:"value"`
	Notification *Notification `json:"notification,omitempty"`
	At           time.Time     `json:"at"`
}

// NewValueSync builds a value-sync message.
func NewValueSync(session, origin, kind string, value int) Message {
	return Message{
		ID:      uuid.NewString(),
		Type:    MessageValueSync,
		Session: session,
		Origin:  origin,
		Kind:    kind,
		Value:   value,
		At:      time.Now(),
	}
}

// NewSpendNotification builds a spend notification message.
func NewSpendNotification(session, origin string, n Notification) Message {
	return Message{
		ID:           uuid.NewString(),
		Type:         MessageSpendNotification,
		Session:      session,
		Origin:       origin,
		Kind:         n.Kind,
		Value:        n.Cost,
		Notification: &n,
		At:           time.Now(),
	}
}
