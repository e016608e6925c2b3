// Package notify defines the outbound messaging collaborator: structured,
// fire-and-forget events dispatched to other services when a mutation has
// side effects outside this one. Delivery is neither awaited nor
// guaranteed by the callers.
package notify

import (
	"context"
	"time"
)

// Event types emitted by the mutation orchestrators.
const (
	EventFriendRequested   = "FRIEND_REQUESTED"
	EventFriendAccepted    = "FRIEND_ACCEPTED"
	EventRelationshipEnded = "RELATIONSHIP_ENDED"
	EventAccountDeleted    = "ACCOUNT_DELETED"
)

// Event is one outbound notification, keyed by recipient identity.
type Event struct {
	Type        string    `json:"type"`
	RecipientID int64     `json:"recipientId"`
	Title       string    `json:"title,omitempty"`
	Template    string    `json:"template,omitempty"`
	Payload     any       `json:"payload,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Notifier dispatches events. Implementations must be safe for concurrent
// use; callers treat errors as log-and-continue.
type Notifier interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards every event. Used in tests and when messaging is disabled.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
