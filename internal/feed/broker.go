// Package feed fans ticket change notifications out to stream subscribers.
package feed

import (
	"context"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// Update is the wire form of one ticket change.
type Update struct {
	Type       string              `json:"type"`
	TicketID   string              `json:"ticket_id"`
	ActorID    string              `json:"actor_id,omitempty"`
	Status     domain.TicketStatus `json:"status,omitempty"`
	OldStatus  domain.TicketStatus `json:"old_status,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// Broker delivers updates for a ticket to every current subscriber of it.
// Subscribers only see updates published after Subscribe returns.
type Broker interface {
	Publish(ctx context.Context, ticketID string, update Update) error
	// Subscribe returns a channel of updates and a cancel func that releases
	// the subscription and closes the channel. The channel is also closed
	// when ctx ends.
	Subscribe(ctx context.Context, ticketID string) (<-chan Update, func(), error)
}

const subscriberBuffer = 16
