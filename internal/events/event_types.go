package events

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketMessageAdded  EventType = "ticket_message_added"
	EventTicketStatusChanged EventType = "ticket_status_changed"
)

// Event represents a domain event emitted by the ticket engine.
type Event struct {
	ID         string       `json:"id"`
	Type       EventType    `json:"type"`
	TicketID   string       `json:"ticket_id"`
	Actor      domain.Actor `json:"actor"`
	OccurredAt time.Time    `json:"occurred_at"`
	Payload    interface{}  `json:"payload,omitempty"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	OwnerID string              `json:"owner_id"`
	Title   string              `json:"title"`
	Status  domain.TicketStatus `json:"status"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	SenderID    string `json:"sender_id"`
	Position    int    `json:"position"`
	BodyPreview string `json:"body_preview"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}
