package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets. Values are compared
// exactly; there is no case folding.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in progress"
	TicketStatusClosed     TicketStatus = "closed"
)

// TicketStatuses lists every valid status in display order.
var TicketStatuses = []TicketStatus{TicketStatusOpen, TicketStatusInProgress, TicketStatusClosed}

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusClosed:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests. Messages are owned by the
// ticket and only ever appended.
type Ticket struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	Status      TicketStatus
	Messages    []Message
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clone returns a copy whose message slice does not alias t's.
func (t *Ticket) Clone() *Ticket {
	cp := *t
	cp.Messages = append([]Message(nil), t.Messages...)
	return &cp
}

// SenderIDs returns the distinct message senders in first-seen order.
func (t *Ticket) SenderIDs() []string {
	seen := make(map[string]struct{}, len(t.Messages))
	ids := make([]string, 0, len(t.Messages))
	for _, msg := range t.Messages {
		if _, ok := seen[msg.SenderID]; ok {
			continue
		}
		seen[msg.SenderID] = struct{}{}
		ids = append(ids, msg.SenderID)
	}
	return ids
}
