package domain

import "time"

// Message is one entry in a ticket thread. It has no identity of its own;
// its position in Ticket.Messages is its order.
type Message struct {
	SenderID  string
	Body      string
	Timestamp time.Time
}
