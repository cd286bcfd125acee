package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ReplyRequest payload.
type ReplyRequest struct {
	Message string `json:"message"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// TicketListQuery captures query filters for listing endpoints.
type TicketListQuery struct {
	Status   string `query:"status"`
	Page     int    `query:"page"`
	PageSize int    `query:"page_size"`
}

// Filter converts the query to the service filter.
func (q TicketListQuery) Filter() service.TicketListFilter {
	return service.TicketListFilter{Status: q.Status, Page: q.Page, PageSize: q.PageSize}
}

// UserSummary identifies a person on a ticket.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TicketResponse is the public ticket shape. Owner is only present where the
// endpoint resolves it.
type TicketResponse struct {
	ID          string              `json:"id"`
	OwnerID     string              `json:"owner_id"`
	Owner       *UserSummary        `json:"owner,omitempty"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Status      domain.TicketStatus `json:"status"`
	Messages    []MessageResponse   `json:"messages"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// MessageResponse represents thread message.
type MessageResponse struct {
	Sender     string    `json:"sender"`
	SenderName string    `json:"sender_name,omitempty"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// StreamSnapshot is the first frame sent on a ticket stream.
type StreamSnapshot struct {
	Type   string         `json:"type"`
	Ticket TicketResponse `json:"ticket"`
}

// NewTicketResponse maps a ticket without resolved names.
func NewTicketResponse(ticket *domain.Ticket) TicketResponse {
	resp := TicketResponse{
		ID:          ticket.ID,
		OwnerID:     ticket.OwnerID,
		Title:       ticket.Title,
		Description: ticket.Description,
		Status:      ticket.Status,
		Messages:    make([]MessageResponse, 0, len(ticket.Messages)),
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
	}
	for _, msg := range ticket.Messages {
		resp.Messages = append(resp.Messages, MessageResponse{
			Sender:    msg.SenderID,
			Message:   msg.Body,
			Timestamp: msg.Timestamp,
		})
	}
	return resp
}

// NewTicketViewResponse maps a ticket together with owner and sender names.
func NewTicketViewResponse(view *service.TicketView) TicketResponse {
	resp := NewTicketResponse(view.Ticket)
	if view.Owner != nil {
		resp.Owner = &UserSummary{ID: view.Owner.ID, Name: view.Owner.Name, Email: view.Owner.Email}
	}
	for i := range resp.Messages {
		if ref, ok := view.Senders[resp.Messages[i].Sender]; ok {
			resp.Messages[i].SenderName = ref.Name
		}
	}
	return resp
}

// NewTicketListResponse maps a slice of tickets.
func NewTicketListResponse(tickets []domain.Ticket) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, NewTicketResponse(&tickets[i]))
	}
	return out
}

// NewTicketViewListResponse maps a slice of views.
func NewTicketViewListResponse(views []service.TicketView) []TicketResponse {
	out := make([]TicketResponse, 0, len(views))
	for i := range views {
		out = append(out, NewTicketViewResponse(&views[i]))
	}
	return out
}
