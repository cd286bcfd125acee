package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/policy"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// TicketService coordinates ticket workflows. Every operation is at most one
// read followed by one write against a single ticket.
type TicketService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
}

// TicketListFilter describes listing filters. An empty Status matches every
// status; a zero PageSize returns all tickets.
type TicketListFilter struct {
	Status   string
	Page     int
	PageSize int
}

// TicketView is a ticket with the display details of the people on it.
type TicketView struct {
	Ticket  *domain.Ticket
	Owner   *domain.UserRef
	Senders map[string]domain.UserRef
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        clock,
	}
}

// Create opens a ticket owned by the actor.
func (s *TicketService) Create(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)

	details := map[string]any{}
	if title == "" {
		details["title"] = "required"
	}
	if description == "" {
		details["description"] = "required"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("title and description are required", details)
	}

	ticket := &domain.Ticket{
		OwnerID:     actor.ID,
		Title:       title,
		Description: description,
		Status:      domain.TicketStatusOpen,
		Messages:    []domain.Message{},
		CreatedAt:   s.now().UTC(),
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketCreatedPayload{
			OwnerID: ticket.OwnerID,
			Title:   ticket.Title,
			Status:  ticket.Status,
		},
	})
	return ticket, nil
}

// ListOwned returns the actor's own tickets, newest first.
func (s *TicketService) ListOwned(ctx context.Context, actor domain.Actor, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter, err := toRepositoryFilter(filter)
	if err != nil {
		return nil, err
	}
	ownerID := actor.ID
	repoFilter.OwnerID = &ownerID

	tickets, err := s.tickets.List(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return tickets, nil
}

// ListAll returns every ticket, newest first, with owner details. Admin only.
func (s *TicketService) ListAll(ctx context.Context, actor domain.Actor, filter TicketListFilter) ([]TicketView, error) {
	if err := policy.CanListAll(actor).Err(""); err != nil {
		return nil, err
	}
	repoFilter, err := toRepositoryFilter(filter)
	if err != nil {
		return nil, err
	}

	tickets, err := s.tickets.List(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	ownerIDs := make([]string, 0, len(tickets))
	for _, ticket := range tickets {
		ownerIDs = append(ownerIDs, ticket.OwnerID)
	}
	refs, err := s.lookupUsers(ctx, ownerIDs)
	if err != nil {
		return nil, err
	}

	views := make([]TicketView, 0, len(tickets))
	for i := range tickets {
		view := TicketView{Ticket: &tickets[i]}
		if ref, ok := refs[tickets[i].OwnerID]; ok {
			view.Owner = &ref
		}
		views = append(views, view)
	}
	return views, nil
}

// GetByID returns one ticket with owner and sender details resolved.
func (s *TicketService) GetByID(ctx context.Context, actor domain.Actor, ticketID string) (*TicketView, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := policy.CanView(actor, ticket.OwnerID).Err(ticket.ID); err != nil {
		return nil, err
	}

	ids := append([]string{ticket.OwnerID}, ticket.SenderIDs()...)
	refs, err := s.lookupUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	view := &TicketView{Ticket: ticket, Senders: make(map[string]domain.UserRef, len(refs))}
	if ref, ok := refs[ticket.OwnerID]; ok {
		view.Owner = &ref
	}
	for _, id := range ticket.SenderIDs() {
		if ref, ok := refs[id]; ok {
			view.Senders[id] = ref
		}
	}
	return view, nil
}

// Reply appends a message from the actor to the ticket thread.
func (s *TicketService) Reply(ctx context.Context, actor domain.Actor, ticketID, body string) (*domain.Ticket, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("message is required", map[string]any{"message": "required"})
	}

	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := policy.CanReply(actor, ticket.OwnerID).Err(ticket.ID); err != nil {
		return nil, err
	}

	msg := domain.Message{SenderID: actor.ID, Body: body, Timestamp: s.now().UTC()}
	updated, err := s.tickets.AppendMessage(ctx, ticket.ID, msg)
	if err != nil {
		return nil, s.mapRepoError(err, ticket.ID)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: updated.ID,
		Actor:    actor,
		Payload: events.TicketMessageAddedPayload{
			SenderID:    actor.ID,
			Position:    len(updated.Messages) - 1,
			BodyPreview: preview(body, 80),
		},
	})
	return updated, nil
}

// UpdateStatus moves the ticket to newStatus if the actor is allowed to.
func (s *TicketService) UpdateStatus(ctx context.Context, actor domain.Actor, ticketID, newStatus string) (*domain.Ticket, error) {
	requested := domain.TicketStatus(newStatus)
	if !requested.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{
			"status":  newStatus,
			"allowed": domain.TicketStatuses,
		})
	}

	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	decision := policy.CanChangeStatus(actor, ticket.OwnerID, ticket.Status, requested)
	if err := decision.Err(ticket.ID); err != nil {
		return nil, err
	}

	updated, err := s.tickets.UpdateStatus(ctx, ticket.ID, requested)
	if err != nil {
		return nil, s.mapRepoError(err, ticket.ID)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: updated.ID,
		Actor:    actor,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: ticket.Status,
			NewStatus: updated.Status,
		},
	})
	return updated, nil
}

// load validates the id format and fetches the ticket.
func (s *TicketService) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	if _, err := uuid.Parse(ticketID); err != nil {
		return nil, apperrors.NewValidationError("invalid ticket id format", map[string]any{"id": ticketID})
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, s.mapRepoError(err, ticketID)
	}
	return ticket, nil
}

func (s *TicketService) mapRepoError(err error, ticketID string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
	}
	return apperrors.NewInternalError(err)
}

func (s *TicketService) lookupUsers(ctx context.Context, ids []string) (map[string]domain.UserRef, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	users, err := s.users.ListByIDs(ctx, unique)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	refs := make(map[string]domain.UserRef, len(users))
	for i := range users {
		refs[users[i].ID] = users[i].Ref()
	}
	return refs, nil
}

// publishEvent hands the event to the dispatcher. The write has already
// happened, so a failing subscriber is logged and never fails the request.
func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event subscribers failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func toRepositoryFilter(filter TicketListFilter) (repository.TicketFilter, error) {
	var out repository.TicketFilter

	if filter.Status != "" {
		status := domain.TicketStatus(filter.Status)
		if !status.Valid() {
			return out, apperrors.NewValidationError("invalid status filter", map[string]any{
				"status":  filter.Status,
				"allowed": domain.TicketStatuses,
			})
		}
		out.Status = &status
	}
	if filter.Page < 0 || filter.PageSize < 0 {
		return out, apperrors.NewValidationError("page and page_size must not be negative", nil)
	}
	if filter.PageSize > 0 {
		page := filter.Page
		if page == 0 {
			page = 1
		}
		out.Limit = filter.PageSize
		out.Offset = (page - 1) * filter.PageSize
	}
	return out, nil
}

func preview(body string, limit int) string {
	runes := []rune(body)
	if len(runes) <= limit {
		return body
	}
	return string(runes[:limit]) + "..."
}
