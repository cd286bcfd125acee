package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// MemoryStore keeps users and tickets in process memory. It backs the service
// when no Postgres DSN is configured and is used throughout the tests.
// Callers always receive copies; stored records are never handed out.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]domain.User
	emails  map[string]string
	tickets map[string]*memoryTicket
	seq     int64
	now     func() time.Time
}

type memoryTicket struct {
	ticket *domain.Ticket
	seq    int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]domain.User),
		emails:  make(map[string]string),
		tickets: make(map[string]*memoryTicket),
		now:     time.Now,
	}
}

// Users returns the store's UserRepository view.
func (s *MemoryStore) Users() UserRepository {
	return memoryUsers{s}
}

// Tickets returns the store's TicketRepository view.
func (s *MemoryStore) Tickets() TicketRepository {
	return memoryTickets{s}
}

type memoryUsers struct{ s *MemoryStore }

func (r memoryUsers) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.emails[user.Email]; exists {
		return ErrDuplicate
	}
	user.ID = uuid.NewString()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = r.s.now()
	}
	r.s.users[user.ID] = *user
	r.s.emails[user.Email] = user.ID
	return nil
}

func (r memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	user, ok := r.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (r memoryUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.s.mu.RLock()
	id, ok := r.s.emails[email]
	r.s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r memoryUsers) ListByIDs(_ context.Context, ids []string) ([]domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		if user, ok := r.s.users[id]; ok {
			result = append(result, user)
		}
	}
	return result, nil
}

type memoryTickets struct{ s *MemoryStore }

func (r memoryTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ticket.ID = uuid.NewString()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = r.s.now()
	}
	ticket.UpdatedAt = ticket.CreatedAt
	if ticket.Messages == nil {
		ticket.Messages = []domain.Message{}
	}
	r.s.seq++
	r.s.tickets[ticket.ID] = &memoryTicket{ticket: ticket.Clone(), seq: r.s.seq}
	return nil
}

func (r memoryTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	entry, ok := r.s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return entry.ticket.Clone(), nil
}

func (r memoryTickets) AppendMessage(_ context.Context, ticketID string, msg domain.Message) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	entry, ok := r.s.tickets[ticketID]
	if !ok {
		return nil, ErrNotFound
	}
	entry.ticket.Messages = append(entry.ticket.Messages, msg)
	entry.ticket.UpdatedAt = r.s.now()
	return entry.ticket.Clone(), nil
}

func (r memoryTickets) UpdateStatus(_ context.Context, ticketID string, status domain.TicketStatus) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	entry, ok := r.s.tickets[ticketID]
	if !ok {
		return nil, ErrNotFound
	}
	entry.ticket.Status = status
	entry.ticket.UpdatedAt = r.s.now()
	return entry.ticket.Clone(), nil
}

func (r memoryTickets) List(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	r.s.mu.RLock()
	matches := make([]*memoryTicket, 0, len(r.s.tickets))
	for _, entry := range r.s.tickets {
		if filter.OwnerID != nil && entry.ticket.OwnerID != *filter.OwnerID {
			continue
		}
		if filter.Status != nil && entry.ticket.Status != *filter.Status {
			continue
		}
		matches = append(matches, &memoryTicket{ticket: entry.ticket.Clone(), seq: entry.seq})
	}
	r.s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if !a.ticket.CreatedAt.Equal(b.ticket.CreatedAt) {
			return a.ticket.CreatedAt.After(b.ticket.CreatedAt)
		}
		return a.seq > b.seq
	})

	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		if offset > len(matches) {
			offset = len(matches)
		}
		end := offset + filter.Limit
		if end > len(matches) {
			end = len(matches)
		}
		matches = matches[offset:end]
	}

	result := make([]domain.Ticket, 0, len(matches))
	for _, entry := range matches {
		result = append(result, *entry.ticket)
	}
	return result, nil
}
