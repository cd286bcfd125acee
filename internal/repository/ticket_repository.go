package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// TicketFilter captures listing parameters. A zero Limit returns every match.
type TicketFilter struct {
	OwnerID *string
	Status  *domain.TicketStatus
	Limit   int
	Offset  int
}

// TicketRepository encapsulates ticket persistence. Every mutating method is
// a single write against one ticket document.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	AppendMessage(ctx context.Context, ticketID string, msg domain.Message) (*domain.Ticket, error)
	UpdateStatus(ctx context.Context, ticketID string, status domain.TicketStatus) (*domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the Postgres-backed repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

// messageDocument is the JSON shape of one element of tickets.messages.
type messageDocument struct {
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

const ticketColumns = `id, owner_id, title, description, status, messages, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (owner_id, title, description, status, messages, created_at, updated_at)
        VALUES ($1, $2, $3, $4, '[]'::jsonb, $5, $5)
        RETURNING id, updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.OwnerID,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.CreatedAt,
	).Scan(&ticket.ID, &ticket.UpdatedAt)
	return translateError(err)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return scanTicket(r.pool.QueryRow(ctx, query, id))
}

func (r *ticketRepository) AppendMessage(ctx context.Context, ticketID string, msg domain.Message) (*domain.Ticket, error) {
	raw, err := json.Marshal(messageDocument{Sender: msg.SenderID, Body: msg.Body, Timestamp: msg.Timestamp})
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	query := `
        UPDATE tickets SET messages = messages || jsonb_build_array($2::jsonb), updated_at = NOW()
        WHERE id=$1
        RETURNING ` + ticketColumns
	return scanTicket(r.pool.QueryRow(ctx, query, ticketID, string(raw)))
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, ticketID string, status domain.TicketStatus) (*domain.Ticket, error) {
	query := `
        UPDATE tickets SET status=$2, updated_at = NOW()
        WHERE id=$1
        RETURNING ` + ticketColumns
	return scanTicket(r.pool.QueryRow(ctx, query, ticketID, status))
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("owner_id=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC, id DESC`,
		ticketColumns, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket   domain.Ticket
		messages []byte
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.OwnerID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&messages,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, translateError(err)
	}

	var docs []messageDocument
	if len(messages) > 0 {
		if err := json.Unmarshal(messages, &docs); err != nil {
			return nil, fmt.Errorf("decode messages for ticket %s: %w", ticket.ID, err)
		}
	}
	ticket.Messages = make([]domain.Message, 0, len(docs))
	for _, doc := range docs {
		ticket.Messages = append(ticket.Messages, domain.Message{
			SenderID:  doc.Sender,
			Body:      doc.Body,
			Timestamp: doc.Timestamp,
		})
	}
	return &ticket, nil
}
