package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/etala/case-service/internal/domain"
)

// TicketFilter captures staff listing parameters.
type TicketFilter struct {
	UserID *string
	Status *domain.TicketStatus
	Limit  int
	Offset int
}

// TicketRepository encapsulates conversation metadata persistence.
type TicketRepository interface {
	// CreateIfAbsent inserts ticket unless one already exists for its ticket
	// number. It returns the stored ticket and whether it was created.
	CreateIfAbsent(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, bool, error)
	GetByNumber(ctx context.Context, ticketNumber string) (*domain.Ticket, error)
	Close(ctx context.Context, ticketNumber, reason string, at time.Time) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, ticket_number, user_id, display_name, is_anonymous, status, closed_at, closed_reason,
        unread_staff, unread_user, last_message, last_message_at, admin_has_replied, created_at, updated_at`

func (r *ticketRepository) CreateIfAbsent(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, bool, error) {
	query := `
        INSERT INTO tickets (id, ticket_number, user_id, display_name, is_anonymous, status, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
        ON CONFLICT (ticket_number) DO NOTHING
        RETURNING ` + ticketColumns
	created, err := scanTicket(r.pool.QueryRow(ctx, query,
		ticket.ID,
		ticket.TicketNumber,
		ticket.UserID,
		ticket.DisplayName,
		ticket.IsAnonymous,
		string(ticket.Status),
		ticket.CreatedAt,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	existing, err := r.GetByNumber(ctx, ticket.TicketNumber)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *ticketRepository) GetByNumber(ctx context.Context, ticketNumber string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_number=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, ticketNumber))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return ticket, nil
}

func (r *ticketRepository) Close(ctx context.Context, ticketNumber, reason string, at time.Time) (*domain.Ticket, error) {
	query := `
        UPDATE tickets SET status=$2, closed_at=$3, closed_reason=$4, updated_at=$3
        WHERE ticket_number=$1
        RETURNING ` + ticketColumns
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, ticketNumber, string(domain.TicketStatusClosed), at, reason))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s
        ORDER BY COALESCE(last_message_at, created_at) DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
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
		ticket domain.Ticket
		status string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.UserID,
		&ticket.DisplayName,
		&ticket.IsAnonymous,
		&status,
		&ticket.ClosedAt,
		&ticket.ClosedReason,
		&ticket.UnreadCount.Staff,
		&ticket.UnreadCount.User,
		&ticket.LastMessage,
		&ticket.LastMessageAt,
		&ticket.AdminHasReplied,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ticket.Status = domain.TicketStatus(status)
	return &ticket, nil
}
