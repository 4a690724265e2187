package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/etala/case-service/internal/domain"
)

// Delivery describes a message append together with the ticket bookkeeping
// that must commit with it.
type Delivery struct {
	Message *domain.Message
	// Recipient is the party whose unread counter grows.
	Recipient domain.Party
	// StaffReply latches Ticket.AdminHasReplied.
	StaffReply bool
	Preview    string
}

// MessageRepository manages the per-ticket message log.
type MessageRepository interface {
	// Append inserts the message and updates the ticket atomically. It fails
	// with ErrDuplicateAction when the ticket already holds the message's
	// action, and with ErrNotFound when the ticket does not exist.
	Append(ctx context.Context, delivery Delivery) (*domain.Ticket, error)
	ListByTicket(ctx context.Context, ticketNumber string) ([]domain.Message, error)
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	MarkRead(ctx context.Context, id string) error
	// MarkAllRead flags every unread message not sent by readerID and zeroes
	// the reader's counter in the same transaction.
	MarkAllRead(ctx context.Context, ticketNumber, readerID string, reader domain.Party) (int64, *domain.Ticket, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

const messageColumns = `id, ticket_number, sender_id, sender_name, sender_role, content, read, type, action, created_at`

func (r *messageRepository) Append(ctx context.Context, delivery Delivery) (*domain.Ticket, error) {
	msg := delivery.Message
	staffDelta, userDelta := 0, 0
	if delivery.Recipient == domain.PartyStaff {
		staffDelta = 1
	} else {
		userDelta = 1
	}

	var ticket *domain.Ticket
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const insert = `
            INSERT INTO messages (id, ticket_number, sender_id, sender_name, sender_role, content, read, type, action, created_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
		if _, err := tx.Exec(ctx, insert,
			msg.ID,
			msg.TicketNumber,
			msg.SenderID,
			msg.SenderName,
			string(msg.SenderRole),
			msg.Content,
			msg.Read,
			string(msg.Type),
			msg.Action,
			msg.CreatedAt,
		); err != nil {
			if isUniqueViolation(err, messagesActionKey) {
				return ErrDuplicateAction
			}
			return err
		}

		update := `
            UPDATE tickets SET
                unread_staff = unread_staff + $2,
                unread_user = unread_user + $3,
                admin_has_replied = admin_has_replied OR $4,
                last_message = $5,
                last_message_at = $6,
                updated_at = $6
            WHERE ticket_number=$1
            RETURNING ` + ticketColumns
		updated, err := scanTicket(tx.QueryRow(ctx, update,
			msg.TicketNumber,
			staffDelta,
			userDelta,
			delivery.StaffReply,
			delivery.Preview,
			msg.CreatedAt,
		))
		if err != nil {
			return mapNoRows(err)
		}
		ticket = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *messageRepository) ListByTicket(ctx context.Context, ticketNumber string) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE ticket_number=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *msg)
	}
	return result, rows.Err()
}

func (r *messageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id=$1`
	msg, err := scanMessage(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return msg, nil
}

func (r *messageRepository) MarkRead(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE messages SET read=TRUE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *messageRepository) MarkAllRead(ctx context.Context, ticketNumber, readerID string, reader domain.Party) (int64, *domain.Ticket, error) {
	counter := "unread_user"
	if reader == domain.PartyStaff {
		counter = "unread_staff"
	}

	var (
		marked int64
		ticket *domain.Ticket
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		reset := `UPDATE tickets SET ` + counter + `=0 WHERE ticket_number=$1 RETURNING ` + ticketColumns
		updated, err := scanTicket(tx.QueryRow(ctx, reset, ticketNumber))
		if err != nil {
			return mapNoRows(err)
		}
		ticket = updated

		cmd, err := tx.Exec(ctx, `
            UPDATE messages SET read=TRUE
            WHERE ticket_number=$1 AND sender_id<>$2 AND read=FALSE`, ticketNumber, readerID)
		if err != nil {
			return err
		}
		marked = cmd.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return marked, ticket, nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		msg     domain.Message
		role    string
		msgType string
	)
	if err := row.Scan(
		&msg.ID,
		&msg.TicketNumber,
		&msg.SenderID,
		&msg.SenderName,
		&role,
		&msg.Content,
		&msg.Read,
		&msgType,
		&msg.Action,
		&msg.CreatedAt,
	); err != nil {
		return nil, err
	}
	msg.SenderRole = domain.Role(role)
	msg.Type = domain.MessageType(msgType)
	return &msg, nil
}
