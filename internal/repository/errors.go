package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a keyed lookup or update matches nothing.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateTicketNumber is returned when a report's ticket number is taken.
	ErrDuplicateTicketNumber = errors.New("duplicate ticket number")
	// ErrDuplicateAction is returned when a ticket already holds a message with the same action.
	ErrDuplicateAction = errors.New("duplicate message action")
)

const (
	uniqueViolation = "23505"

	reportsTicketNumberKey = "reports_ticket_number_key"
	messagesActionKey      = "messages_ticket_action_key"
)

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
