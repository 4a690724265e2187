package events

import (
	"time"

	"github.com/etala/case-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventReportCreated  EventType = "reportCreated"
	EventReportUpdated  EventType = "reportUpdated"
	EventReportArchived EventType = "reportArchived"
	EventReportRestored EventType = "reportRestored"
	EventTicketOpened   EventType = "ticketOpened"
	EventTicketMessage  EventType = "ticketMessage"
	EventTicketRead     EventType = "ticketRead"
	EventTicketClosed   EventType = "ticketClosed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID   string      `json:"id,omitempty"`
	Role domain.Role `json:"role"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	TicketNumber string    `json:"ticket_number"`
	ReportID     string    `json:"report_id,omitempty"`
	Actor        Actor     `json:"actor"`
	Timestamp    time.Time `json:"timestamp"`
	Payload      any       `json:"payload,omitempty"`
}

// ReportUpdatedPayload describes a workflow change.
type ReportUpdatedPayload struct {
	Action     string              `json:"action"`
	Status     domain.ReportStatus `json:"status"`
	CaseStatus domain.CaseStatus   `json:"case_status"`
}

// TicketMessagePayload describes an appended message. It carries the sender's
// role only; the envelope Actor omits the id of anonymous reporters.
type TicketMessagePayload struct {
	MessageID   string             `json:"message_id"`
	MessageType domain.MessageType `json:"message_type"`
	SenderRole  domain.Role        `json:"sender_role"`
	Action      *string            `json:"action,omitempty"`
	Preview     string             `json:"preview"`
	UnreadCount domain.UnreadCount `json:"unread_count"`
}

// TicketReadPayload describes a mark-all-read.
type TicketReadPayload struct {
	Reader domain.Party `json:"reader"`
	Marked int64        `json:"marked"`
}

// TicketClosedPayload describes a closed conversation.
type TicketClosedPayload struct {
	Reason string `json:"reason,omitempty"`
}
