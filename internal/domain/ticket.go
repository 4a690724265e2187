package domain

import "time"

// TicketStatus enumerates conversation states.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "Open"
	TicketStatusClosed TicketStatus = "Closed"
)

// UnreadCount tracks messages each party has not yet read.
type UnreadCount struct {
	Staff int `json:"staff"`
	User  int `json:"user"`
}

// Ticket is the messaging channel between a reporter and staff,
// keyed by the same ticket number as its report.
type Ticket struct {
	ID              string
	TicketNumber    string
	UserID          string
	DisplayName     string
	IsAnonymous     bool
	Status          TicketStatus
	ClosedAt        *time.Time
	ClosedReason    string
	UnreadCount     UnreadCount
	LastMessage     string
	LastMessageAt   *time.Time
	AdminHasReplied bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsUser reports whether id is the ticket's non-staff participant.
func (t *Ticket) IsUser(id string) bool {
	return t.UserID != "" && t.UserID == id
}

// Party names one side of a ticket conversation.
type Party string

const (
	PartyStaff Party = "staff"
	PartyUser  Party = "user"
)
