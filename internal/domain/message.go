package domain

import "time"

// MessageType differentiates people from workflow notices.
type MessageType string

const (
	MessageTypeUser   MessageType = "USER"
	MessageTypeSystem MessageType = "SYSTEM"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t == MessageTypeUser || t == MessageTypeSystem
}

// Workflow actions carried by system messages. A ticket holds at most one
// message per action.
const (
	ActionProceedToInterview  = "PROCEED_TO_INTERVIEW"
	ActionScheduleAppointment = "SCHEDULE_APPOINTMENT"
)

// Message is one entry of a ticket conversation.
type Message struct {
	ID           string
	TicketNumber string
	SenderID     string
	SenderName   string
	SenderRole   Role
	Content      string
	Read         bool
	Type         MessageType
	Action       *string
	CreatedAt    time.Time
}

// ProjectedMessage is a message as shown to one viewer.
type ProjectedMessage struct {
	ID          string
	SenderLabel string
	IsOwn       bool
	Content     string
	Read        bool
	Type        MessageType
	Action      *string
	CreatedAt   time.Time
}
