package dto

import (
	"time"

	"github.com/etala/case-service/internal/domain"
)

// OpenTicketRequest payload. IsAnonymous, UserID and DisplayName only apply
// when staff open a ticket with no report behind it.
type OpenTicketRequest struct {
	TicketNumber string `json:"ticketNumber"`
	IsAnonymous  bool   `json:"isAnonymous"`
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
}

// SendMessageRequest payload.
type SendMessageRequest struct {
	Content string `json:"content"`
	Type    string `json:"type"`
	Action  string `json:"action"`
}

// CloseTicketRequest payload.
type CloseTicketRequest struct {
	Reason string `json:"reason"`
}

// TicketResponse is the ticket projection. The participant id is withheld on
// anonymous tickets.
type TicketResponse struct {
	ID              string              `json:"id"`
	TicketNumber    string              `json:"ticketNumber"`
	UserID          string              `json:"userId,omitempty"`
	DisplayName     string              `json:"displayName"`
	IsAnonymous     bool                `json:"isAnonymous"`
	Status          domain.TicketStatus `json:"status"`
	ClosedAt        *time.Time          `json:"closedAt,omitempty"`
	ClosedReason    string              `json:"closedReason,omitempty"`
	UnreadCount     domain.UnreadCount  `json:"unreadCount"`
	LastMessage     string              `json:"lastMessage"`
	LastMessageAt   *time.Time          `json:"lastMessageAt,omitempty"`
	AdminHasReplied bool                `json:"adminHasReplied"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// NewTicketResponse projects a ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	resp := TicketResponse{
		ID:              t.ID,
		TicketNumber:    t.TicketNumber,
		UserID:          t.UserID,
		DisplayName:     t.DisplayName,
		IsAnonymous:     t.IsAnonymous,
		Status:          t.Status,
		ClosedAt:        t.ClosedAt,
		ClosedReason:    t.ClosedReason,
		UnreadCount:     t.UnreadCount,
		LastMessage:     t.LastMessage,
		LastMessageAt:   t.LastMessageAt,
		AdminHasReplied: t.AdminHasReplied,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
	if t.IsAnonymous {
		resp.UserID = ""
	}
	return resp
}

// NewTicketList projects a page of tickets.
func NewTicketList(tickets []domain.Ticket) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, NewTicketResponse(&tickets[i]))
	}
	return out
}

// MessageResponse is a message as shown to the caller.
type MessageResponse struct {
	ID        string             `json:"id"`
	Sender    string             `json:"sender"`
	IsOwn     bool               `json:"isOwn"`
	Content   string             `json:"content"`
	Read      bool               `json:"read"`
	Type      domain.MessageType `json:"type"`
	Action    *string            `json:"action,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}

// NewMessageResponse converts a projected message.
func NewMessageResponse(m domain.ProjectedMessage) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		Sender:    m.SenderLabel,
		IsOwn:     m.IsOwn,
		Content:   m.Content,
		Read:      m.Read,
		Type:      m.Type,
		Action:    m.Action,
		CreatedAt: m.CreatedAt,
	}
}

// NewMessageList converts an ordered message log.
func NewMessageList(msgs []domain.ProjectedMessage) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, NewMessageResponse(m))
	}
	return out
}
