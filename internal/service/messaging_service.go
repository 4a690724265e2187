package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/etala/case-service/internal/domain"
	"github.com/etala/case-service/internal/events"
	"github.com/etala/case-service/internal/observability"
	"github.com/etala/case-service/internal/repository"
	apperrors "github.com/etala/case-service/pkg/util/errorutil"
)

const previewLength = 120

// MessagingService coordinates ticket conversations.
type MessagingService struct {
	runtime
	tickets  repository.TicketRepository
	messages repository.MessageRepository
	reports  repository.ReportRepository
}

// MessagingDependencies bundles repositories for the messaging service.
type MessagingDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.MessageRepository
	ReportRepo  repository.ReportRepository
	Dispatcher  events.Dispatcher
	Alerter     observability.Alerter
	Logger      *zap.Logger
	Clock       func() time.Time
}

// OpenTicketInput describes a conversation open request. IsAnonymous, UserID
// and DisplayName are only honoured when staff open a ticket that has no
// report behind it.
type OpenTicketInput struct {
	TicketNumber string
	IsAnonymous  bool
	UserID       string
	DisplayName  string
}

// SendMessageInput describes a message append.
type SendMessageInput struct {
	TicketNumber string
	Content      string
	Type         domain.MessageType
	Action       string
}

// TicketListFilter describes ticket listing filters.
type TicketListFilter struct {
	Status string
	Limit  int
	Offset int
}

// NewMessagingService constructs the service.
func NewMessagingService(deps MessagingDependencies) *MessagingService {
	return &MessagingService{
		runtime:  newRuntime(deps.Dispatcher, deps.Alerter, deps.Logger, deps.Clock),
		tickets:  deps.TicketRepo,
		messages: deps.MessageRepo,
		reports:  deps.ReportRepo,
	}
}

// OpenOrGetTicket returns the conversation for a ticket number, creating it
// on first use. An existing ticket is never modified, so a later call with a
// different anonymity flag has no effect. When the report exists its owner
// and anonymity bind the ticket; reporters may only open tickets for reports
// they own.
func (s *MessagingService) OpenOrGetTicket(ctx context.Context, actor domain.Principal, in OpenTicketInput) (*domain.Ticket, bool, error) {
	ticketNumber := strings.TrimSpace(in.TicketNumber)
	if ticketNumber == "" {
		return nil, false, apperrors.NewValidationError("ticket number is required", map[string]any{"ticket_number": "required"})
	}

	report, err := s.reports.GetByTicketNumber(ctx, ticketNumber)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, false, s.storageFailure("open_ticket", err)
	}

	if !actor.Role.IsStaff() {
		if report == nil {
			return nil, false, apperrors.NewNotFound("report", map[string]any{"ticket_number": ticketNumber})
		}
		if report.CreatedBy != actor.ID {
			return nil, false, apperrors.NewForbidden("access denied")
		}
	}

	ticket := &domain.Ticket{
		ID:           uuid.NewString(),
		TicketNumber: ticketNumber,
		IsAnonymous:  in.IsAnonymous,
		Status:       domain.TicketStatusOpen,
		CreatedAt:    s.clock(),
	}
	if report != nil {
		ticket.IsAnonymous = report.IsAnonymous
		ticket.UserID = report.CreatedBy
		ticket.DisplayName = report.ReporterName
	} else {
		ticket.UserID = strings.TrimSpace(in.UserID)
		ticket.DisplayName = strings.TrimSpace(in.DisplayName)
		if ticket.UserID == "" {
			return nil, false, apperrors.NewValidationError("user id is required", map[string]any{"user_id": "required"})
		}
	}
	if ticket.IsAnonymous {
		ticket.DisplayName = AnonymousReporterName
	}

	stored, created, err := s.tickets.CreateIfAbsent(ctx, ticket)
	if err != nil {
		return nil, false, s.storageFailure("open_ticket", err)
	}
	if !s.canAccess(actor, stored) {
		return nil, false, apperrors.NewForbidden("access denied")
	}
	if created {
		s.logger.Info("ticket opened", zap.String("ticket_number", stored.TicketNumber), zap.Bool("anonymous", stored.IsAnonymous))
		s.publishEvent(ctx, events.Event{
			Type:         events.EventTicketOpened,
			TicketNumber: stored.TicketNumber,
			Actor:        actorOf(actor, stored.IsAnonymous),
		})
	}
	return stored, created, nil
}

// GetTicket fetches a ticket ensuring participant access.
func (s *MessagingService) GetTicket(ctx context.Context, actor domain.Principal, ticketNumber string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByNumber(ctx, ticketNumber)
	if err != nil {
		return nil, s.mapRepoError("get_ticket", "ticket", map[string]any{"ticket_number": ticketNumber}, err)
	}
	if !s.canAccess(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

// SendMessage appends a message and updates the ticket's counters in the same
// write. A message with an action fails with DUPLICATE_ACTION when the ticket
// already holds that action.
func (s *MessagingService) SendMessage(ctx context.Context, actor domain.Principal, in SendMessageInput) (*domain.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, apperrors.NewValidationError("message content is empty", map[string]any{"content": "required"})
	}
	msgType := in.Type
	if msgType == "" {
		msgType = domain.MessageTypeUser
	}
	if !msgType.Valid() {
		return nil, apperrors.NewValidationError("invalid message type", map[string]any{"type": string(msgType)})
	}
	if msgType == domain.MessageTypeSystem && !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("only staff may send system messages")
	}
	var action *string
	if a := strings.TrimSpace(in.Action); a != "" {
		action = &a
	}

	ticket, err := s.tickets.GetByNumber(ctx, in.TicketNumber)
	if err != nil {
		return nil, s.mapRepoError("send_message", "ticket", map[string]any{"ticket_number": in.TicketNumber}, err)
	}

	delivery := repository.Delivery{}
	switch {
	case msgType == domain.MessageTypeSystem:
		delivery.Recipient, delivery.StaffReply = domain.PartyUser, true
	case ticket.IsUser(actor.ID):
		delivery.Recipient = domain.PartyStaff
	case actor.Role.IsStaff():
		delivery.Recipient, delivery.StaffReply = domain.PartyUser, true
	default:
		return nil, apperrors.NewForbidden("access denied")
	}
	if ticket.Status == domain.TicketStatusClosed {
		return nil, apperrors.NewConflict("ticket is closed", map[string]any{"ticket_number": ticket.TicketNumber})
	}

	senderName := strings.TrimSpace(actor.Name)
	if senderName == "" {
		senderName = actor.ID
	}
	msg := &domain.Message{
		ID:           uuid.NewString(),
		TicketNumber: ticket.TicketNumber,
		SenderID:     actor.ID,
		SenderName:   senderName,
		SenderRole:   actor.Role,
		Content:      content,
		Type:         msgType,
		Action:       action,
		CreatedAt:    s.clock(),
	}
	delivery.Message = msg
	// The denormalized preview never carries a sender name.
	delivery.Preview = stringPreview(content, previewLength)

	updated, err := s.messages.Append(ctx, delivery)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateAction):
			return nil, apperrors.NewDuplicateAction(ticket.TicketNumber, *action)
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_number": ticket.TicketNumber})
		}
		return nil, s.storageFailure("send_message", err)
	}

	s.publishEvent(ctx, events.Event{
		Type:         events.EventTicketMessage,
		TicketNumber: ticket.TicketNumber,
		Actor:        actorOf(actor, ticket.IsAnonymous),
		Payload: events.TicketMessagePayload{
			MessageID:   msg.ID,
			MessageType: msg.Type,
			SenderRole:  msg.SenderRole,
			Action:      msg.Action,
			Preview:     delivery.Preview,
			UnreadCount: updated.UnreadCount,
		},
	})
	return msg, nil
}

// SendSystemMessage posts a workflow notice tagged with action.
func (s *MessagingService) SendSystemMessage(ctx context.Context, actor domain.Principal, ticketNumber, content, action string) (*domain.Message, error) {
	return s.SendMessage(ctx, actor, SendMessageInput{
		TicketNumber: ticketNumber,
		Content:      content,
		Type:         domain.MessageTypeSystem,
		Action:       action,
	})
}

// ListMessages returns the ticket's log oldest first, projected for actor.
func (s *MessagingService) ListMessages(ctx context.Context, actor domain.Principal, ticketNumber string) ([]domain.ProjectedMessage, error) {
	ticket, err := s.GetTicket(ctx, actor, ticketNumber)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.TicketNumber)
	if err != nil {
		return nil, s.storageFailure("list_messages", err)
	}
	return ProjectMessages(ticket, msgs, actor.ID), nil
}

// MarkRead flags one message as read. Counters are left untouched; only
// MarkAllRead resets them.
func (s *MessagingService) MarkRead(ctx context.Context, actor domain.Principal, messageID string) error {
	if !validID(messageID) {
		return apperrors.NewNotFound("message", map[string]any{"message_id": messageID})
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return s.mapRepoError("mark_read", "message", map[string]any{"message_id": messageID}, err)
	}
	if _, err := s.GetTicket(ctx, actor, msg.TicketNumber); err != nil {
		return err
	}
	if err := s.messages.MarkRead(ctx, messageID); err != nil {
		return s.mapRepoError("mark_read", "message", map[string]any{"message_id": messageID}, err)
	}
	return nil
}

// MarkAllRead flags every message the actor did not send and zeroes the
// actor's unread counter together.
func (s *MessagingService) MarkAllRead(ctx context.Context, actor domain.Principal, ticketNumber string) (*domain.Ticket, error) {
	ticket, err := s.GetTicket(ctx, actor, ticketNumber)
	if err != nil {
		return nil, err
	}
	reader := domain.PartyStaff
	if ticket.IsUser(actor.ID) {
		reader = domain.PartyUser
	}
	marked, updated, err := s.messages.MarkAllRead(ctx, ticket.TicketNumber, actor.ID, reader)
	if err != nil {
		return nil, s.mapRepoError("mark_all_read", "ticket", map[string]any{"ticket_number": ticketNumber}, err)
	}
	s.publishEvent(ctx, events.Event{
		Type:         events.EventTicketRead,
		TicketNumber: updated.TicketNumber,
		Actor:        actorOf(actor, updated.IsAnonymous),
		Payload:      events.TicketReadPayload{Reader: reader, Marked: marked},
	})
	return updated, nil
}

// CloseTicket ends a conversation. Closing a closed ticket returns it as is.
func (s *MessagingService) CloseTicket(ctx context.Context, actor domain.Principal, ticketNumber, reason string) (*domain.Ticket, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("insufficient role")
	}
	ticket, err := s.GetTicket(ctx, actor, ticketNumber)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.TicketStatusClosed {
		return ticket, nil
	}
	reason = strings.TrimSpace(reason)
	closed, err := s.tickets.Close(ctx, ticket.TicketNumber, reason, s.clock())
	if err != nil {
		return nil, s.mapRepoError("close_ticket", "ticket", map[string]any{"ticket_number": ticketNumber}, err)
	}
	s.logger.Info("ticket closed", zap.String("ticket_number", closed.TicketNumber), zap.String("actor_id", actor.ID))
	s.publishEvent(ctx, events.Event{
		Type:         events.EventTicketClosed,
		TicketNumber: closed.TicketNumber,
		Actor:        actorOf(actor, closed.IsAnonymous),
		Payload:      events.TicketClosedPayload{Reason: reason},
	})
	return closed, nil
}

// ListTickets returns every ticket to staff and only their own to users,
// most recent activity first.
func (s *MessagingService) ListTickets(ctx context.Context, actor domain.Principal, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{Limit: filter.Limit, Offset: filter.Offset}
	if !actor.Role.IsStaff() {
		userID := actor.ID
		repoFilter.UserID = &userID
	}
	if raw := strings.TrimSpace(filter.Status); raw != "" {
		status := domain.TicketStatus(raw)
		if status != domain.TicketStatusOpen && status != domain.TicketStatusClosed {
			return nil, apperrors.NewInvalidStatus(raw, []string{string(domain.TicketStatusOpen), string(domain.TicketStatusClosed)})
		}
		repoFilter.Status = &status
	}
	tickets, err := s.tickets.List(ctx, repoFilter)
	if err != nil {
		return nil, s.storageFailure("list_tickets", err)
	}
	return tickets, nil
}

func (s *MessagingService) canAccess(actor domain.Principal, ticket *domain.Ticket) bool {
	return actor.Role.IsStaff() || ticket.IsUser(actor.ID)
}
