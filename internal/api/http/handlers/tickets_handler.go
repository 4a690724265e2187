package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/etala/case-service/internal/api/dto"
	"github.com/etala/case-service/internal/domain"
	"github.com/etala/case-service/internal/service"
	apperrors "github.com/etala/case-service/pkg/util/errorutil"
)

// TicketsHandler manages conversation endpoints for reporters and staff.
type TicketsHandler struct {
	messaging *service.MessagingService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(messaging *service.MessagingService) *TicketsHandler {
	return &TicketsHandler{messaging: messaging}
}

// Open POST /tickets. Responds 201 when the ticket was created and 200 when
// it already existed.
func (h *TicketsHandler) Open(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.OpenTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, created, err := h.messaging.OpenOrGetTicket(c.UserContext(), principal, service.OpenTicketInput{
		TicketNumber: req.TicketNumber,
		IsAnonymous:  req.IsAnonymous,
		UserID:       req.UserID,
		DisplayName:  req.DisplayName,
	})
	if err != nil {
		return err
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// List GET /tickets and GET /staff/tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	limit, offset := pagination(c)
	tickets, err := h.messaging.ListTickets(c.UserContext(), principal, service.TicketListFilter{
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketList(tickets)})
}

// Get GET /tickets/:ticketNumber.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	ticket, err := h.messaging.GetTicket(c.UserContext(), principal, c.Params("ticketNumber"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// SendMessage POST /tickets/:ticketNumber/messages.
func (h *TicketsHandler) SendMessage(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticketNumber := c.Params("ticketNumber")
	msg, err := h.messaging.SendMessage(c.UserContext(), principal, service.SendMessageInput{
		TicketNumber: ticketNumber,
		Content:      req.Content,
		Type:         domain.MessageType(req.Type),
		Action:       req.Action,
	})
	if err != nil {
		return err
	}
	ticket, err := h.messaging.GetTicket(c.UserContext(), principal, ticketNumber)
	if err != nil {
		return err
	}
	projected := service.ProjectMessage(ticket.IsAnonymous, *msg, principal.ID)
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewMessageResponse(projected)})
}

// ListMessages GET /tickets/:ticketNumber/messages.
func (h *TicketsHandler) ListMessages(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	msgs, err := h.messaging.ListMessages(c.UserContext(), principal, c.Params("ticketNumber"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMessageList(msgs)})
}

// MarkAllRead POST /tickets/:ticketNumber/read.
func (h *TicketsHandler) MarkAllRead(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	ticket, err := h.messaging.MarkAllRead(c.UserContext(), principal, c.Params("ticketNumber"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// MarkRead POST /messages/:id/read.
func (h *TicketsHandler) MarkRead(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	if err := h.messaging.MarkRead(c.UserContext(), principal, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"success": true}})
}

// Close POST /staff/tickets/:ticketNumber/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.CloseTicketRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	ticket, err := h.messaging.CloseTicket(c.UserContext(), principal, c.Params("ticketNumber"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}
