package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/etala/case-service/internal/events"
)

// notifiedEvents lists every event forwarded to the real-time sink.
var notifiedEvents = []events.EventType{
	events.EventReportCreated,
	events.EventReportUpdated,
	events.EventReportArchived,
	events.EventReportRestored,
	events.EventTicketOpened,
	events.EventTicketMessage,
	events.EventTicketRead,
	events.EventTicketClosed,
}

// NotificationService forwards domain events to the fan-out sink.
type NotificationService struct {
	dispatcher events.Dispatcher
	sink       events.Sink
	logger     *zap.Logger
}

// NewNotificationService creates the service. A nil sink only logs.
func NewNotificationService(dispatcher events.Dispatcher, sink events.Sink, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		sink:       sink,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range notifiedEvents {
		n.dispatcher.Subscribe(eventType, n.forward)
	}
}

// forward never returns an error: delivery is best-effort and must not
// surface to the mutation that produced the event.
func (n *NotificationService) forward(ctx context.Context, event events.Event) error {
	n.logger.Debug("event",
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_number", event.TicketNumber),
		zap.String("event_id", event.ID))
	if n.sink == nil {
		return nil
	}
	// The request may finish before the publish does.
	if err := n.sink.Publish(context.WithoutCancel(ctx), event); err != nil {
		n.logger.Warn("event fan-out failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_number", event.TicketNumber),
			zap.Error(err))
	}
	return nil
}
