package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/etala/case-service/internal/events"
	"github.com/etala/case-service/internal/service"
)

// ErrQueueFull is returned when the fan-out queue cannot take another event.
var ErrQueueFull = errors.New("notification queue full")

// StartNotificationWorker registers the fan-out handlers on the dispatcher.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// AsyncSink moves sink publishes off the request path. Events are queued and
// delivered by a fixed set of goroutines; a full queue drops the event.
type AsyncSink struct {
	next    events.Sink
	logger  *zap.Logger
	queue   chan events.Event
	workers int

	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopped  bool
	stopOnce sync.Once
}

// NewAsyncSink wraps next with a queue of the given size.
func NewAsyncSink(next events.Sink, logger *zap.Logger, size, workers int) *AsyncSink {
	if size <= 0 {
		size = 256
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsyncSink{
		next:    next,
		logger:  logger,
		queue:   make(chan events.Event, size),
		workers: workers,
	}
}

// Start launches the delivery goroutines.
func (s *AsyncSink) Start(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for event := range s.queue {
				if err := s.next.Publish(ctx, event); err != nil {
					s.logger.Warn("event delivery failed",
						zap.String("event_type", string(event.Type)),
						zap.String("ticket_number", event.TicketNumber),
						zap.Error(err))
				}
			}
		}()
	}
}

// Publish enqueues the event without waiting for delivery.
func (s *AsyncSink) Publish(_ context.Context, event events.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return ErrQueueFull
	}
	select {
	case s.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop rejects new events and waits for queued ones to drain.
func (s *AsyncSink) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		close(s.queue)
		s.mu.Unlock()
	})
	s.wg.Wait()
}
