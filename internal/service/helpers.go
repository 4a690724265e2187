package service

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/etala/case-service/internal/domain"
	"github.com/etala/case-service/internal/events"
	"github.com/etala/case-service/internal/observability"
	"github.com/etala/case-service/internal/repository"
	apperrors "github.com/etala/case-service/pkg/util/errorutil"
)

// runtime bundles the collaborators every service shares.
type runtime struct {
	dispatcher events.Dispatcher
	alerter    observability.Alerter
	logger     *zap.Logger
	now        func() time.Time
}

func newRuntime(dispatcher events.Dispatcher, alerter observability.Alerter, logger *zap.Logger, clock func() time.Time) runtime {
	if alerter == nil {
		alerter = observability.NopAlerter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}
	return runtime{dispatcher: dispatcher, alerter: alerter, logger: logger, now: clock}
}

func (r runtime) clock() time.Time {
	return r.now().UTC()
}

// publishEvent emits best-effort; a failed fan-out never fails the mutation.
func (r runtime) publishEvent(ctx context.Context, event events.Event) {
	if r.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.clock()
	}
	if err := r.dispatcher.Publish(ctx, event); err != nil {
		r.logger.Warn("event publish failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_number", event.TicketNumber),
			zap.Error(err))
	}
}

// storageFailure reports a persistence error and hides it from callers.
func (r runtime) storageFailure(op string, err error) error {
	r.logger.Error("storage failure", zap.String("op", op), zap.Error(err))
	r.alerter.Alert(err, map[string]string{"op": op, "code": apperrors.CodeStorage})
	return apperrors.NewStorageError(err)
}

// mapRepoError turns repository errors into domain errors.
func (r runtime) mapRepoError(op, resource string, details map[string]any, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(resource, details)
	}
	return r.storageFailure(op, err)
}

// actorOf describes the principal on an event envelope. Reporters acting on
// an anonymous case are published by role only.
func actorOf(p domain.Principal, anonymous bool) events.Actor {
	if anonymous && !p.Role.IsStaff() {
		return events.Actor{Role: p.Role}
	}
	return events.Actor{ID: p.ID, Role: p.Role}
}

// validID rejects ids that cannot exist, so lookups do not reach the store.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func stringPreview(body string, max int) string {
	if utf8.RuneCountInString(body) <= max {
		return body
	}
	runes := []rune(body)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
