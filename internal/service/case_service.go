package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/etala/case-service/internal/domain"
	"github.com/etala/case-service/internal/events"
	"github.com/etala/case-service/internal/identity"
	"github.com/etala/case-service/internal/observability"
	"github.com/etala/case-service/internal/repository"
	apperrors "github.com/etala/case-service/pkg/util/errorutil"
)

// Timeline actions written by the workflow.
const (
	ActionReportCreated  = "Report Created"
	ActionReportArchived = "Report Archived"
	ActionReportRestored = "Report Restored"
)

// SystemMessenger posts workflow notices into a report's conversation.
type SystemMessenger interface {
	SendSystemMessage(ctx context.Context, actor domain.Principal, ticketNumber, content, action string) (*domain.Message, error)
}

// caseStatusNotices maps case statuses to the system message they trigger.
var caseStatusNotices = map[domain.CaseStatus]struct {
	action  string
	content string
}{
	domain.CaseStatusForInterview: {
		action:  domain.ActionProceedToInterview,
		content: "Your report has been reviewed. Please proceed to the office for an interview.",
	},
	domain.CaseStatusForAppointment: {
		action:  domain.ActionScheduleAppointment,
		content: "Please schedule an appointment so we can continue with your case.",
	},
}

// CaseService orchestrates report creation and workflow transitions.
type CaseService struct {
	runtime
	reports     repository.ReportRepository
	generator   *identity.Generator
	maxAttempts int
	messenger   SystemMessenger
}

// CaseDependencies bundles collaborators for the case service.
type CaseDependencies struct {
	ReportRepo  repository.ReportRepository
	Generator   *identity.Generator
	MaxAttempts int
	Messenger   SystemMessenger
	Dispatcher  events.Dispatcher
	Alerter     observability.Alerter
	Logger      *zap.Logger
	Clock       func() time.Time
}

// ReportListFilter describes staff listing filters.
type ReportListFilter struct {
	SearchTerm string
	Status     string
	Limit      int
	Offset     int
}

// NewCaseService constructs the service.
func NewCaseService(deps CaseDependencies) *CaseService {
	generator := deps.Generator
	if generator == nil {
		generator = identity.NewGenerator(identity.DefaultPrefix)
	}
	maxAttempts := deps.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &CaseService{
		runtime:     newRuntime(deps.Dispatcher, deps.Alerter, deps.Logger, deps.Clock),
		reports:     deps.ReportRepo,
		generator:   generator,
		maxAttempts: maxAttempts,
		messenger:   deps.Messenger,
	}
}

// CreateReport validates the payload, mints a ticket number and stores the
// report with its initial timeline entry.
func (s *CaseService) CreateReport(ctx context.Context, actor domain.Principal, input ReportInput) (*domain.Report, error) {
	in, err := ValidateReportInput(input)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	report := &domain.Report{
		ID:              uuid.NewString(),
		CreatedBy:       actor.ID,
		ReporterName:    in.ReporterName,
		ReporterContact: in.ReporterContact,
		IsAnonymous:     in.IsAnonymous,
		IncidentTypes:   in.IncidentTypes,
		CaseFile:        in.CaseFile,
		Attachments:     in.Attachments,
		Status:          domain.ReportStatusPending,
		CaseStatus:      domain.CaseStatusForQueuing,
		Referrals:       []domain.Referral{},
		Timeline: []domain.TimelineEntry{{
			Action:      ActionReportCreated,
			PerformedBy: actor.ID,
			Timestamp:   now,
		}},
		SubmittedAt: now,
		LastUpdated: now,
	}

	_, err = identity.Mint(ctx, s.generator, in.IsAnonymous, s.maxAttempts, func(ctx context.Context, ticketNumber string) error {
		report.TicketNumber = ticketNumber
		err := s.reports.Create(ctx, report)
		if errors.Is(err, repository.ErrDuplicateTicketNumber) {
			s.logger.Warn("ticket number collision", zap.String("ticket_number", ticketNumber))
			return fmt.Errorf("%s: %w", ticketNumber, identity.ErrCollision)
		}
		return err
	})
	if err != nil {
		var exhausted *identity.ExhaustedError
		if errors.As(err, &exhausted) {
			s.logger.Error("ticket number space exhausted", zap.Int("attempts", exhausted.Attempts), zap.Bool("anonymous", in.IsAnonymous))
			s.alerter.Alert(err, map[string]string{"op": "create_report", "code": apperrors.CodeIdentityExhausted})
			return nil, apperrors.NewIdentityExhausted(exhausted.Attempts)
		}
		return nil, s.storageFailure("create_report", err)
	}

	s.publishEvent(ctx, events.Event{
		Type:         events.EventReportCreated,
		TicketNumber: report.TicketNumber,
		ReportID:     report.ID,
		Actor:        actorOf(actor, report.IsAnonymous),
		Payload: events.ReportUpdatedPayload{
			Action:     ActionReportCreated,
			Status:     report.Status,
			CaseStatus: report.CaseStatus,
		},
	})
	return report, nil
}

// GetReport returns a report to its owner or to staff.
func (s *CaseService) GetReport(ctx context.Context, actor domain.Principal, reportID string) (*domain.Report, error) {
	report, err := s.fetch(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsStaff() && report.CreatedBy != actor.ID {
		return nil, apperrors.NewForbidden("access denied")
	}
	return report, nil
}

// GetReportByTicketNumber resolves a report through its public identifier.
func (s *CaseService) GetReportByTicketNumber(ctx context.Context, ticketNumber string) (*domain.Report, error) {
	report, err := s.reports.GetByTicketNumber(ctx, ticketNumber)
	if err != nil {
		return nil, s.mapRepoError("get_report", "report", map[string]any{"ticket_number": ticketNumber}, err)
	}
	return report, nil
}

// UpdateStatus sets the disposition status. Any status may follow any other.
func (s *CaseService) UpdateStatus(ctx context.Context, actor domain.Principal, reportID, newStatus, remarks string) (*domain.Report, error) {
	status := domain.ReportStatus(strings.TrimSpace(newStatus))
	if !status.Valid() {
		return nil, apperrors.NewInvalidStatus(newStatus, reportStatusNames())
	}
	now := s.clock()
	return s.apply(ctx, actor, reportID, events.EventReportUpdated, repository.ReportChange{
		Status: &status,
		Entry: domain.TimelineEntry{
			Action:      "Status updated to " + string(status),
			PerformedBy: actor.ID,
			Timestamp:   now,
			Remarks:     strings.TrimSpace(remarks),
		},
		At: now,
	})
}

// UpdateCaseStatus sets the queue stage, independent of status. Stages with a
// workflow notice also post it to the report's conversation when one exists.
func (s *CaseService) UpdateCaseStatus(ctx context.Context, actor domain.Principal, reportID, newCaseStatus, remarks string) (*domain.Report, error) {
	caseStatus := domain.CaseStatus(strings.TrimSpace(newCaseStatus))
	if !caseStatus.Valid() {
		return nil, apperrors.NewInvalidCaseStatus(newCaseStatus, caseStatusNames())
	}
	now := s.clock()
	snapshot := caseStatus
	report, err := s.apply(ctx, actor, reportID, events.EventReportUpdated, repository.ReportChange{
		CaseStatus: &caseStatus,
		Entry: domain.TimelineEntry{
			Action:      "Case status updated to " + string(caseStatus),
			PerformedBy: actor.ID,
			Timestamp:   now,
			Remarks:     strings.TrimSpace(remarks),
			CaseStatus:  &snapshot,
		},
		At: now,
	})
	if err != nil {
		return nil, err
	}
	s.notifyCaseStatus(ctx, actor, report)
	return report, nil
}

// AddReferral records a hand-off and forces the report into In Progress.
func (s *CaseService) AddReferral(ctx context.Context, actor domain.Principal, reportID, department, note string) (*domain.Report, error) {
	department = strings.TrimSpace(department)
	if department == "" {
		return nil, apperrors.NewValidationError("department is required", map[string]any{"department": "required"})
	}
	note = strings.TrimSpace(note)
	now := s.clock()
	inProgress := domain.ReportStatusInProgress
	return s.apply(ctx, actor, reportID, events.EventReportUpdated, repository.ReportChange{
		Status: &inProgress,
		Referral: &domain.Referral{
			Department: department,
			Note:       note,
			ReferredBy: actor.ID,
			Date:       now,
		},
		Entry: domain.TimelineEntry{
			Action:      "Referred to " + department,
			PerformedBy: actor.ID,
			Timestamp:   now,
			Remarks:     note,
		},
		At: now,
	})
}

// Archive hides a report from default listings.
func (s *CaseService) Archive(ctx context.Context, actor domain.Principal, reportID string) error {
	return s.setArchived(ctx, actor, reportID, true)
}

// Restore returns an archived report to default listings.
func (s *CaseService) Restore(ctx context.Context, actor domain.Principal, reportID string) error {
	return s.setArchived(ctx, actor, reportID, false)
}

// ListActive returns non-archived reports, newest first.
func (s *CaseService) ListActive(ctx context.Context, filter ReportListFilter) ([]domain.Report, error) {
	return s.list(ctx, filter, false)
}

// ListArchived returns archived reports, newest first.
func (s *CaseService) ListArchived(ctx context.Context, filter ReportListFilter) ([]domain.Report, error) {
	return s.list(ctx, filter, true)
}

// ListMine returns the caller's own active reports.
func (s *CaseService) ListMine(ctx context.Context, actor domain.Principal, limit, offset int) ([]domain.Report, error) {
	owner := actor.ID
	reports, err := s.reports.List(ctx, repository.ReportFilter{CreatedBy: &owner, Limit: limit, Offset: offset})
	if err != nil {
		return nil, s.storageFailure("list_reports", err)
	}
	return reports, nil
}

func (s *CaseService) setArchived(ctx context.Context, actor domain.Principal, reportID string, archived bool) error {
	action, eventType := ActionReportRestored, events.EventReportRestored
	if archived {
		action, eventType = ActionReportArchived, events.EventReportArchived
	}
	now := s.clock()
	_, err := s.apply(ctx, actor, reportID, eventType, repository.ReportChange{
		Archived: &archived,
		Entry: domain.TimelineEntry{
			Action:      action,
			PerformedBy: actor.ID,
			Timestamp:   now,
		},
		At: now,
	})
	return err
}

func (s *CaseService) list(ctx context.Context, filter ReportListFilter, archived bool) ([]domain.Report, error) {
	repoFilter := repository.ReportFilter{
		Archived: archived,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}
	if term := strings.TrimSpace(filter.SearchTerm); term != "" {
		repoFilter.SearchTerm = &term
	}
	if raw := strings.TrimSpace(filter.Status); raw != "" {
		status := domain.ReportStatus(raw)
		if !status.Valid() {
			return nil, apperrors.NewInvalidStatus(raw, reportStatusNames())
		}
		repoFilter.Status = &status
	}
	reports, err := s.reports.List(ctx, repoFilter)
	if err != nil {
		return nil, s.storageFailure("list_reports", err)
	}
	return reports, nil
}

func (s *CaseService) fetch(ctx context.Context, reportID string) (*domain.Report, error) {
	if !validID(reportID) {
		return nil, apperrors.NewNotFound("report", map[string]any{"report_id": reportID})
	}
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, s.mapRepoError("get_report", "report", map[string]any{"report_id": reportID}, err)
	}
	return report, nil
}

// apply writes one change through the repository's atomic update.
func (s *CaseService) apply(ctx context.Context, actor domain.Principal, reportID string, eventType events.EventType, change repository.ReportChange) (*domain.Report, error) {
	if !validID(reportID) {
		return nil, apperrors.NewNotFound("report", map[string]any{"report_id": reportID})
	}
	report, err := s.reports.Apply(ctx, reportID, change)
	if err != nil {
		return nil, s.mapRepoError("update_report", "report", map[string]any{"report_id": reportID}, err)
	}
	s.logger.Info("report updated",
		zap.String("report_id", report.ID),
		zap.String("action", change.Entry.Action),
		zap.String("actor_id", actor.ID))
	s.publishEvent(ctx, events.Event{
		Type:         eventType,
		TicketNumber: report.TicketNumber,
		ReportID:     report.ID,
		Actor:        actorOf(actor, report.IsAnonymous),
		Payload: events.ReportUpdatedPayload{
			Action:     change.Entry.Action,
			Status:     report.Status,
			CaseStatus: report.CaseStatus,
		},
	})
	return report, nil
}

func (s *CaseService) notifyCaseStatus(ctx context.Context, actor domain.Principal, report *domain.Report) {
	notice, ok := caseStatusNotices[report.CaseStatus]
	if !ok || s.messenger == nil {
		return
	}
	_, err := s.messenger.SendSystemMessage(ctx, actor, report.TicketNumber, notice.content, notice.action)
	switch {
	case err == nil:
	case apperrors.HasCode(err, apperrors.CodeDuplicateAction), apperrors.HasCode(err, apperrors.CodeNotFound):
		// Already notified, or the reporter has no conversation yet.
	default:
		s.logger.Warn("workflow notice failed",
			zap.String("ticket_number", report.TicketNumber),
			zap.String("action", notice.action),
			zap.Error(err))
	}
}

func reportStatusNames() []string {
	names := make([]string, len(domain.ReportStatuses))
	for i, s := range domain.ReportStatuses {
		names[i] = string(s)
	}
	return names
}

func caseStatusNames() []string {
	names := make([]string, len(domain.CaseStatuses))
	for i, s := range domain.CaseStatuses {
		names[i] = string(s)
	}
	return names
}
