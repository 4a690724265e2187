package service

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/etala/case-service/internal/domain"
	"github.com/etala/case-service/internal/events"
	"github.com/etala/case-service/internal/identity"
	apperrors "github.com/etala/case-service/pkg/util/errorutil"
)

var anonTicketPattern = regexp.MustCompile(`^ETALA-ANON-202610-\d{4}$`)

func TestCreateReportAnonymous(t *testing.T) {
	h := newHarness(t)
	in := anonymousInput()
	in.ReporterName = "Should Not Leak"
	in.ReporterContact = "0999"

	report := mustCreate(t, h, reporter, in)

	if !anonTicketPattern.MatchString(report.TicketNumber) {
		t.Fatalf("unexpected ticket number %q", report.TicketNumber)
	}
	if report.ReporterName != AnonymousReporterName || report.ReporterContact != "" {
		t.Fatalf("anonymous report kept identity: %q %q", report.ReporterName, report.ReporterContact)
	}
	if report.Status != domain.ReportStatusPending || report.CaseStatus != domain.CaseStatusForQueuing {
		t.Fatalf("unexpected defaults %q %q", report.Status, report.CaseStatus)
	}
	if len(report.Timeline) != 1 || report.Timeline[0].Action != ActionReportCreated || report.Timeline[0].PerformedBy != reporter.ID {
		t.Fatalf("unexpected initial timeline %+v", report.Timeline)
	}
	if report.CreatedBy != reporter.ID {
		t.Fatalf("expected createdBy %q, got %q", reporter.ID, report.CreatedBy)
	}
	if got := h.recorded.types(); len(got) != 1 || got[0] != events.EventReportCreated {
		t.Fatalf("expected reportCreated event, got %v", got)
	}
}

func TestCreateReportNamedUsesIDClass(t *testing.T) {
	h := newHarness(t)
	report := mustCreate(t, h, reporter, namedInput())
	if !regexp.MustCompile(`^ETALA-ID-202610-\d{4}$`).MatchString(report.TicketNumber) {
		t.Fatalf("unexpected ticket number %q", report.TicketNumber)
	}
	if report.ReporterName != "Maria Santos" {
		t.Fatalf("unexpected reporter name %q", report.ReporterName)
	}
}

func TestCreateReportValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ReportInput)
		field  string
	}{
		{"no attachments", func(in *ReportInput) { in.Attachments = nil }, "attachments"},
		{"no incident types", func(in *ReportInput) { in.IncidentTypes = []string{" "} }, "incidentTypes"},
		{"named without name", func(in *ReportInput) { in.ReporterName = "" }, "reporterName"},
		{"named without contact", func(in *ReportInput) { in.ReporterContact = "" }, "reporterContact"},
		{"bad attachment type", func(in *ReportInput) { in.Attachments[0].Type = "audio" }, "attachments[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			in := namedInput()
			tt.mutate(&in)
			_, err := h.cases.CreateReport(context.Background(), reporter, in)
			domainErr := apperrors.ToDomainError(err)
			if domainErr == nil || domainErr.Code != apperrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if _, ok := domainErr.Details[tt.field]; !ok {
				t.Fatalf("expected problem for %q, got %v", tt.field, domainErr.Details)
			}
		})
	}
}

func TestCreateReportRetriesCollisions(t *testing.T) {
	digits := []int{7, 7, 7, 8}
	var mu sync.Mutex
	h := newHarness(t, identity.WithRandom(func(int) int {
		mu.Lock()
		defer mu.Unlock()
		n := digits[0]
		if len(digits) > 1 {
			digits = digits[1:]
		}
		return n
	}))

	first := mustCreate(t, h, reporter, anonymousInput())
	second := mustCreate(t, h, reporter, anonymousInput())
	if first.TicketNumber != "ETALA-ANON-202610-0007" {
		t.Fatalf("unexpected first number %q", first.TicketNumber)
	}
	if second.TicketNumber != "ETALA-ANON-202610-0008" {
		t.Fatalf("expected retry to land on 0008, got %q", second.TicketNumber)
	}
}

func TestCreateReportIdentityExhausted(t *testing.T) {
	h := newHarness(t, identity.WithRandom(func(int) int { return 42 }))
	mustCreate(t, h, reporter, anonymousInput())

	_, err := h.cases.CreateReport(context.Background(), reporter, anonymousInput())
	domainErr := apperrors.ToDomainError(err)
	if domainErr == nil || domainErr.Code != apperrors.CodeIdentityExhausted {
		t.Fatalf("expected identity exhausted, got %v", err)
	}
	if domainErr.HTTPStatus != 503 {
		t.Fatalf("expected 503, got %d", domainErr.HTTPStatus)
	}
	if len(h.alerter.alerts) != 1 || h.alerter.alerts[0]["code"] != apperrors.CodeIdentityExhausted {
		t.Fatalf("expected one operator alert, got %v", h.alerter.alerts)
	}

	// The other anonymity class draws from its own space.
	if _, err := h.cases.CreateReport(context.Background(), reporter, namedInput()); err != nil {
		t.Fatalf("named report should not collide: %v", err)
	}
}

func TestUpdateStatusIsPermissive(t *testing.T) {
	h := newHarness(t)
	report := mustCreate(t, h, reporter, anonymousInput())
	ctx := context.Background()

	sequence := []domain.ReportStatus{
		domain.ReportStatusClosed,
		domain.ReportStatusPending,
		domain.ReportStatusResolved,
		domain.ReportStatusReviewed,
		domain.ReportStatusResolved,
	}
	for i, status := range sequence {
		updated, err := h.cases.UpdateStatus(ctx, officer, report.ID, string(status), "")
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if updated.Status != status {
			t.Fatalf("step %d: expected %q, got %q", i, status, updated.Status)
		}
		last := updated.Timeline[len(updated.Timeline)-1]
		if last.Action != "Status updated to "+string(status) || last.PerformedBy != officer.ID {
			t.Fatalf("step %d: unexpected timeline entry %+v", i, last)
		}
		if !updated.LastUpdated.After(report.LastUpdated) {
			t.Fatalf("step %d: lastUpdated not bumped", i)
		}
	}
	final, _ := h.cases.GetReport(ctx, officer, report.ID)
	if len(final.Timeline) != len(sequence)+1 {
		t.Fatalf("expected %d entries, got %d", len(sequence)+1, len(final.Timeline))
	}
	if final.CaseStatus != domain.CaseStatusForQueuing {
		t.Fatalf("status change leaked into case status: %q", final.CaseStatus)
	}
}

func TestUpdateStatusErrors(t *testing.T) {
	h := newHarness(t)
	report := mustCreate(t, h, reporter, anonymousInput())
	ctx := context.Background()

	_, err := h.cases.UpdateStatus(ctx, officer, report.ID, "Escalated", "")
	if !apperrors.HasCode(err, apperrors.CodeInvalidStatus) {
		t.Fatalf("expected invalid status, got %v", err)
	}
	_, err = h.cases.UpdateCaseStatus(ctx, officer, report.ID, "For Review", "")
	if !apperrors.HasCode(err, apperrors.CodeInvalidCaseStatus) {
		t.Fatalf("expected invalid case status, got %v", err)
	}
	missing := "7f1f6c1e-3c1b-4a55-9f0e-9f7a1f1b2c3d"
	_, err = h.cases.UpdateStatus(ctx, officer, missing, string(domain.ReportStatusReviewed), "")
	if !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err = h.cases.AddReferral(ctx, officer, "not-a-uuid", "OSA", "")
	if !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected not found for malformed id, got %v", err)
	}

	unchanged, _ := h.cases.GetReport(ctx, officer, report.ID)
	if len(unchanged.Timeline) != 1 {
		t.Fatalf("failed updates must not append, got %d entries", len(unchanged.Timeline))
	}
}

func TestUpdateCaseStatusSnapshotsTimeline(t *testing.T) {
	h := newHarness(t)
	report := mustCreate(t, h, reporter, anonymousInput())

	updated, err := h.cases.UpdateCaseStatus(context.Background(), officer, report.ID, "For Referral", "needs counseling")
	if err != nil {
		t.Fatalf("update case status: %v", err)
	}
	last := updated.Timeline[len(updated.Timeline)-1]
	if last.CaseStatus == nil || *last.CaseStatus != domain.CaseStatusForReferral {
		t.Fatalf("expected case status snapshot, got %+v", last)
	}
	if last.Remarks != "needs counseling" {
		t.Fatalf("expected remarks, got %q", last.Remarks)
	}
	if updated.Status != domain.ReportStatusPending {
		t.Fatalf("case status change leaked into status: %q", updated.Status)
	}
}

func TestAddReferralForcesInProgress(t *testing.T) {
	for _, start := range domain.ReportStatuses {
		t.Run(string(start), func(t *testing.T) {
			h := newHarness(t)
			report := mustCreate(t, h, reporter, anonymousInput())
			ctx := context.Background()
			if _, err := h.cases.UpdateStatus(ctx, officer, report.ID, string(start), ""); err != nil {
				t.Fatalf("seed status: %v", err)
			}

			updated, err := h.cases.AddReferral(ctx, officer, report.ID, "Guidance Office", "follow up")
			if err != nil {
				t.Fatalf("add referral: %v", err)
			}
			if updated.Status != domain.ReportStatusInProgress {
				t.Fatalf("expected In Progress, got %q", updated.Status)
			}
			if len(updated.Referrals) != 1 {
				t.Fatalf("expected 1 referral, got %d", len(updated.Referrals))
			}
			ref := updated.Referrals[0]
			if ref.Department != "Guidance Office" || ref.Note != "follow up" || ref.ReferredBy != officer.ID {
				t.Fatalf("unexpected referral %+v", ref)
			}
			last := updated.Timeline[len(updated.Timeline)-1]
			if last.Action != "Referred to Guidance Office" {
				t.Fatalf("unexpected timeline action %q", last.Action)
			}
		})
	}
}

func TestAddReferralRequiresDepartment(t *testing.T) {
	h := newHarness(t)
	report := mustCreate(t, h, reporter, anonymousInput())
	_, err := h.cases.AddReferral(context.Background(), officer, report.ID, "  ", "")
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestArchiveRestoreRoundTrip(t *testing.T) {
	h := newHarness(t)
	report := mustCreate(t, h, reporter, anonymousInput())
	ctx := context.Background()

	if err := h.cases.Archive(ctx, officer, report.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}
	active, _ := h.cases.ListActive(ctx, ReportListFilter{})
	if len(active) != 0 {
		t.Fatalf("archived report still listed as active")
	}
	archived, _ := h.cases.ListArchived(ctx, ReportListFilter{})
	if len(archived) != 1 {
		t.Fatalf("expected 1 archived report, got %d", len(archived))
	}
	fetched, err := h.cases.GetReport(ctx, officer, report.ID)
	if err != nil || !fetched.Archived {
		t.Fatalf("archived report must stay retrievable: %v", err)
	}

	if err := h.cases.Restore(ctx, officer, report.ID); err != nil {
		t.Fatalf("restore: %v", err)
	}
	restored, _ := h.cases.GetReport(ctx, officer, report.ID)
	if restored.Archived != report.Archived {
		t.Fatalf("archived flag not restored")
	}
	if len(restored.Timeline) != 3 {
		t.Fatalf("expected 3 timeline entries, got %d", len(restored.Timeline))
	}
	if restored.Timeline[1].Action != ActionReportArchived || restored.Timeline[2].Action != ActionReportRestored {
		t.Fatalf("unexpected actions %+v", restored.Timeline)
	}
	if restored.Status != report.Status || restored.CaseStatus != report.CaseStatus ||
		restored.TicketNumber != report.TicketNumber || len(restored.Referrals) != 0 {
		t.Fatalf("round trip changed other fields")
	}
	types := h.recorded.types()
	if types[1] != events.EventReportArchived || types[2] != events.EventReportRestored {
		t.Fatalf("unexpected events %v", types)
	}
}

func TestConcurrentMutationsKeepEveryTimelineEntry(t *testing.T) {
	h := newHarness(t)
	report := mustCreate(t, h, reporter, anonymousInput())
	ctx := context.Background()

	const perKind = 10
	var wg sync.WaitGroup
	errs := make(chan error, perKind*4)
	for i := 0; i < perKind; i++ {
		wg.Add(4)
		go func() {
			defer wg.Done()
			_, err := h.cases.UpdateStatus(ctx, officer, report.ID, string(domain.ReportStatusReviewed), "")
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := h.cases.UpdateCaseStatus(ctx, admin, report.ID, string(domain.CaseStatusForReferral), "")
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := h.cases.AddReferral(ctx, officer, report.ID, "OSA", "")
			errs <- err
		}()
		go func(archive bool) {
			defer wg.Done()
			if archive {
				errs <- h.cases.Archive(ctx, admin, report.ID)
			} else {
				errs <- h.cases.Restore(ctx, admin, report.ID)
			}
		}(i%2 == 0)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent op failed: %v", err)
		}
	}

	final, _ := h.cases.GetReport(ctx, officer, report.ID)
	if want := perKind*4 + 1; len(final.Timeline) != want {
		t.Fatalf("expected %d timeline entries, got %d", want, len(final.Timeline))
	}
	if len(final.Referrals) != perKind {
		t.Fatalf("expected %d referrals, got %d", perKind, len(final.Referrals))
	}
}

func TestGetReportAccess(t *testing.T) {
	h := newHarness(t)
	report := mustCreate(t, h, reporter, anonymousInput())
	ctx := context.Background()

	if _, err := h.cases.GetReport(ctx, reporter, report.ID); err != nil {
		t.Fatalf("owner must read own report: %v", err)
	}
	if _, err := h.cases.GetReport(ctx, admin, report.ID); err != nil {
		t.Fatalf("staff must read any report: %v", err)
	}
	if _, err := h.cases.GetReport(ctx, stranger, report.ID); !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	byNumber, err := h.cases.GetReportByTicketNumber(ctx, report.TicketNumber)
	if err != nil || byNumber.ID != report.ID {
		t.Fatalf("lookup by ticket number failed: %v", err)
	}
}

func TestListFilters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	named := mustCreate(t, h, reporter, namedInput())
	anon := mustCreate(t, h, stranger, anonymousInput())
	if _, err := h.cases.UpdateStatus(ctx, officer, anon.ID, string(domain.ReportStatusResolved), ""); err != nil {
		t.Fatalf("seed status: %v", err)
	}

	all, _ := h.cases.ListActive(ctx, ReportListFilter{})
	if len(all) != 2 || all[0].ID != anon.ID {
		t.Fatalf("expected newest first, got %d reports", len(all))
	}
	bySearch, _ := h.cases.ListActive(ctx, ReportListFilter{SearchTerm: "maria"})
	if len(bySearch) != 1 || bySearch[0].ID != named.ID {
		t.Fatalf("search by reporter name failed")
	}
	byNumber, _ := h.cases.ListActive(ctx, ReportListFilter{SearchTerm: anon.TicketNumber})
	if len(byNumber) != 1 || byNumber[0].ID != anon.ID {
		t.Fatalf("search by ticket number failed")
	}
	byStatus, _ := h.cases.ListActive(ctx, ReportListFilter{Status: "Resolved"})
	if len(byStatus) != 1 || byStatus[0].ID != anon.ID {
		t.Fatalf("status filter failed")
	}
	if _, err := h.cases.ListActive(ctx, ReportListFilter{Status: "Done"}); !apperrors.HasCode(err, apperrors.CodeInvalidStatus) {
		t.Fatalf("expected invalid status, got %v", err)
	}
	mine, _ := h.cases.ListMine(ctx, reporter, 0, 0)
	if len(mine) != 1 || mine[0].ID != named.ID {
		t.Fatalf("list mine returned %d reports", len(mine))
	}
}

func TestCaseStatusTriggersSystemMessageOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	report := mustCreate(t, h, reporter, anonymousInput())
	mustOpen(t, h, reporter, report.TicketNumber, true)

	for i := 0; i < 2; i++ {
		if _, err := h.cases.UpdateCaseStatus(ctx, officer, report.ID, string(domain.CaseStatusForInterview), ""); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	msgs, err := h.messaging.ListMessages(ctx, reporter, report.TicketNumber)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected a single system message, got %d", len(msgs))
	}
	if msgs[0].Type != domain.MessageTypeSystem || msgs[0].Action == nil || *msgs[0].Action != domain.ActionProceedToInterview {
		t.Fatalf("unexpected message %+v", msgs[0])
	}
	if msgs[0].SenderLabel != LabelAnonymous {
		t.Fatalf("staff sender must be hidden on anonymous ticket, got %q", msgs[0].SenderLabel)
	}
}

func TestCaseStatusWithoutTicketSkipsSystemMessage(t *testing.T) {
	h := newHarness(t)
	report := mustCreate(t, h, reporter, anonymousInput())
	updated, err := h.cases.UpdateCaseStatus(context.Background(), officer, report.ID, string(domain.CaseStatusForAppointment), "")
	if err != nil {
		t.Fatalf("case status must succeed without a conversation: %v", err)
	}
	if updated.CaseStatus != domain.CaseStatusForAppointment {
		t.Fatalf("unexpected case status %q", updated.CaseStatus)
	}
}

func TestExampleScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	report := mustCreate(t, h, reporter, anonymousInput())
	if !anonTicketPattern.MatchString(report.TicketNumber) {
		t.Fatalf("unexpected ticket number %q", report.TicketNumber)
	}
	mustOpen(t, h, reporter, report.TicketNumber, true)

	if _, err := h.messaging.SendMessage(ctx, reporter, SendMessageInput{TicketNumber: report.TicketNumber, Content: "Need help"}); err != nil {
		t.Fatalf("user message: %v", err)
	}
	ticket, _ := h.messaging.GetTicket(ctx, officer, report.TicketNumber)
	if ticket.UnreadCount.Staff != 1 {
		t.Fatalf("expected unread.staff 1, got %d", ticket.UnreadCount.Staff)
	}

	if _, err := h.messaging.SendMessage(ctx, officer, SendMessageInput{TicketNumber: report.TicketNumber, Content: "On it"}); err != nil {
		t.Fatalf("staff message: %v", err)
	}
	ticket, _ = h.messaging.GetTicket(ctx, officer, report.TicketNumber)
	if ticket.UnreadCount.User != 1 || !ticket.AdminHasReplied {
		t.Fatalf("expected unread.user 1 and adminHasReplied, got %+v", ticket)
	}

	if _, err := h.cases.UpdateCaseStatus(ctx, officer, report.ID, string(domain.CaseStatusForInterview), ""); err != nil {
		t.Fatalf("case status: %v", err)
	}
	final, err := h.cases.AddReferral(ctx, officer, report.ID, "OSA", "escalate")
	if err != nil {
		t.Fatalf("referral: %v", err)
	}

	if final.CaseStatus != domain.CaseStatusForInterview {
		t.Fatalf("expected For Interview, got %q", final.CaseStatus)
	}
	if final.Status != domain.ReportStatusInProgress {
		t.Fatalf("expected In Progress, got %q", final.Status)
	}
	if len(final.Timeline) != 3 {
		t.Fatalf("expected 3 timeline entries, got %d", len(final.Timeline))
	}
	if len(final.Referrals) != 1 {
		t.Fatalf("expected 1 referral, got %d", len(final.Referrals))
	}
}
