package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/etala/case-service/internal/domain"
	"github.com/etala/case-service/internal/events"
	"github.com/etala/case-service/internal/identity"
	"github.com/etala/case-service/internal/repository/memory"
)

var (
	reporter = domain.Principal{ID: "user-1", Name: "Maria Santos", Role: domain.RoleUser}
	stranger = domain.Principal{ID: "user-2", Name: "Juan Cruz", Role: domain.RoleUser}
	officer  = domain.Principal{ID: "staff-1", Name: "Officer Reyes", Role: domain.RoleStaff}
	admin    = domain.Principal{ID: "admin-1", Name: "Admin Lim", Role: domain.RoleAdmin}
)

// stepClock advances one second per reading so creation order is total.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []map[string]string
}

func (a *recordingAlerter) Alert(_ error, tags map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, tags)
}

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	store     *memory.Store
	cases     *CaseService
	messaging *MessagingService
	alerter   *recordingAlerter
	recorded  *recordedEvents
}

func newHarness(t *testing.T, opts ...identity.Option) *harness {
	t.Helper()
	clock := newStepClock()
	store := memory.NewStore()
	dispatcher := events.NewInMemoryDispatcher()
	recorded := &recordedEvents{}
	for _, eventType := range notifiedEvents {
		dispatcher.Subscribe(eventType, recorded.handle)
	}
	alerter := &recordingAlerter{}

	genOpts := append([]identity.Option{identity.WithClock(func() time.Time {
		return time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	})}, opts...)

	messaging := NewMessagingService(MessagingDependencies{
		TicketRepo:  store.Tickets(),
		MessageRepo: store.Messages(),
		ReportRepo:  store.Reports(),
		Dispatcher:  dispatcher,
		Alerter:     alerter,
		Clock:       clock.Now,
	})
	cases := NewCaseService(CaseDependencies{
		ReportRepo:  store.Reports(),
		Generator:   identity.NewGenerator("ETALA", genOpts...),
		MaxAttempts: 5,
		Messenger:   messaging,
		Dispatcher:  dispatcher,
		Alerter:     alerter,
		Clock:       clock.Now,
	})
	return &harness{store: store, cases: cases, messaging: messaging, alerter: alerter, recorded: recorded}
}

func anonymousInput() ReportInput {
	return ReportInput{
		IsAnonymous:   true,
		IncidentTypes: []string{"Harassment"},
		CaseFile:      domain.CaseFile{"incidentLocation": "Library"},
		Attachments: []domain.AttachmentRef{
			{URI: "https://blobs.example/1.jpg", Type: domain.AttachmentImage, FileName: "1.jpg"},
		},
	}
}

func namedInput() ReportInput {
	in := anonymousInput()
	in.IsAnonymous = false
	in.ReporterName = "Maria Santos"
	in.ReporterContact = "09170000000"
	return in
}

func mustCreate(t *testing.T, h *harness, actor domain.Principal, in ReportInput) *domain.Report {
	t.Helper()
	report, err := h.cases.CreateReport(context.Background(), actor, in)
	if err != nil {
		t.Fatalf("create report: %v", err)
	}
	return report
}

func mustOpen(t *testing.T, h *harness, actor domain.Principal, ticketNumber string, anonymous bool) *domain.Ticket {
	t.Helper()
	ticket, _, err := h.messaging.OpenOrGetTicket(context.Background(), actor, OpenTicketInput{
		TicketNumber: ticketNumber,
		IsAnonymous:  anonymous,
	})
	if err != nil {
		t.Fatalf("open ticket: %v", err)
	}
	return ticket
}
