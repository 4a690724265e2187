// Package memory provides process-local repositories used when no Postgres
// DSN is configured and by tests. A single mutex serialises every mutation,
// which gives the same atomic append, increment and unique-action guarantees
// as the Postgres implementation.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/etala/case-service/internal/domain"
	"github.com/etala/case-service/internal/repository"
)

// Store holds reports, tickets and messages behind one lock.
type Store struct {
	mu       sync.Mutex
	reports  map[string]*domain.Report
	byNumber map[string]string
	tickets  map[string]*domain.Ticket
	messages []*domain.Message
	actions  map[string]struct{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		reports:  make(map[string]*domain.Report),
		byNumber: make(map[string]string),
		tickets:  make(map[string]*domain.Ticket),
		actions:  make(map[string]struct{}),
	}
}

// Reports returns the report repository view.
func (s *Store) Reports() repository.ReportRepository { return reportRepo{s} }

// Tickets returns the ticket repository view.
func (s *Store) Tickets() repository.TicketRepository { return ticketRepo{s} }

// Messages returns the message repository view.
func (s *Store) Messages() repository.MessageRepository { return messageRepo{s} }

type reportRepo struct{ s *Store }

func (r reportRepo) Create(_ context.Context, report *domain.Report) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, taken := r.s.byNumber[report.TicketNumber]; taken {
		return repository.ErrDuplicateTicketNumber
	}
	stored := cloneReport(report)
	r.s.reports[report.ID] = stored
	r.s.byNumber[report.TicketNumber] = report.ID
	return nil
}

func (r reportRepo) GetByID(_ context.Context, id string) (*domain.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	report, ok := r.s.reports[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneReport(report), nil
}

func (r reportRepo) GetByTicketNumber(_ context.Context, ticketNumber string) (*domain.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.byNumber[ticketNumber]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneReport(r.s.reports[id]), nil
}

func (r reportRepo) Apply(_ context.Context, id string, change repository.ReportChange) (*domain.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	report, ok := r.s.reports[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if change.Status != nil {
		report.Status = *change.Status
	}
	if change.CaseStatus != nil {
		report.CaseStatus = *change.CaseStatus
	}
	if change.Archived != nil {
		report.Archived = *change.Archived
	}
	if change.Referral != nil {
		report.Referrals = append(report.Referrals, *change.Referral)
	}
	report.Timeline = append(report.Timeline, change.Entry)
	report.LastUpdated = change.At
	return cloneReport(report), nil
}

func (r reportRepo) List(_ context.Context, filter repository.ReportFilter) ([]domain.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	search := ""
	if filter.SearchTerm != nil {
		search = strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
	}
	out := make([]domain.Report, 0)
	for _, report := range r.s.reports {
		if report.Archived != filter.Archived {
			continue
		}
		if filter.CreatedBy != nil && report.CreatedBy != *filter.CreatedBy {
			continue
		}
		if filter.Status != nil && report.Status != *filter.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(report.TicketNumber), search) &&
			!strings.Contains(strings.ToLower(report.ReporterName), search) {
			continue
		}
		out = append(out, *cloneReport(report))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return page(out, filter.Limit, filter.Offset), nil
}

type ticketRepo struct{ s *Store }

func (r ticketRepo) CreateIfAbsent(_ context.Context, ticket *domain.Ticket) (*domain.Ticket, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.tickets[ticket.TicketNumber]; ok {
		return cloneTicket(existing), false, nil
	}
	stored := cloneTicket(ticket)
	stored.UpdatedAt = stored.CreatedAt
	r.s.tickets[ticket.TicketNumber] = stored
	return cloneTicket(stored), true, nil
}

func (r ticketRepo) GetByNumber(_ context.Context, ticketNumber string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ticket, ok := r.s.tickets[ticketNumber]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneTicket(ticket), nil
}

func (r ticketRepo) Close(_ context.Context, ticketNumber, reason string, at time.Time) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ticket, ok := r.s.tickets[ticketNumber]
	if !ok {
		return nil, repository.ErrNotFound
	}
	closedAt := at
	ticket.Status = domain.TicketStatusClosed
	ticket.ClosedAt = &closedAt
	ticket.ClosedReason = reason
	ticket.UpdatedAt = at
	return cloneTicket(ticket), nil
}

func (r ticketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Ticket, 0, len(r.s.tickets))
	for _, ticket := range r.s.tickets {
		if filter.UserID != nil && ticket.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && ticket.Status != *filter.Status {
			continue
		}
		out = append(out, *cloneTicket(ticket))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return activity(&out[i]).After(activity(&out[j]))
	})
	return page(out, filter.Limit, filter.Offset), nil
}

type messageRepo struct{ s *Store }

func (r messageRepo) Append(_ context.Context, delivery repository.Delivery) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msg := delivery.Message
	ticket, ok := r.s.tickets[msg.TicketNumber]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if msg.Action != nil {
		key := msg.TicketNumber + "\x00" + *msg.Action
		if _, dup := r.s.actions[key]; dup {
			return nil, repository.ErrDuplicateAction
		}
		r.s.actions[key] = struct{}{}
	}
	r.s.messages = append(r.s.messages, cloneMessage(msg))

	if delivery.Recipient == domain.PartyStaff {
		ticket.UnreadCount.Staff++
	} else {
		ticket.UnreadCount.User++
	}
	if delivery.StaffReply {
		ticket.AdminHasReplied = true
	}
	at := msg.CreatedAt
	ticket.LastMessage = delivery.Preview
	ticket.LastMessageAt = &at
	ticket.UpdatedAt = at
	return cloneTicket(ticket), nil
}

func (r messageRepo) ListByTicket(_ context.Context, ticketNumber string) ([]domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Message, 0)
	for _, msg := range r.s.messages {
		if msg.TicketNumber == ticketNumber {
			out = append(out, *cloneMessage(msg))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r messageRepo) GetByID(_ context.Context, id string) (*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, msg := range r.s.messages {
		if msg.ID == id {
			return cloneMessage(msg), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r messageRepo) MarkRead(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, msg := range r.s.messages {
		if msg.ID == id {
			msg.Read = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r messageRepo) MarkAllRead(_ context.Context, ticketNumber, readerID string, reader domain.Party) (int64, *domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ticket, ok := r.s.tickets[ticketNumber]
	if !ok {
		return 0, nil, repository.ErrNotFound
	}
	var marked int64
	for _, msg := range r.s.messages {
		if msg.TicketNumber != ticketNumber || msg.SenderID == readerID || msg.Read {
			continue
		}
		msg.Read = true
		marked++
	}
	if reader == domain.PartyStaff {
		ticket.UnreadCount.Staff = 0
	} else {
		ticket.UnreadCount.User = 0
	}
	return marked, cloneTicket(ticket), nil
}

func activity(t *domain.Ticket) time.Time {
	if t.LastMessageAt != nil {
		return *t.LastMessageAt
	}
	return t.CreatedAt
}

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func cloneReport(r *domain.Report) *domain.Report {
	out := *r
	out.IncidentTypes = append([]string(nil), r.IncidentTypes...)
	out.Attachments = append([]domain.AttachmentRef(nil), r.Attachments...)
	out.Referrals = append([]domain.Referral(nil), r.Referrals...)
	out.Timeline = append([]domain.TimelineEntry(nil), r.Timeline...)
	if r.CaseFile != nil {
		out.CaseFile = make(domain.CaseFile, len(r.CaseFile))
		for k, v := range r.CaseFile {
			out.CaseFile[k] = v
		}
	}
	return &out
}

func cloneTicket(t *domain.Ticket) *domain.Ticket {
	out := *t
	if t.ClosedAt != nil {
		closedAt := *t.ClosedAt
		out.ClosedAt = &closedAt
	}
	if t.LastMessageAt != nil {
		lastAt := *t.LastMessageAt
		out.LastMessageAt = &lastAt
	}
	return &out
}

func cloneMessage(m *domain.Message) *domain.Message {
	out := *m
	if m.Action != nil {
		action := *m.Action
		out.Action = &action
	}
	return &out
}
