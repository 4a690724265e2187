package http

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/etala/case-service/internal/api/http/handlers"
	"github.com/etala/case-service/internal/auth"
	"github.com/etala/case-service/internal/domain"
	"github.com/etala/case-service/internal/events"
	"github.com/etala/case-service/internal/observability"
	"github.com/etala/case-service/internal/repository/memory"
	"github.com/etala/case-service/internal/service"
)

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	dispatcher := events.NewInMemoryDispatcher()
	messaging := service.NewMessagingService(service.MessagingDependencies{
		TicketRepo:  store.Tickets(),
		MessageRepo: store.Messages(),
		ReportRepo:  store.Reports(),
		Dispatcher:  dispatcher,
	})
	cases := service.NewCaseService(service.CaseDependencies{
		ReportRepo: store.Reports(),
		Messenger:  messaging,
		Dispatcher: dispatcher,
	})
	tokens := auth.NewTokenManager("test-secret", 5)
	metrics := observability.NewMetrics()

	app := fiber.New()
	RegisterMiddlewares(app, MiddlewareConfig{Metrics: metrics})
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("case-service", "test", metrics, nil),
		Reports:        handlers.NewReportsHandler(cases),
		Tickets:        handlers.NewTicketsHandler(messaging),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	return &testServer{app: app, tokens: tokens}
}

func (s *testServer) token(t *testing.T, p domain.Principal) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken(p)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return token
}

// do sends a request and decodes the JSON response into out when non-nil.
func (s *testServer) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	return s.send(t, req, out)
}

func (s *testServer) send(t *testing.T, req *nethttp.Request, out any) int {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", req.URL.Path, err)
		}
	}
	return resp.StatusCode
}

type envelope[T any] struct {
	Data  T `json:"data"`
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

var (
	maria  = domain.Principal{ID: "user-1", Name: "Maria Santos", Role: domain.RoleUser}
	juan   = domain.Principal{ID: "user-2", Name: "Juan Cruz", Role: domain.RoleUser}
	reyes  = domain.Principal{ID: "staff-1", Name: "Officer Reyes", Role: domain.RoleStaff}
	report = map[string]any{
		"isAnonymous":   true,
		"incidentTypes": []string{"Harassment"},
		"caseFile":      map[string]any{"incidentLocation": "Library"},
		"attachments": []map[string]string{
			{"uri": "https://blobs.example/1.jpg", "type": "image", "fileName": "1.jpg"},
		},
	}
)

func TestReportAndMessagingFlow(t *testing.T) {
	s := newTestServer(t)
	userToken, staffToken := s.token(t, maria), s.token(t, reyes)

	var created envelope[struct {
		TicketNumber string `json:"ticketNumber"`
		ReportID     string `json:"reportId"`
	}]
	if code := s.do(t, fiber.MethodPost, "/reports", userToken, report, &created); code != fiber.StatusCreated {
		t.Fatalf("create report: %d %+v", code, created.Error)
	}
	ticketNumber, reportID := created.Data.TicketNumber, created.Data.ReportID

	if code := s.do(t, fiber.MethodPost, "/tickets", userToken, map[string]any{"ticketNumber": ticketNumber, "isAnonymous": true}, nil); code != fiber.StatusCreated {
		t.Fatalf("open ticket: %d", code)
	}
	if code := s.do(t, fiber.MethodPost, "/tickets", userToken, map[string]any{"ticketNumber": ticketNumber, "isAnonymous": false}, nil); code != fiber.StatusOK {
		t.Fatalf("reopen ticket: %d", code)
	}
	if code := s.do(t, fiber.MethodPost, "/tickets/"+ticketNumber+"/messages", userToken, map[string]any{"content": "Need help"}, nil); code != fiber.StatusCreated {
		t.Fatalf("user message: %d", code)
	}
	if code := s.do(t, fiber.MethodPost, "/tickets/"+ticketNumber+"/messages", staffToken, map[string]any{"content": "On it"}, nil); code != fiber.StatusCreated {
		t.Fatalf("staff message: %d", code)
	}

	var staffView envelope[[]struct {
		Sender  string `json:"sender"`
		Content string `json:"content"`
	}]
	s.do(t, fiber.MethodGet, "/tickets/"+ticketNumber+"/messages", staffToken, nil, &staffView)
	if len(staffView.Data) != 2 || staffView.Data[0].Sender != "Anonymous" || staffView.Data[1].Sender != "You" {
		t.Fatalf("unexpected staff projection %+v", staffView.Data)
	}
	var userView envelope[[]struct {
		Sender string `json:"sender"`
	}]
	s.do(t, fiber.MethodGet, "/tickets/"+ticketNumber+"/messages", userToken, nil, &userView)
	if userView.Data[0].Sender != "You" || userView.Data[1].Sender != "Anonymous" {
		t.Fatalf("unexpected user projection %+v", userView.Data)
	}

	var ticket envelope[struct {
		UserID          string             `json:"userId"`
		IsAnonymous     bool               `json:"isAnonymous"`
		UnreadCount     domain.UnreadCount `json:"unreadCount"`
		AdminHasReplied bool               `json:"adminHasReplied"`
	}]
	s.do(t, fiber.MethodGet, "/tickets/"+ticketNumber, staffToken, nil, &ticket)
	if !ticket.Data.IsAnonymous || ticket.Data.UserID != "" {
		t.Fatalf("anonymous ticket leaked participant: %+v", ticket.Data)
	}
	if ticket.Data.UnreadCount != (domain.UnreadCount{Staff: 1, User: 1}) || !ticket.Data.AdminHasReplied {
		t.Fatalf("unexpected counters %+v", ticket.Data)
	}

	if code := s.do(t, fiber.MethodPatch, "/staff/reports/"+reportID+"/case-status", staffToken, map[string]any{"caseStatus": "For Interview"}, nil); code != fiber.StatusOK {
		t.Fatalf("case status: %d", code)
	}
	var final envelope[struct {
		Status     string `json:"status"`
		CaseStatus string `json:"caseStatus"`
		Referrals  []any  `json:"referrals"`
		Timeline   []any  `json:"timeline"`
	}]
	if code := s.do(t, fiber.MethodPost, "/staff/reports/"+reportID+"/referrals", staffToken, map[string]any{"department": "OSA", "note": "escalate"}, &final); code != fiber.StatusOK {
		t.Fatalf("referral: %d", code)
	}
	if final.Data.Status != "In Progress" || final.Data.CaseStatus != "For Interview" ||
		len(final.Data.Timeline) != 3 || len(final.Data.Referrals) != 1 {
		t.Fatalf("unexpected final report %+v", final.Data)
	}

	var byNumber envelope[struct {
		ID string `json:"id"`
	}]
	if code := s.do(t, fiber.MethodGet, "/staff/reports/by-ticket/"+ticketNumber, staffToken, nil, &byNumber); code != fiber.StatusOK || byNumber.Data.ID != reportID {
		t.Fatalf("lookup by ticket number: %d %+v", code, byNumber.Data)
	}

	var afterRead envelope[struct {
		UnreadCount domain.UnreadCount `json:"unreadCount"`
	}]
	s.do(t, fiber.MethodPost, "/tickets/"+ticketNumber+"/read", userToken, nil, &afterRead)
	if afterRead.Data.UnreadCount.User != 0 {
		t.Fatalf("expected user counter reset, got %+v", afterRead.Data.UnreadCount)
	}
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer(t)
	userToken, strangerToken, staffToken := s.token(t, maria), s.token(t, juan), s.token(t, reyes)

	var created envelope[struct {
		ReportID string `json:"reportId"`
	}]
	s.do(t, fiber.MethodPost, "/reports", userToken, report, &created)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
		code   string
	}{
		{"no token", fiber.MethodGet, "/reports/mine", "", nil, fiber.StatusUnauthorized, "UNAUTHORIZED"},
		{"user on staff route", fiber.MethodGet, "/staff/reports", userToken, nil, fiber.StatusForbidden, "FORBIDDEN"},
		{"other user's report", fiber.MethodGet, "/reports/" + created.Data.ReportID, strangerToken, nil, fiber.StatusForbidden, "FORBIDDEN"},
		{"missing attachments", fiber.MethodPost, "/reports", userToken, map[string]any{"isAnonymous": true, "incidentTypes": []string{"X"}}, fiber.StatusBadRequest, "VALIDATION_FAILED"},
		{"bad status", fiber.MethodPatch, "/staff/reports/" + created.Data.ReportID + "/status", staffToken, map[string]any{"status": "Done"}, fiber.StatusBadRequest, "INVALID_STATUS"},
		{"bad case status", fiber.MethodPatch, "/staff/reports/" + created.Data.ReportID + "/case-status", staffToken, map[string]any{"caseStatus": "Later"}, fiber.StatusBadRequest, "INVALID_CASE_STATUS"},
		{"unknown report", fiber.MethodPost, "/staff/reports/7f1f6c1e-3c1b-4a55-9f0e-9f7a1f1b2c3d/archive", staffToken, nil, fiber.StatusNotFound, "NOT_FOUND"},
		{"unknown ticket number", fiber.MethodGet, "/staff/reports/by-ticket/ETALA-ID-202601-0001", staffToken, nil, fiber.StatusNotFound, "NOT_FOUND"},
		{"unknown ticket", fiber.MethodPost, "/tickets/ETALA-ID-202601-0001/messages", userToken, map[string]any{"content": "hi"}, fiber.StatusNotFound, "NOT_FOUND"},
		{"unknown route", fiber.MethodGet, "/nope", "", nil, fiber.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp envelope[any]
			status := s.do(t, tt.method, tt.path, tt.token, tt.body, &resp)
			if status != tt.status || resp.Error.Code != tt.code {
				t.Fatalf("expected %d %s, got %d %s", tt.status, tt.code, status, resp.Error.Code)
			}
		})
	}
}

func TestCreateReportMultipart(t *testing.T) {
	s := newTestServer(t)
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"isAnonymous", "false"},
		{"reporterName", "Maria Santos"},
		{"reporterContact", "0917"},
		{"incidentTypes[]", "Bullying"},
		{"incidentTypes[]", "Harassment"},
		{"witnesses[]", "Ana"},
		{"attachments", `[{"uri":"https://blobs.example/a.pdf","type":"document","fileName":"a.pdf"}]`},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(fiber.MethodPost, "/reports", &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+s.token(t, maria))
	var created envelope[struct {
		ReportID string `json:"reportId"`
	}]
	if status := s.send(t, req, &created); status != fiber.StatusCreated {
		t.Fatalf("multipart create: %d %+v", status, created.Error)
	}

	var got envelope[struct {
		ReporterName  string         `json:"reporterName"`
		IncidentTypes []string       `json:"incidentTypes"`
		CaseFile      map[string]any `json:"caseFile"`
		Attachments   []any          `json:"attachments"`
	}]
	s.do(t, fiber.MethodGet, "/reports/"+created.Data.ReportID, s.token(t, maria), nil, &got)
	if got.Data.ReporterName != "Maria Santos" || len(got.Data.IncidentTypes) != 2 || len(got.Data.Attachments) != 1 {
		t.Fatalf("unexpected report %+v", got.Data)
	}
	if witnesses, ok := got.Data.CaseFile["witnesses"].([]any); !ok || len(witnesses) != 1 {
		t.Fatalf("bracketed field missing from case file: %v", got.Data.CaseFile)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	if code := s.do(t, fiber.MethodGet, "/health/live", "", nil, nil); code != fiber.StatusOK {
		t.Fatalf("live: %d", code)
	}
	if code := s.do(t, fiber.MethodGet, "/health/ready", "", nil, nil); code != fiber.StatusOK {
		t.Fatalf("ready without dependencies: %d", code)
	}
	var snap observability.MetricsSnapshot
	s.do(t, fiber.MethodGet, "/metrics", "", nil, &snap)
	if len(snap.Requests) == 0 {
		t.Fatalf("expected recorded requests")
	}
}
