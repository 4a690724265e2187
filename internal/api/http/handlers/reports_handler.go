package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/etala/case-service/internal/api/dto"
	"github.com/etala/case-service/internal/domain"
	"github.com/etala/case-service/internal/service"
	apperrors "github.com/etala/case-service/pkg/util/errorutil"
)

// attachmentsField carries attachment references in multipart submissions,
// either as one JSON array or as one JSON object per value.
const attachmentsField = "attachments"

// ReportsHandler exposes the case workflow.
type ReportsHandler struct {
	cases *service.CaseService
}

// NewReportsHandler constructs handler.
func NewReportsHandler(cases *service.CaseService) *ReportsHandler {
	return &ReportsHandler{cases: cases}
}

// Create POST /reports.
func (h *ReportsHandler) Create(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var input service.ReportInput
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		input, err = reportInputFromMultipart(c)
	} else {
		input, err = reportInputFromJSON(c)
	}
	if err != nil {
		return err
	}

	report, err := h.cases.CreateReport(c.UserContext(), principal, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.CreateReportResponse{
		TicketNumber: report.TicketNumber,
		ReportID:     report.ID,
	}})
}

// ListMine GET /reports/mine.
func (h *ReportsHandler) ListMine(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	limit, offset := pagination(c)
	reports, err := h.cases.ListMine(c.UserContext(), principal, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewReportList(reports)})
}

// Get GET /reports/:id.
func (h *ReportsHandler) Get(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	report, err := h.cases.GetReport(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewReportResponse(report)})
}

// GetByTicketNumber GET /staff/reports/by-ticket/:ticketNumber.
func (h *ReportsHandler) GetByTicketNumber(c *fiber.Ctx) error {
	report, err := h.cases.GetReportByTicketNumber(c.UserContext(), c.Params("ticketNumber"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewReportResponse(report)})
}

// ListActive GET /staff/reports.
func (h *ReportsHandler) ListActive(c *fiber.Ctx) error {
	reports, err := h.cases.ListActive(c.UserContext(), listFilter(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewReportList(reports)})
}

// ListArchived GET /staff/reports/archived.
func (h *ReportsHandler) ListArchived(c *fiber.Ctx) error {
	reports, err := h.cases.ListArchived(c.UserContext(), listFilter(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewReportList(reports)})
}

// UpdateStatus PATCH /staff/reports/:id/status.
func (h *ReportsHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	report, err := h.cases.UpdateStatus(c.UserContext(), principal, c.Params("id"), req.Status, req.Remarks)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewReportResponse(report)})
}

// UpdateCaseStatus PATCH /staff/reports/:id/case-status.
func (h *ReportsHandler) UpdateCaseStatus(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	report, err := h.cases.UpdateCaseStatus(c.UserContext(), principal, c.Params("id"), req.CaseStatus, req.Remarks)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewReportResponse(report)})
}

// AddReferral POST /staff/reports/:id/referrals.
func (h *ReportsHandler) AddReferral(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.AddReferralRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	report, err := h.cases.AddReferral(c.UserContext(), principal, c.Params("id"), req.Department, req.Note)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewReportResponse(report)})
}

// Archive POST /staff/reports/:id/archive.
func (h *ReportsHandler) Archive(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	if err := h.cases.Archive(c.UserContext(), principal, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"success": true}})
}

// Restore POST /staff/reports/:id/restore.
func (h *ReportsHandler) Restore(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	if err := h.cases.Restore(c.UserContext(), principal, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"success": true}})
}

func listFilter(c *fiber.Ctx) service.ReportListFilter {
	limit, offset := pagination(c)
	return service.ReportListFilter{
		SearchTerm: c.Query("search"),
		Status:     c.Query("status"),
		Limit:      limit,
		Offset:     offset,
	}
}

func reportInputFromJSON(c *fiber.Ctx) (service.ReportInput, error) {
	var req dto.CreateReportRequest
	if err := c.BodyParser(&req); err != nil {
		return service.ReportInput{}, apperrors.NewValidationError("invalid payload", nil)
	}
	return service.ReportInput{
		IsAnonymous:     req.IsAnonymous,
		ReporterName:    req.ReporterName,
		ReporterContact: req.ReporterContact,
		IncidentTypes:   req.IncidentTypes,
		CaseFile:        domain.CaseFile(req.CaseFile),
		Attachments:     req.Attachments,
	}, nil
}

func reportInputFromMultipart(c *fiber.Ctx) (service.ReportInput, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return service.ReportInput{}, apperrors.NewValidationError("invalid multipart payload", nil)
	}
	fields := service.NormalizeFormFields(form.Value)
	raw := fields[attachmentsField]
	delete(fields, attachmentsField)

	attachments, err := decodeAttachments(raw)
	if err != nil {
		return service.ReportInput{}, apperrors.NewValidationError("attachments must be JSON references",
			map[string]any{attachmentsField: err.Error()})
	}
	return service.ReportInputFromFields(fields, attachments), nil
}

func decodeAttachments(raw any) ([]domain.AttachmentRef, error) {
	var values []string
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		values = []string{v}
	case []string:
		values = v
	}
	var out []domain.AttachmentRef
	for _, value := range values {
		value = strings.TrimSpace(value)
		if strings.HasPrefix(value, "[") {
			var refs []domain.AttachmentRef
			if err := json.Unmarshal([]byte(value), &refs); err != nil {
				return nil, err
			}
			out = append(out, refs...)
			continue
		}
		var ref domain.AttachmentRef
		if err := json.Unmarshal([]byte(value), &ref); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, nil
}
