package dto

import (
	"time"

	"github.com/etala/case-service/internal/domain"
)

// CreateReportRequest is the JSON form of a report submission. Multipart
// submissions carry the same keys as form fields.
type CreateReportRequest struct {
	IsAnonymous     bool                   `json:"isAnonymous"`
	ReporterName    string                 `json:"reporterName"`
	ReporterContact string                 `json:"reporterContact"`
	IncidentTypes   []string               `json:"incidentTypes"`
	CaseFile        map[string]any         `json:"caseFile"`
	Attachments     []domain.AttachmentRef `json:"attachments"`
}

// CreateReportResponse identifies a new report.
type CreateReportResponse struct {
	TicketNumber string `json:"ticketNumber"`
	ReportID     string `json:"reportId"`
}

// UpdateStatusRequest payload for status and case status changes.
type UpdateStatusRequest struct {
	Status     string `json:"status"`
	CaseStatus string `json:"caseStatus"`
	Remarks    string `json:"remarks"`
}

// AddReferralRequest payload.
type AddReferralRequest struct {
	Department string `json:"department"`
	Note       string `json:"note"`
}

// ReportResponse is the report projection returned by the API.
type ReportResponse struct {
	ID              string                 `json:"id"`
	TicketNumber    string                 `json:"ticketNumber"`
	CreatedBy       string                 `json:"createdBy"`
	ReporterName    string                 `json:"reporterName"`
	ReporterContact string                 `json:"reporterContact,omitempty"`
	IsAnonymous     bool                   `json:"isAnonymous"`
	IncidentTypes   []string               `json:"incidentTypes"`
	CaseFile        domain.CaseFile        `json:"caseFile"`
	Attachments     []domain.AttachmentRef `json:"attachments"`
	Status          domain.ReportStatus    `json:"status"`
	CaseStatus      domain.CaseStatus      `json:"caseStatus"`
	Referrals       []domain.Referral      `json:"referrals"`
	Timeline        []domain.TimelineEntry `json:"timeline"`
	Archived        bool                   `json:"archived"`
	SubmittedAt     time.Time              `json:"submittedAt"`
	LastUpdated     time.Time              `json:"lastUpdated"`
}

// NewReportResponse projects a report.
func NewReportResponse(r *domain.Report) ReportResponse {
	return ReportResponse{
		ID:              r.ID,
		TicketNumber:    r.TicketNumber,
		CreatedBy:       r.CreatedBy,
		ReporterName:    r.ReporterName,
		ReporterContact: r.ReporterContact,
		IsAnonymous:     r.IsAnonymous,
		IncidentTypes:   nonNil(r.IncidentTypes),
		CaseFile:        r.CaseFile,
		Attachments:     nonNil(r.Attachments),
		Status:          r.Status,
		CaseStatus:      r.CaseStatus,
		Referrals:       nonNil(r.Referrals),
		Timeline:        nonNil(r.Timeline),
		Archived:        r.Archived,
		SubmittedAt:     r.SubmittedAt,
		LastUpdated:     r.LastUpdated,
	}
}

// NewReportList projects a page of reports.
func NewReportList(reports []domain.Report) []ReportResponse {
	out := make([]ReportResponse, 0, len(reports))
	for i := range reports {
		out = append(out, NewReportResponse(&reports[i]))
	}
	return out
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
