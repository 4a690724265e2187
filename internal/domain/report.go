package domain

import "time"

// ReportStatus is the disposition of a report.
type ReportStatus string

const (
	ReportStatusPending    ReportStatus = "Pending"
	ReportStatusReviewed   ReportStatus = "Reviewed"
	ReportStatusInProgress ReportStatus = "In Progress"
	ReportStatusResolved   ReportStatus = "Resolved"
	ReportStatusClosed     ReportStatus = "Closed"
)

// ReportStatuses lists every valid status in display order.
var ReportStatuses = []ReportStatus{
	ReportStatusPending,
	ReportStatusReviewed,
	ReportStatusInProgress,
	ReportStatusResolved,
	ReportStatusClosed,
}

// Valid reports whether s is one of ReportStatuses.
func (s ReportStatus) Valid() bool {
	for _, candidate := range ReportStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// CaseStatus is the operational queue stage of a report.
type CaseStatus string

const (
	CaseStatusForQueuing     CaseStatus = "For Queuing"
	CaseStatusForInterview   CaseStatus = "For Interview"
	CaseStatusForAppointment CaseStatus = "For Appointment"
	CaseStatusForReferral    CaseStatus = "For Referral"
	CaseStatusCaseClosed     CaseStatus = "Case Closed"
)

// CaseStatuses lists every valid case status in queue order.
var CaseStatuses = []CaseStatus{
	CaseStatusForQueuing,
	CaseStatusForInterview,
	CaseStatusForAppointment,
	CaseStatusForReferral,
	CaseStatusCaseClosed,
}

// Valid reports whether s is one of CaseStatuses.
func (s CaseStatus) Valid() bool {
	for _, candidate := range CaseStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// AttachmentType classifies an externally stored file.
type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentVideo    AttachmentType = "video"
	AttachmentDocument AttachmentType = "document"
)

// Valid reports whether t is a supported attachment type.
func (t AttachmentType) Valid() bool {
	switch t {
	case AttachmentImage, AttachmentVideo, AttachmentDocument:
		return true
	}
	return false
}

// AttachmentRef points at a file held by the blob store.
type AttachmentRef struct {
	URI      string         `json:"uri"`
	Type     AttachmentType `json:"type"`
	FileName string         `json:"fileName"`
}

// CaseFile holds the free-form victim, perpetrator and incident fields.
// Workflow logic never inspects it.
type CaseFile map[string]any

// Referral records a hand-off to another department.
type Referral struct {
	Department string    `json:"department"`
	Note       string    `json:"note,omitempty"`
	ReferredBy string    `json:"referredBy"`
	Date       time.Time `json:"date"`
}

// TimelineEntry is one append-only audit record.
type TimelineEntry struct {
	Action      string      `json:"action"`
	PerformedBy string      `json:"performedBy"`
	Timestamp   time.Time   `json:"timestamp"`
	Remarks     string      `json:"remarks,omitempty"`
	CaseStatus  *CaseStatus `json:"caseStatus,omitempty"`
}

// Report is the aggregate for a submitted incident.
type Report struct {
	ID              string
	TicketNumber    string
	CreatedBy       string
	ReporterName    string
	ReporterContact string
	IsAnonymous     bool
	IncidentTypes   []string
	CaseFile        CaseFile
	Attachments     []AttachmentRef
	Status          ReportStatus
	CaseStatus      CaseStatus
	Referrals       []Referral
	Timeline        []TimelineEntry
	Archived        bool
	SubmittedAt     time.Time
	LastUpdated     time.Time
}
