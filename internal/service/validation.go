package service

import (
	"strconv"
	"strings"

	"github.com/etala/case-service/internal/domain"
	apperrors "github.com/etala/case-service/pkg/util/errorutil"
)

// AnonymousReporterName replaces the reporter name on anonymous reports.
const AnonymousReporterName = "Anonymous"

// Form keys the workflow reads; every other key lands in the case file.
const (
	fieldIsAnonymous     = "isAnonymous"
	fieldReporterName    = "reporterName"
	fieldReporterContact = "reporterContact"
	fieldIncidentTypes   = "incidentTypes"
)

// ReportInput is the caller-supplied content of a new report.
type ReportInput struct {
	IsAnonymous     bool
	ReporterName    string
	ReporterContact string
	IncidentTypes   []string
	CaseFile        domain.CaseFile
	Attachments     []domain.AttachmentRef
}

// ValidateReportInput checks required fields for the report's anonymity class
// and returns a normalized copy.
func ValidateReportInput(in ReportInput) (ReportInput, error) {
	out := ReportInput{
		IsAnonymous:     in.IsAnonymous,
		ReporterName:    strings.TrimSpace(in.ReporterName),
		ReporterContact: strings.TrimSpace(in.ReporterContact),
		IncidentTypes:   normalizeSet(in.IncidentTypes),
		CaseFile:        in.CaseFile,
	}
	if out.CaseFile == nil {
		out.CaseFile = domain.CaseFile{}
	}
	problems := map[string]any{}

	if len(out.IncidentTypes) == 0 {
		problems[fieldIncidentTypes] = "at least one incident type is required"
	}
	if out.IsAnonymous {
		out.ReporterName = AnonymousReporterName
		out.ReporterContact = ""
	} else {
		if out.ReporterName == "" {
			problems[fieldReporterName] = "required for named reports"
		}
		if out.ReporterContact == "" {
			problems[fieldReporterContact] = "required for named reports"
		}
	}

	if len(in.Attachments) == 0 {
		problems["attachments"] = "at least one attachment is required"
	}
	for i, att := range in.Attachments {
		ref := domain.AttachmentRef{
			URI:      strings.TrimSpace(att.URI),
			Type:     domain.AttachmentType(strings.ToLower(strings.TrimSpace(string(att.Type)))),
			FileName: strings.TrimSpace(att.FileName),
		}
		key := "attachments[" + strconv.Itoa(i) + "]"
		switch {
		case ref.URI == "":
			problems[key] = "uri is required"
		case !ref.Type.Valid():
			problems[key] = "type must be image, video or document"
		case ref.FileName == "":
			problems[key] = "fileName is required"
		}
		out.Attachments = append(out.Attachments, ref)
	}

	if len(problems) > 0 {
		return ReportInput{}, apperrors.NewValidationError("report payload is invalid", problems)
	}
	return out, nil
}

// NormalizeFormFields collapses multipart values. Keys written as "field[]"
// or repeated keys become string slices; single values stay strings.
func NormalizeFormFields(values map[string][]string) map[string]any {
	collected := make(map[string][]string, len(values))
	repeated := make(map[string]bool)
	for key, vals := range values {
		name, bracketed := strings.CutSuffix(key, "[]")
		collected[name] = append(collected[name], vals...)
		if bracketed {
			repeated[name] = true
		}
	}

	out := make(map[string]any, len(collected))
	for name, vals := range collected {
		if len(vals) == 1 && !repeated[name] {
			out[name] = vals[0]
			continue
		}
		out[name] = vals
	}
	return out
}

// ReportInputFromFields maps normalized form fields onto a ReportInput.
func ReportInputFromFields(fields map[string]any, attachments []domain.AttachmentRef) ReportInput {
	in := ReportInput{CaseFile: domain.CaseFile{}, Attachments: attachments}
	for key, value := range fields {
		switch key {
		case fieldIsAnonymous:
			flag, _ := strconv.ParseBool(firstString(value))
			in.IsAnonymous = flag
		case fieldReporterName:
			in.ReporterName = firstString(value)
		case fieldReporterContact:
			in.ReporterContact = firstString(value)
		case fieldIncidentTypes:
			in.IncidentTypes = asStrings(value)
		default:
			in.CaseFile[key] = value
		}
	}
	return in
}

func firstString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func asStrings(value any) []string {
	switch v := value.(type) {
	case string:
		return strings.Split(v, ",")
	case []string:
		return v
	}
	return nil
}

func normalizeSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
