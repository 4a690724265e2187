package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/etala/case-service/internal/domain"
)

// ReportFilter captures listing parameters.
type ReportFilter struct {
	Archived   bool
	CreatedBy  *string
	Status     *domain.ReportStatus
	SearchTerm *string
	Limit      int
	Offset     int
}

// ReportChange is one atomic mutation of a report. Entry is always appended to
// the timeline; the optional fields are written in the same statement.
type ReportChange struct {
	Status     *domain.ReportStatus
	CaseStatus *domain.CaseStatus
	Archived   *bool
	Referral   *domain.Referral
	Entry      domain.TimelineEntry
	At         time.Time
}

// ReportRepository encapsulates report persistence.
type ReportRepository interface {
	// Create fails with ErrDuplicateTicketNumber when the ticket number is taken.
	Create(ctx context.Context, report *domain.Report) error
	GetByID(ctx context.Context, id string) (*domain.Report, error)
	GetByTicketNumber(ctx context.Context, ticketNumber string) (*domain.Report, error)
	// Apply mutates a report without reading it first, so concurrent appends
	// to the timeline and referrals are never lost.
	Apply(ctx context.Context, id string, change ReportChange) (*domain.Report, error)
	List(ctx context.Context, filter ReportFilter) ([]domain.Report, error)
}

type reportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository instantiates repository.
func NewReportRepository(pool *pgxpool.Pool) ReportRepository {
	return &reportRepository{pool: pool}
}

const reportColumns = `id, ticket_number, created_by, reporter_name, reporter_contact, is_anonymous,
        incident_types, case_file, attachments, status, case_status, referrals, timeline,
        archived, submitted_at, last_updated`

func (r *reportRepository) Create(ctx context.Context, report *domain.Report) error {
	const query = `
        INSERT INTO reports (id, ticket_number, created_by, reporter_name, reporter_contact, is_anonymous,
            incident_types, case_file, attachments, status, case_status, referrals, timeline,
            archived, submitted_at, last_updated)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
	_, err := r.pool.Exec(ctx, query,
		report.ID,
		report.TicketNumber,
		report.CreatedBy,
		report.ReporterName,
		report.ReporterContact,
		report.IsAnonymous,
		nonNilStrings(report.IncidentTypes),
		nonNilCaseFile(report.CaseFile),
		nonNilAttachments(report.Attachments),
		string(report.Status),
		string(report.CaseStatus),
		nonNilReferrals(report.Referrals),
		report.Timeline,
		report.Archived,
		report.SubmittedAt,
		report.LastUpdated,
	)
	if isUniqueViolation(err, reportsTicketNumberKey) {
		return ErrDuplicateTicketNumber
	}
	return err
}

func (r *reportRepository) GetByID(ctx context.Context, id string) (*domain.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *reportRepository) GetByTicketNumber(ctx context.Context, ticketNumber string) (*domain.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE ticket_number=$1`
	return r.fetchSingle(ctx, query, ticketNumber)
}

func (r *reportRepository) Apply(ctx context.Context, id string, change ReportChange) (*domain.Report, error) {
	query := `
        UPDATE reports SET
            status = COALESCE($2::text, status),
            case_status = COALESCE($3::text, case_status),
            archived = COALESCE($4::boolean, archived),
            referrals = referrals || $5::jsonb,
            timeline = timeline || $6::jsonb,
            last_updated = $7
        WHERE id=$1
        RETURNING ` + reportColumns

	referrals := []domain.Referral{}
	if change.Referral != nil {
		referrals = append(referrals, *change.Referral)
	}
	var status, caseStatus *string
	if change.Status != nil {
		s := string(*change.Status)
		status = &s
	}
	if change.CaseStatus != nil {
		s := string(*change.CaseStatus)
		caseStatus = &s
	}

	row := r.pool.QueryRow(ctx, query,
		id,
		status,
		caseStatus,
		change.Archived,
		referrals,
		[]domain.TimelineEntry{change.Entry},
		change.At,
	)
	report, err := scanReport(row)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return report, nil
}

func (r *reportRepository) List(ctx context.Context, filter ReportFilter) ([]domain.Report, error) {
	clauses := []string{"archived=$1"}
	args := []any{filter.Archived}

	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(ticket_number) LIKE %s OR LOWER(reporter_name) LIKE %s)", placeholder, placeholder))
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM reports WHERE %s ORDER BY submitted_at DESC LIMIT %d OFFSET %d`,
		reportColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *report)
	}
	return result, rows.Err()
}

func (r *reportRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Report, error) {
	report, err := scanReport(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return report, nil
}

func scanReport(row pgx.Row) (*domain.Report, error) {
	var (
		report     domain.Report
		status     string
		caseStatus string
	)
	if err := row.Scan(
		&report.ID,
		&report.TicketNumber,
		&report.CreatedBy,
		&report.ReporterName,
		&report.ReporterContact,
		&report.IsAnonymous,
		&report.IncidentTypes,
		&report.CaseFile,
		&report.Attachments,
		&status,
		&caseStatus,
		&report.Referrals,
		&report.Timeline,
		&report.Archived,
		&report.SubmittedAt,
		&report.LastUpdated,
	); err != nil {
		return nil, err
	}
	report.Status = domain.ReportStatus(status)
	report.CaseStatus = domain.CaseStatus(caseStatus)
	return &report, nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nonNilCaseFile(file domain.CaseFile) domain.CaseFile {
	if file == nil {
		return domain.CaseFile{}
	}
	return file
}

func nonNilAttachments(values []domain.AttachmentRef) []domain.AttachmentRef {
	if values == nil {
		return []domain.AttachmentRef{}
	}
	return values
}

func nonNilReferrals(values []domain.Referral) []domain.Referral {
	if values == nil {
		return []domain.Referral{}
	}
	return values
}
