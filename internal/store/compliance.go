package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Compliance risk levels.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// ComplianceRecord is a supervisor-authored review note attached to a user
// (SPEC_FULL.md "Supplemented Features"). It is an optional surface: the
// ingestion pipeline never writes one, only the HTTP facade does, on a
// supervisor's explicit action.
type ComplianceRecord struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Title      string
	Narrative  string
	RiskLevel  string
	Reviewed   bool
	ReviewedBy *uuid.UUID
	ReviewedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

const complianceColumns = `id, user_id, title, narrative, risk_level, reviewed, reviewed_by, reviewed_at, created_at, updated_at`

func scanCompliance(row interface{ Scan(...any) error }) (ComplianceRecord, error) {
	var c ComplianceRecord
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.Narrative, &c.RiskLevel, &c.Reviewed, &c.ReviewedBy, &c.ReviewedAt, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// CreateComplianceRecord inserts a new review note.
func (s *Store) CreateComplianceRecord(ctx context.Context, dbtx DBTX, userID uuid.UUID, title, narrative, riskLevel string) (ComplianceRecord, error) {
	row := dbtx.QueryRow(ctx, `
		INSERT INTO compliance_records (user_id, title, narrative, risk_level)
		VALUES ($1, $2, $3, $4)
		RETURNING `+complianceColumns,
		userID, title, narrative, riskLevel,
	)
	c, err := scanCompliance(row)
	if err != nil {
		return ComplianceRecord{}, translateErr("creating compliance record", err)
	}
	return c, nil
}

// GetComplianceRecord returns a single record by id.
func (s *Store) GetComplianceRecord(ctx context.Context, dbtx DBTX, id uuid.UUID) (ComplianceRecord, error) {
	row := dbtx.QueryRow(ctx, `SELECT `+complianceColumns+` FROM compliance_records WHERE id = $1`, id)
	c, err := scanCompliance(row)
	if err != nil {
		return ComplianceRecord{}, translateErr("getting compliance record", err)
	}
	return c, nil
}

// ListComplianceRecords returns records for a user, most recent first.
// userID nil lists every record (supervisor view).
func (s *Store) ListComplianceRecords(ctx context.Context, dbtx DBTX, userID *uuid.UUID) ([]ComplianceRecord, error) {
	query := `SELECT ` + complianceColumns + ` FROM compliance_records`
	var args []any
	if userID != nil {
		query += ` WHERE user_id = $1`
		args = append(args, *userID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := dbtx.Query(ctx, query, args...)
	if err != nil {
		return nil, translateErr("listing compliance records", err)
	}
	defer rows.Close()

	var out []ComplianceRecord
	for rows.Next() {
		c, err := scanCompliance(rows)
		if err != nil {
			return nil, translateErr("scanning compliance record", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("iterating compliance records", err)
	}
	return out, nil
}

// ReviewComplianceRecord marks a record reviewed by actor.
func (s *Store) ReviewComplianceRecord(ctx context.Context, dbtx DBTX, id, actor uuid.UUID, at time.Time) (ComplianceRecord, error) {
	row := dbtx.QueryRow(ctx, `
		UPDATE compliance_records SET
			reviewed = true,
			reviewed_by = COALESCE(reviewed_by, $2),
			reviewed_at = COALESCE(reviewed_at, $3),
			updated_at = now()
		WHERE id = $1
		RETURNING `+complianceColumns,
		id, actor, at,
	)
	c, err := scanCompliance(row)
	if err != nil {
		return ComplianceRecord{}, translateErr("reviewing compliance record", err)
	}
	return c, nil
}

// DeleteComplianceRecord removes a record.
func (s *Store) DeleteComplianceRecord(ctx context.Context, dbtx DBTX, id uuid.UUID) error {
	tag, err := dbtx.Exec(ctx, `DELETE FROM compliance_records WHERE id = $1`, id)
	if err != nil {
		return translateErr("deleting compliance record", err)
	}
	if tag.RowsAffected() == 0 {
		return translateErr("deleting compliance record", errNotFound)
	}
	return nil
}
