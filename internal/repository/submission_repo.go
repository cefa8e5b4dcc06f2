package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/montesion/reconciliation/internal/models"
)

// SubmissionRepository reads form_submissions. Submissions are owned by
// the forms subsystem; this side never writes them.
type SubmissionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSubmissionRepository creates a new submission repository.
func NewSubmissionRepository(db *sql.DB, logger *zap.Logger) *SubmissionRepository {
	return &SubmissionRepository{db: db, logger: logger}
}

// ListActiveByForm returns every non-archived submission of a form.
func (r *SubmissionRepository) ListActiveByForm(ctx context.Context, formID int64) ([]*models.FormSubmission, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, form_id, data, access_token, archived, created_at
		FROM form_submissions
		WHERE form_id = ? AND archived = 0
		ORDER BY id
	`, formID)
	if err != nil {
		r.logger.Error("Failed to list submissions", zap.Int64("form_id", formID), zap.Error(err))
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var submissions []*models.FormSubmission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, sub)
	}
	return submissions, rows.Err()
}

// GetByID retrieves a submission by id, nil when absent.
func (r *SubmissionRepository) GetByID(ctx context.Context, id int64) (*models.FormSubmission, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, form_id, data, access_token, archived, created_at
		FROM form_submissions
		WHERE id = ?
	`, id)

	sub, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get submission", zap.Int64("id", id), zap.Error(err))
		return nil, err
	}
	return sub, nil
}

// CountActiveByForm counts non-archived submissions of a form.
func (r *SubmissionRepository) CountActiveByForm(ctx context.Context, formID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM form_submissions WHERE form_id = ? AND archived = 0",
		formID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count submissions: %w", err)
	}
	return count, nil
}

func scanSubmission(row rowScanner) (*models.FormSubmission, error) {
	var sub models.FormSubmission
	var raw []byte
	if err := row.Scan(&sub.ID, &sub.FormID, &raw, &sub.AccessToken, &sub.Archived, &sub.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan submission: %w", err)
	}

	data, err := models.ParseSubmissionData(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid submission data for %d: %w", sub.ID, err)
	}
	sub.Data = data
	return &sub, nil
}
