package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/montesion/reconciliation/internal/models"
)

// FormRepository reads forms and events. Both tables are owned by other
// subsystems and read-only here.
type FormRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewFormRepository creates a new form repository.
func NewFormRepository(db *sql.DB, logger *zap.Logger) *FormRepository {
	return &FormRepository{db: db, logger: logger}
}

// GetByID retrieves a form by id, nil when absent.
func (r *FormRepository) GetByID(ctx context.Context, id int64) (*models.Form, error) {
	var form models.Form
	err := r.db.QueryRowContext(ctx,
		"SELECT id, event_id, title, financial_field FROM forms WHERE id = ?",
		id,
	).Scan(&form.ID, &form.EventID, &form.Title, &form.FinancialField)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get form", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get form: %w", err)
	}
	return &form, nil
}

// FinancialFormEvent is one financial-enabled form joined with its
// non-archived event, feeding the per-event summary.
type FinancialFormEvent struct {
	FormID     int64
	EventID    int64
	EventTitle string
	StartTime  time.Time
}

// ListFinancialForms returns every form with a configured financial field
// whose event is not archived.
func (r *FormRepository) ListFinancialForms(ctx context.Context) ([]FinancialFormEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT f.id, e.id, e.title, e.start_time
		FROM forms f
		JOIN events e ON e.id = f.event_id
		WHERE f.financial_field != '' AND e.archived = 0
		ORDER BY e.start_time DESC
	`)
	if err != nil {
		r.logger.Error("Failed to list financial forms", zap.Error(err))
		return nil, fmt.Errorf("failed to list financial forms: %w", err)
	}
	defer rows.Close()

	var forms []FinancialFormEvent
	for rows.Next() {
		var f FinancialFormEvent
		if err := rows.Scan(&f.FormID, &f.EventID, &f.EventTitle, &f.StartTime); err != nil {
			return nil, fmt.Errorf("failed to scan financial form: %w", err)
		}
		forms = append(forms, f)
	}
	return forms, rows.Err()
}
