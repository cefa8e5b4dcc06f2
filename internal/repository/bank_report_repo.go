package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/montesion/reconciliation/internal/models"
)

// BankReportRepository handles bank_reports database operations.
type BankReportRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBankReportRepository creates a new bank report repository.
func NewBankReportRepository(db *sql.DB, logger *zap.Logger) *BankReportRepository {
	return &BankReportRepository{db: db, logger: logger}
}

// Create inserts a new report row and fills in its id.
func (r *BankReportRepository) Create(ctx context.Context, report *models.BankReport) error {
	result, err := r.db.ExecContext(ctx,
		"INSERT INTO bank_reports (filename, created_by) VALUES (?, ?)",
		report.Filename, report.CreatedBy,
	)
	if err != nil {
		r.logger.Error("Failed to create bank report", zap.Error(err))
		return fmt.Errorf("failed to create bank report: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	report.ID = id
	return nil
}

// GetByID retrieves a report by id.
func (r *BankReportRepository) GetByID(ctx context.Context, id int64) (*models.BankReport, error) {
	var report models.BankReport
	err := r.db.QueryRowContext(ctx,
		"SELECT id, filename, created_by, created_at FROM bank_reports WHERE id = ?",
		id,
	).Scan(&report.ID, &report.Filename, &report.CreatedBy, &report.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get bank report", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get bank report: %w", err)
	}
	return &report, nil
}
