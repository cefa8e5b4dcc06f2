package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/montesion/reconciliation/internal/models"
)

const dateLayout = "2006-01-02"

// BankTransactionRepository handles bank_transactions database operations.
// The table is append-only: rows are created by the ingestion pipeline and
// never updated or deleted by this subsystem.
type BankTransactionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBankTransactionRepository creates a new bank transaction repository.
func NewBankTransactionRepository(db *sql.DB, logger *zap.Logger) *BankTransactionRepository {
	return &BankTransactionRepository{db: db, logger: logger}
}

// UpsertIgnoreDuplicates inserts a transaction, silently skipping rows
// that collide on the (date, amount, description, reference) natural key.
// Returns whether a new row was actually inserted. Runs on the given tx so
// one statement chunk commits or rolls back as a unit.
func (r *BankTransactionRepository) UpsertIgnoreDuplicates(ctx context.Context, tx *sql.Tx, t *models.BankTransaction) (bool, error) {
	query := `
		INSERT INTO bank_transactions (report_id, date, amount, description, reference, bank_name)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (date, amount, description, reference) DO NOTHING
	`

	var result sql.Result
	var err error
	args := []any{
		t.ReportID,
		t.Date.Format(dateLayout),
		t.Amount.String(),
		t.Description,
		t.Reference,
		t.BankName,
	}
	if tx != nil {
		result, err = tx.ExecContext(ctx, query, args...)
	} else {
		result, err = r.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		r.logger.Error("Failed to upsert bank transaction", zap.Error(err))
		return false, fmt.Errorf("failed to upsert bank transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get last insert id: %w", err)
	}
	t.ID = id
	return true, nil
}

// ListAll returns every transaction across all reports, newest date first.
func (r *BankTransactionRepository) ListAll(ctx context.Context) ([]*models.BankTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, report_id, date, amount, description, reference, bank_name, created_at
		FROM bank_transactions
		ORDER BY date DESC, id DESC
	`)
	if err != nil {
		r.logger.Error("Failed to list bank transactions", zap.Error(err))
		return nil, fmt.Errorf("failed to list bank transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*models.BankTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

// GetByID retrieves a single transaction.
func (r *BankTransactionRepository) GetByID(ctx context.Context, id int64) (*models.BankTransaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, report_id, date, amount, description, reference, bank_name, created_at
		FROM bank_transactions
		WHERE id = ?
	`, id)

	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get bank transaction", zap.Int64("id", id), zap.Error(err))
		return nil, err
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.BankTransaction, error) {
	var t models.BankTransaction
	var date, amount string
	if err := row.Scan(&t.ID, &t.ReportID, &date, &amount, &t.Description, &t.Reference, &t.BankName, &t.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan bank transaction: %w", err)
	}

	parsed, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction date %q: %w", date, err)
	}
	t.Date = parsed

	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction amount %q: %w", amount, err)
	}
	return &t, nil
}
