package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/montesion/reconciliation/internal/models"
)

// PaymentRepository handles form_submission_payments database operations.
type PaymentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPaymentRepository creates a new payment repository.
func NewPaymentRepository(db *sql.DB, logger *zap.Logger) *PaymentRepository {
	return &PaymentRepository{db: db, logger: logger}
}

const paymentColumns = `id, submission_id, receipt_path, extracted_data, amount_claimed,
		status, bank_transaction_id, reconciliation_notes, created_at, updated_at`

// Create inserts a new payment row and fills in its id. The unique
// constraint on (submission_id, receipt_path) surfaces as an error here;
// callers that want upsert semantics check for the row first.
func (r *PaymentRepository) Create(ctx context.Context, p *models.FormSubmissionPayment) error {
	extracted, err := p.MarshalExtractedData()
	if err != nil {
		return fmt.Errorf("failed to serialize extracted data: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO form_submission_payments
			(submission_id, receipt_path, extracted_data, amount_claimed, status, reconciliation_notes)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		p.SubmissionID,
		p.ReceiptPath,
		nullableBytes(extracted),
		p.AmountClaimed.String(),
		p.Status,
		p.ReconciliationNotes,
	)
	if err != nil {
		r.logger.Error("Failed to create payment",
			zap.Int64("submission_id", p.SubmissionID),
			zap.String("receipt_path", p.ReceiptPath),
			zap.Error(err))
		return fmt.Errorf("failed to create payment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	return nil
}

// FillExtraction caches an extraction result on an existing payment row.
// The status column is deliberately untouched: analysis must never
// downgrade the status a payment already holds.
func (r *PaymentRepository) FillExtraction(ctx context.Context, paymentID int64, data *models.ExtractedReceiptData, amountClaimed decimal.Decimal) error {
	extracted, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to serialize extracted data: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE form_submission_payments
		SET extracted_data = ?, amount_claimed = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, extracted, amountClaimed.String(), paymentID)
	if err != nil {
		r.logger.Error("Failed to fill extraction", zap.Int64("payment_id", paymentID), zap.Error(err))
		return fmt.Errorf("failed to fill extraction: %w", err)
	}
	return nil
}

// SetReconciled links a payment to a bank transaction and marks it
// verified.
func (r *PaymentRepository) SetReconciled(ctx context.Context, paymentID, transactionID int64, notes string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE form_submission_payments
		SET bank_transaction_id = ?, status = ?, reconciliation_notes = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, transactionID, models.StatusVerified, notes, paymentID)
	if err != nil {
		r.logger.Error("Failed to reconcile payment",
			zap.Int64("payment_id", paymentID),
			zap.Int64("transaction_id", transactionID),
			zap.Error(err))
		return fmt.Errorf("failed to reconcile payment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("payment %d not found", paymentID)
	}
	return nil
}

// GetByID retrieves a payment by id, nil when absent.
func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*models.FormSubmissionPayment, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM form_submission_payments WHERE id = ?", id)

	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get payment", zap.Int64("id", id), zap.Error(err))
		return nil, err
	}
	return p, nil
}

// GetBySubmissionAndPath retrieves the payment holding a receipt path
// within one submission's payment set, nil when absent.
func (r *PaymentRepository) GetBySubmissionAndPath(ctx context.Context, submissionID int64, receiptPath string) (*models.FormSubmissionPayment, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM form_submission_payments WHERE submission_id = ? AND receipt_path = ?",
		submissionID, receiptPath)

	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListBySubmission returns a submission's payments in creation order.
func (r *PaymentRepository) ListBySubmission(ctx context.Context, submissionID int64) ([]*models.FormSubmissionPayment, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+paymentColumns+" FROM form_submission_payments WHERE submission_id = ? ORDER BY id",
		submissionID)
	if err != nil {
		r.logger.Error("Failed to list payments", zap.Int64("submission_id", submissionID), zap.Error(err))
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows)
}

// ListVerifiedByForm returns every verified payment attached to a form's
// non-archived submissions, for summary aggregation.
func (r *PaymentRepository) ListVerifiedByForm(ctx context.Context, formID int64) ([]*models.FormSubmissionPayment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.submission_id, p.receipt_path, p.extracted_data, p.amount_claimed,
			p.status, p.bank_transaction_id, p.reconciliation_notes, p.created_at, p.updated_at
		FROM form_submission_payments p
		JOIN form_submissions s ON s.id = p.submission_id
		WHERE s.form_id = ? AND s.archived = 0 AND p.status = ?
	`, formID, models.StatusVerified)
	if err != nil {
		r.logger.Error("Failed to list verified payments", zap.Int64("form_id", formID), zap.Error(err))
		return nil, fmt.Errorf("failed to list verified payments: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows)
}

// CountByTransactionID counts payments already linked to a transaction.
// Used to reject reconciling one transaction against a second payment.
func (r *PaymentRepository) CountByTransactionID(ctx context.Context, transactionID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM form_submission_payments WHERE bank_transaction_id = ?",
		transactionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count payments by transaction: %w", err)
	}
	return count, nil
}

// ListReconciledTransactionIDs returns the set of bank transaction ids
// referenced by any payment in the system, recomputed per query.
func (r *PaymentRepository) ListReconciledTransactionIDs(ctx context.Context) (map[int64]bool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT bank_transaction_id
		FROM form_submission_payments
		WHERE bank_transaction_id IS NOT NULL
	`)
	if err != nil {
		r.logger.Error("Failed to list reconciled transaction ids", zap.Error(err))
		return nil, fmt.Errorf("failed to list reconciled transaction ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan transaction id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func collectPayments(rows *sql.Rows) ([]*models.FormSubmissionPayment, error) {
	var payments []*models.FormSubmissionPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func scanPayment(row rowScanner) (*models.FormSubmissionPayment, error) {
	var p models.FormSubmissionPayment
	var extracted sql.NullString
	var amount string
	var txID sql.NullInt64
	if err := row.Scan(
		&p.ID, &p.SubmissionID, &p.ReceiptPath, &extracted, &amount,
		&p.Status, &txID, &p.ReconciliationNotes, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}

	var err error
	p.AmountClaimed, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid claimed amount %q: %w", amount, err)
	}
	if txID.Valid {
		p.BankTransactionID = &txID.Int64
	}
	if extracted.Valid && extracted.String != "" {
		var data models.ExtractedReceiptData
		if err := json.Unmarshal([]byte(extracted.String), &data); err != nil {
			return nil, fmt.Errorf("invalid extracted data for payment %d: %w", p.ID, err)
		}
		p.ExtractedData = &data
	}
	return &p, nil
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
