// Package reconcile links claimed payments to bank transactions and
// aggregates verified totals per event. Matching is a manual, human
// confirmed action: no fuzzy matching happens here.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/montesion/reconciliation/internal/cache"
	"github.com/montesion/reconciliation/internal/models"
	"github.com/montesion/reconciliation/internal/repository"
)

var (
	// ErrPaymentNotFound reports an unknown payment id.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrTransactionNotFound reports an unknown bank transaction id.
	ErrTransactionNotFound = errors.New("bank transaction not found")
	// ErrTransactionAlreadyReconciled reports a bank transaction that is
	// already linked to a different payment. One deposit backs at most one
	// payment.
	ErrTransactionAlreadyReconciled = errors.New("bank transaction already reconciled against another payment")
)

// Service is the reconciliation engine.
type Service struct {
	transactions *repository.BankTransactionRepository
	payments     *repository.PaymentRepository
	submissions  *repository.SubmissionRepository
	forms        *repository.FormRepository
	invalidator  cache.Invalidator
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates a reconciliation service.
func NewService(
	transactions *repository.BankTransactionRepository,
	payments *repository.PaymentRepository,
	submissions *repository.SubmissionRepository,
	forms *repository.FormRepository,
	invalidator cache.Invalidator,
	logger *zap.Logger,
) *Service {
	return &Service{
		transactions: transactions,
		payments:     payments,
		submissions:  submissions,
		forms:        forms,
		invalidator:  invalidator,
		logger:       logger,
		now:          time.Now,
	}
}

// Reconcile links a payment to a bank transaction and marks it verified.
// The auditor has already confirmed the match; this just records it. A
// transaction linked to a different payment is rejected. Re-reconciling
// the same pair is allowed and only refreshes the notes.
func (s *Service) Reconcile(ctx context.Context, paymentID, transactionID int64, notes string) error {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		return fmt.Errorf("payment %d: %w", paymentID, ErrPaymentNotFound)
	}

	transaction, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return err
	}
	if transaction == nil {
		return fmt.Errorf("transaction %d: %w", transactionID, ErrTransactionNotFound)
	}

	alreadyMine := payment.BankTransactionID != nil && *payment.BankTransactionID == transactionID
	if !alreadyMine {
		linked, err := s.payments.CountByTransactionID(ctx, transactionID)
		if err != nil {
			return err
		}
		if linked > 0 {
			return fmt.Errorf("transaction %d: %w", transactionID, ErrTransactionAlreadyReconciled)
		}
	}

	if strings.TrimSpace(notes) == "" {
		notes = "Conciliado manualmente el " + s.now().Format(time.RFC3339)
	}

	if err := s.payments.SetReconciled(ctx, paymentID, transactionID, notes); err != nil {
		return err
	}

	s.invalidator.Invalidate(cache.TagPayments, cache.TagBankTransactions, cache.TagFinancialSummary)
	s.logger.Info("Payment reconciled",
		zap.Int64("payment_id", paymentID),
		zap.Int64("transaction_id", transactionID))
	return nil
}

// ListGlobalTransactions returns every transaction across all reports,
// each annotated with its derived reconciliation state. The reconciled id
// set is recomputed per query, global across all forms.
func (s *Service) ListGlobalTransactions(ctx context.Context) ([]models.AnnotatedBankTransaction, error) {
	transactions, err := s.transactions.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	reconciled, err := s.payments.ListReconciledTransactionIDs(ctx)
	if err != nil {
		return nil, err
	}

	annotated := make([]models.AnnotatedBankTransaction, 0, len(transactions))
	for _, t := range transactions {
		annotated = append(annotated, models.AnnotatedBankTransaction{
			BankTransaction: *t,
			IsReconciled:    reconciled[t.ID],
		})
	}
	return annotated, nil
}

// FinancialSummary computes one row per non-archived event with a
// financial form: total non-archived submissions plus the sum of verified
// payment amounts. A single event whose queries fail is skipped, not
// fatal, so one bad record cannot take the dashboard down.
func (s *Service) FinancialSummary(ctx context.Context) ([]models.EventFinancialSummary, error) {
	forms, err := s.forms.ListFinancialForms(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.EventFinancialSummary, 0, len(forms))
	for _, form := range forms {
		summary, err := s.summarizeForm(ctx, form)
		if err != nil {
			s.logger.Warn("Skipping event in financial summary",
				zap.Int64("event_id", form.EventID),
				zap.Int64("form_id", form.FormID),
				zap.Error(err))
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *Service) summarizeForm(ctx context.Context, form repository.FinancialFormEvent) (models.EventFinancialSummary, error) {
	total, err := s.submissions.CountActiveByForm(ctx, form.FormID)
	if err != nil {
		return models.EventFinancialSummary{}, err
	}

	verified, err := s.payments.ListVerifiedByForm(ctx, form.FormID)
	if err != nil {
		return models.EventFinancialSummary{}, err
	}

	amount := decimal.Zero
	for _, p := range verified {
		amount = amount.Add(p.EffectiveAmount())
	}

	return models.EventFinancialSummary{
		EventID:        form.EventID,
		EventTitle:     form.EventTitle,
		StartTime:      form.StartTime,
		FormID:         form.FormID,
		TotalInscribed: total,
		VerifiedAmount: amount,
	}, nil
}
