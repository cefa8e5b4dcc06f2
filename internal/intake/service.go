// Package intake is the token-gated path letting an already-registered
// party attach an additional payment receipt after the fact. It is the
// only write path reachable without authentication, so authorization
// failures are deliberately opaque.
package intake

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/montesion/reconciliation/internal/cache"
	"github.com/montesion/reconciliation/internal/extraction"
	"github.com/montesion/reconciliation/internal/models"
	"github.com/montesion/reconciliation/internal/receipts"
	"github.com/montesion/reconciliation/internal/repository"
	"github.com/montesion/reconciliation/internal/storage"
)

// ErrUnauthorized is returned for any token/submission mismatch. The
// message never discloses which check failed.
var ErrUnauthorized = errors.New("unauthorized")

// ErrDuplicateReceipt reports a receipt path already claimed within the
// submission's payment set.
var ErrDuplicateReceipt = errors.New("receipt already registered for this submission")

// AddPaymentInput is one anonymous payment claim.
type AddPaymentInput struct {
	SubmissionID  int64
	AccessToken   string
	ReceiptPath   string
	AmountClaimed decimal.Decimal
}

// Service handles anonymous payment intake.
type Service struct {
	submissions *repository.SubmissionRepository
	payments    *repository.PaymentRepository
	store       storage.Storage
	extractor   extraction.ReceiptExtractor
	invalidator cache.Invalidator
	logger      *zap.Logger
}

// NewService creates an intake service.
func NewService(
	submissions *repository.SubmissionRepository,
	payments *repository.PaymentRepository,
	store storage.Storage,
	extractor extraction.ReceiptExtractor,
	invalidator cache.Invalidator,
	logger *zap.Logger,
) *Service {
	return &Service{
		submissions: submissions,
		payments:    payments,
		store:       store,
		extractor:   extractor,
		invalidator: invalidator,
		logger:      logger,
	}
}

// AddPayment verifies the capability token bound to the submission, then
// downloads and extracts the receipt already sitting at ReceiptPath and
// inserts a new payment row. Token verification happens before anything
// else: a caller holding submission A's token can never read or write
// submission B.
func (s *Service) AddPayment(ctx context.Context, in AddPaymentInput) (*models.FormSubmissionPayment, error) {
	return s.addPayment(ctx, in, nil)
}

// AddPaymentUpload is AddPayment for a receipt arriving in the same
// request: the content is written to ReceiptPath only after the token
// check passes, so an unauthorized caller cannot write to storage at all.
func (s *Service) AddPaymentUpload(ctx context.Context, in AddPaymentInput, content []byte) (*models.FormSubmissionPayment, error) {
	return s.addPayment(ctx, in, content)
}

func (s *Service) addPayment(ctx context.Context, in AddPaymentInput, content []byte) (*models.FormSubmissionPayment, error) {
	if in.AccessToken == "" {
		return nil, ErrUnauthorized
	}

	sub, err := s.submissions.GetByID(ctx, in.SubmissionID)
	if err != nil {
		return nil, err
	}
	if sub == nil || subtle.ConstantTimeCompare([]byte(sub.AccessToken), []byte(in.AccessToken)) != 1 {
		s.logger.Warn("Rejected anonymous payment", zap.Int64("submission_id", in.SubmissionID))
		return nil, ErrUnauthorized
	}

	if err := storage.ValidatePath(in.ReceiptPath); err != nil {
		return nil, err
	}

	existing, err := s.payments.GetBySubmissionAndPath(ctx, in.SubmissionID, in.ReceiptPath)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%s: %w", in.ReceiptPath, ErrDuplicateReceipt)
	}

	var result extraction.Result
	if content != nil {
		if err := s.store.Save(ctx, in.ReceiptPath, content); err != nil {
			return nil, err
		}
		result = s.extractor.ExtractReceipt(ctx, content, receipts.MimeTypeForPath(in.ReceiptPath))
	} else {
		result = s.extract(ctx, in.ReceiptPath)
	}

	payment := &models.FormSubmissionPayment{
		SubmissionID:  in.SubmissionID,
		ReceiptPath:   in.ReceiptPath,
		AmountClaimed: in.AmountClaimed,
		Status:        receipts.StatusFor(result),
	}
	if !result.Failed() {
		data := result.Fields()
		payment.ExtractedData = &data
		if payment.AmountClaimed.IsZero() {
			payment.AmountClaimed = data.Amount
		}
	}

	if err := s.payments.Create(ctx, payment); err != nil {
		if content != nil {
			// The file was written this request; don't leave it orphaned
			// with no payment row referencing it.
			if delErr := s.store.Delete(ctx, in.ReceiptPath); delErr != nil {
				s.logger.Warn("Failed to remove receipt after insert failure",
					zap.String("receipt_path", in.ReceiptPath),
					zap.Error(delErr))
			}
		}
		return nil, err
	}

	s.invalidator.Invalidate(cache.TagPayments, cache.TagFinancialSummary)
	s.logger.Info("Anonymous payment registered",
		zap.Int64("submission_id", in.SubmissionID),
		zap.Int64("payment_id", payment.ID),
		zap.String("status", payment.Status))
	return payment, nil
}

func (s *Service) extract(ctx context.Context, receiptPath string) extraction.Result {
	content, err := s.store.Read(ctx, receiptPath)
	if err != nil {
		s.logger.Warn("Failed to download receipt",
			zap.String("receipt_path", receiptPath),
			zap.Error(err))
		return extraction.Failed("receipt download failed")
	}
	return s.extractor.ExtractReceipt(ctx, content, receipts.MimeTypeForPath(receiptPath))
}
