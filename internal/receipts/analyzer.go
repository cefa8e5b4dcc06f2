// Package receipts scans the payment receipts attached to a form's
// submissions, runs unprocessed ones through the extraction service and
// persists the structured results. The scan is idempotent: re-running it
// on an unchanged form creates no rows and spends no extraction calls.
package receipts

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/montesion/reconciliation/internal/extraction"
	"github.com/montesion/reconciliation/internal/models"
	"github.com/montesion/reconciliation/internal/repository"
	"github.com/montesion/reconciliation/internal/storage"
)

// ErrFinancialFieldMissing reports a form without a configured financial
// field. A configuration error: analysis aborts before any side effect.
var ErrFinancialFieldMissing = errors.New("form has no financial field configured")

// Analyzer is the receipt analysis engine.
type Analyzer struct {
	forms       *repository.FormRepository
	submissions *repository.SubmissionRepository
	payments    *repository.PaymentRepository
	store       storage.Storage
	extractor   extraction.ReceiptExtractor
	logger      *zap.Logger
}

// NewAnalyzer creates a receipt analyzer.
func NewAnalyzer(
	forms *repository.FormRepository,
	submissions *repository.SubmissionRepository,
	payments *repository.PaymentRepository,
	store storage.Storage,
	extractor extraction.ReceiptExtractor,
	logger *zap.Logger,
) *Analyzer {
	return &Analyzer{
		forms:       forms,
		submissions: submissions,
		payments:    payments,
		store:       store,
		extractor:   extractor,
		logger:      logger,
	}
}

// AnalyzeReceipts processes every receipt attached to the form's
// non-archived submissions and returns the refreshed submissions with
// their payment rows.
func (a *Analyzer) AnalyzeReceipts(ctx context.Context, formID int64) ([]models.SubmissionWithPayments, error) {
	form, err := a.forms.GetByID(ctx, formID)
	if err != nil {
		return nil, err
	}
	if form == nil {
		return nil, fmt.Errorf("form %d not found", formID)
	}
	if strings.TrimSpace(form.FinancialField) == "" {
		return nil, fmt.Errorf("form %d: %w", formID, ErrFinancialFieldMissing)
	}

	submissions, err := a.submissions.ListActiveByForm(ctx, formID)
	if err != nil {
		return nil, err
	}

	result := make([]models.SubmissionWithPayments, 0, len(submissions))
	for _, sub := range submissions {
		if err := a.analyzeSubmission(ctx, sub, form.FinancialField); err != nil {
			return nil, err
		}

		payments, err := a.payments.ListBySubmission(ctx, sub.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, models.SubmissionWithPayments{
			Submission: *sub,
			Payments:   payments,
		})
	}
	return result, nil
}

// analyzeSubmission processes the deduplicated union of the submission's
// embedded receipt path and the paths already present on its payment rows.
func (a *Analyzer) analyzeSubmission(ctx context.Context, sub *models.FormSubmission, financialField string) error {
	payments, err := a.payments.ListBySubmission(ctx, sub.ID)
	if err != nil {
		return err
	}

	byPath := make(map[string]*models.FormSubmissionPayment, len(payments))
	paths := make([]string, 0, len(payments)+1)
	for _, p := range payments {
		if _, seen := byPath[p.ReceiptPath]; !seen {
			paths = append(paths, p.ReceiptPath)
		}
		byPath[p.ReceiptPath] = p
	}
	if embedded := sub.Data.StringField(financialField); embedded != "" {
		if _, seen := byPath[embedded]; !seen {
			paths = append(paths, embedded)
		}
	}

	for _, receiptPath := range paths {
		if err := storage.ValidatePath(receiptPath); err != nil {
			a.logger.Warn("Rejecting receipt path",
				zap.Int64("submission_id", sub.ID),
				zap.String("receipt_path", receiptPath),
				zap.Error(err))
			continue
		}
		if err := a.analyzeReceipt(ctx, sub.ID, receiptPath, byPath[receiptPath]); err != nil {
			return err
		}
	}
	return nil
}

// analyzeReceipt extracts one receipt unless a cached result exists, then
// upserts the payment row. Existing rows keep their status; extraction
// failures persist the row anyway so the receipt is not silently lost.
func (a *Analyzer) analyzeReceipt(ctx context.Context, submissionID int64, receiptPath string, existing *models.FormSubmissionPayment) error {
	if existing != nil && existing.HasExtractedData() {
		return nil
	}

	result := a.extract(ctx, receiptPath)

	if existing != nil {
		if result.Failed() {
			// Row already exists and extraction degraded again; leave it
			// for manual review as it is.
			return nil
		}
		data := result.Fields()
		claimed := existing.AmountClaimed
		if claimed.IsZero() {
			claimed = data.Amount
		}
		return a.payments.FillExtraction(ctx, existing.ID, &data, claimed)
	}

	payment := &models.FormSubmissionPayment{
		SubmissionID: submissionID,
		ReceiptPath:  receiptPath,
		Status:       StatusFor(result),
	}
	if !result.Failed() {
		data := result.Fields()
		payment.ExtractedData = &data
		payment.AmountClaimed = data.Amount
	}
	return a.payments.Create(ctx, payment)
}

// extract downloads the receipt and runs it through the extraction
// service. Download failures degrade exactly like service failures.
func (a *Analyzer) extract(ctx context.Context, receiptPath string) extraction.Result {
	content, err := a.store.Read(ctx, receiptPath)
	if err != nil {
		a.logger.Warn("Failed to download receipt",
			zap.String("receipt_path", receiptPath),
			zap.Error(err))
		return extraction.Failed("receipt download failed")
	}
	return a.extractor.ExtractReceipt(ctx, content, MimeTypeForPath(receiptPath))
}

// StatusFor derives the initial payment status from an extraction result:
// pending for a valid receipt, manual review otherwise (including outright
// extraction failure).
func StatusFor(result extraction.Result) string {
	if !result.Failed() && result.Fields().IsValidReceipt {
		return models.StatusPending
	}
	return models.StatusManualReview
}

// MimeTypeForPath guesses the mime type of a stored receipt from its
// extension. Unknown extensions fall through to the extraction client's
// unsupported-type handling.
func MimeTypeForPath(receiptPath string) string {
	switch strings.ToLower(path.Ext(receiptPath)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
