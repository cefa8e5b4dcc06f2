package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/montesion/reconciliation/internal/cache"
	"github.com/montesion/reconciliation/internal/models"
	"github.com/montesion/reconciliation/internal/repository"
	"github.com/montesion/reconciliation/internal/testutil"
)

// stubExtractor returns canned credits, or an error, and counts calls.
type stubExtractor struct {
	credits []models.ExtractedReceiptData
	err     error
	calls   int
}

func (s *stubExtractor) ExtractStatementRows(ctx context.Context, rows [][]string, headers []string) ([]models.ExtractedReceiptData, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.credits, nil
}

func newTestPipeline(t *testing.T, extractor *stubExtractor) (*Pipeline, *repository.BankTransactionRepository, *cache.TagVersions) {
	t.Helper()
	db := testutil.OpenDB(t)
	logger := zap.NewNop()
	reports := repository.NewBankReportRepository(db.DB, logger)
	transactions := repository.NewBankTransactionRepository(db.DB, logger)
	tags := cache.NewTagVersions(logger)
	return NewPipeline(db, reports, transactions, extractor, tags, 40, logger), transactions, tags
}

func credit(date, amount, description, reference string) models.ExtractedReceiptData {
	return models.ExtractedReceiptData{
		Amount:      decimal.RequireFromString(amount),
		Date:        date,
		Description: description,
		Reference:   reference,
	}
}

func TestProcessChunkInsertsCredits(t *testing.T) {
	extractor := &stubExtractor{credits: []models.ExtractedReceiptData{
		credit("2024-01-05", "25.50", "Transferencia de Juan Pérez", "REF123"),
		credit("05/01/2024", "100", "Pago inscripción", "REF124"),
	}}
	pipeline, transactions, _ := newTestPipeline(t, extractor)
	ctx := context.Background()

	report, err := pipeline.InitReport(ctx, "enero.xlsx", "admin")
	require.NoError(t, err)

	result, err := pipeline.ProcessChunk(ctx, report.ID, [][]string{{"row"}}, []string{"h"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Credits)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 0, result.Duplicates)

	all, err := transactions.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Both layouts parse to the same calendar day.
	assert.Equal(t, all[0].Date, all[1].Date)
}

func TestProcessChunkRetrySkipsDuplicates(t *testing.T) {
	extractor := &stubExtractor{credits: []models.ExtractedReceiptData{
		credit("2024-01-05", "25.50", "Transferencia de Juan Pérez", "REF123"),
	}}
	pipeline, transactions, _ := newTestPipeline(t, extractor)
	ctx := context.Background()

	report, err := pipeline.InitReport(ctx, "enero.xlsx", "admin")
	require.NoError(t, err)

	first, err := pipeline.ProcessChunk(ctx, report.ID, [][]string{{"row"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Inserted)

	// Re-sending the same chunk, as a client retry would, inserts nothing.
	second, err := pipeline.ProcessChunk(ctx, report.ID, [][]string{{"row"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 1, second.Duplicates)

	all, err := transactions.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestProcessChunkAppliesDefaults(t *testing.T) {
	bare := models.ExtractedReceiptData{
		Amount:     decimal.RequireFromString("500"),
		Date:       "2024-03-10",
		SenderName: "María López",
	}
	extractor := &stubExtractor{credits: []models.ExtractedReceiptData{bare}}
	pipeline, transactions, _ := newTestPipeline(t, extractor)
	ctx := context.Background()

	report, err := pipeline.InitReport(ctx, "marzo.xlsx", "admin")
	require.NoError(t, err)
	_, err = pipeline.ProcessChunk(ctx, report.ID, [][]string{{"row"}}, nil)
	require.NoError(t, err)

	all, err := transactions.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Depósito - María López", all[0].Description)
	assert.Equal(t, "Desconocido", all[0].BankName)
}

func TestProcessChunkSkipsUnparseableDates(t *testing.T) {
	extractor := &stubExtractor{credits: []models.ExtractedReceiptData{
		credit("enero cinco", "25.50", "Transferencia", "R1"),
		credit("2024-01-06", "80", "Transferencia", "R2"),
	}}
	pipeline, transactions, _ := newTestPipeline(t, extractor)
	ctx := context.Background()

	report, err := pipeline.InitReport(ctx, "enero.xlsx", "admin")
	require.NoError(t, err)
	result, err := pipeline.ProcessChunk(ctx, report.ID, [][]string{{"row"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Inserted)

	all, err := transactions.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestProcessChunkExtractionFailureLeavesNothing(t *testing.T) {
	extractor := &stubExtractor{err: errors.New("model unavailable")}
	pipeline, transactions, _ := newTestPipeline(t, extractor)
	ctx := context.Background()

	report, err := pipeline.InitReport(ctx, "enero.xlsx", "admin")
	require.NoError(t, err)

	_, err = pipeline.ProcessChunk(ctx, report.ID, [][]string{{"row"}}, nil)
	require.Error(t, err)

	all, err := transactions.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestProcessChunkUnknownReport(t *testing.T) {
	pipeline, _, _ := newTestPipeline(t, &stubExtractor{})
	_, err := pipeline.ProcessChunk(context.Background(), 404, [][]string{{"row"}}, nil)
	require.Error(t, err)
}

func TestFinalizeReportInvalidatesReadViews(t *testing.T) {
	extractor := &stubExtractor{}
	pipeline, _, tags := newTestPipeline(t, extractor)
	ctx := context.Background()

	report, err := pipeline.InitReport(ctx, "enero.xlsx", "admin")
	require.NoError(t, err)

	txVersion := tags.Version(cache.TagBankTransactions)
	summaryVersion := tags.Version(cache.TagFinancialSummary)
	paymentsVersion := tags.Version(cache.TagPayments)

	require.NoError(t, pipeline.FinalizeReport(ctx, report.ID))

	assert.Greater(t, tags.Version(cache.TagBankTransactions), txVersion)
	assert.Greater(t, tags.Version(cache.TagFinancialSummary), summaryVersion)
	assert.Equal(t, paymentsVersion, tags.Version(cache.TagPayments))

	assert.Error(t, pipeline.FinalizeReport(ctx, 404))
}
