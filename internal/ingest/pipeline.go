// Package ingest implements the three-phase bank statement ingestion
// pipeline: init a report, process row chunks into deduplicated bank
// transactions, finalize. Chunks are independently transactional so a
// failed chunk never touches previously committed ones and can simply be
// retried by the caller.
package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/montesion/reconciliation/internal/cache"
	"github.com/montesion/reconciliation/internal/extraction"
	"github.com/montesion/reconciliation/internal/models"
	"github.com/montesion/reconciliation/internal/repository"
	"github.com/montesion/reconciliation/pkg/database"
)

// Defaults applied when the extraction service leaves fields empty.
const (
	defaultBankName   = "Desconocido"
	depositDescPrefix = "Depósito - "
)

// defaultChunkSize is used when the constructor gets a non-positive
// chunk size; the workbook loop advances by chunkSize and must not stall.
const defaultChunkSize = 50

var statementDateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2006/01/02",
	"02-01-2006",
}

// ChunkResult reports what one chunk produced.
type ChunkResult struct {
	Credits    int `json:"credits"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

// Pipeline is the statement ingestion pipeline.
type Pipeline struct {
	db           *database.DB
	reports      *repository.BankReportRepository
	transactions *repository.BankTransactionRepository
	extractor    extraction.StatementExtractor
	invalidator  cache.Invalidator
	chunkSize    int
	logger       *zap.Logger
}

// NewPipeline creates an ingestion pipeline. chunkSize only applies to the
// server-side workbook path; client-driven chunking picks its own sizes.
func NewPipeline(
	db *database.DB,
	reports *repository.BankReportRepository,
	transactions *repository.BankTransactionRepository,
	extractor extraction.StatementExtractor,
	invalidator cache.Invalidator,
	chunkSize int,
	logger *zap.Logger,
) *Pipeline {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Pipeline{
		db:           db,
		reports:      reports,
		transactions: transactions,
		extractor:    extractor,
		invalidator:  invalidator,
		chunkSize:    chunkSize,
		logger:       logger,
	}
}

// InitReport creates the BankReport row a statement upload will hang its
// transactions off. Pure metadata write.
func (p *Pipeline) InitReport(ctx context.Context, filename, createdBy string) (*models.BankReport, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, fmt.Errorf("filename is required")
	}

	report := &models.BankReport{Filename: filename, CreatedBy: createdBy}
	if err := p.reports.Create(ctx, report); err != nil {
		return nil, err
	}

	p.logger.Info("Bank report initialized",
		zap.Int64("report_id", report.ID),
		zap.String("filename", filename))
	return report, nil
}

// ProcessChunk classifies one chunk of statement rows and upserts the
// resulting credit transactions inside a single database transaction.
// Duplicate rows on the natural key are silently skipped: statements may
// be re-uploaded and chunk boundaries may overlap.
func (p *Pipeline) ProcessChunk(ctx context.Context, reportID int64, rows [][]string, headers []string) (*ChunkResult, error) {
	report, err := p.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, fmt.Errorf("bank report %d not found", reportID)
	}

	credits, err := p.extractor.ExtractStatementRows(ctx, rows, headers)
	if err != nil {
		return nil, fmt.Errorf("chunk extraction failed: %w", err)
	}

	result := &ChunkResult{Credits: len(credits)}
	err = p.db.WithTransaction(func(tx *sql.Tx) error {
		for _, credit := range credits {
			candidate, ok := p.toTransaction(reportID, credit)
			if !ok {
				result.Skipped++
				continue
			}
			inserted, err := p.transactions.UpsertIgnoreDuplicates(ctx, tx, candidate)
			if err != nil {
				return err
			}
			if inserted {
				result.Inserted++
			} else {
				result.Duplicates++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("Statement chunk processed",
		zap.Int64("report_id", reportID),
		zap.Int("credits", result.Credits),
		zap.Int("inserted", result.Inserted),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// FinalizeReport invalidates the transaction pool read views so
// reconciliation sees the new rows immediately. Reports are never marked
// failed: statements are append-only and partial uploads stay retryable.
func (p *Pipeline) FinalizeReport(ctx context.Context, reportID int64) error {
	report, err := p.reports.GetByID(ctx, reportID)
	if err != nil {
		return err
	}
	if report == nil {
		return fmt.Errorf("bank report %d not found", reportID)
	}

	p.invalidator.Invalidate(cache.TagBankTransactions, cache.TagFinancialSummary)
	p.logger.Info("Bank report finalized", zap.Int64("report_id", reportID))
	return nil
}

// toTransaction maps one classified credit to a BankTransaction candidate,
// applying the description and bank defaults.
func (p *Pipeline) toTransaction(reportID int64, credit models.ExtractedReceiptData) (*models.BankTransaction, bool) {
	date, err := parseStatementDate(credit.Date)
	if err != nil {
		p.logger.Warn("Skipping credit with unparseable date",
			zap.String("date", credit.Date),
			zap.String("reference", credit.Reference))
		return nil, false
	}

	description := strings.TrimSpace(credit.Description)
	if description == "" {
		description = depositDescPrefix + strings.TrimSpace(credit.SenderName)
	}
	bankName := strings.TrimSpace(credit.BankName)
	if bankName == "" {
		bankName = defaultBankName
	}

	return &models.BankTransaction{
		ReportID:    reportID,
		Date:        date,
		Amount:      credit.Amount,
		Description: description,
		Reference:   strings.TrimSpace(credit.Reference),
		BankName:    bankName,
	}, true
}

func parseStatementDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range statementDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}
