package ingest

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// ChunkFailure records one chunk that failed during a workbook ingest.
// The chunk can be re-submitted through ProcessChunk with the same rows.
type ChunkFailure struct {
	Chunk int    `json:"chunk"`
	Rows  int    `json:"rows"`
	Error string `json:"error"`
}

// WorkbookResult summarizes a one-shot workbook ingestion.
type WorkbookResult struct {
	ReportID   int64          `json:"report_id"`
	Chunks     int            `json:"chunks"`
	Inserted   int            `json:"inserted"`
	Duplicates int            `json:"duplicates"`
	Skipped    int            `json:"skipped"`
	Failures   []ChunkFailure `json:"failures,omitempty"`
}

// IngestWorkbook runs the whole pipeline over an uploaded .xlsx statement:
// init report, chunked processing of the first sheet, finalize. The first
// row of the sheet is the header row. A failed chunk is recorded and the
// remaining chunks continue; committed chunks are never rolled back.
func (p *Pipeline) IngestWorkbook(ctx context.Context, filename, createdBy string, r io.Reader) (*WorkbookResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("workbook has no data rows")
	}
	headers, data := rows[0], rows[1:]

	report, err := p.InitReport(ctx, filename, createdBy)
	if err != nil {
		return nil, err
	}

	result := &WorkbookResult{ReportID: report.ID}
	for start := 0; start < len(data); start += p.chunkSize {
		end := start + p.chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[start:end]
		result.Chunks++

		chunkResult, err := p.ProcessChunk(ctx, report.ID, chunk, headers)
		if err != nil {
			p.logger.Warn("Workbook chunk failed",
				zap.Int64("report_id", report.ID),
				zap.Int("chunk", result.Chunks-1),
				zap.Error(err))
			result.Failures = append(result.Failures, ChunkFailure{
				Chunk: result.Chunks - 1,
				Rows:  len(chunk),
				Error: err.Error(),
			})
			continue
		}
		result.Inserted += chunkResult.Inserted
		result.Duplicates += chunkResult.Duplicates
		result.Skipped += chunkResult.Skipped
	}

	if err := p.FinalizeReport(ctx, report.ID); err != nil {
		return nil, err
	}

	p.logger.Info("Workbook ingested",
		zap.Int64("report_id", report.ID),
		zap.String("filename", filename),
		zap.Int("chunks", result.Chunks),
		zap.Int("inserted", result.Inserted),
		zap.Int("failures", len(result.Failures)))
	return result, nil
}
