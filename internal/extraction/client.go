// Package extraction wraps the external document-understanding service
// that turns receipt images and statement rows into structured financial
// fields. The service is treated as untrusted and fallible: receipt calls
// degrade to a failed Result instead of erroring, and no retries are made.
package extraction

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/montesion/reconciliation/internal/models"
)

// ReceiptExtractor extracts structured fields from one receipt image.
type ReceiptExtractor interface {
	ExtractReceipt(ctx context.Context, image []byte, mimeType string) Result
}

// StatementExtractor classifies statement rows into credit transactions.
// Unlike receipts, a failed statement call returns an error so the caller
// can report the chunk as retryable.
type StatementExtractor interface {
	ExtractStatementRows(ctx context.Context, rows [][]string, headers []string) ([]models.ExtractedReceiptData, error)
}

var supportedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// Client talks to the extraction service through the OpenAI chat API.
type Client struct {
	client          *openai.Client
	model           string
	temperature     float32
	timeout         time.Duration
	beneficiaryName string
	logger          *zap.Logger
}

// NewClient creates an extraction client. beneficiaryName is the account
// holder receipts must name for is_correct_beneficiary to hold; timeout
// bounds each individual service call.
func NewClient(apiKey, model string, temperature float32, timeout time.Duration, beneficiaryName string, logger *zap.Logger) *Client {
	return &Client{
		client:          openai.NewClient(apiKey),
		model:           model,
		temperature:     temperature,
		timeout:         timeout,
		beneficiaryName: beneficiaryName,
		logger:          logger,
	}
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// ExtractReceipt runs one receipt image through the vision model. PDF
// receipts have their first page rendered to JPEG first. Any failure
// (unsupported type, render, API, parse) degrades to a failed Result.
func (c *Client) ExtractReceipt(ctx context.Context, image []byte, mimeType string) Result {
	if !supportedMimeTypes[mimeType] {
		c.logger.Warn("Unsupported receipt mime type", zap.String("mime_type", mimeType))
		return Failed(fmt.Sprintf("unsupported mime type %s", mimeType))
	}

	if mimeType == "application/pdf" {
		rendered, err := renderPDFFirstPage(image)
		if err != nil {
			c.logger.Warn("Failed to render PDF receipt", zap.Error(err))
			return Failed("pdf render failed")
		}
		image = rendered
		mimeType = "image/jpeg"
	}

	base64Img := base64.StdEncoding.EncodeToString(image)

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an expert at reading Latin American bank transfer receipts (comprobantes de pago). Always respond with valid JSON.",
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: buildReceiptPrompt(c.beneficiaryName),
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    fmt.Sprintf("data:%s;base64,%s", mimeType, base64Img),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		c.logger.Warn("Extraction service call failed", zap.Error(err))
		return Failed("extraction service call failed")
	}
	if len(resp.Choices) == 0 {
		return Failed("empty extraction response")
	}

	content := resp.Choices[0].Message.Content

	var data models.ExtractedReceiptData
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		c.logger.Warn("Failed to parse extraction response",
			zap.Error(err),
			zap.String("content", content))
		return Failed("unparseable extraction response")
	}

	c.logger.Info("Receipt extracted",
		zap.String("amount", data.Amount.String()),
		zap.String("reference", data.Reference),
		zap.Bool("is_valid_receipt", data.IsValidReceipt))

	return Extracted(data)
}

// statementCredit is one classified credit row as returned by the model.
type statementCredit struct {
	Row         int    `json:"row"`
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Reference   string `json:"reference"`
	SenderName  string `json:"sender_name"`
	BankName    string `json:"bank_name"`
}

// ExtractStatementRows classifies a chunk of statement rows, keeping only
// credit movements. Amounts come back as the raw cell strings and are
// normalized locally; rows whose amount cannot be parsed are dropped.
func (c *Client) ExtractStatementRows(ctx context.Context, rows [][]string, headers []string) ([]models.ExtractedReceiptData, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an expert at reading bank account statements. Always respond with valid JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildStatementPrompt(headers, rows),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("statement extraction call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty statement extraction response")
	}

	var parsed struct {
		Credits []statementCredit `json:"credits"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return nil, fmt.Errorf("unparseable statement extraction response: %w", err)
	}

	results := make([]models.ExtractedReceiptData, 0, len(parsed.Credits))
	for _, credit := range parsed.Credits {
		amount, err := NormalizeAmount(credit.Amount)
		if err != nil {
			c.logger.Warn("Dropping credit row with unparseable amount",
				zap.Int("row", credit.Row),
				zap.String("amount", credit.Amount))
			continue
		}
		results = append(results, models.ExtractedReceiptData{
			Amount:         amount,
			Date:           credit.Date,
			Reference:      credit.Reference,
			Description:    credit.Description,
			SenderName:     credit.SenderName,
			BankName:       credit.BankName,
			IsValidReceipt: true,
		})
	}

	c.logger.Info("Statement chunk classified",
		zap.Int("rows", len(rows)),
		zap.Int("credits", len(results)))

	return results, nil
}
