package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Payment statuses. A payment only reaches StatusVerified once it holds a
// bank_transaction_id; analysis never downgrades an existing status.
const (
	StatusPending      = "pending"
	StatusManualReview = "manual_review"
	StatusVerified     = "verified"
)

// ExtractedReceiptData is the structured result of running a receipt image
// through the extraction service. It is cached inside the owning payment
// row and treated as immutable once populated.
type ExtractedReceiptData struct {
	Amount               decimal.Decimal `json:"amount"`
	Date                 string          `json:"date"`
	Reference            string          `json:"reference"`
	Description          string          `json:"description"`
	SenderName           string          `json:"sender_name"`
	BankName             string          `json:"bank_name"`
	BeneficiaryName      string          `json:"beneficiary_name"`
	BeneficiaryAccount   string          `json:"beneficiary_account"`
	Currency             string          `json:"currency"`
	IsValidReceipt       bool            `json:"is_valid_receipt"`
	IsCorrectBeneficiary bool            `json:"is_correct_beneficiary"`
}

// InvalidReceiptData is the null-valued result used when extraction fails:
// every field empty and is_valid_receipt false. Callers route payments
// carrying it to manual review instead of treating the failure as fatal.
func InvalidReceiptData() ExtractedReceiptData {
	return ExtractedReceiptData{IsValidReceipt: false}
}

// FormSubmissionPayment is one claimed payment/receipt against a
// submission. receipt_path is unique within the submission's payment set.
type FormSubmissionPayment struct {
	ID                  int64                 `json:"id"`
	SubmissionID        int64                 `json:"submission_id"`
	ReceiptPath         string                `json:"receipt_path"`
	ExtractedData       *ExtractedReceiptData `json:"extracted_data,omitempty"`
	AmountClaimed       decimal.Decimal       `json:"amount_claimed"`
	Status              string                `json:"status"`
	BankTransactionID   *int64                `json:"bank_transaction_id,omitempty"`
	ReconciliationNotes string                `json:"reconciliation_notes,omitempty"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

// HasExtractedData reports whether extraction already ran for this payment.
// Analysis uses it to avoid re-spending extraction calls.
func (p *FormSubmissionPayment) HasExtractedData() bool {
	return p.ExtractedData != nil
}

// EffectiveAmount is the amount a verified payment contributes to event
// totals: the extracted amount when present and positive, the claimed
// amount otherwise.
func (p *FormSubmissionPayment) EffectiveAmount() decimal.Decimal {
	if p.ExtractedData != nil && p.ExtractedData.Amount.IsPositive() {
		return p.ExtractedData.Amount
	}
	return p.AmountClaimed
}

// MarshalExtractedData serializes the cached extraction result for storage.
// Returns nil when no extraction result is attached.
func (p *FormSubmissionPayment) MarshalExtractedData() ([]byte, error) {
	if p.ExtractedData == nil {
		return nil, nil
	}
	return json.Marshal(p.ExtractedData)
}

// EventFinancialSummary is one dashboard row: registration counts and
// verified totals for a financial form linked to an event.
type EventFinancialSummary struct {
	EventID        int64           `json:"event_id"`
	EventTitle     string          `json:"event_title"`
	StartTime      time.Time       `json:"start_time"`
	FormID         int64           `json:"form_id"`
	TotalInscribed int             `json:"total_inscribed"`
	VerifiedAmount decimal.Decimal `json:"verified_amount"`
}
