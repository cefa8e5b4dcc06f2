package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankReport represents one statement ingestion batch. Reports are created
// when an upload starts and are immutable afterwards.
type BankReport struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// BankTransaction represents one bank-side credit movement. Rows are only
// ever created by the ingestion pipeline and never updated in place.
// The tuple (date, amount, description, reference) is the natural dedup key.
type BankTransaction struct {
	ID          int64           `json:"id"`
	ReportID    int64           `json:"report_id"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Reference   string          `json:"reference"`
	BankName    string          `json:"bank_name"`
	CreatedAt   time.Time       `json:"created_at"`
}

// AnnotatedBankTransaction is a BankTransaction decorated with its derived
// reconciliation state. The flag is computed per query against the global
// set of transaction ids referenced by any payment, across all forms.
type AnnotatedBankTransaction struct {
	BankTransaction
	IsReconciled bool `json:"is_reconciled"`
}
