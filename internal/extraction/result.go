package extraction

import "github.com/montesion/reconciliation/internal/models"

// Result is the outcome of a single receipt extraction call. Extraction
// never returns a Go error to callers: a service or parse failure becomes
// a failed Result whose Fields degrade to the null-valued invalid shape,
// and the owning payment is routed to manual review.
type Result struct {
	data    models.ExtractedReceiptData
	failure string
}

// Extracted wraps a successful extraction.
func Extracted(data models.ExtractedReceiptData) Result {
	return Result{data: data}
}

// Failed wraps a degraded extraction with the reason it failed.
func Failed(reason string) Result {
	if reason == "" {
		reason = "extraction failed"
	}
	return Result{failure: reason}
}

// Failed reports whether the extraction degraded.
func (r Result) Failed() bool {
	return r.failure != ""
}

// FailureReason returns why the extraction degraded, empty on success.
func (r Result) FailureReason() string {
	return r.failure
}

// Fields returns the structured data. Failed results yield the null-valued
// invalid shape (is_valid_receipt=false, all fields empty).
func (r Result) Fields() models.ExtractedReceiptData {
	if r.Failed() {
		return models.InvalidReceiptData()
	}
	return r.data
}
