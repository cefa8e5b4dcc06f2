package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Form is the read-only view of a form owned by the forms subsystem.
// FinancialField names the schema slot that holds the primary receipt
// upload for the form; it is empty for forms without payments.
type Form struct {
	ID             int64  `json:"id"`
	EventID        int64  `json:"event_id"`
	Title          string `json:"title"`
	FinancialField string `json:"financial_field"`
}

// Event is the read-only view of an event owned by the events subsystem.
type Event struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	Archived  bool      `json:"archived"`
}

// SubmissionData is the arbitrary field map a registrant submitted.
// Form-defined labels key the map; lookups trim surrounding whitespace on
// both sides so that label edits in the form builder don't orphan data.
// The rest of the engine goes through these accessors and never touches
// the raw map.
type SubmissionData map[string]any

// ParseSubmissionData decodes the persisted JSON blob of a submission.
func ParseSubmissionData(raw []byte) (SubmissionData, error) {
	if len(raw) == 0 {
		return SubmissionData{}, nil
	}
	var data SubmissionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// StringField returns the string value stored under the given label,
// matching by trimmed label. Non-string values return "".
func (d SubmissionData) StringField(label string) string {
	want := strings.TrimSpace(label)
	for key, value := range d {
		if strings.TrimSpace(key) != want {
			continue
		}
		if s, ok := value.(string); ok {
			return strings.TrimSpace(s)
		}
		return ""
	}
	return ""
}

// FormSubmission is a registrant's entry for an event form. Owned by the
// forms subsystem; this subsystem only reads it and attaches payments.
type FormSubmission struct {
	ID          int64          `json:"id"`
	FormID      int64          `json:"form_id"`
	Data        SubmissionData `json:"data"`
	AccessToken string         `json:"-"`
	Archived    bool           `json:"archived"`
	CreatedAt   time.Time      `json:"created_at"`
}

// SubmissionWithPayments pairs a submission with its refreshed payment set
// for display after receipt analysis.
type SubmissionWithPayments struct {
	Submission FormSubmission           `json:"submission"`
	Payments   []*FormSubmissionPayment `json:"payments"`
}
