package domain

import "time"

// SubmissionRecord remembers the tickets minted for an accepted fingerprint.
type SubmissionRecord struct {
	Fingerprint     string   `json:"fingerprint"`
	CreatedAtMillis int64    `json:"created_at_millis"`
	TicketNumbers   []string `json:"ticket_numbers"`
}

// CreatedAt returns the record creation time.
func (r SubmissionRecord) CreatedAt() time.Time {
	return time.UnixMilli(r.CreatedAtMillis)
}
