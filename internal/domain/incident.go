package domain

import "time"

// IncidentStatus enumerates lifecycle states for incidents.
type IncidentStatus string

const (
	IncidentStatusInProgress IncidentStatus = "In Progress"
	IncidentStatusResolved   IncidentStatus = "Resolved"
	IncidentStatusClosed     IncidentStatus = "Closed"
)

// Incident is one minted ticket for a network fault.
type Incident struct {
	ID              string
	TicketNumber    string
	Series          Series
	Exchange        string
	Nodes           []string
	Stakeholders    []string
	FaultType       string
	Equipment       string
	Domain          string
	TicketGenerator string
	Description     string
	Details         map[string]any
	// Batch fields are set only for incidents minted from a multi-fault submission.
	BatchID               *string
	BatchIndex            int
	BatchSize             int
	SubmissionFingerprint string
	Status                IncidentStatus
	CreatedAt             time.Time
}

// InBatch reports whether the incident was minted as part of a batch.
func (i *Incident) InBatch() bool {
	return i.BatchID != nil
}
