package events

import (
	"time"

	"github.com/spec-kit/incident-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventIncidentCreated             EventType = "incident_created"
	EventIncidentDeduplicated        EventType = "incident_deduplicated"
	EventIncidentBatchPartialFailure EventType = "incident_batch_partial_failure"
)

// Actor identifies the operator behind an event.
type Actor struct {
	OperatorID string              `json:"operator_id"`
	Role       domain.OperatorRole `json:"role,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// IncidentCreatedPayload payload.
type IncidentCreatedPayload struct {
	Series        domain.Series `json:"series"`
	Exchange      string        `json:"exchange"`
	TicketNumbers []string      `json:"ticket_numbers"`
	Fingerprint   string        `json:"fingerprint"`
}

// IncidentDeduplicatedPayload payload.
type IncidentDeduplicatedPayload struct {
	Series        domain.Series `json:"series"`
	Exchange      string        `json:"exchange"`
	TicketNumbers []string      `json:"ticket_numbers"`
	Fingerprint   string        `json:"fingerprint"`
	Tier          string        `json:"tier"`
}

// IncidentBatchPartialFailurePayload payload.
type IncidentBatchPartialFailurePayload struct {
	Series           domain.Series `json:"series"`
	Exchange         string        `json:"exchange"`
	CommittedTickets []string      `json:"committed_tickets"`
	FailedIndex      int           `json:"failed_index"` // 1-based item position
	Reason           string        `json:"reason"`
}
