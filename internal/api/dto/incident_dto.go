package dto

import (
	"time"

	"github.com/spec-kit/incident-service/internal/domain"
)

// CreateIncidentRequest payload.
type CreateIncidentRequest struct {
	Series       domain.Series  `json:"series"`
	Exchange     string         `json:"exchange"`
	Nodes        []string       `json:"nodes"`
	Stakeholders []string       `json:"stakeholders"`
	FaultType    string         `json:"fault_type"`
	Equipment    string         `json:"equipment"`
	Domain       string         `json:"domain"`
	Description  string         `json:"description"`
	Details      map[string]any `json:"details"`
}

// FaultItemRequest is one entry of a batch payload.
type FaultItemRequest struct {
	Node        string         `json:"node"`
	FaultType   string         `json:"fault_type"`
	Equipment   string         `json:"equipment"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details"`
}

// CreateIncidentBatchRequest payload.
type CreateIncidentBatchRequest struct {
	Series       domain.Series      `json:"series"`
	Exchange     string             `json:"exchange"`
	Stakeholders []string           `json:"stakeholders"`
	Domain       string             `json:"domain"`
	Items        []FaultItemRequest `json:"items"`
}

// CreateIncidentResponse carries the minted or previously minted tickets.
type CreateIncidentResponse struct {
	TicketNumber  string   `json:"ticket_number"`
	TicketNumbers []string `json:"ticket_numbers"`
	Deduplicated  bool     `json:"deduplicated"`
}

// IncidentResponse is the read model of an incident.
type IncidentResponse struct {
	ID              string                `json:"id"`
	TicketNumber    string                `json:"ticket_number"`
	Series          domain.Series         `json:"series"`
	Exchange        string                `json:"exchange"`
	Nodes           []string              `json:"nodes"`
	Stakeholders    []string              `json:"stakeholders"`
	FaultType       string                `json:"fault_type"`
	Equipment       string                `json:"equipment,omitempty"`
	Domain          string                `json:"domain,omitempty"`
	TicketGenerator string                `json:"ticket_generator"`
	Description     string                `json:"description,omitempty"`
	Details         map[string]any        `json:"details,omitempty"`
	BatchID         *string               `json:"batch_id,omitempty"`
	BatchIndex      *int                  `json:"batch_index,omitempty"`
	BatchSize       *int                  `json:"batch_size,omitempty"`
	Status          domain.IncidentStatus `json:"status"`
	CreatedAt       time.Time             `json:"created_at"`
}

// CounterResponse reports a series high-water mark.
type CounterResponse struct {
	Series       domain.Series `json:"series"`
	Prefix       string        `json:"prefix"`
	CurrentValue int64         `json:"current_value"`
	LastIssued   string        `json:"last_issued,omitempty"`
	UpdatedAt    *time.Time    `json:"updated_at,omitempty"`
}

// NewIncidentResponse maps a domain incident.
func NewIncidentResponse(incident *domain.Incident) IncidentResponse {
	resp := IncidentResponse{
		ID:              incident.ID,
		TicketNumber:    incident.TicketNumber,
		Series:          incident.Series,
		Exchange:        incident.Exchange,
		Nodes:           incident.Nodes,
		Stakeholders:    incident.Stakeholders,
		FaultType:       incident.FaultType,
		Equipment:       incident.Equipment,
		Domain:          incident.Domain,
		TicketGenerator: incident.TicketGenerator,
		Description:     incident.Description,
		Details:         incident.Details,
		Status:          incident.Status,
		CreatedAt:       incident.CreatedAt,
	}
	if incident.InBatch() {
		index, size := incident.BatchIndex, incident.BatchSize
		resp.BatchID = incident.BatchID
		resp.BatchIndex = &index
		resp.BatchSize = &size
	}
	return resp
}

// NewCounterResponse maps a domain counter.
func NewCounterResponse(counter domain.Counter) CounterResponse {
	resp := CounterResponse{
		Series:       counter.SeriesName,
		Prefix:       counter.SeriesName.Prefix(),
		CurrentValue: counter.CurrentValue,
	}
	if counter.CurrentValue > 0 {
		resp.LastIssued = domain.FormatTicketNumber(counter.SeriesName, counter.CurrentValue)
	}
	if !counter.UpdatedAt.IsZero() {
		updated := counter.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}
