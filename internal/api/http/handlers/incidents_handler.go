package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/incident-service/internal/api/dto"
	"github.com/spec-kit/incident-service/internal/auth"
	"github.com/spec-kit/incident-service/internal/service"
	apperrors "github.com/spec-kit/incident-service/pkg/util/errorutil"
)

// IncidentsHandler exposes incident creation and lookup.
type IncidentsHandler struct {
	service *service.IncidentService
}

// NewIncidentsHandler constructs handler.
func NewIncidentsHandler(incidentService *service.IncidentService) *IncidentsHandler {
	return &IncidentsHandler{service: incidentService}
}

// CreateIncident POST /incidents.
func (h *IncidentsHandler) CreateIncident(c *fiber.Ctx) error {
	operator, ok := auth.OperatorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("operator required")
	}
	var req dto.CreateIncidentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.service.CreateIncident(c.UserContext(), *operator, service.IncidentCreateInput{
		Series:       req.Series,
		Exchange:     req.Exchange,
		Nodes:        req.Nodes,
		Stakeholders: req.Stakeholders,
		FaultType:    req.FaultType,
		Equipment:    req.Equipment,
		Domain:       req.Domain,
		Description:  req.Description,
		Details:      req.Details,
	})
	if err != nil {
		return err
	}
	return c.Status(createdStatus(result)).JSON(fiber.Map{"data": createResponse(result)})
}

// CreateIncidentBatch POST /incidents/batch.
func (h *IncidentsHandler) CreateIncidentBatch(c *fiber.Ctx) error {
	operator, ok := auth.OperatorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("operator required")
	}
	var req dto.CreateIncidentBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	items := make([]service.FaultItemInput, len(req.Items))
	for i, item := range req.Items {
		items[i] = service.FaultItemInput{
			Node:        item.Node,
			FaultType:   item.FaultType,
			Equipment:   item.Equipment,
			Description: item.Description,
			Details:     item.Details,
		}
	}
	result, err := h.service.CreateIncidentBatch(c.UserContext(), *operator, service.BatchCreateInput{
		Series:       req.Series,
		Exchange:     req.Exchange,
		Stakeholders: req.Stakeholders,
		Domain:       req.Domain,
		Items:        items,
	})
	if err != nil {
		return err
	}
	return c.Status(createdStatus(result)).JSON(fiber.Map{"data": createResponse(result)})
}

// GetIncident GET /incidents/:ticket_number.
func (h *IncidentsHandler) GetIncident(c *fiber.Ctx) error {
	incident, err := h.service.GetIncident(c.UserContext(), c.Params("ticket_number"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIncidentResponse(incident)})
}

// ListCounters GET /counters.
func (h *IncidentsHandler) ListCounters(c *fiber.Ctx) error {
	counters, err := h.service.ListCounters(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.CounterResponse, 0, len(counters))
	for _, counter := range counters {
		items = append(items, dto.NewCounterResponse(counter))
	}
	return c.JSON(fiber.Map{"data": items})
}

// A replayed submission answers 200 with the original tickets.
func createdStatus(result *service.CreateResult) int {
	if result.Deduplicated {
		return http.StatusOK
	}
	return http.StatusCreated
}

func createResponse(result *service.CreateResult) dto.CreateIncidentResponse {
	return dto.CreateIncidentResponse{
		TicketNumber:  result.TicketNumber(),
		TicketNumbers: result.TicketNumbers,
		Deduplicated:  result.Deduplicated,
	}
}
