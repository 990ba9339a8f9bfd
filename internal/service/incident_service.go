package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/incident-service/internal/dedup"
	"github.com/spec-kit/incident-service/internal/domain"
	"github.com/spec-kit/incident-service/internal/events"
	"github.com/spec-kit/incident-service/internal/observability"
	"github.com/spec-kit/incident-service/internal/repository"
	apperrors "github.com/spec-kit/incident-service/pkg/util/errorutil"
)

// MaxBatchItems caps the number of faults in one batch submission.
const MaxBatchItems = 100

// sharedWriteTimeout bounds a collapsed write once it no longer follows the
// request that started it.
const sharedWriteTimeout = 30 * time.Second

// IncidentService creates incidents and keeps repeated submissions from
// minting more than one set of tickets.
type IncidentService struct {
	incidents  repository.IncidentRepository
	counters   repository.CounterRepository
	allocator  *SequenceAllocator
	guard      *dedup.Guard
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	inflight   singleflight.Group
}

// IncidentDependencies bundles collaborators for the incident service.
type IncidentDependencies struct {
	IncidentRepo repository.IncidentRepository
	CounterRepo  repository.CounterRepository
	Allocator    *SequenceAllocator
	Guard        *dedup.Guard
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// IncidentCreateInput describes a single incident submission.
type IncidentCreateInput struct {
	Series       domain.Series
	Exchange     string
	Nodes        []string
	Stakeholders []string
	FaultType    string
	Equipment    string
	Domain       string
	Description  string
	Details      map[string]any
}

// FaultItemInput is one fault inside a batch submission.
type FaultItemInput struct {
	Node        string
	FaultType   string
	Equipment   string
	Description string
	Details     map[string]any
}

// BatchCreateInput describes a multi-fault submission.
type BatchCreateInput struct {
	Series       domain.Series
	Exchange     string
	Stakeholders []string
	Domain       string
	Items        []FaultItemInput
}

// CreateResult carries the tickets for a submission. Deduplicated is set
// when the tickets were minted by an earlier, equivalent submission.
type CreateResult struct {
	TicketNumbers []string
	Deduplicated  bool
}

// TicketNumber returns the first ticket, the only one for single submissions.
func (r *CreateResult) TicketNumber() string {
	if r == nil || len(r.TicketNumbers) == 0 {
		return ""
	}
	return r.TicketNumbers[0]
}

// NewIncidentService constructs the service.
func NewIncidentService(deps IncidentDependencies) *IncidentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	allocator := deps.Allocator
	if allocator == nil {
		allocator = NewSequenceAllocator(deps.IncidentRepo, logger)
	}
	return &IncidentService{
		incidents:  deps.IncidentRepo,
		counters:   deps.CounterRepo,
		allocator:  allocator,
		guard:      deps.Guard,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// CreateIncident mints one ticket, or returns the ticket of an equivalent
// submission accepted recently. Allocation and insert share a transaction.
func (s *IncidentService) CreateIncident(ctx context.Context, operator domain.Operator, input IncidentCreateInput) (*CreateResult, error) {
	series, err := resolveSeries(input.Series, domain.SeriesStandard)
	if err != nil {
		return nil, err
	}
	if err := validateSingle(operator, input); err != nil {
		return nil, err
	}

	sub := dedup.NewSingleSubmission(dedup.SingleInput{
		Series:       series,
		Exchange:     input.Exchange,
		Nodes:        input.Nodes,
		Stakeholders: input.Stakeholders,
		FaultType:    input.FaultType,
		Equipment:    input.Equipment,
		Domain:       input.Domain,
	})

	return s.collapse(ctx, operator, sub, func(ctx context.Context) (*CreateResult, error) {
		if res, known, err := s.checkSeen(ctx, operator, sub); err != nil || known {
			return res, err
		}

		incident := &domain.Incident{
			Series:                series,
			Exchange:              sub.Exchange,
			Nodes:                 sub.Nodes,
			Stakeholders:          sub.Stakeholders,
			FaultType:             sub.FaultType,
			Equipment:             strings.TrimSpace(input.Equipment),
			Domain:                strings.TrimSpace(input.Domain),
			TicketGenerator:       operator.ID,
			Description:           strings.TrimSpace(input.Description),
			Details:               input.Details,
			SubmissionFingerprint: sub.Fingerprint,
			Status:                domain.IncidentStatusInProgress,
		}
		if err := s.persist(ctx, series, incident); err != nil {
			return nil, err
		}

		numbers := []string{incident.TicketNumber}
		s.guard.Remember(ctx, sub, numbers)
		s.logger.Info("incident created",
			zap.String("ticket_number", incident.TicketNumber),
			zap.String("exchange", incident.Exchange),
			zap.String("operator_id", operator.ID))
		s.publishEvent(ctx, operator, events.EventIncidentCreated, events.IncidentCreatedPayload{
			Series:        series,
			Exchange:      sub.Exchange,
			TicketNumbers: numbers,
			Fingerprint:   sub.Fingerprint,
		})
		return &CreateResult{TicketNumbers: numbers}, nil
	})
}

// CreateIncidentBatch mints one ticket per fault, in input order, each in
// its own transaction. The batch is not atomic: when item k fails, items
// before it stay committed and are reported in a PARTIAL_BATCH_FAILURE
// carrying the 1-based position of the failed item.
// Only a fully committed batch is remembered, so retrying a partially
// failed batch is not deduplicated.
func (s *IncidentService) CreateIncidentBatch(ctx context.Context, operator domain.Operator, input BatchCreateInput) (*CreateResult, error) {
	series, err := resolveSeries(input.Series, domain.SeriesGPON)
	if err != nil {
		return nil, err
	}
	if err := validateBatch(operator, input); err != nil {
		return nil, err
	}

	items := make([]dedup.BatchItem, len(input.Items))
	for i, item := range input.Items {
		items[i] = dedup.BatchItem{Node: item.Node, FaultType: item.FaultType, Equipment: item.Equipment}
	}
	sub := dedup.NewBatchSubmission(dedup.BatchInput{
		Series:          series,
		Exchange:        input.Exchange,
		Stakeholders:    input.Stakeholders,
		TicketGenerator: operator.ID,
		Items:           items,
	})

	return s.collapse(ctx, operator, sub, func(ctx context.Context) (*CreateResult, error) {
		if res, known, err := s.checkSeen(ctx, operator, sub); err != nil || known {
			return res, err
		}

		batchID := uuid.NewString()
		committed := make([]string, 0, len(input.Items))
		for i, item := range input.Items {
			id := batchID
			incident := &domain.Incident{
				Series:                series,
				Exchange:              sub.Exchange,
				Nodes:                 []string{strings.TrimSpace(item.Node)},
				Stakeholders:          sub.Stakeholders,
				FaultType:             strings.TrimSpace(item.FaultType),
				Equipment:             strings.TrimSpace(item.Equipment),
				Domain:                strings.TrimSpace(input.Domain),
				TicketGenerator:       operator.ID,
				Description:           strings.TrimSpace(item.Description),
				Details:               item.Details,
				BatchID:               &id,
				BatchIndex:            i,
				BatchSize:             len(input.Items),
				SubmissionFingerprint: sub.Fingerprint,
				Status:                domain.IncidentStatusInProgress,
			}
			if err := s.persist(ctx, series, incident); err != nil {
				if len(committed) == 0 {
					return nil, err
				}
				// Positions are reported 1-based: item k failed, items 1..k-1 committed.
				position := i + 1
				s.logger.Error("batch stopped after partial commit",
					zap.String("batch_id", batchID),
					zap.Strings("committed", committed),
					zap.Int("failed_index", position),
					zap.Error(err))
				s.publishEvent(ctx, operator, events.EventIncidentBatchPartialFailure, events.IncidentBatchPartialFailurePayload{
					Series:           series,
					Exchange:         sub.Exchange,
					CommittedTickets: append([]string(nil), committed...),
					FailedIndex:      position,
					Reason:           err.Error(),
				})
				return nil, apperrors.NewPartialBatchFailure(committed, position, err)
			}
			committed = append(committed, incident.TicketNumber)
		}

		s.guard.Remember(ctx, sub, committed)
		s.logger.Info("incident batch created",
			zap.String("batch_id", batchID),
			zap.Strings("ticket_numbers", committed),
			zap.String("operator_id", operator.ID))
		s.publishEvent(ctx, operator, events.EventIncidentCreated, events.IncidentCreatedPayload{
			Series:        series,
			Exchange:      sub.Exchange,
			TicketNumbers: committed,
			Fingerprint:   sub.Fingerprint,
		})
		return &CreateResult{TicketNumbers: committed}, nil
	})
}

// GetIncident fetches an incident by its ticket number.
func (s *IncidentService) GetIncident(ctx context.Context, ticketNumber string) (*domain.Incident, error) {
	ticketNumber = strings.ToUpper(strings.TrimSpace(ticketNumber))
	if ticketNumber == "" {
		return nil, apperrors.NewValidationError("ticket number required", nil)
	}
	incident, err := s.incidents.GetByTicketNumber(ctx, ticketNumber)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("incident", map[string]any{"ticket_number": ticketNumber})
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return incident, nil
}

// ListCounters reports the high-water mark of every series, including
// series that have not issued a ticket yet.
func (s *IncidentService) ListCounters(ctx context.Context) ([]domain.Counter, error) {
	stored, err := s.counters.ListCounters(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	bySeries := make(map[domain.Series]domain.Counter, len(stored))
	for _, counter := range stored {
		bySeries[counter.SeriesName] = counter
	}
	result := make([]domain.Counter, 0, len(domain.AllSeries()))
	for _, series := range domain.AllSeries() {
		counter, ok := bySeries[series]
		if !ok {
			counter = domain.Counter{SeriesName: series}
		}
		result = append(result, counter)
	}
	return result, nil
}

// collapse runs fn once for concurrent calls carrying the same fingerprint.
// The shared write runs detached from any single caller's cancellation, so a
// caller that gives up does not abort it for the others; a write that
// commits after its caller left is remembered and found on resubmission.
// Callers that joined an in-flight call get its tickets marked as
// deduplicated.
func (s *IncidentService) collapse(ctx context.Context, operator domain.Operator, sub dedup.Submission, fn func(context.Context) (*CreateResult, error)) (*CreateResult, error) {
	leader := false
	ch := s.inflight.DoChan(sub.Fingerprint, func() (interface{}, error) {
		leader = true
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedWriteTimeout)
		defer cancel()
		return fn(writeCtx)
	})

	select {
	case <-ctx.Done():
		s.logger.Warn("caller left before submission finished",
			zap.String("fingerprint", sub.Fingerprint),
			zap.Error(ctx.Err()))
		return nil, apperrors.NewAllocationError(string(sub.Series), ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := r.Val.(*CreateResult)
		if leader {
			return res, nil
		}
		s.metrics.RecordDedup(string(dedup.TierInflight))
		numbers := append([]string(nil), res.TicketNumbers...)
		s.reportDuplicate(ctx, operator, sub, dedup.TierInflight, numbers)
		return &CreateResult{TicketNumbers: numbers, Deduplicated: true}, nil
	}
}

func (s *IncidentService) checkSeen(ctx context.Context, operator domain.Operator, sub dedup.Submission) (*CreateResult, bool, error) {
	res, err := s.guard.Check(ctx, sub)
	if err != nil {
		return nil, false, err
	}
	if !res.Known {
		return nil, false, nil
	}
	s.reportDuplicate(ctx, operator, sub, res.Tier, res.TicketNumbers)
	return &CreateResult{TicketNumbers: res.TicketNumbers, Deduplicated: true}, true, nil
}

func (s *IncidentService) reportDuplicate(ctx context.Context, operator domain.Operator, sub dedup.Submission, tier dedup.Tier, numbers []string) {
	s.logger.Info("duplicate submission suppressed",
		zap.String("fingerprint", sub.Fingerprint),
		zap.String("tier", string(tier)),
		zap.Strings("ticket_numbers", numbers))
	s.publishEvent(ctx, operator, events.EventIncidentDeduplicated, events.IncidentDeduplicatedPayload{
		Series:        sub.Series,
		Exchange:      sub.Exchange,
		TicketNumbers: numbers,
		Fingerprint:   sub.Fingerprint,
		Tier:          string(tier),
	})
}

// persist allocates the ticket number and inserts the incident in one
// transaction, so a committed incident always owns its number.
func (s *IncidentService) persist(ctx context.Context, series domain.Series, incident *domain.Incident) error {
	err := s.incidents.WithinTx(ctx, func(tx repository.IncidentTx) error {
		number, err := s.allocator.AllocateTx(ctx, tx, series)
		if err != nil {
			return err
		}
		incident.TicketNumber = number
		return tx.InsertIncident(ctx, incident)
	})
	if err != nil {
		incident.TicketNumber = ""
		return s.allocator.allocationError(series, err)
	}
	s.metrics.RecordTicket(string(series))
	return nil
}

func (s *IncidentService) publishEvent(ctx context.Context, operator domain.Operator, eventType events.EventType, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Actor:     events.Actor{OperatorID: operator.ID, Role: operator.Role},
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

func resolveSeries(series, fallback domain.Series) (domain.Series, error) {
	if series == "" {
		return fallback, nil
	}
	if !series.Valid() {
		return "", apperrors.NewValidationError("unknown ticket series", map[string]any{"series": series})
	}
	return series, nil
}

func validateSingle(operator domain.Operator, input IncidentCreateInput) error {
	missing := []string{}
	if strings.TrimSpace(operator.ID) == "" {
		missing = append(missing, "ticket_generator")
	}
	if strings.TrimSpace(input.Exchange) == "" {
		missing = append(missing, "exchange")
	}
	if len(dedup.NormalizeSet(input.Nodes)) == 0 {
		missing = append(missing, "nodes")
	}
	if strings.TrimSpace(input.FaultType) == "" {
		missing = append(missing, "fault_type")
	}
	if len(missing) > 0 {
		return apperrors.NewValidationError("required fields missing", map[string]any{"missing": missing})
	}
	return nil
}

func validateBatch(operator domain.Operator, input BatchCreateInput) error {
	missing := []string{}
	if strings.TrimSpace(operator.ID) == "" {
		missing = append(missing, "ticket_generator")
	}
	if strings.TrimSpace(input.Exchange) == "" {
		missing = append(missing, "exchange")
	}
	if len(input.Items) == 0 {
		missing = append(missing, "items")
	}
	for i, item := range input.Items {
		if strings.TrimSpace(item.Node) == "" || strings.TrimSpace(item.FaultType) == "" {
			return apperrors.NewValidationError("fault item incomplete", map[string]any{
				"index":    i,
				"required": []string{"node", "fault_type"},
			})
		}
	}
	if len(missing) > 0 {
		return apperrors.NewValidationError("required fields missing", map[string]any{"missing": missing})
	}
	if len(input.Items) > MaxBatchItems {
		return apperrors.NewValidationError("too many fault items", map[string]any{"max": MaxBatchItems})
	}
	return nil
}
