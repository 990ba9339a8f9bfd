package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/incident-service/internal/domain"
)

// MemoryStore is a process-local IncidentRepository and CounterRepository.
// Transactions are serialized behind one mutex and staged until fn returns,
// so a failed fn leaves no trace. It backs development runs without
// Postgres and the service tests.
type MemoryStore struct {
	mu        sync.Mutex
	counters  map[domain.Series]domain.Counter
	incidents []domain.Incident
	tickets   map[string]int

	// Now is overridable in tests.
	Now func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[domain.Series]domain.Counter),
		tickets:  make(map[string]int),
		Now:      time.Now,
	}
}

type memoryTx struct {
	store     *MemoryStore
	counters  map[domain.Series]int64
	incidents []domain.Incident
	tickets   map[string]struct{}
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx IncidentTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		store:    s,
		counters: make(map[domain.Series]int64),
		tickets:  make(map[string]struct{}),
	}
	if err := fn(tx); err != nil {
		return err
	}

	now := s.Now()
	for series, value := range tx.counters {
		s.counters[series] = domain.Counter{SeriesName: series, CurrentValue: value, UpdatedAt: now}
	}
	for _, incident := range tx.incidents {
		s.tickets[incident.TicketNumber] = len(s.incidents)
		s.incidents = append(s.incidents, incident)
	}
	return nil
}

func (t *memoryTx) IncrementCounter(ctx context.Context, series domain.Series) (int64, error) {
	current, staged := t.counters[series]
	if !staged {
		current = t.store.counters[series].CurrentValue
	}
	next := current + 1
	t.counters[series] = next
	return next, nil
}

func (t *memoryTx) InsertIncident(ctx context.Context, incident *domain.Incident) error {
	if incident.TicketNumber == "" {
		return fmt.Errorf("insert incident: empty ticket number")
	}
	if _, exists := t.store.tickets[incident.TicketNumber]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTicket, incident.TicketNumber)
	}
	if _, exists := t.tickets[incident.TicketNumber]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTicket, incident.TicketNumber)
	}
	incident.ID = uuid.NewString()
	incident.CreatedAt = t.store.Now()
	t.tickets[incident.TicketNumber] = struct{}{}
	t.incidents = append(t.incidents, cloneIncident(*incident))
	return nil
}

func (s *MemoryStore) GetByTicketNumber(ctx context.Context, ticketNumber string) (*domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.tickets[ticketNumber]
	if !ok {
		return nil, ErrNotFound
	}
	incident := cloneIncident(s.incidents[idx])
	return &incident, nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, filter RecentFilter) ([]domain.Incident, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.Incident
	for i := len(s.incidents) - 1; i >= 0 && len(result) < limit; i-- {
		incident := s.incidents[i]
		if incident.Series != filter.Series || incident.Exchange != filter.Exchange {
			continue
		}
		if incident.CreatedAt.Before(filter.Since) {
			continue
		}
		result = append(result, cloneIncident(incident))
	}
	return result, nil
}

// Count returns the number of committed incidents.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.incidents)
}

func (s *MemoryStore) GetCounter(ctx context.Context, series domain.Series) (domain.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counter, ok := s.counters[series]
	if !ok {
		return domain.Counter{SeriesName: series}, nil
	}
	return counter, nil
}

func (s *MemoryStore) ListCounters(ctx context.Context) ([]domain.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]domain.Counter, 0, len(s.counters))
	for _, counter := range s.counters {
		result = append(result, counter)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SeriesName < result[j].SeriesName })
	return result, nil
}

func cloneIncident(in domain.Incident) domain.Incident {
	out := in
	out.Nodes = append([]string(nil), in.Nodes...)
	out.Stakeholders = append([]string(nil), in.Stakeholders...)
	if in.Details != nil {
		out.Details = make(map[string]any, len(in.Details))
		for k, v := range in.Details {
			out.Details[k] = v
		}
	}
	if in.BatchID != nil {
		id := *in.BatchID
		out.BatchID = &id
	}
	return out
}

var (
	_ IncidentRepository = (*MemoryStore)(nil)
	_ CounterRepository  = (*MemoryStore)(nil)
)
