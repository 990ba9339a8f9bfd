package dedup

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/incident-service/internal/domain"
	"github.com/spec-kit/incident-service/internal/observability"
	"github.com/spec-kit/incident-service/internal/repository"
	apperrors "github.com/spec-kit/incident-service/pkg/util/errorutil"
)

// Tier names which layer recognized a submission. TierInflight marks a
// submission joined to an identical one still being written in this process.
type Tier string

const (
	TierNone     Tier = ""
	TierLocal    Tier = "local"
	TierDurable  Tier = "durable"
	TierInflight Tier = "inflight"
)

// Result is the outcome of Guard.Check.
type Result struct {
	Known         bool
	TicketNumbers []string
	Tier          Tier
}

// RecentLister is the slice of the incident store the durable tier reads.
type RecentLister interface {
	ListRecent(ctx context.Context, filter repository.RecentFilter) ([]domain.Incident, error)
}

// Options tunes a Guard.
type Options struct {
	DurableWindow time.Duration
	// FailOpen treats a failed durable lookup as "not seen" instead of
	// refusing the submission.
	FailOpen bool
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

// Guard decides whether a submission was already accepted. The cache is
// consulted first and wins when it has an entry; otherwise recent incidents
// in the store are matched on coarse attributes.
type Guard struct {
	cache    Cache
	store    RecentLister
	window   time.Duration
	failOpen bool
	logger   *zap.Logger
	metrics  *observability.Metrics

	// Now is overridable in tests.
	Now func() time.Time
}

// NewGuard wires the two tiers together. store may be nil to run with the
// cache tier only.
func NewGuard(cache Cache, store RecentLister, opts Options) *Guard {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	window := opts.DurableWindow
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &Guard{
		cache:    cache,
		store:    store,
		window:   window,
		failOpen: opts.FailOpen,
		logger:   logger,
		metrics:  opts.Metrics,
		Now:      time.Now,
	}
}

// Check reports whether sub was seen before and, if so, which tickets it
// produced. It only returns an error when the durable lookup fails and the
// guard is configured to fail closed.
func (g *Guard) Check(ctx context.Context, sub Submission) (Result, error) {
	record, ok, err := g.cache.Get(ctx, sub.Fingerprint)
	switch {
	case err != nil:
		g.logger.Warn("submission cache lookup failed", zap.String("fingerprint", sub.Fingerprint), zap.Error(err))
	case ok:
		g.metrics.RecordDedup(string(TierLocal))
		return Result{Known: true, TicketNumbers: record.TicketNumbers, Tier: TierLocal}, nil
	}

	if g.store == nil {
		g.metrics.RecordDedup("miss")
		return Result{}, nil
	}

	incidents, err := g.store.ListRecent(ctx, repository.RecentFilter{
		Series:   sub.Series,
		Exchange: sub.Exchange,
		Since:    g.Now().Add(-g.window),
	})
	if err != nil {
		g.metrics.RecordDedup("error")
		if g.failOpen {
			g.logger.Warn("durable duplicate check failed; allowing submission",
				zap.String("fingerprint", sub.Fingerprint), zap.Error(err))
			return Result{}, nil
		}
		return Result{}, apperrors.NewDedupUnavailable(err)
	}

	var numbers []string
	if sub.Kind == KindBatch {
		numbers = matchBatch(incidents, sub)
	} else {
		numbers = matchSingle(incidents, sub)
	}
	if len(numbers) == 0 {
		g.metrics.RecordDedup("miss")
		return Result{}, nil
	}

	g.metrics.RecordDedup(string(TierDurable))
	g.Remember(ctx, sub, numbers)
	return Result{Known: true, TicketNumbers: numbers, Tier: TierDurable}, nil
}

// Remember records the tickets minted for sub in the cache tier. The
// durable tier needs no call; the stored incidents are the record.
func (g *Guard) Remember(ctx context.Context, sub Submission, ticketNumbers []string) {
	record := domain.SubmissionRecord{
		Fingerprint:     sub.Fingerprint,
		CreatedAtMillis: g.Now().UnixMilli(),
		TicketNumbers:   append([]string(nil), ticketNumbers...),
	}
	if err := g.cache.Put(ctx, record); err != nil {
		g.logger.Warn("submission cache write failed", zap.String("fingerprint", sub.Fingerprint), zap.Error(err))
	}
}

// matchSingle returns the newest standalone incident with the same node
// set and fault type. incidents arrive newest first.
func matchSingle(incidents []domain.Incident, sub Submission) []string {
	for _, incident := range incidents {
		if incident.InBatch() {
			continue
		}
		if incident.FaultType != sub.FaultType || !sameSet(incident.Nodes, sub.Nodes) {
			continue
		}
		return []string{incident.TicketNumber}
	}
	return nil
}

// matchBatch returns the tickets of the newest complete batch with the same
// stakeholder set and item count. A batch that stopped partway never
// matches, so a retry after a partial failure is allowed through.
func matchBatch(incidents []domain.Incident, sub Submission) []string {
	groups := make(map[string][]domain.Incident)
	var order []string
	for _, incident := range incidents {
		if !incident.InBatch() {
			continue
		}
		id := *incident.BatchID
		if _, seen := groups[id]; !seen {
			order = append(order, id)
		}
		groups[id] = append(groups[id], incident)
	}

	for _, id := range order {
		members := groups[id]
		if len(members) != sub.ItemCount || members[0].BatchSize != sub.ItemCount {
			continue
		}
		if !sameSet(members[0].Stakeholders, sub.Stakeholders) {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i].BatchIndex < members[j].BatchIndex })
		numbers := make([]string, len(members))
		for i, member := range members {
			numbers[i] = member.TicketNumber
		}
		return numbers
	}
	return nil
}
