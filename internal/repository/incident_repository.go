package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/incident-service/internal/domain"
)

var (
	// ErrTxConflict means the transaction kept losing to concurrent writers
	// and gave up after exhausting its retry budget. Nothing was committed.
	ErrTxConflict = errors.New("transaction aborted after retries")
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateTicket signals a ticket number collision on insert.
	ErrDuplicateTicket = errors.New("ticket number already exists")
)

const defaultRecentLimit = 200

// RecentFilter selects incidents for the trailing-window duplicate check.
type RecentFilter struct {
	Series   domain.Series
	Exchange string
	Since    time.Time
	Limit    int
}

// IncidentTx is the view of the store inside one atomic transaction.
type IncidentTx interface {
	// IncrementCounter bumps the series counter by one and returns the new
	// value. A series without a counter starts at zero.
	IncrementCounter(ctx context.Context, series domain.Series) (int64, error)
	InsertIncident(ctx context.Context, incident *domain.Incident) error
}

// IncidentRepository encapsulates incident persistence.
type IncidentRepository interface {
	// WithinTx runs fn in one transaction, retrying it when the store
	// reports a serialization failure or deadlock. fn may run more than once
	// and must not call back into the repository.
	WithinTx(ctx context.Context, fn func(tx IncidentTx) error) error
	GetByTicketNumber(ctx context.Context, ticketNumber string) (*domain.Incident, error)
	ListRecent(ctx context.Context, filter RecentFilter) ([]domain.Incident, error)
}

type incidentRepository struct {
	pool       *pgxpool.Pool
	maxRetries int
}

// NewIncidentRepository instantiates the Postgres-backed repository.
func NewIncidentRepository(pool *pgxpool.Pool, maxRetries int) IncidentRepository {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &incidentRepository{pool: pool, maxRetries: maxRetries}
}

// WithinTx runs at READ COMMITTED. The counter upsert takes the row lock
// and re-reads the committed value, so concurrent allocations queue on the
// row instead of aborting; the retry loop only absorbs deadlocks and
// serialization failures the server may still report.
func (r *incidentRepository) WithinTx(ctx context.Context, fn func(tx IncidentTx) error) error {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, retryBackoff(attempt)); err != nil {
				return err
			}
		}
		err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
			return fn(&pgIncidentTx{tx: tx})
		})
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", ErrTxConflict, lastErr)
}

const (
	retryBaseDelay = 5 * time.Millisecond
	retryMaxDelay  = 200 * time.Millisecond
)

// retryBackoff is exponential with full jitter.
func retryBackoff(attempt int) time.Duration {
	ceiling := retryBaseDelay << (attempt - 1)
	if ceiling <= 0 || ceiling > retryMaxDelay {
		ceiling = retryMaxDelay
	}
	return time.Duration(rand.Int63n(int64(ceiling))) + time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// serialization_failure, deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

type pgIncidentTx struct {
	tx pgx.Tx
}

func (t *pgIncidentTx) IncrementCounter(ctx context.Context, series domain.Series) (int64, error) {
	const query = `
        INSERT INTO counters (series_name, current_value, updated_at)
        VALUES ($1, 1, NOW())
        ON CONFLICT (series_name) DO UPDATE
            SET current_value = counters.current_value + 1, updated_at = NOW()
        RETURNING current_value`
	var next int64
	if err := t.tx.QueryRow(ctx, query, series).Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func (t *pgIncidentTx) InsertIncident(ctx context.Context, incident *domain.Incident) error {
	const query = `
        INSERT INTO incidents (ticket_number, series, exchange, nodes, stakeholders, fault_type, equipment, domain,
            ticket_generator, description, details, batch_id, batch_index, batch_size, submission_fingerprint, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
        RETURNING id, created_at`
	details := incident.Details
	if details == nil {
		details = map[string]any{}
	}
	err := t.tx.QueryRow(ctx, query,
		incident.TicketNumber,
		incident.Series,
		incident.Exchange,
		incident.Nodes,
		incident.Stakeholders,
		incident.FaultType,
		incident.Equipment,
		incident.Domain,
		incident.TicketGenerator,
		incident.Description,
		details,
		incident.BatchID,
		incident.BatchIndex,
		incident.BatchSize,
		incident.SubmissionFingerprint,
		incident.Status,
	).Scan(&incident.ID, &incident.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicateTicket, incident.TicketNumber)
	}
	return err
}

const incidentColumns = `id, ticket_number, series, exchange, nodes, stakeholders, fault_type, equipment, domain,
               ticket_generator, description, details, batch_id, batch_index, batch_size, submission_fingerprint,
               status, created_at`

func (r *incidentRepository) GetByTicketNumber(ctx context.Context, ticketNumber string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE ticket_number=$1`
	incident, err := scanIncident(r.pool.QueryRow(ctx, query, ticketNumber))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return incident, nil
}

func (r *incidentRepository) ListRecent(ctx context.Context, filter RecentFilter) ([]domain.Incident, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	query := `SELECT ` + incidentColumns + `
             FROM incidents
             WHERE series=$1 AND exchange=$2 AND created_at >= $3
             ORDER BY created_at DESC, ticket_number DESC
             LIMIT $4`
	rows, err := r.pool.Query(ctx, query, filter.Series, filter.Exchange, filter.Since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Incident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *incident)
	}
	return result, rows.Err()
}

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var incident domain.Incident
	if err := row.Scan(
		&incident.ID,
		&incident.TicketNumber,
		&incident.Series,
		&incident.Exchange,
		&incident.Nodes,
		&incident.Stakeholders,
		&incident.FaultType,
		&incident.Equipment,
		&incident.Domain,
		&incident.TicketGenerator,
		&incident.Description,
		&incident.Details,
		&incident.BatchID,
		&incident.BatchIndex,
		&incident.BatchSize,
		&incident.SubmissionFingerprint,
		&incident.Status,
		&incident.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &incident, nil
}
