package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/incident-service/internal/domain"
)

// CounterRepository exposes read access to series counters. Counters are
// only ever written through IncidentTx.IncrementCounter.
type CounterRepository interface {
	GetCounter(ctx context.Context, series domain.Series) (domain.Counter, error)
	ListCounters(ctx context.Context) ([]domain.Counter, error)
}

type counterRepository struct {
	pool *pgxpool.Pool
}

// NewCounterRepository builds repository.
func NewCounterRepository(pool *pgxpool.Pool) CounterRepository {
	return &counterRepository{pool: pool}
}

func (r *counterRepository) GetCounter(ctx context.Context, series domain.Series) (domain.Counter, error) {
	const query = `SELECT series_name, current_value, updated_at FROM counters WHERE series_name=$1`
	counter := domain.Counter{SeriesName: series}
	err := r.pool.QueryRow(ctx, query, series).Scan(&counter.SeriesName, &counter.CurrentValue, &counter.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Counter{SeriesName: series}, nil
	}
	if err != nil {
		return domain.Counter{}, err
	}
	return counter, nil
}

func (r *counterRepository) ListCounters(ctx context.Context) ([]domain.Counter, error) {
	const query = `SELECT series_name, current_value, updated_at FROM counters ORDER BY series_name ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Counter
	for rows.Next() {
		var counter domain.Counter
		if err := rows.Scan(&counter.SeriesName, &counter.CurrentValue, &counter.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, counter)
	}
	return result, rows.Err()
}
