package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/incident-service/internal/domain"
	"github.com/spec-kit/incident-service/internal/repository"
	apperrors "github.com/spec-kit/incident-service/pkg/util/errorutil"
)

// SequenceAllocator hands out ticket numbers. Uniqueness rests entirely on
// the store transaction; nothing here takes a lock, so any number of
// processes may allocate from the same series.
type SequenceAllocator struct {
	incidents repository.IncidentRepository
	logger    *zap.Logger
}

// NewSequenceAllocator constructs the allocator.
func NewSequenceAllocator(incidents repository.IncidentRepository, logger *zap.Logger) *SequenceAllocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SequenceAllocator{incidents: incidents, logger: logger}
}

// Allocate reserves the next number of series in its own transaction. The
// number is returned only after the counter bump commits.
func (a *SequenceAllocator) Allocate(ctx context.Context, series domain.Series) (string, error) {
	var ticketNumber string
	err := a.incidents.WithinTx(ctx, func(tx repository.IncidentTx) error {
		number, err := a.AllocateTx(ctx, tx, series)
		if err != nil {
			return err
		}
		ticketNumber = number
		return nil
	})
	if err != nil {
		return "", a.allocationError(series, err)
	}
	return ticketNumber, nil
}

// AllocateTx bumps the counter inside the caller's transaction. The number
// is only valid if that transaction commits.
func (a *SequenceAllocator) AllocateTx(ctx context.Context, tx repository.IncidentTx, series domain.Series) (string, error) {
	if !series.Valid() {
		return "", apperrors.NewValidationError("unknown ticket series", map[string]any{"series": series})
	}
	next, err := tx.IncrementCounter(ctx, series)
	if err != nil {
		return "", err
	}
	return domain.FormatTicketNumber(series, next), nil
}

// allocationError maps a failed allocation transaction to ALLOCATION_FAILED.
// Errors that already carry a code (validation) pass through.
func (a *SequenceAllocator) allocationError(series domain.Series, err error) error {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	a.logger.Warn("ticket allocation failed",
		zap.String("series", string(series)),
		zap.Bool("contention", errors.Is(err, repository.ErrTxConflict)),
		zap.Error(err))
	return apperrors.NewAllocationError(string(series), err)
}
