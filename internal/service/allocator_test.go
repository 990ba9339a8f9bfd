package service

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/incident-service/internal/domain"
	"github.com/spec-kit/incident-service/internal/repository"
	apperrors "github.com/spec-kit/incident-service/pkg/util/errorutil"
)

func TestAllocateFormatsAndIncrements(t *testing.T) {
	store := repository.NewMemoryStore()
	allocator := NewSequenceAllocator(store, nil)
	ctx := context.Background()

	first, err := allocator.Allocate(ctx, domain.SeriesStandard)
	require.NoError(t, err)
	second, err := allocator.Allocate(ctx, domain.SeriesStandard)
	require.NoError(t, err)
	gpon, err := allocator.Allocate(ctx, domain.SeriesGPON)
	require.NoError(t, err)

	assert.Equal(t, "IM000001", first)
	assert.Equal(t, "IM000002", second)
	assert.Equal(t, "GIM000001", gpon)

	counter, err := store.GetCounter(ctx, domain.SeriesStandard)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counter.CurrentValue)
}

func TestAllocateRejectsUnknownSeries(t *testing.T) {
	store := repository.NewMemoryStore()
	allocator := NewSequenceAllocator(store, nil)

	_, err := allocator.Allocate(context.Background(), domain.Series("bogus"))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))

	counters, err := store.ListCounters(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counters)
}

func TestAllocateConcurrentCallersGetDistinctNumbers(t *testing.T) {
	store := repository.NewMemoryStore()
	allocator := NewSequenceAllocator(store, nil)

	const callers = 64
	numbers := make([]string, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		i := i
		g.Go(func() error {
			n, err := allocator.Allocate(context.Background(), domain.SeriesStandard)
			numbers[i] = n
			return err
		})
	}
	require.NoError(t, g.Wait())

	sort.Strings(numbers)
	for i, n := range numbers {
		assert.Equal(t, domain.FormatTicketNumber(domain.SeriesStandard, int64(i+1)), n)
	}
}

func TestAllocateMapsStoreFailure(t *testing.T) {
	store := &flakyStore{MemoryStore: repository.NewMemoryStore(), failOn: 1, failWith: repository.ErrTxConflict}
	allocator := NewSequenceAllocator(store, nil)

	_, err := allocator.Allocate(context.Background(), domain.SeriesGPON)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAllocationFailed))
	assert.True(t, errors.Is(err, repository.ErrTxConflict))

	// The failed attempt consumed nothing.
	n, err := allocator.Allocate(context.Background(), domain.SeriesGPON)
	require.NoError(t, err)
	assert.Equal(t, "GIM000001", n)
}
