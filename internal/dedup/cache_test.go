package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/incident-service/internal/domain"
)

func TestMemoryCacheExpiresEntries(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	cache := NewMemoryCache(30 * time.Second)
	cache.Now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, domain.SubmissionRecord{Fingerprint: "fp", TicketNumbers: []string{"IM000001"}}))

	now = now.Add(29 * time.Second)
	record, ok, err := cache.Get(ctx, "fp")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"IM000001"}, record.TicketNumbers)

	now = now.Add(time.Second)
	_, ok, err = cache.Get(ctx, "fp")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestMemoryCacheSweep(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	cache := NewMemoryCache(10 * time.Second)
	cache.Now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, domain.SubmissionRecord{Fingerprint: "old"}))
	now = now.Add(8 * time.Second)
	require.NoError(t, cache.Put(ctx, domain.SubmissionRecord{Fingerprint: "new"}))
	now = now.Add(3 * time.Second)

	assert.Equal(t, 1, cache.Sweep())
	assert.Equal(t, 1, cache.Len())
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	ctx := context.Background()
	numbers := []string{"GIM000001", "GIM000002"}
	require.NoError(t, cache.Put(ctx, domain.SubmissionRecord{Fingerprint: "fp", TicketNumbers: numbers}))
	numbers[0] = "changed"

	record, ok, err := cache.Get(ctx, "fp")
	require.NoError(t, err)
	require.True(t, ok)
	record.TicketNumbers[1] = "changed"

	again, _, _ := cache.Get(ctx, "fp")
	assert.Equal(t, []string{"GIM000001", "GIM000002"}, again.TicketNumbers)
}
