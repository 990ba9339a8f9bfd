package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/incident-service/internal/domain"
)

func newRedisCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, ttl), srv
}

func TestRedisCacheRoundTripAndExpiry(t *testing.T) {
	cache, srv := newRedisCache(t, 30*time.Second)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "fp")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Put(ctx, domain.SubmissionRecord{
		Fingerprint:     "fp",
		CreatedAtMillis: 1700000000000,
		TicketNumbers:   []string{"GIM000010", "GIM000011"},
	}))

	record, ok, err := cache.Get(ctx, "fp")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"GIM000010", "GIM000011"}, record.TicketNumbers)
	assert.Equal(t, int64(1700000000000), record.CreatedAtMillis)

	srv.FastForward(31 * time.Second)
	_, ok, err = cache.Get(ctx, "fp")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheKeepsFirstRecord(t *testing.T) {
	cache, _ := newRedisCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, domain.SubmissionRecord{Fingerprint: "fp", TicketNumbers: []string{"IM000001"}}))
	require.NoError(t, cache.Put(ctx, domain.SubmissionRecord{Fingerprint: "fp", TicketNumbers: []string{"IM000002"}}))

	record, ok, err := cache.Get(ctx, "fp")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"IM000001"}, record.TicketNumbers)
}

func TestRedisCacheSurfacesConnectionErrors(t *testing.T) {
	cache, srv := newRedisCache(t, time.Minute)
	srv.Close()

	_, _, err := cache.Get(context.Background(), "fp")
	assert.Error(t, err)
}
