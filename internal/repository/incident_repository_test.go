package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryBackoffStaysWithinBounds(t *testing.T) {
	for attempt := 1; attempt <= 12; attempt++ {
		for i := 0; i < 50; i++ {
			d := retryBackoff(attempt)
			assert.Greater(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, retryMaxDelay+time.Millisecond)
		}
	}
	for i := 0; i < 50; i++ {
		assert.LessOrEqual(t, retryBackoff(1), retryBaseDelay+time.Millisecond)
	}
}

func TestSleepCtxStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, sleepCtx(ctx, time.Minute), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
