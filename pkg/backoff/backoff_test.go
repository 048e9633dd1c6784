package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	t.Run("retries exhausted", func(t *testing.T) {
		backoff := New(2, time.Millisecond, time.Millisecond)

		assert.True(t, backoff.Wait(context.Background()))
		assert.True(t, backoff.Wait(context.Background()))
		assert.True(t, backoff.Wait(context.Background()))
		assert.False(t, backoff.Wait(context.Background()))
	})

	t.Run("cancel", func(t *testing.T) {
		backoff := New(0, time.Minute, time.Minute)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.False(t, backoff.Wait(ctx))
	})

	t.Run("doubles up to max", func(t *testing.T) {
		backoff := New(0, time.Second, time.Second*4)

		backoff.lastBackoff = time.Second
		assert.LessOrEqual(t, backoff.nextWait(), jittered(time.Second*2))

		backoff.lastBackoff = time.Second * 4
		assert.LessOrEqual(t, backoff.nextWait(), jittered(time.Second*4))
	})
}

// jittered returns the maximum wait for the given backoff including jitter.
func jittered(d time.Duration) time.Duration {
	return time.Duration(float64(d) * 1.1)
}
