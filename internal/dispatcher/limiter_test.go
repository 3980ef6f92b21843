package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSinkLimiters_Disabled(t *testing.T) {
	l := newSinkLimiters(0, 1)
	assert.False(t, l.enabled())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 10; i++ {
		assert.NoError(t, l.wait(ctx, "http://a/x"))
	}
}

func TestSinkLimiters_PerSink(t *testing.T) {
	l := newSinkLimiters(1, 1)
	assert.True(t, l.enabled())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.NoError(t, l.wait(ctx, "http://a/x"), "first request uses the burst")
	assert.NoError(t, l.wait(ctx, "http://b/x"), "buckets are per sink")
	assert.Error(t, l.wait(ctx, "http://a/x"), "second request must wait longer than the deadline")

	l.forget("http://a/x")
	assert.NoError(t, l.wait(context.Background(), "http://a/x"), "a forgotten sink starts with a fresh bucket")
}
