package ratelimiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket_BurstThenRefill(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tb := newTokenBucket(2, 3, func() time.Time { return now })

	for i := 0; i < 3; i++ {
		assert.True(t, tb.Allow(), "request %d", i)
	}
	assert.False(t, tb.Allow())

	now = now.Add(500 * time.Millisecond)
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	now = now.Add(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, tb.Allow())
	}
	assert.False(t, tb.Allow())
}

func TestKeyed_IndependentBuckets(t *testing.T) {
	k, err := NewKeyed(0.001, 1, 16, time.Minute)
	require.NoError(t, err)

	assert.True(t, k.Allow("u1"))
	assert.False(t, k.Allow("u1"))
	assert.True(t, k.Allow("u2"))
}

func TestNewKeyed_InvalidSize(t *testing.T) {
	_, err := NewKeyed(1, 1, 0, time.Minute)
	assert.Error(t, err)
}
