package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter(t *testing.T) {
	now := time.Now()
	l := NewLimiter(time.Minute, 2)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	now = now.Add(10 * time.Second)
	assert.True(t, l.Allow("a"))

	ok, retry := l.Reserve("a")
	assert.False(t, ok, "third hit inside the window")
	assert.Equal(t, 50*time.Second, retry)

	assert.True(t, l.Allow("b"), "keys are limited independently")

	now = now.Add(51 * time.Second)
	assert.True(t, l.Allow("a"), "the oldest hit has left the window")
	assert.False(t, l.Allow("a"))
}

func TestLimiterZeroHits(t *testing.T) {
	l := NewLimiter(time.Minute, 0)

	ok, retry := l.Reserve("a")
	assert.False(t, ok)
	assert.Equal(t, time.Minute, retry)
}

func TestSweep(t *testing.T) {
	now := time.Now()
	l := NewLimiter(time.Minute, 5)
	l.now = func() time.Time { return now }

	l.Allow("a")
	now = now.Add(30 * time.Second)
	l.Allow("b")
	assert.Equal(t, 2, l.Sweep())

	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, l.Sweep())

	now = now.Add(time.Minute)
	assert.Equal(t, 0, l.Sweep())
}
