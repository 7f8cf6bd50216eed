package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestAllowExactlyLimitPerWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	l := New(map[string]int{"chat-message": 5}, time.Second, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		require.True(t, l.Allow("c1", "chat-message"), "call %d", i+1)
	}
	assert.False(t, l.Allow("c1", "chat-message"))

	clock.Advance(999 * time.Millisecond)
	assert.False(t, l.Allow("c1", "chat-message"))

	clock.Advance(time.Millisecond)
	assert.True(t, l.Allow("c1", "chat-message"))
	for i := 0; i < 4; i++ {
		require.True(t, l.Allow("c1", "chat-message"))
	}
	assert.False(t, l.Allow("c1", "chat-message"))
}

func TestKindsAndClientsAreIndependent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	l := New(map[string]int{"chat-message": 1, "cursor-move": 2}, time.Second, WithClock(clock.Now))

	require.True(t, l.Allow("c1", "chat-message"))
	assert.False(t, l.Allow("c1", "chat-message"))

	assert.True(t, l.Allow("c1", "cursor-move"))
	assert.True(t, l.Allow("c2", "chat-message"))
}

func TestUnlimitedKindAlwaysAllowed(t *testing.T) {
	l := New(map[string]int{"chat-message": 1, "broken": 0}, time.Second)

	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("c1", "join-room"))
		require.True(t, l.Allow("c1", "broken"))
	}
	assert.False(t, l.Limited("join-room"))
	assert.False(t, l.Limited("broken"))
	assert.True(t, l.Limited("chat-message"))
	assert.Zero(t, l.Clients())
}

func TestPurgeResetsClient(t *testing.T) {
	l := New(map[string]int{"chat-message": 1}, time.Minute)

	require.True(t, l.Allow("c1", "chat-message"))
	require.False(t, l.Allow("c1", "chat-message"))
	assert.Equal(t, 1, l.Clients())

	l.Purge("c1")
	assert.Zero(t, l.Clients())
	assert.True(t, l.Allow("c1", "chat-message"))
}
