package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a fixed-window quota per (client, event kind). Kinds without a
// configured limit are always allowed. Each client has its own bucket, so
// clients never contend on a shared counter.
type Limiter struct {
	window time.Duration
	limits map[string]int
	now    func() time.Time

	mu      sync.RWMutex
	clients map[string]*bucket
}

type bucket struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count   int
	resetAt time.Time
}

type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func New(limits map[string]int, window time.Duration, opts ...Option) *Limiter {
	if window <= 0 {
		window = time.Second
	}
	l := &Limiter{
		window:  window,
		limits:  make(map[string]int, len(limits)),
		now:     time.Now,
		clients: make(map[string]*bucket),
	}
	for kind, limit := range limits {
		if limit > 0 {
			l.limits[kind] = limit
		}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limited reports whether kind has a quota.
func (l *Limiter) Limited(kind string) bool {
	_, ok := l.limits[kind]
	return ok
}

func (l *Limiter) Allow(clientID, kind string) bool {
	limit, ok := l.limits[kind]
	if !ok {
		return true
	}

	b := l.bucket(clientID)
	now := l.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	w, ok := b.windows[kind]
	if !ok || !now.Before(w.resetAt) {
		b.windows[kind] = &window{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if w.count < limit {
		w.count++
		return true
	}
	return false
}

// Purge drops all state for clientID.
func (l *Limiter) Purge(clientID string) {
	l.mu.Lock()
	delete(l.clients, clientID)
	l.mu.Unlock()
}

// Clients returns the number of clients with live state.
func (l *Limiter) Clients() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.clients)
}

func (l *Limiter) bucket(clientID string) *bucket {
	l.mu.RLock()
	b, ok := l.clients[clientID]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.clients[clientID]; ok {
		return b
	}
	b = &bucket{windows: make(map[string]*window)}
	l.clients[clientID] = b
	return b
}
