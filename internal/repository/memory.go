package repository

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/immxrtalbeast/cohort/internal/domain"
)

var (
	ErrRoomNotFound = errors.New("room not found")
)

type roomEntry struct {
	room  *domain.Room
	timer *time.Timer
	// gen identifies the armed timer; a callback holding a stale gen does nothing.
	gen uint64
}

// InMemoryRoomStore keeps rooms for the lifetime of the process. Empty rooms
// are deleted after a grace period unless someone joins in the meantime.
type InMemoryRoomStore struct {
	limits  domain.RoomLimits
	grace   time.Duration
	onEvict func(domain.RoomKey)
	log     *slog.Logger

	mu    sync.RWMutex
	rooms map[domain.RoomKey]*roomEntry
	gen   uint64
}

type StoreOption func(*InMemoryRoomStore)

// WithEvictHook registers fn to run after a room is evicted.
func WithEvictHook(fn func(domain.RoomKey)) StoreOption {
	return func(s *InMemoryRoomStore) {
		s.onEvict = fn
	}
}

func WithLogger(log *slog.Logger) StoreOption {
	return func(s *InMemoryRoomStore) {
		if log != nil {
			s.log = log
		}
	}
}

func NewInMemoryRoomStore(limits domain.RoomLimits, grace time.Duration, opts ...StoreOption) *InMemoryRoomStore {
	s := &InMemoryRoomStore{
		limits: limits,
		grace:  grace,
		log:    slog.Default(),
		rooms:  make(map[domain.RoomKey]*roomEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryRoomStore) GetOrCreate(ctx context.Context, key domain.RoomKey, init func(*domain.Room)) (*domain.Room, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.rooms[key]; ok {
		// rejoin cancels a pending eviction
		s.disarmLocked(entry)
		return entry.room, false, nil
	}

	room := domain.NewRoom(key, s.limits)
	if init != nil {
		init(room)
	}
	s.rooms[key] = &roomEntry{room: room}

	s.log.Debug("room created", slog.String("room", key.String()))
	return room, true, nil
}

func (s *InMemoryRoomStore) Get(ctx context.Context, key domain.RoomKey) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.rooms[key]
	if !ok {
		return nil, ErrRoomNotFound
	}

	return entry.room, nil
}

func (s *InMemoryRoomStore) Delete(ctx context.Context, key domain.RoomKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.rooms[key]
	if !ok {
		return ErrRoomNotFound
	}

	s.disarmLocked(entry)
	delete(s.rooms, key)
	return nil
}

func (s *InMemoryRoomStore) List(ctx context.Context) ([]*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Room, 0, len(s.rooms))
	for _, entry := range s.rooms {
		result = append(result, entry.room)
	}
	return result, nil
}

func (s *InMemoryRoomStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

func (s *InMemoryRoomStore) ScheduleEvictionIfEmpty(key domain.RoomKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.rooms[key]
	if !ok || entry.room.Len() > 0 {
		return false
	}

	s.disarmLocked(entry)
	s.gen++
	gen := s.gen
	room := entry.room
	entry.gen = gen
	entry.timer = time.AfterFunc(s.grace, func() {
		s.evict(key, room, gen)
	})

	s.log.Debug("room eviction scheduled",
		slog.String("room", key.String()),
		slog.Duration("grace", s.grace),
	)
	return true
}

// evict deletes the room only if it is still the same room, still empty and
// the firing timer is still the armed one.
func (s *InMemoryRoomStore) evict(key domain.RoomKey, room *domain.Room, gen uint64) {
	s.mu.Lock()
	entry, ok := s.rooms[key]
	if !ok || entry.room != room || entry.gen != gen || room.Len() > 0 {
		s.mu.Unlock()
		return
	}
	delete(s.rooms, key)
	s.mu.Unlock()

	s.log.Info("room evicted", slog.String("room", key.String()))
	if s.onEvict != nil {
		s.onEvict(key)
	}
}

func (s *InMemoryRoomStore) disarmLocked(entry *roomEntry) {
	if entry.timer != nil {
		entry.timer.Stop()
		entry.timer = nil
	}
	entry.gen = 0
}
