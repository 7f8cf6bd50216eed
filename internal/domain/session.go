package domain

import (
	"sync"
	"time"

	"github.com/immxrtalbeast/cohort/internal/protocol"
)

// Session is the per-connection record owned by the websocket handler.
// Its id is the participant id in every room it joins.
type Session struct {
	ID          string
	ConnectedAt time.Time
	Events      chan protocol.Message

	mu    sync.RWMutex
	name  string
	color string
	rooms map[RoomKey]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func NewSession(id string, buffer int) *Session {
	if buffer <= 0 {
		buffer = 16
	}
	return &Session{
		ID:          id,
		ConnectedAt: time.Now().UTC(),
		Events:      make(chan protocol.Message, buffer),
		rooms:       make(map[RoomKey]struct{}),
		done:        make(chan struct{}),
	}
}

// Enqueue hands msg to the writer without blocking. It reports false when
// the buffer is full or the session is closed.
func (s *Session) Enqueue(msg protocol.Message) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.Events <- msg:
		return true
	default:
		return false
	}
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close is safe to call more than once. Events is never closed so late
// broadcasts cannot panic.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *Session) SetProfile(name, color string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != "" {
		s.name = name
	}
	if color != "" {
		s.color = color
	}
}

func (s *Session) Participant() Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Participant{ID: s.ID, Name: s.name, Color: s.color}
}

func (s *Session) AddRoom(key RoomKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[key] = struct{}{}
}

func (s *Session) RemoveRoom(key RoomKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[key]; !ok {
		return false
	}
	delete(s.rooms, key)
	return true
}

func (s *Session) InRoom(key RoomKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[key]
	return ok
}

// Rooms returns the rooms the session currently belongs to.
func (s *Session) Rooms() []RoomKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]RoomKey, 0, len(s.rooms))
	for key := range s.rooms {
		keys = append(keys, key)
	}
	return keys
}

// SharesRoomWith reports whether both sessions are members of at least one common room.
func (s *Session) SharesRoomWith(other *Session) bool {
	if other == nil || other == s {
		return false
	}
	for _, key := range s.Rooms() {
		if other.InRoom(key) {
			return true
		}
	}
	return false
}
