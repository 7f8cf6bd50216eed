package repository

import (
	"context"

	"github.com/immxrtalbeast/cohort/internal/domain"
)

// RoomStore owns the table of live rooms keyed by (id, kind).
type RoomStore interface {
	// GetOrCreate returns the room for key, creating it on first use. init
	// runs only for a newly created room, before it becomes visible.
	GetOrCreate(ctx context.Context, key domain.RoomKey, init func(*domain.Room)) (room *domain.Room, created bool, err error)
	Get(ctx context.Context, key domain.RoomKey) (*domain.Room, error)
	Delete(ctx context.Context, key domain.RoomKey) error
	List(ctx context.Context) ([]*domain.Room, error)
	// ScheduleEvictionIfEmpty arms the grace timer for an empty room.
	ScheduleEvictionIfEmpty(key domain.RoomKey) bool
	Len() int
}
