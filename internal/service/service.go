package service

import (
	"context"

	"github.com/immxrtalbeast/cohort/internal/domain"
	"github.com/immxrtalbeast/cohort/internal/protocol"
)

type RelayInteractor interface {
	Register(session *domain.Session) error
	Unregister(ctx context.Context, session *domain.Session)
	Dispatch(ctx context.Context, session *domain.Session, msg protocol.Message) error
}

type RoomInspector interface {
	Rooms(ctx context.Context) ([]domain.RoomSnapshot, error)
	Room(ctx context.Context, key domain.RoomKey) (domain.RoomSnapshot, error)
	Stats() Stats
}
