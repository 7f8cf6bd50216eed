// Package presence mirrors room membership to an external store for
// operators and dashboards. The relay never reads it back.
package presence

import (
	"github.com/immxrtalbeast/cohort/internal/domain"
)

type Mirror interface {
	Joined(key domain.RoomKey, member domain.Participant)
	Left(key domain.RoomKey, memberID string)
	Evicted(key domain.RoomKey)
}

// Nop discards every update.
type Nop struct{}

func (Nop) Joined(domain.RoomKey, domain.Participant) {}
func (Nop) Left(domain.RoomKey, string) {}
func (Nop) Evicted(domain.RoomKey) {}
