package mesh

import (
	"fmt"

	"github.com/immxrtalbeast/cohort/internal/protocol"
)

// HandleMessage feeds a relay event into the coordinator. Events for other
// rooms and types the mesh does not care about are ignored.
func (c *Coordinator) HandleMessage(msg protocol.Message) error {
	const op = "mesh.Coordinator.HandleMessage"

	if protocol.IsSignal(msg.Type) {
		c.HandleSignal(msg)
		return nil
	}
	if msg.RoomID != "" && msg.RoomID != c.opts.RoomID {
		return nil
	}

	switch msg.Type {
	case protocol.TypeCallRoomData:
		var data protocol.CallRoomData
		if err := msg.Decode(&data); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if data.RoomID != "" && data.RoomID != c.opts.RoomID {
			return nil
		}
		c.HandleSnapshot(data.Self, data.Members)

	case protocol.TypeUserJoinedCall:
		var ev protocol.MemberEvent
		if err := msg.Decode(&ev); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		c.HandleMemberJoined(ev.Member)

	case protocol.TypeUserLeftCall:
		var ev protocol.MemberEvent
		if err := msg.Decode(&ev); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		c.HandleMemberLeft(ev.Member.ID)
	}
	return nil
}
