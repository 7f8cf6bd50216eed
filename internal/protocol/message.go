package protocol

import (
	"encoding/json"
	"fmt"
)

// Message is the envelope exchanged over the websocket in both directions.
// Payload stays raw until the receiving side knows what the type expects.
type Message struct {
	Type     string          `json:"type"`
	RoomID   string          `json:"roomId,omitempty"`
	TargetID string          `json:"targetId,omitempty"`
	FromID   string          `json:"fromId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Client commands.
const (
	TypeJoinRoom        = "join-room"
	TypeLeaveRoom       = "leave-room"
	TypeCodeChange      = "code-change"
	TypeLanguageChange  = "language-change"
	TypeThemeChange     = "theme-change"
	TypeCursorMove      = "cursor-move"
	TypeSelectionChange = "selection-change"
	TypeChatMessage     = "chat-message"
	TypeEmojiReaction   = "emoji-reaction"
	TypeJoinFileRoom    = "join-file-room"
	TypeLeaveFileRoom   = "leave-file-room"
	TypeFileUpload      = "file-upload"
	TypeFileRemove      = "file-remove"
	TypeJoinCallRoom    = "join-call-room"
	TypeLeaveCallRoom   = "leave-call-room"
	TypePing            = "ping"
)

// Targeted signaling, relayed verbatim to TargetID with FromID attached.
const (
	TypeWebRTCOffer     = "webrtc-offer"
	TypeWebRTCAnswer    = "webrtc-answer"
	TypeWebRTCCandidate = "webrtc-ice-candidate"
	TypeCallUser        = "call-user"
	TypeCallAccepted    = "call-accepted"
	TypeCallRejected    = "call-rejected"
	TypeEndCall         = "end-call"
)

// Server events.
const (
	TypeRoomData        = "room-data"
	TypeUserJoined      = "user-joined"
	TypeUserLeft        = "user-left"
	TypeCodeUpdate      = "code-update"
	TypeLanguageUpdate  = "language-update"
	TypeThemeUpdate     = "theme-update"
	TypeCursorUpdate    = "cursor-update"
	TypeSelectionUpdate = "selection-update"
	TypeNewMessage      = "new-message"
	TypeFileRoomData    = "file-room-data"
	TypeUserJoinedFile  = "user-joined-file"
	TypeUserLeftFile    = "user-left-file"
	TypeFileUpdate      = "file-update"
	TypeFileRemoved     = "file-removed"
	TypeCallRoomData    = "call-room-data"
	TypeUserJoinedCall  = "user-joined-call"
	TypeUserLeftCall    = "user-left-call"
	TypeRoomError       = "room-error"
	TypePong            = "pong"
)

// IsSignal reports whether t is routed by target id instead of by room.
func IsSignal(t string) bool {
	switch t {
	case TypeWebRTCOffer, TypeWebRTCAnswer, TypeWebRTCCandidate,
		TypeCallUser, TypeCallAccepted, TypeCallRejected, TypeEndCall:
		return true
	}
	return false
}

// New builds a message with payload encoded as JSON.
func New(msgType, roomID string, payload any) (Message, error) {
	msg := Message{Type: msgType, RoomID: roomID}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	msg.Payload = raw
	return msg, nil
}

// Decode unmarshals the payload into dst. An absent payload leaves dst untouched.
func (m Message) Decode(dst any) error {
	if len(m.Payload) == 0 || string(m.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(m.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}
