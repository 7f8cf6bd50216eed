package protocol

import (
	"encoding/json"
	"time"
)

type JoinPayload struct {
	Name      string `json:"name,omitempty"`
	Color     string `json:"color,omitempty"`
	MediaKind string `json:"mediaKind,omitempty"`
}

type CodeChangePayload struct {
	SourceText string `json:"sourceText"`
}

// ValuePayload carries language-change and theme-change.
type ValuePayload struct {
	Value string `json:"value"`
}

type CursorPayload struct {
	Cursor json.RawMessage `json:"cursor"`
}

type SelectionPayload struct {
	Selection json.RawMessage `json:"selection"`
}

// ChatPayload is sent with chat-message. Kind selects the room kind the
// roomId refers to and defaults to code.
type ChatPayload struct {
	Text string `json:"text"`
	Kind string `json:"kind,omitempty"`
}

// EmojiPayload is sent with emoji-reaction. Kind defaults to call.
type EmojiPayload struct {
	Emoji string `json:"emoji"`
	Kind  string `json:"kind,omitempty"`
}

type FileUploadPayload struct {
	File FileView `json:"file"`
}

type FileView struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mimeType"`
	Data       string    `json:"data"`
	UploadedAt time.Time `json:"uploadedAt,omitempty"`
}

type MemberView struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Color     string          `json:"color"`
	Cursor    json.RawMessage `json:"cursor,omitempty"`
	Selection json.RawMessage `json:"selection,omitempty"`
}

type ChatView struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName"`
	SenderColor string    `json:"senderColor"`
	Text        string    `json:"text"`
	SentAt      time.Time `json:"sentAt"`
}

type RoomData struct {
	RoomID      string       `json:"roomId"`
	SourceText  string       `json:"sourceText"`
	Language    string       `json:"language"`
	Theme       string       `json:"theme"`
	Members     []MemberView `json:"members"`
	ChatHistory []ChatView   `json:"chatHistory"`
	Self        MemberView   `json:"self"`
}

type FileRoomData struct {
	RoomID      string       `json:"roomId"`
	File        *FileView    `json:"file"`
	MemberCount int          `json:"memberCount"`
	Members     []MemberView `json:"members"`
	Self        MemberView   `json:"self"`
}

type CallRoomData struct {
	RoomID      string       `json:"roomId"`
	MediaKind   string       `json:"mediaKind"`
	Members     []MemberView `json:"members"`
	ChatHistory []ChatView   `json:"chatHistory"`
	Self        MemberView   `json:"self"`
}

// MemberEvent is the payload of every user-joined* and user-left* event.
type MemberEvent struct {
	Member      MemberView `json:"member"`
	MemberCount int        `json:"memberCount"`
}

type CodeUpdate struct {
	SenderID   string `json:"senderId"`
	SourceText string `json:"sourceText"`
}

// ValueUpdate is the payload of language-update and theme-update.
type ValueUpdate struct {
	SenderID string `json:"senderId"`
	Value    string `json:"value"`
}

// PresenceUpdate is the payload of cursor-update and selection-update.
type PresenceUpdate struct {
	SenderID    string          `json:"senderId"`
	SenderName  string          `json:"senderName"`
	SenderColor string          `json:"senderColor"`
	Value       json.RawMessage `json:"value"`
}

type EmojiEvent struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName"`
	SenderColor string    `json:"senderColor"`
	Emoji       string    `json:"emoji"`
	SentAt      time.Time `json:"sentAt"`
}

type FileUpdate struct {
	SenderID string   `json:"senderId"`
	File     FileView `json:"file"`
}

type FileRemoved struct {
	SenderID string `json:"senderId"`
}

// Error codes carried by room-error.
const (
	ErrCodeRoomFull       = "room-full"
	ErrCodeSourceTooLarge = "source-too-large"
	ErrCodeFileTooLarge   = "file-too-large"
	ErrCodeMessageTooLong = "message-too-long"
	ErrCodeInvalidMedia   = "invalid-media-kind"
)

type RoomError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}
