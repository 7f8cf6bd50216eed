package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrRoomFull       = errors.New("room is full")
	ErrSourceTooLarge = errors.New("source text exceeds size limit")
	ErrFileTooLarge   = errors.New("file exceeds size limit")
	ErrNotMember      = errors.New("not a member of room")
	ErrWrongKind      = errors.New("operation not supported by room kind")
)

type RoomKind string

const (
	KindCode RoomKind = "code"
	KindFile RoomKind = "file"
	KindCall RoomKind = "call"
)

func ParseRoomKind(s string) (RoomKind, error) {
	switch RoomKind(s) {
	case KindCode, KindFile, KindCall:
		return RoomKind(s), nil
	}
	return "", fmt.Errorf("unknown room kind %q", s)
}

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(s) {
	case "":
		return MediaVideo, nil
	case MediaAudio, MediaVideo:
		return MediaKind(s), nil
	}
	return "", fmt.Errorf("unknown media kind %q", s)
}

// RoomKey identifies a room. The same ID may host one room of each kind.
type RoomKey struct {
	ID   string
	Kind RoomKind
}

func (k RoomKey) String() string {
	return string(k.Kind) + ":" + k.ID
}

type RoomLimits struct {
	MaxMembers     int
	MaxSourceBytes int
	MaxFileBytes   int64
	ChatHistory    int
}

type CodeState struct {
	SourceText string
	Language   string
	Theme      string
}

type FileState struct {
	File *FileBlob
}

type CallState struct {
	MediaKind MediaKind
}

// Notifier is handed the ids of the current members while the room is
// still locked, so deliveries for one room keep the order of its mutations.
type Notifier func(memberIDs []string)

// Room is a (id, kind) scoped collaboration session. Exactly one of the
// code, file and call states is set, matching Key.Kind.
type Room struct {
	Key       RoomKey
	CreatedAt time.Time

	mu      sync.Mutex
	limits  RoomLimits
	members map[string]*Participant
	chat    []ChatMessage

	code *CodeState
	file *FileState
	call *CallState
}

func NewRoom(key RoomKey, limits RoomLimits) *Room {
	room := &Room{
		Key:       key,
		CreatedAt: time.Now().UTC(),
		limits:    limits,
		members:   make(map[string]*Participant),
	}

	switch key.Kind {
	case KindCode:
		room.code = &CodeState{Language: "javascript", Theme: "vs-dark"}
	case KindFile:
		room.file = &FileState{}
	case KindCall:
		room.call = &CallState{MediaKind: MediaVideo}
	}

	return room
}

// RoomSnapshot is a consistent copy of a room's state.
type RoomSnapshot struct {
	Key       RoomKey
	CreatedAt time.Time
	Members   []Participant
	Chat      []ChatMessage

	Code *CodeState
	File *FileBlob
	Call *CallState
}

func (r *Room) Snapshot() RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Join adds p to the room. Joining again with the same id refreshes the
// profile and reports rejoined. deliver, when set, runs before the lock is
// released with the snapshot including p and the ids of the other members.
func (r *Room) Join(p Participant, deliver func(snap RoomSnapshot, others []string)) (rejoined bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.members[p.ID]; ok {
		existing.Name = p.Name
		existing.Color = p.Color
		rejoined = true
	} else {
		if r.limits.MaxMembers > 0 && len(r.members) >= r.limits.MaxMembers {
			return false, ErrRoomFull
		}
		member := p
		r.members[p.ID] = &member
	}

	if deliver != nil {
		deliver(r.snapshotLocked(), r.memberIDsLocked(p.ID))
	}
	return rejoined, nil
}

// Leave removes id and returns the remaining member count. notify sees the
// remaining members.
func (r *Room) Leave(id string, notify Notifier) (remaining int, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[id]; !ok {
		return len(r.members), false
	}
	delete(r.members, id)

	if notify != nil {
		notify(r.memberIDsLocked(""))
	}
	return len(r.members), true
}

func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func (r *Room) HasMember(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[id]
	return ok
}

func (r *Room) SetSourceText(senderID, text string, notify Notifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkLocked(senderID, KindCode); err != nil {
		return err
	}
	if r.limits.MaxSourceBytes > 0 && len(text) > r.limits.MaxSourceBytes {
		return ErrSourceTooLarge
	}
	r.code.SourceText = text

	r.notifyLocked(notify)
	return nil
}

func (r *Room) SetLanguage(senderID, language string, notify Notifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkLocked(senderID, KindCode); err != nil {
		return err
	}
	r.code.Language = language

	r.notifyLocked(notify)
	return nil
}

func (r *Room) SetTheme(senderID, theme string, notify Notifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkLocked(senderID, KindCode); err != nil {
		return err
	}
	r.code.Theme = theme

	r.notifyLocked(notify)
	return nil
}

// UpdateCursor stores the member's cursor. Any room kind may carry one.
func (r *Room) UpdateCursor(senderID string, cursor []byte, notify Notifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	member, ok := r.members[senderID]
	if !ok {
		return ErrNotMember
	}
	member.Cursor = append(json.RawMessage(nil), cursor...)

	r.notifyLocked(notify)
	return nil
}

// UpdateSelection stores the member's selection; nil clears it.
func (r *Room) UpdateSelection(senderID string, selection []byte, notify Notifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	member, ok := r.members[senderID]
	if !ok {
		return ErrNotMember
	}
	if selection == nil {
		member.Selection = nil
	} else {
		member.Selection = append(json.RawMessage(nil), selection...)
	}

	r.notifyLocked(notify)
	return nil
}

// AppendChat records msg, dropping the oldest entries beyond the history cap.
func (r *Room) AppendChat(msg ChatMessage, notify Notifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[msg.SenderID]; !ok {
		return ErrNotMember
	}

	r.chat = append(r.chat, msg)
	if limit := r.limits.ChatHistory; limit > 0 && len(r.chat) > limit {
		trimmed := make([]ChatMessage, limit)
		copy(trimmed, r.chat[len(r.chat)-limit:])
		r.chat = trimmed
	}

	r.notifyLocked(notify)
	return nil
}

// Broadcast runs notify against the current members without mutating state.
func (r *Room) Broadcast(senderID string, notify Notifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[senderID]; !ok {
		return ErrNotMember
	}
	r.notifyLocked(notify)
	return nil
}

// SetFile replaces the room's file after checking the declared size and the
// encoded payload length.
func (r *Room) SetFile(senderID string, blob FileBlob, notify Notifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkLocked(senderID, KindFile); err != nil {
		return err
	}
	if limit := r.limits.MaxFileBytes; limit > 0 {
		if blob.Size < 0 || blob.Size > limit || int64(len(blob.Data)) > EncodedLimit(limit) {
			return ErrFileTooLarge
		}
	}
	if blob.UploadedAt.IsZero() {
		blob.UploadedAt = time.Now().UTC()
	}
	r.file.File = &blob

	r.notifyLocked(notify)
	return nil
}

// ClearFile removes the file. Clearing an empty room still notifies so every
// member converges on the same state.
func (r *Room) ClearFile(senderID string, notify Notifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkLocked(senderID, KindFile); err != nil {
		return err
	}
	r.file.File = nil

	r.notifyLocked(notify)
	return nil
}

// SetMediaKind is only honoured while the call room is empty.
func (r *Room) SetMediaKind(kind MediaKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.call != nil && len(r.members) == 0 {
		r.call.MediaKind = kind
	}
}

func (r *Room) checkLocked(senderID string, kind RoomKind) error {
	if r.Key.Kind != kind {
		return ErrWrongKind
	}
	if _, ok := r.members[senderID]; !ok {
		return ErrNotMember
	}
	return nil
}

func (r *Room) notifyLocked(notify Notifier) {
	if notify != nil {
		notify(r.memberIDsLocked(""))
	}
}

func (r *Room) memberIDsLocked(exclude string) []string {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		if id == exclude {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (r *Room) snapshotLocked() RoomSnapshot {
	snap := RoomSnapshot{
		Key:       r.Key,
		CreatedAt: r.CreatedAt,
		Members:   make([]Participant, 0, len(r.members)),
		Chat:      make([]ChatMessage, len(r.chat)),
	}
	for _, member := range r.members {
		snap.Members = append(snap.Members, *member)
	}
	sort.Slice(snap.Members, func(i, j int) bool {
		return snap.Members[i].ID < snap.Members[j].ID
	})
	copy(snap.Chat, r.chat)

	switch r.Key.Kind {
	case KindCode:
		code := *r.code
		snap.Code = &code
	case KindFile:
		if r.file.File != nil {
			file := *r.file.File
			snap.File = &file
		}
	case KindCall:
		call := *r.call
		snap.Call = &call
	}

	return snap
}
