package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/cohort/internal/domain"
	"github.com/immxrtalbeast/cohort/internal/presence"
	"github.com/immxrtalbeast/cohort/internal/protocol"
	"github.com/immxrtalbeast/cohort/internal/ratelimit"
	"github.com/immxrtalbeast/cohort/internal/repository"
	"github.com/immxrtalbeast/cohort/lib/logger/sl"
)

var (
	ErrMalformed         = errors.New("malformed command")
	ErrUnknownCommand    = errors.New("unknown command")
	ErrRateLimited       = errors.New("rate limited")
	ErrTargetUnreachable = errors.New("signal target unreachable")
	ErrMessageTooLong    = errors.New("chat message is too long")
	ErrSessionExists     = errors.New("session already registered")
	ErrRoomGone          = errors.New("room evicted while joining")
)

const (
	maxTagLength   = 64
	maxEmojiLength = 16
	// a join retries when the room it found is evicted before the member lands
	maxJoinAttempts = 3
)

type RelayOptions struct {
	MaxNameLength int
	MaxChatLength int
	// ChatReplay is how many recent chat messages a join reply carries.
	ChatReplay int
}

type Stats struct {
	Rooms    int `json:"rooms"`
	Sessions int `json:"sessions"`
}

// Relay validates client commands, applies them to rooms and fans the
// resulting events out to room members.
type Relay struct {
	rooms    repository.RoomStore
	limiter  *ratelimit.Limiter
	presence presence.Mirror
	opts     RelayOptions
	log      *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

func NewRelay(rooms repository.RoomStore, limiter *ratelimit.Limiter, mirror presence.Mirror, opts RelayOptions, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	if mirror == nil {
		mirror = presence.Nop{}
	}
	if limiter == nil {
		limiter = ratelimit.New(nil, time.Second)
	}
	if opts.MaxNameLength <= 0 {
		opts.MaxNameLength = 20
	}
	if opts.MaxChatLength <= 0 {
		opts.MaxChatLength = 500
	}
	if opts.ChatReplay <= 0 {
		opts.ChatReplay = 50
	}
	return &Relay{
		rooms:    rooms,
		limiter:  limiter,
		presence: mirror,
		opts:     opts,
		log:      log,
		sessions: make(map[string]*domain.Session),
	}
}

// Register makes session addressable and gives it a default profile.
func (s *Relay) Register(session *domain.Session) error {
	const op = "service.relay.register"

	session.SetProfile(defaultName(session.ID), colorFor(session.ID))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("%s: %w", op, ErrSessionExists)
	}
	s.sessions[session.ID] = session

	s.log.Debug("session registered", slog.String("op", op), slog.String("session", session.ID))
	return nil
}

// Unregister removes session from every room it joined, notifies the
// remaining members and arms eviction for rooms left empty.
func (s *Relay) Unregister(ctx context.Context, session *domain.Session) {
	const op = "service.relay.unregister"
	log := s.log.With(
		slog.String("op", op),
		slog.String("session", session.ID),
	)

	s.mu.Lock()
	if current, ok := s.sessions[session.ID]; ok && current == session {
		delete(s.sessions, session.ID)
	}
	s.mu.Unlock()

	for _, key := range session.Rooms() {
		if err := s.leave(ctx, session, key); err != nil {
			log.Debug("leave on disconnect failed", slog.String("room", key.String()), sl.Err(err))
		}
	}

	s.limiter.Purge(session.ID)
	session.Close()

	log.Info("session closed")
}

// Dispatch handles one inbound command. Errors are for the caller's
// information only: the connection stays open whatever happens.
func (s *Relay) Dispatch(ctx context.Context, session *domain.Session, msg protocol.Message) error {
	const op = "service.relay.dispatch"

	err := s.dispatch(ctx, session, msg)
	if err != nil {
		s.log.Debug("command dropped",
			slog.String("op", op),
			slog.String("session", session.ID),
			slog.String("type", msg.Type),
			slog.String("room_id", msg.RoomID),
			sl.Err(err),
		)
	}
	return err
}

func (s *Relay) dispatch(ctx context.Context, session *domain.Session, msg protocol.Message) error {
	if !s.limiter.Allow(session.ID, msg.Type) {
		return ErrRateLimited
	}

	if protocol.IsSignal(msg.Type) {
		return s.forwardSignal(session, msg)
	}

	switch msg.Type {
	case protocol.TypePing:
		s.send(session, s.event(protocol.TypePong, "", nil))
		return nil
	case protocol.TypeJoinRoom:
		return s.join(ctx, session, msg, domain.KindCode)
	case protocol.TypeJoinFileRoom:
		return s.join(ctx, session, msg, domain.KindFile)
	case protocol.TypeJoinCallRoom:
		return s.join(ctx, session, msg, domain.KindCall)
	case protocol.TypeLeaveRoom:
		return s.leaveCommand(ctx, session, msg, domain.KindCode)
	case protocol.TypeLeaveFileRoom:
		return s.leaveCommand(ctx, session, msg, domain.KindFile)
	case protocol.TypeLeaveCallRoom:
		return s.leaveCommand(ctx, session, msg, domain.KindCall)
	case protocol.TypeCodeChange:
		return s.codeChange(ctx, session, msg)
	case protocol.TypeLanguageChange, protocol.TypeThemeChange:
		return s.tagChange(ctx, session, msg)
	case protocol.TypeCursorMove:
		return s.cursorMove(ctx, session, msg)
	case protocol.TypeSelectionChange:
		return s.selectionChange(ctx, session, msg)
	case protocol.TypeChatMessage:
		return s.chatMessage(ctx, session, msg)
	case protocol.TypeEmojiReaction:
		return s.emojiReaction(ctx, session, msg)
	case protocol.TypeFileUpload:
		return s.fileUpload(ctx, session, msg)
	case protocol.TypeFileRemove:
		return s.fileRemove(ctx, session, msg)
	}

	return fmt.Errorf("%w: %q", ErrUnknownCommand, msg.Type)
}

func (s *Relay) join(ctx context.Context, session *domain.Session, msg protocol.Message, kind domain.RoomKind) error {
	const op = "service.relay.join"

	roomID := strings.TrimSpace(msg.RoomID)
	if roomID == "" {
		return fmt.Errorf("%w: room id is required", ErrMalformed)
	}
	var payload protocol.JoinPayload
	if err := msg.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	key := domain.RoomKey{ID: roomID, Kind: kind}
	log := s.log.With(
		slog.String("op", op),
		slog.String("session", session.ID),
		slog.String("room", key.String()),
	)

	media := domain.MediaVideo
	if kind == domain.KindCall {
		parsed, err := domain.ParseMediaKind(payload.MediaKind)
		if err != nil {
			s.roomError(session, key, protocol.ErrCodeInvalidMedia, err)
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		media = parsed
	}

	name, color := s.profile(payload)
	self := session.Participant()
	if name != "" {
		self.Name = name
	}
	if color != "" {
		self.Color = color
	}
	wasMember := session.InRoom(key)

	var created bool
	for attempt := 1; ; attempt++ {
		room, isNew, err := s.rooms.GetOrCreate(ctx, key, func(r *domain.Room) {
			if kind == domain.KindCall {
				r.SetMediaKind(media)
			}
		})
		if err != nil {
			return err
		}
		created = created || isNew

		_, err = room.Join(self, func(snap domain.RoomSnapshot, others []string) {
			msgType, data := roomData(snap, self, s.opts.ChatReplay)
			s.send(session, s.event(msgType, roomID, data))

			if !wasMember {
				joined := s.event(joinedEvent(kind), roomID, protocol.MemberEvent{
					Member:      memberView(self),
					MemberCount: len(snap.Members),
				})
				s.deliver(others, joined, session.ID)
			}
		})
		if err != nil {
			if errors.Is(err, domain.ErrRoomFull) {
				s.roomError(session, key, protocol.ErrCodeRoomFull, err)
				log.Info("join rejected, room is full")
			}
			if isNew || room.Len() == 0 {
				s.rooms.ScheduleEvictionIfEmpty(key)
			}
			return err
		}

		if current, err := s.rooms.Get(ctx, key); err == nil && current == room {
			break
		}
		// evicted between lookup and join
		room.Leave(self.ID, nil)
		if attempt == maxJoinAttempts {
			return fmt.Errorf("%s: %w", op, ErrRoomGone)
		}
		log.Debug("room evicted during join, retrying", slog.Int("attempt", attempt))
	}

	session.SetProfile(name, color)
	session.AddRoom(key)
	s.presence.Joined(key, self)

	log.Info("member joined",
		slog.String("name", self.Name),
		slog.Bool("created", created),
		slog.Bool("rejoined", wasMember),
	)
	return nil
}

func (s *Relay) leaveCommand(ctx context.Context, session *domain.Session, msg protocol.Message, kind domain.RoomKind) error {
	roomID := strings.TrimSpace(msg.RoomID)
	if roomID == "" {
		return fmt.Errorf("%w: room id is required", ErrMalformed)
	}
	return s.leave(ctx, session, domain.RoomKey{ID: roomID, Kind: kind})
}

func (s *Relay) leave(ctx context.Context, session *domain.Session, key domain.RoomKey) error {
	const op = "service.relay.leave"

	if !session.RemoveRoom(key) {
		return domain.ErrNotMember
	}

	room, err := s.rooms.Get(ctx, key)
	if err != nil {
		return err
	}

	self := session.Participant()
	remaining, removed := room.Leave(session.ID, func(ids []string) {
		left := s.event(leftEvent(key.Kind), key.ID, protocol.MemberEvent{
			Member:      memberView(self),
			MemberCount: len(ids),
		})
		s.deliver(ids, left, session.ID)
	})
	if !removed {
		return domain.ErrNotMember
	}

	s.presence.Left(key, session.ID)
	if remaining == 0 {
		s.rooms.ScheduleEvictionIfEmpty(key)
	}

	s.log.Info("member left",
		slog.String("op", op),
		slog.String("session", session.ID),
		slog.String("room", key.String()),
		slog.Int("remaining", remaining),
	)
	return nil
}

func (s *Relay) codeChange(ctx context.Context, session *domain.Session, msg protocol.Message) error {
	var payload protocol.CodeChangePayload
	if err := msg.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	key := domain.RoomKey{ID: msg.RoomID, Kind: domain.KindCode}
	room, err := s.room(ctx, key)
	if err != nil {
		return err
	}

	update := s.event(protocol.TypeCodeUpdate, key.ID, protocol.CodeUpdate{
		SenderID:   session.ID,
		SourceText: payload.SourceText,
	})
	err = room.SetSourceText(session.ID, payload.SourceText, s.fanout(update, session.ID))
	if errors.Is(err, domain.ErrSourceTooLarge) {
		s.roomError(session, key, protocol.ErrCodeSourceTooLarge, err)
	}
	return err
}

func (s *Relay) tagChange(ctx context.Context, session *domain.Session, msg protocol.Message) error {
	var payload protocol.ValuePayload
	if err := msg.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	value := strings.TrimSpace(payload.Value)
	if value == "" || utf8.RuneCountInString(value) > maxTagLength {
		return fmt.Errorf("%w: invalid value", ErrMalformed)
	}

	key := domain.RoomKey{ID: msg.RoomID, Kind: domain.KindCode}
	room, err := s.room(ctx, key)
	if err != nil {
		return err
	}

	update := protocol.ValueUpdate{SenderID: session.ID, Value: value}
	if msg.Type == protocol.TypeLanguageChange {
		return room.SetLanguage(session.ID, value, s.fanout(s.event(protocol.TypeLanguageUpdate, key.ID, update), session.ID))
	}
	return room.SetTheme(session.ID, value, s.fanout(s.event(protocol.TypeThemeUpdate, key.ID, update), session.ID))
}

func (s *Relay) cursorMove(ctx context.Context, session *domain.Session, msg protocol.Message) error {
	var payload protocol.CursorPayload
	if err := msg.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if isNull(payload.Cursor) {
		return fmt.Errorf("%w: cursor is required", ErrMalformed)
	}

	key := domain.RoomKey{ID: msg.RoomID, Kind: domain.KindCode}
	room, err := s.room(ctx, key)
	if err != nil {
		return err
	}

	update := s.event(protocol.TypeCursorUpdate, key.ID, s.presenceUpdate(session, payload.Cursor))
	return room.UpdateCursor(session.ID, payload.Cursor, s.fanout(update, session.ID))
}

func (s *Relay) selectionChange(ctx context.Context, session *domain.Session, msg protocol.Message) error {
	var payload protocol.SelectionPayload
	if err := msg.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	selection := payload.Selection
	if isNull(selection) {
		selection = nil
	}

	key := domain.RoomKey{ID: msg.RoomID, Kind: domain.KindCode}
	room, err := s.room(ctx, key)
	if err != nil {
		return err
	}

	update := s.event(protocol.TypeSelectionUpdate, key.ID, s.presenceUpdate(session, selection))
	return room.UpdateSelection(session.ID, selection, s.fanout(update, session.ID))
}

func (s *Relay) chatMessage(ctx context.Context, session *domain.Session, msg protocol.Message) error {
	var payload protocol.ChatPayload
	if err := msg.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	kind, err := parseKind(payload.Kind, domain.KindCode)
	if err != nil {
		return err
	}
	key := domain.RoomKey{ID: msg.RoomID, Kind: kind}

	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return fmt.Errorf("%w: chat message cannot be empty", ErrMalformed)
	}
	if utf8.RuneCountInString(text) > s.opts.MaxChatLength {
		s.roomError(session, key, protocol.ErrCodeMessageTooLong, ErrMessageTooLong)
		return ErrMessageTooLong
	}

	room, err := s.room(ctx, key)
	if err != nil {
		return err
	}

	chat := domain.NewChatMessage(session.Participant(), text)
	event := s.event(protocol.TypeNewMessage, key.ID, chatView(chat))
	return room.AppendChat(chat, s.fanout(event, ""))
}

func (s *Relay) emojiReaction(ctx context.Context, session *domain.Session, msg protocol.Message) error {
	var payload protocol.EmojiPayload
	if err := msg.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	kind, err := parseKind(payload.Kind, domain.KindCall)
	if err != nil {
		return err
	}
	emoji := strings.TrimSpace(payload.Emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiLength {
		return fmt.Errorf("%w: invalid emoji", ErrMalformed)
	}

	key := domain.RoomKey{ID: msg.RoomID, Kind: kind}
	room, err := s.room(ctx, key)
	if err != nil {
		return err
	}

	sender := session.Participant()
	event := s.event(protocol.TypeEmojiReaction, key.ID, protocol.EmojiEvent{
		ID:          uuid.NewString(),
		SenderID:    sender.ID,
		SenderName:  sender.Name,
		SenderColor: sender.Color,
		Emoji:       emoji,
		SentAt:      time.Now().UTC(),
	})
	return room.Broadcast(session.ID, s.fanout(event, ""))
}

func (s *Relay) fileUpload(ctx context.Context, session *domain.Session, msg protocol.Message) error {
	var payload protocol.FileUploadPayload
	if err := msg.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	name := sanitizeName(payload.File.Name, 255)
	if name == "" {
		return fmt.Errorf("%w: file name is required", ErrMalformed)
	}

	key := domain.RoomKey{ID: msg.RoomID, Kind: domain.KindFile}
	room, err := s.room(ctx, key)
	if err != nil {
		return err
	}

	blob := domain.FileBlob{
		Name:       name,
		Size:       payload.File.Size,
		MimeType:   payload.File.MimeType,
		Data:       payload.File.Data,
		UploadedAt: time.Now().UTC(),
	}
	update := s.event(protocol.TypeFileUpdate, key.ID, protocol.FileUpdate{
		SenderID: session.ID,
		File:     *fileView(&blob),
	})

	err = room.SetFile(session.ID, blob, s.fanout(update, session.ID))
	if errors.Is(err, domain.ErrFileTooLarge) {
		s.roomError(session, key, protocol.ErrCodeFileTooLarge, err)
	}
	return err
}

func (s *Relay) fileRemove(ctx context.Context, session *domain.Session, msg protocol.Message) error {
	key := domain.RoomKey{ID: msg.RoomID, Kind: domain.KindFile}
	room, err := s.room(ctx, key)
	if err != nil {
		return err
	}

	removed := s.event(protocol.TypeFileRemoved, key.ID, protocol.FileRemoved{SenderID: session.ID})
	return room.ClearFile(session.ID, s.fanout(removed, ""))
}

// forwardSignal delivers an opaque signaling payload to a session that
// shares at least one room with the sender.
func (s *Relay) forwardSignal(session *domain.Session, msg protocol.Message) error {
	if msg.TargetID == "" {
		return fmt.Errorf("%w: target id is required", ErrMalformed)
	}

	s.mu.RLock()
	target := s.sessions[msg.TargetID]
	s.mu.RUnlock()

	if target == nil || !session.SharesRoomWith(target) {
		return ErrTargetUnreachable
	}

	s.send(target, protocol.Message{
		Type:     msg.Type,
		RoomID:   msg.RoomID,
		TargetID: target.ID,
		FromID:   session.ID,
		Payload:  msg.Payload,
	})
	return nil
}

// Rooms returns a snapshot of every live room ordered by kind and id.
func (s *Relay) Rooms(ctx context.Context) ([]domain.RoomSnapshot, error) {
	rooms, err := s.rooms.List(ctx)
	if err != nil {
		return nil, err
	}

	snaps := make([]domain.RoomSnapshot, 0, len(rooms))
	for _, room := range rooms {
		snaps = append(snaps, room.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].Key.Kind != snaps[j].Key.Kind {
			return snaps[i].Key.Kind < snaps[j].Key.Kind
		}
		return snaps[i].Key.ID < snaps[j].Key.ID
	})
	return snaps, nil
}

func (s *Relay) Room(ctx context.Context, key domain.RoomKey) (domain.RoomSnapshot, error) {
	room, err := s.rooms.Get(ctx, key)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	return room.Snapshot(), nil
}

func (s *Relay) Stats() Stats {
	s.mu.RLock()
	sessions := len(s.sessions)
	s.mu.RUnlock()
	return Stats{Rooms: s.rooms.Len(), Sessions: sessions}
}

// profile returns the sanitised name and color a join asks for; empty values
// keep the current ones.
func (s *Relay) profile(payload protocol.JoinPayload) (name, color string) {
	name = sanitizeName(payload.Name, s.opts.MaxNameLength)
	if validColor(payload.Color) {
		color = payload.Color
	}
	return name, color
}

func (s *Relay) presenceUpdate(session *domain.Session, value []byte) protocol.PresenceUpdate {
	sender := session.Participant()
	return protocol.PresenceUpdate{
		SenderID:    sender.ID,
		SenderName:  sender.Name,
		SenderColor: sender.Color,
		Value:       value,
	}
}

func (s *Relay) room(ctx context.Context, key domain.RoomKey) (*domain.Room, error) {
	if strings.TrimSpace(key.ID) == "" {
		return nil, fmt.Errorf("%w: room id is required", ErrMalformed)
	}
	return s.rooms.Get(ctx, key)
}

func (s *Relay) roomError(session *domain.Session, key domain.RoomKey, code string, err error) {
	s.send(session, s.event(protocol.TypeRoomError, key.ID, protocol.RoomError{
		Code:    code,
		Message: err.Error(),
		Kind:    string(key.Kind),
	}))
}

func (s *Relay) event(msgType, roomID string, payload any) protocol.Message {
	msg, err := protocol.New(msgType, roomID, payload)
	if err != nil {
		s.log.Error("failed to encode event", slog.String("type", msgType), sl.Err(err))
		return protocol.Message{Type: msgType, RoomID: roomID}
	}
	return msg
}

// fanout returns a notifier delivering msg to every member except exclude.
func (s *Relay) fanout(msg protocol.Message, exclude string) domain.Notifier {
	return func(ids []string) {
		s.deliver(ids, msg, exclude)
	}
}

func (s *Relay) deliver(ids []string, msg protocol.Message, exclude string) {
	targets := make([]*domain.Session, 0, len(ids))

	s.mu.RLock()
	for _, id := range ids {
		if id == exclude {
			continue
		}
		if session, ok := s.sessions[id]; ok {
			targets = append(targets, session)
		}
	}
	s.mu.RUnlock()

	for _, target := range targets {
		s.send(target, msg)
	}
}

func (s *Relay) send(session *domain.Session, msg protocol.Message) {
	if !session.Enqueue(msg) {
		s.log.Debug("dropping event", slog.String("session", session.ID), slog.String("type", msg.Type))
	}
}

func parseKind(raw string, fallback domain.RoomKind) (domain.RoomKind, error) {
	if raw == "" {
		return fallback, nil
	}
	kind, err := domain.ParseRoomKind(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return kind, nil
}

func isNull(raw []byte) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
