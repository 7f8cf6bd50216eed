package service

import (
	"github.com/immxrtalbeast/cohort/internal/domain"
	"github.com/immxrtalbeast/cohort/internal/protocol"
)

func memberView(p domain.Participant) protocol.MemberView {
	return protocol.MemberView{
		ID:        p.ID,
		Name:      p.Name,
		Color:     p.Color,
		Cursor:    p.Cursor,
		Selection: p.Selection,
	}
}

func memberViews(members []domain.Participant) []protocol.MemberView {
	views := make([]protocol.MemberView, 0, len(members))
	for _, m := range members {
		views = append(views, memberView(m))
	}
	return views
}

func chatView(m domain.ChatMessage) protocol.ChatView {
	return protocol.ChatView{
		ID:          m.ID,
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		SenderColor: m.SenderColor,
		Text:        m.Text,
		SentAt:      m.SentAt,
	}
}

// chatTail returns the last n messages as views.
func chatTail(chat []domain.ChatMessage, n int) []protocol.ChatView {
	if n >= 0 && len(chat) > n {
		chat = chat[len(chat)-n:]
	}
	views := make([]protocol.ChatView, 0, len(chat))
	for _, m := range chat {
		views = append(views, chatView(m))
	}
	return views
}

func fileView(f *domain.FileBlob) *protocol.FileView {
	if f == nil {
		return nil
	}
	return &protocol.FileView{
		Name:       f.Name,
		Size:       f.Size,
		MimeType:   f.MimeType,
		Data:       f.Data,
		UploadedAt: f.UploadedAt,
	}
}

// roomData builds the join reply for the room's kind.
func roomData(snap domain.RoomSnapshot, self domain.Participant, replay int) (string, any) {
	members := memberViews(snap.Members)

	switch snap.Key.Kind {
	case domain.KindCode:
		return protocol.TypeRoomData, protocol.RoomData{
			RoomID:      snap.Key.ID,
			SourceText:  snap.Code.SourceText,
			Language:    snap.Code.Language,
			Theme:       snap.Code.Theme,
			Members:     members,
			ChatHistory: chatTail(snap.Chat, replay),
			Self:        memberView(self),
		}
	case domain.KindFile:
		return protocol.TypeFileRoomData, protocol.FileRoomData{
			RoomID:      snap.Key.ID,
			File:        fileView(snap.File),
			MemberCount: len(snap.Members),
			Members:     members,
			Self:        memberView(self),
		}
	case domain.KindCall:
		return protocol.TypeCallRoomData, protocol.CallRoomData{
			RoomID:      snap.Key.ID,
			MediaKind:   string(snap.Call.MediaKind),
			Members:     members,
			ChatHistory: chatTail(snap.Chat, replay),
			Self:        memberView(self),
		}
	}
	return "", nil
}

func joinedEvent(kind domain.RoomKind) string {
	switch kind {
	case domain.KindFile:
		return protocol.TypeUserJoinedFile
	case domain.KindCall:
		return protocol.TypeUserJoinedCall
	}
	return protocol.TypeUserJoined
}

func leftEvent(kind domain.RoomKind) string {
	switch kind {
	case domain.KindFile:
		return protocol.TypeUserLeftFile
	case domain.KindCall:
		return protocol.TypeUserLeftCall
	}
	return protocol.TypeUserLeft
}
