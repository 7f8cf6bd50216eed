package converter

import (
	"time"

	"github.com/immxrtalbeast/cohort/internal/domain"
)

type RoomResponse struct {
	ID          string           `json:"id"`
	Kind        domain.RoomKind  `json:"kind"`
	Members     []MemberResponse `json:"members"`
	MemberCount int              `json:"member_count"`
	ChatCount   int              `json:"chat_count"`
	CreatedAt   time.Time        `json:"created_at"`
	Language    string           `json:"language,omitempty"`
	Theme       string           `json:"theme,omitempty"`
	SourceBytes int              `json:"source_bytes,omitempty"`
	File        *FileResponse    `json:"file,omitempty"`
	MediaKind   domain.MediaKind `json:"media_kind,omitempty"`
}

type MemberResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// FileResponse describes the shared file without its payload.
type FileResponse struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mime_type"`
	UploadedAt time.Time `json:"uploaded_at"`
}

func RoomToApi(snap domain.RoomSnapshot) *RoomResponse {
	members := make([]MemberResponse, 0, len(snap.Members))
	for _, m := range snap.Members {
		members = append(members, MemberResponse{
			ID:    m.ID,
			Name:  m.Name,
			Color: m.Color,
		})
	}

	resp := &RoomResponse{
		ID:          snap.Key.ID,
		Kind:        snap.Key.Kind,
		Members:     members,
		MemberCount: len(members),
		ChatCount:   len(snap.Chat),
		CreatedAt:   snap.CreatedAt,
	}

	switch snap.Key.Kind {
	case domain.KindCode:
		resp.Language = snap.Code.Language
		resp.Theme = snap.Code.Theme
		resp.SourceBytes = len(snap.Code.SourceText)
	case domain.KindFile:
		if snap.File != nil {
			resp.File = &FileResponse{
				Name:       snap.File.Name,
				Size:       snap.File.Size,
				MimeType:   snap.File.MimeType,
				UploadedAt: snap.File.UploadedAt,
			}
		}
	case domain.KindCall:
		resp.MediaKind = snap.Call.MediaKind
	}

	return resp
}
