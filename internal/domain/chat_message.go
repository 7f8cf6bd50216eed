package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is immutable once created.
type ChatMessage struct {
	ID          string
	SenderID    string
	SenderName  string
	SenderColor string
	Text        string
	SentAt      time.Time
}

func NewChatMessage(sender Participant, text string) ChatMessage {
	return ChatMessage{
		ID:          uuid.NewString(),
		SenderID:    sender.ID,
		SenderName:  sender.Name,
		SenderColor: sender.Color,
		Text:        text,
		SentAt:      time.Now().UTC(),
	}
}
