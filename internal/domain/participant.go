package domain

import "encoding/json"

// Participant is a member record inside one room. Cursor and selection are
// opaque to the relay and kept per room.
type Participant struct {
	ID        string
	Name      string
	Color     string
	Cursor    json.RawMessage
	Selection json.RawMessage
}
