package domain

import "time"

// FileBlob is the single shared file of a file room. Data holds the
// client-encoded payload as received.
type FileBlob struct {
	Name       string
	Size       int64
	MimeType   string
	Data       string
	UploadedAt time.Time
}

// EncodedLimit bounds the payload length accepted for a file of at most
// maxBytes: base64 expansion plus room for a data URL prefix.
func EncodedLimit(maxBytes int64) int64 {
	return (maxBytes+2)/3*4 + 256
}
