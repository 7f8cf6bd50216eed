package protocol

import "github.com/pion/webrtc/v3"

// SessionDescription is the payload of webrtc-offer and webrtc-answer.
type SessionDescription struct {
	SDP webrtc.SessionDescription `json:"sdp"`
}

// Candidate is the payload of webrtc-ice-candidate.
type Candidate struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}
