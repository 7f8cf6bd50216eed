package mesh

import (
	"github.com/immxrtalbeast/cohort/internal/protocol"
	"github.com/pion/webrtc/v3"
)

// PeerConnection is the part of a WebRTC peer connection a PeerLink drives.
// Media and codecs stay behind it.
type PeerConnection interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	Close() error
}

// TransportState is what the underlying connection reports about itself.
type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnecting
	TransportConnected
	TransportDisconnected
	TransportFailed
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportNew:
		return "new"
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportDisconnected:
		return "disconnected"
	case TransportFailed:
		return "failed"
	case TransportClosed:
		return "closed"
	}
	return "unknown"
}

// LinkEvents receives callbacks from a PeerConnection implementation.
type LinkEvents interface {
	Remote() protocol.MemberView
	OnLocalCandidate(webrtc.ICECandidateInit)
	OnRemoteTrack()
	OnTransportState(TransportState)
}

// Factory builds the peer connection for one link.
type Factory func(events LinkEvents) (PeerConnection, error)

// Signaler carries signaling messages to the relay.
type Signaler interface {
	Send(msg protocol.Message) error
}
