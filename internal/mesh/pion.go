package mesh

import (
	"fmt"
	"log/slog"

	"github.com/pion/webrtc/v3"
)

type PionConfig struct {
	ICEServers []webrtc.ICEServer
	// Video adds a video transceiver next to the audio one.
	Video bool
	// Tracks are sent to every peer. Without tracks the connection only
	// receives.
	Tracks []webrtc.TrackLocal
}

// ICEServers builds the pion server list from STUN and TURN urls.
func ICEServers(stun, turn []string, username, password string) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if len(stun) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}
	if len(turn) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   username,
			Credential: password,
		})
	}
	return servers
}

// NewPionFactory returns a Factory backed by pion peer connections.
func NewPionFactory(cfg PionConfig, log *slog.Logger) Factory {
	if log == nil {
		log = slog.Default()
	}
	return func(events LinkEvents) (PeerConnection, error) {
		const op = "mesh.PionFactory"

		pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.ICEServers})
		if err != nil {
			return nil, fmt.Errorf("%s: new peer connection: %w", op, err)
		}
		if err := addMedia(pc, cfg); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		peer := events.Remote().ID
		pc.OnICECandidate(func(c *webrtc.ICECandidate) {
			if c == nil {
				return
			}
			events.OnLocalCandidate(c.ToJSON())
		})
		pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			log.Debug("remote track",
				slog.String("peer", peer),
				slog.String("kind", track.Kind().String()),
			)
			events.OnRemoteTrack()
			go drain(track)
		})
		pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
			events.OnTransportState(transportState(s))
		})
		return &pionConn{pc: pc}, nil
	}
}

func addMedia(pc *webrtc.PeerConnection, cfg PionConfig) error {
	if len(cfg.Tracks) > 0 {
		for _, t := range cfg.Tracks {
			if _, err := pc.AddTrack(t); err != nil {
				return fmt.Errorf("add track %s: %w", t.ID(), err)
			}
		}
		return nil
	}

	recvonly := webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, recvonly); err != nil {
		return fmt.Errorf("add audio transceiver: %w", err)
	}
	if cfg.Video {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, recvonly); err != nil {
			return fmt.Errorf("add video transceiver: %w", err)
		}
	}
	return nil
}

// drain keeps reading so the receive buffers never fill up.
func drain(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

func transportState(s webrtc.PeerConnectionState) TransportState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return TransportConnecting
	case webrtc.PeerConnectionStateConnected:
		return TransportConnected
	case webrtc.PeerConnectionStateDisconnected:
		return TransportDisconnected
	case webrtc.PeerConnectionStateFailed:
		return TransportFailed
	case webrtc.PeerConnectionStateClosed:
		return TransportClosed
	}
	return TransportNew
}

type pionConn struct {
	pc *webrtc.PeerConnection
}

func (p *pionConn) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

func (p *pionConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

func (p *pionConn) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(sdp)
}

func (p *pionConn) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(sdp)
}

func (p *pionConn) AddICECandidate(c webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(c)
}

func (p *pionConn) Close() error {
	return p.pc.Close()
}
