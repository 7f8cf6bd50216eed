package mesh

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/immxrtalbeast/cohort/internal/protocol"
	"github.com/immxrtalbeast/cohort/lib/logger/sl"
	"github.com/pion/webrtc/v3"
)

var (
	ErrConnectTimeout  = errors.New("peer did not connect in time")
	ErrGraceExpired    = errors.New("peer did not recover from disconnect")
	ErrTransportFailed = errors.New("transport failed")
)

type linkConfig struct {
	roomID          string
	connectTimeout  time.Duration
	disconnectGrace time.Duration
}

// PeerLink is the connection state to one remote participant.
//
// Every method is safe to call from any goroutine. Phase changes are reported
// through onPhase after the link lock is released.
type PeerLink struct {
	remote  protocol.MemberView
	offerer bool
	cfg     linkConfig
	signal  Signaler
	onPhase func(*PeerLink, Phase)
	log     *slog.Logger

	closed atomic.Bool

	mu         sync.Mutex
	pc         PeerConnection
	phase      Phase
	remoteSet  bool
	pending    []webrtc.ICECandidateInit
	failure    error
	connect    *time.Timer
	connectGen uint64
	grace      *time.Timer
	graceGen   uint64
}

func newPeerLink(remote protocol.MemberView, offerer bool, cfg linkConfig, signal Signaler, onPhase func(*PeerLink, Phase), log *slog.Logger) *PeerLink {
	return &PeerLink{
		remote:  remote,
		offerer: offerer,
		cfg:     cfg,
		signal:  signal,
		onPhase: onPhase,
		log:     log.With(slog.String("peer", remote.ID), slog.Bool("offerer", offerer)),
		phase:   PhaseConnecting,
	}
}

func (l *PeerLink) Remote() protocol.MemberView { return l.remote }

func (l *PeerLink) Offerer() bool { return l.offerer }

func (l *PeerLink) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// Err returns why the link failed, if it did.
func (l *PeerLink) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failure
}

func (l *PeerLink) HasRemoteDescription() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remoteSet
}

func (l *PeerLink) PendingCandidates() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// start creates the peer connection and, on the offering side, sends the offer.
func (l *PeerLink) start(factory Factory) {
	const op = "mesh.PeerLink.start"

	pc, err := factory(l)

	l.mu.Lock()
	if l.closed.Load() {
		l.mu.Unlock()
		if pc != nil {
			_ = pc.Close()
		}
		return
	}
	if err != nil {
		failed := l.failLocked(fmt.Errorf("%s: %w", op, err))
		l.mu.Unlock()
		if failed {
			l.notify(PhaseFailed)
		}
		return
	}
	l.pc = pc
	l.armConnectLocked()

	var offer webrtc.SessionDescription
	failed := false
	if l.offerer {
		offer, err = pc.CreateOffer()
		if err == nil {
			err = pc.SetLocalDescription(offer)
		}
		if err != nil {
			failed = l.failLocked(fmt.Errorf("%s: offer: %w", op, err))
		}
	}
	l.mu.Unlock()

	if failed {
		l.notify(PhaseFailed)
		return
	}
	if l.offerer {
		l.send(protocol.TypeWebRTCOffer, protocol.SessionDescription{SDP: offer})
	}
}

// HandleOffer applies a remote offer, flushes queued candidates and replies
// with an answer.
func (l *PeerLink) HandleOffer(sdp webrtc.SessionDescription) {
	const op = "mesh.PeerLink.HandleOffer"

	l.mu.Lock()
	if l.phase.terminal() || l.pc == nil {
		l.mu.Unlock()
		return
	}
	answer, err := l.acceptOfferLocked(sdp)
	failed := false
	if err != nil {
		failed = l.failLocked(fmt.Errorf("%s: %w", op, err))
	}
	l.mu.Unlock()

	if failed {
		l.notify(PhaseFailed)
		return
	}
	if err == nil {
		l.send(protocol.TypeWebRTCAnswer, protocol.SessionDescription{SDP: answer})
	}
}

func (l *PeerLink) acceptOfferLocked(sdp webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := l.pc.SetRemoteDescription(sdp); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set remote: %w", err)
	}
	l.remoteSet = true
	l.flushLocked()

	answer, err := l.pc.CreateAnswer()
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local: %w", err)
	}
	return answer, nil
}

// HandleAnswer applies the remote answer to an offer this link sent.
func (l *PeerLink) HandleAnswer(sdp webrtc.SessionDescription) {
	const op = "mesh.PeerLink.HandleAnswer"

	l.mu.Lock()
	if l.phase.terminal() || l.pc == nil {
		l.mu.Unlock()
		return
	}
	if !l.offerer || l.remoteSet {
		l.mu.Unlock()
		l.log.Debug("unexpected answer dropped")
		return
	}
	failed := false
	if err := l.pc.SetRemoteDescription(sdp); err != nil {
		failed = l.failLocked(fmt.Errorf("%s: %w", op, err))
	} else {
		l.remoteSet = true
		l.flushLocked()
	}
	l.mu.Unlock()

	if failed {
		l.notify(PhaseFailed)
	}
}

// HandleRemoteCandidate applies a candidate, or queues it until the remote
// description is known.
func (l *PeerLink) HandleRemoteCandidate(c webrtc.ICECandidateInit) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.phase.terminal() {
		return
	}
	if l.pc == nil || !l.remoteSet {
		l.pending = append(l.pending, c)
		return
	}
	if err := l.pc.AddICECandidate(c); err != nil {
		l.log.Warn("add remote candidate", sl.Err(err))
	}
}

func (l *PeerLink) flushLocked() {
	for _, c := range l.pending {
		if err := l.pc.AddICECandidate(c); err != nil {
			l.log.Warn("add queued candidate", sl.Err(err))
		}
	}
	l.pending = nil
}

// OnLocalCandidate forwards a locally gathered candidate right away.
func (l *PeerLink) OnLocalCandidate(c webrtc.ICECandidateInit) {
	l.send(protocol.TypeWebRTCCandidate, protocol.Candidate{Candidate: c})
}

// OnRemoteTrack counts as proof of connectivity.
func (l *PeerLink) OnRemoteTrack() {
	l.mu.Lock()
	changed := l.markConnectedLocked()
	l.mu.Unlock()

	if changed {
		l.notify(PhaseConnected)
	}
}

func (l *PeerLink) OnTransportState(state TransportState) {
	l.mu.Lock()
	var next Phase
	changed := false
	switch state {
	case TransportConnected:
		changed = l.markConnectedLocked()
		next = PhaseConnected
	case TransportDisconnected:
		if l.phase == PhaseConnected {
			l.phase = PhaseDisconnected
			l.armGraceLocked()
			changed = true
			next = PhaseDisconnected
		}
	case TransportFailed:
		changed = l.failLocked(ErrTransportFailed)
		next = PhaseFailed
	}
	l.mu.Unlock()

	if changed {
		l.notify(next)
	}
}

func (l *PeerLink) markConnectedLocked() bool {
	if l.phase.terminal() {
		return false
	}
	l.stopConnectLocked()
	l.stopGraceLocked()
	if l.phase == PhaseConnected {
		return false
	}
	l.phase = PhaseConnected
	return true
}

func (l *PeerLink) failLocked(reason error) bool {
	if l.phase.terminal() {
		return false
	}
	l.stopConnectLocked()
	l.stopGraceLocked()
	l.phase = PhaseFailed
	l.failure = reason
	l.log.Warn("peer link failed", sl.Err(reason))
	return true
}

func (l *PeerLink) armConnectLocked() {
	l.stopConnectLocked()
	if l.cfg.connectTimeout <= 0 {
		return
	}
	gen := l.connectGen
	l.connect = time.AfterFunc(l.cfg.connectTimeout, func() {
		l.expire(gen, PhaseConnecting, ErrConnectTimeout)
	})
}

func (l *PeerLink) armGraceLocked() {
	l.stopGraceLocked()
	gen := l.graceGen
	l.grace = time.AfterFunc(max(l.cfg.disconnectGrace, 0), func() {
		l.expire(gen, PhaseDisconnected, ErrGraceExpired)
	})
}

func (l *PeerLink) stopConnectLocked() {
	if l.connect != nil {
		l.connect.Stop()
		l.connect = nil
	}
	l.connectGen++
}

func (l *PeerLink) stopGraceLocked() {
	if l.grace != nil {
		l.grace.Stop()
		l.grace = nil
	}
	l.graceGen++
}

// expire fails the link if the timer that fired is still the armed one and
// the link is still in the phase it guarded.
func (l *PeerLink) expire(gen uint64, guarded Phase, reason error) {
	l.mu.Lock()
	current := l.connectGen
	if guarded == PhaseDisconnected {
		current = l.graceGen
	}
	if gen != current || l.phase != guarded {
		l.mu.Unlock()
		return
	}
	failed := l.failLocked(reason)
	l.mu.Unlock()

	if failed {
		l.notify(PhaseFailed)
	}
}

// Close releases the peer connection. Calling it more than once is a no-op.
func (l *PeerLink) Close() {
	if !l.closed.CompareAndSwap(false, true) {
		return
	}

	l.mu.Lock()
	l.stopConnectLocked()
	l.stopGraceLocked()
	l.phase = PhaseClosed
	l.pending = nil
	pc := l.pc
	l.mu.Unlock()

	if pc != nil {
		if err := pc.Close(); err != nil {
			l.log.Debug("close peer connection", sl.Err(err))
		}
	}
}

func (l *PeerLink) notify(p Phase) {
	if l.closed.Load() || l.onPhase == nil {
		return
	}
	l.onPhase(l, p)
}

func (l *PeerLink) send(msgType string, payload any) {
	if l.closed.Load() {
		return
	}
	msg, err := protocol.New(msgType, l.cfg.roomID, payload)
	if err != nil {
		l.log.Error("encode signal", slog.String("type", msgType), sl.Err(err))
		return
	}
	msg.TargetID = l.remote.ID
	if err := l.signal.Send(msg); err != nil {
		l.log.Warn("send signal", slog.String("type", msgType), sl.Err(err))
	}
}
