package mesh

import (
	"errors"
	"fmt"
	"sync"

	"github.com/immxrtalbeast/cohort/internal/protocol"
	"github.com/pion/webrtc/v3"
)

type fakePC struct {
	events LinkEvents

	mu        sync.Mutex
	calls     []string
	remoteSet bool
	closed    int
}

func (f *fakePC) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakePC) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakePC) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakePC) CreateOffer() (webrtc.SessionDescription, error) {
	f.record("create-offer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer"}, nil
}

func (f *fakePC) CreateAnswer() (webrtc.SessionDescription, error) {
	f.mu.Lock()
	ok := f.remoteSet
	f.mu.Unlock()
	if !ok {
		return webrtc.SessionDescription{}, errors.New("no remote description")
	}
	f.record("create-answer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}, nil
}

func (f *fakePC) SetLocalDescription(sdp webrtc.SessionDescription) error {
	f.record("set-local:" + sdp.Type.String())
	return nil
}

func (f *fakePC) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	f.mu.Lock()
	f.remoteSet = true
	f.mu.Unlock()
	f.record("set-remote:" + sdp.Type.String())
	return nil
}

func (f *fakePC) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.mu.Lock()
	ok := f.remoteSet
	f.mu.Unlock()
	if !ok {
		return errors.New("remote description not set")
	}
	f.record("candidate:" + c.Candidate)
	return nil
}

func (f *fakePC) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

// fakeFactory hands out fakePCs and remembers the latest one per peer.
type fakeFactory struct {
	mu   sync.Mutex
	pcs  map[string]*fakePC
	all  []*fakePC
	fail error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{pcs: make(map[string]*fakePC)}
}

func (f *fakeFactory) New(events LinkEvents) (PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	pc := &fakePC{events: events}
	f.pcs[events.Remote().ID] = pc
	f.all = append(f.all, pc)
	return pc, nil
}

func (f *fakeFactory) PC(peer string) *fakePC {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pcs[peer]
}

func (f *fakeFactory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.all)
}

type recorder struct {
	mu   sync.Mutex
	sent []protocol.Message
}

func (r *recorder) Send(msg protocol.Message) error {
	r.mu.Lock()
	r.sent = append(r.sent, msg)
	r.mu.Unlock()
	return nil
}

func (r *recorder) Sent(msgType string) []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.Message
	for _, m := range r.sent {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

// bus delivers signals between coordinators the way the relay does: it
// stamps the sender and routes by target.
type bus struct {
	mu    sync.Mutex
	peers map[string]*Coordinator
}

func newBus() *bus {
	return &bus{peers: make(map[string]*Coordinator)}
}

func (b *bus) attach(id string, c *Coordinator) {
	b.mu.Lock()
	b.peers[id] = c
	b.mu.Unlock()
}

func (b *bus) detach(id string) {
	b.mu.Lock()
	delete(b.peers, id)
	b.mu.Unlock()
}

func (b *bus) from(id string) Signaler {
	return signalFunc(func(msg protocol.Message) error {
		b.mu.Lock()
		target, ok := b.peers[msg.TargetID]
		b.mu.Unlock()
		if !ok {
			return fmt.Errorf("target %s unreachable", msg.TargetID)
		}
		msg.FromID = id
		target.HandleSignal(msg)
		return nil
	})
}

type signalFunc func(protocol.Message) error

func (f signalFunc) Send(msg protocol.Message) error { return f(msg) }
