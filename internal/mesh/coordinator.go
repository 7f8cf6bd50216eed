package mesh

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/immxrtalbeast/cohort/internal/protocol"
	"github.com/immxrtalbeast/cohort/lib/logger/sl"
)

const (
	defaultConnectTimeout  = 30 * time.Second
	defaultDisconnectGrace = 5 * time.Second
	defaultMaxPeers        = 6
)

// LexicalLess orders participant ids as plain strings. The smaller id offers.
func LexicalLess(a, b string) bool { return a < b }

type Options struct {
	RoomID   string
	Signaler Signaler
	Factory  Factory

	// MaxPeers caps simultaneous links. Members beyond it are skipped until a
	// slot frees up.
	MaxPeers        int
	ConnectTimeout  time.Duration
	DisconnectGrace time.Duration

	// Less decides which side of a pair sends the offer.
	Less func(a, b string) bool

	// OnView is called after every change of the mesh, outside of any lock.
	OnView func(View)
}

// Coordinator keeps one PeerLink per remote call member.
//
// Its lock is never held while calling into a link, so link callbacks may
// re-enter the coordinator freely.
type Coordinator struct {
	opts Options
	log  *slog.Logger

	viewMu sync.Mutex

	mu      sync.Mutex
	selfID  string
	members map[string]protocol.MemberView
	links   map[string]*PeerLink
	failed  map[string]failure
	closed  bool
}

type failure struct {
	member protocol.MemberView
	err    error
}

func NewCoordinator(opts Options, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxPeers <= 0 {
		opts.MaxPeers = defaultMaxPeers
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.DisconnectGrace <= 0 {
		opts.DisconnectGrace = defaultDisconnectGrace
	}
	if opts.Less == nil {
		opts.Less = LexicalLess
	}
	return &Coordinator{
		opts:    opts,
		log:     log.With(slog.String("room", opts.RoomID)),
		members: make(map[string]protocol.MemberView),
		links:   make(map[string]*PeerLink),
		failed:  make(map[string]failure),
	}
}

// HandleSnapshot connects to every member of the room other than self.
func (c *Coordinator) HandleSnapshot(self protocol.MemberView, members []protocol.MemberView) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.selfID = self.ID
	c.members = make(map[string]protocol.MemberView, len(members))
	for _, m := range members {
		if m.ID != self.ID {
			c.members[m.ID] = m
		}
	}
	var stale []*PeerLink
	for id, link := range c.links {
		if _, ok := c.members[id]; !ok {
			stale = append(stale, link)
			delete(c.links, id)
		}
	}
	for id := range c.failed {
		if _, ok := c.members[id]; !ok {
			delete(c.failed, id)
		}
	}
	others := c.sortedMembersLocked()
	c.mu.Unlock()

	for _, link := range stale {
		link.Close()
	}
	for _, m := range others {
		c.connect(m, false)
	}
	c.publish()
}

// HandleMemberJoined connects to a member that arrived after the snapshot.
func (c *Coordinator) HandleMemberJoined(m protocol.MemberView) {
	c.mu.Lock()
	if c.closed || c.selfID == "" || m.ID == c.selfID {
		c.mu.Unlock()
		return
	}
	c.members[m.ID] = m
	c.mu.Unlock()

	c.connect(m, false)
	c.publish()
}

// HandleMemberLeft tears the link down immediately, without waiting for the
// transport to notice.
func (c *Coordinator) HandleMemberLeft(id string) {
	c.mu.Lock()
	delete(c.members, id)
	delete(c.failed, id)
	link := c.links[id]
	delete(c.links, id)
	c.mu.Unlock()

	if link != nil {
		link.Close()
		c.fill()
	}
	c.publish()
}

// HandleSignal routes an offer, answer or candidate to the link it belongs to.
func (c *Coordinator) HandleSignal(msg protocol.Message) {
	from := msg.FromID
	if from == "" {
		return
	}

	switch msg.Type {
	case protocol.TypeWebRTCOffer:
		var p protocol.SessionDescription
		if err := msg.Decode(&p); err != nil {
			c.log.Warn("malformed offer", slog.String("from", from), sl.Err(err))
			return
		}
		c.mu.Lock()
		link := c.links[from]
		member, known := c.members[from]
		if !known && !c.closed {
			member = protocol.MemberView{ID: from}
			c.members[from] = member
		}
		c.mu.Unlock()

		if link == nil || link.Offerer() || link.HasRemoteDescription() {
			link = c.connect(member, true)
			c.publish()
		}
		if link != nil {
			link.HandleOffer(p.SDP)
		}

	case protocol.TypeWebRTCAnswer:
		var p protocol.SessionDescription
		if err := msg.Decode(&p); err != nil {
			c.log.Warn("malformed answer", slog.String("from", from), sl.Err(err))
			return
		}
		if link := c.link(from); link != nil {
			link.HandleAnswer(p.SDP)
		}

	case protocol.TypeWebRTCCandidate:
		var p protocol.Candidate
		if err := msg.Decode(&p); err != nil {
			c.log.Warn("malformed candidate", slog.String("from", from), sl.Err(err))
			return
		}
		if link := c.link(from); link != nil {
			link.HandleRemoteCandidate(p.Candidate)
		}
	}
}

// Link returns the current link to a member, if any.
func (c *Coordinator) Link(id string) *PeerLink {
	return c.link(id)
}

func (c *Coordinator) link(id string) *PeerLink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.links[id]
}

// Close tears down every link. The coordinator ignores events afterwards.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	links := make([]*PeerLink, 0, len(c.links))
	for _, link := range c.links {
		links = append(links, link)
	}
	c.links = make(map[string]*PeerLink)
	c.mu.Unlock()

	for _, link := range links {
		link.Close()
	}
	c.publish()
}

func (c *Coordinator) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{}
	for _, m := range c.sortedMembersLocked() {
		if f, ok := c.failed[m.ID]; ok {
			peer := peerOf(f.member, PhaseFailed)
			if f.err != nil {
				peer.Reason = f.err.Error()
			}
			v.Failed = append(v.Failed, peer)
			continue
		}
		link := c.links[m.ID]
		if link == nil {
			continue
		}
		switch phase := link.Phase(); phase {
		case PhaseConnected:
			v.Connected = append(v.Connected, peerOf(m, phase))
		case PhaseConnecting, PhaseDisconnected:
			v.Pending = append(v.Pending, peerOf(m, phase))
		}
	}
	v.Status = statusOf(len(v.Connected), len(v.Pending))
	return v
}

// connect creates or replaces the link to m. It returns nil when the mesh is
// full or the coordinator is closed.
func (c *Coordinator) connect(m protocol.MemberView, answering bool) *PeerLink {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	existing := c.links[m.ID]
	if existing == nil && len(c.links) >= c.opts.MaxPeers {
		c.mu.Unlock()
		c.log.Warn("mesh is full, peer skipped",
			slog.String("peer", m.ID),
			slog.Int("max_peers", c.opts.MaxPeers),
		)
		return nil
	}
	offerer := !answering && c.opts.Less(c.selfID, m.ID)
	link := newPeerLink(m, offerer, linkConfig{
		roomID:          c.opts.RoomID,
		connectTimeout:  c.opts.ConnectTimeout,
		disconnectGrace: c.opts.DisconnectGrace,
	}, c.opts.Signaler, c.linkPhaseChanged, c.log)
	c.links[m.ID] = link
	delete(c.failed, m.ID)
	c.mu.Unlock()

	if existing != nil {
		existing.Close()
	}
	link.start(c.opts.Factory)
	return link
}

// fill connects members that were skipped while the mesh was full.
func (c *Coordinator) fill() {
	c.mu.Lock()
	free := c.opts.MaxPeers - len(c.links)
	var next []protocol.MemberView
	for _, m := range c.sortedMembersLocked() {
		if free <= 0 {
			break
		}
		if _, linked := c.links[m.ID]; linked {
			continue
		}
		if _, failed := c.failed[m.ID]; failed {
			continue
		}
		next = append(next, m)
		free--
	}
	c.mu.Unlock()

	for _, m := range next {
		c.connect(m, false)
	}
}

func (c *Coordinator) linkPhaseChanged(link *PeerLink, phase Phase) {
	id := link.Remote().ID

	c.mu.Lock()
	if c.links[id] != link {
		c.mu.Unlock()
		return
	}
	removed := false
	if phase == PhaseFailed {
		delete(c.links, id)
		member, ok := c.members[id]
		if !ok {
			member = link.Remote()
		}
		c.failed[id] = failure{member: member, err: link.Err()}
		removed = true
	}
	c.mu.Unlock()

	c.log.Info("peer link changed", slog.String("peer", id), slog.String("phase", phase.String()))
	if removed {
		link.Close()
		c.fill()
	}
	c.publish()
}

func (c *Coordinator) publish() {
	if c.opts.OnView == nil {
		return
	}
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	c.opts.OnView(c.View())
}

func (c *Coordinator) sortedMembersLocked() []protocol.MemberView {
	out := make([]protocol.MemberView, 0, len(c.members))
	for _, m := range c.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return c.opts.Less(out[i].ID, out[j].ID) })
	return out
}

func peerOf(m protocol.MemberView, phase Phase) Peer {
	return Peer{ID: m.ID, Name: m.Name, Color: m.Color, Phase: phase.String()}
}
