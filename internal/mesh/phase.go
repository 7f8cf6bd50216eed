package mesh

type Phase int

const (
	PhaseConnecting Phase = iota
	PhaseConnected
	PhaseDisconnected
	PhaseFailed
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnected:
		return "disconnected"
	case PhaseFailed:
		return "failed"
	case PhaseClosed:
		return "closed"
	}
	return "unknown"
}

// terminal phases accept no transitions except to Closed.
func (p Phase) terminal() bool {
	return p == PhaseFailed || p == PhaseClosed
}
