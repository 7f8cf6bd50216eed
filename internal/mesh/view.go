package mesh

type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusConnecting Status = "connecting"
	StatusActive     Status = "active"
)

type Peer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Phase string `json:"phase"`
	// Reason is set for failed peers.
	Reason string `json:"reason,omitempty"`
}

// View is what a call screen renders: who is connected, who is still being
// reached and who could not be reached.
type View struct {
	Status    Status `json:"status"`
	Connected []Peer `json:"connected"`
	Pending   []Peer `json:"pending"`
	Failed    []Peer `json:"failed"`
}

func statusOf(connected, pending int) Status {
	switch {
	case connected > 0:
		return StatusActive
	case pending > 0:
		return StatusConnecting
	default:
		return StatusWaiting
	}
}
