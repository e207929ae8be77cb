package orchestration

// ConnectionState is the lifecycle of the realtime session, owned by
// the orchestrator.
type ConnectionState int32

const (
	StateIdle ConnectionState = iota
	StateNegotiating
	StateOpen
	StateClosed
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// startable reports whether a new negotiation may begin from this
// state. Negotiating and Open reject a second concurrent attempt.
func (s ConnectionState) startable() bool {
	return s == StateIdle || s == StateClosed || s == StateFailed
}
