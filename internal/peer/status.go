package peer

// Status is the client session phase.
type Status int

const (
	StatusAwaitingLoginAck Status = iota
	StatusLoggedIn
	StatusInHandshake
	StatusEstablished
)

func (s Status) String() string {
	switch s {
	case StatusAwaitingLoginAck:
		return "awaiting-login-ack"
	case StatusLoggedIn:
		return "logged-in"
	case StatusInHandshake:
		return "in-handshake"
	case StatusEstablished:
		return "established"
	default:
		return "unknown"
	}
}
