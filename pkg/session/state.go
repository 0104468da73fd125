package session

// State of the connection owned by a Session.
type State int

const (
	// Disconnected means there is no usable connection. The next operation dials.
	Disconnected State = iota
	// Authenticating means a connection is being dialed and logged in.
	Authenticating
	// Ready means the connection is logged in and the folder registry is current.
	Ready
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Authenticating:
		return "authenticating"
	case Ready:
		return "ready"
	}
	return "unknown"
}
