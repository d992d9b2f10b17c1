package bayeux

// Status is the session's position in the Bayeux connection lifecycle.
type Status string

const (
	StatusUnconnected   Status = "unconnected"
	StatusHandshaking   Status = "handshaking"
	StatusRehandshaking Status = "rehandshaking"
	StatusConnecting    Status = "connecting"
	StatusConnected     Status = "connected"
	StatusDisconnecting Status = "disconnecting"
	StatusDisconnected  Status = "disconnected"
)

// IsDisconnected reports whether a status belongs to the disconnecting or
// disconnected family.
func (s Status) IsDisconnected() bool {
	return s == StatusDisconnecting || s == StatusDisconnected
}

// IsHandshaking reports whether a status belongs to the handshaking or
// rehandshaking family.
func (s Status) IsHandshaking() bool {
	return s == StatusHandshaking || s == StatusRehandshaking
}

// IsConnected reports whether the session currently believes it has a live
// connect cycle in flight or established.
func (s Status) IsConnected() bool {
	return s == StatusConnecting || s == StatusConnected
}

func (s Status) String() string { return string(s) }
