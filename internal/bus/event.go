package bus

import "time"

// Event kinds published by the daemon components. Subscribers filter by
// namespace prefix, e.g. "conn." or "chat.".
const (
	KindStatusChanged = "session.status_changed"
	KindLoggedOut     = "session.logged_out"

	KindConnected    = "conn.connected"
	KindDisconnected = "conn.disconnected"
	KindReconnecting = "conn.reconnecting"
	KindExhausted    = "conn.exhausted"

	KindStateChanged = "chat.state_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
