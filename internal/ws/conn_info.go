package ws

import "time"

// ConnInfo carries per-session identity and correlation data, captured once
// at handshake time.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
