package kernel

import "strings"

// ID identifies a simulated endpoint.
type ID int64

// EventMask is a bit set of readiness kinds.
type EventMask uint32

const (
	// EventRead signals that inbound data is available.
	EventRead EventMask = 1 << iota
	// EventWrite signals that outbound capacity is available.
	EventWrite
)

// String renders the mask as "read|write".
func (m EventMask) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	if m&EventRead != 0 {
		parts = append(parts, string(KindRead))
	}
	if m&EventWrite != 0 {
		parts = append(parts, string(KindWrite))
	}
	if rest := m &^ (EventRead | EventWrite); rest != 0 {
		parts = append(parts, "unknown")
	}
	return strings.Join(parts, "|")
}

// Kind names a single readiness condition passed to subscribers and Query.
type Kind string

const (
	KindRead  Kind = "read"
	KindWrite Kind = "write"
)

// Mask returns the event bit for k, or 0 for an unknown kind.
func (k Kind) Mask() EventMask {
	switch k {
	case KindRead:
		return EventRead
	case KindWrite:
		return EventWrite
	default:
		return 0
	}
}
