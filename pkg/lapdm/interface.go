package lapdm

// L1 is the Layer 1 side of the PH-SAP
type L1 interface {
	// SendPrimitive hands a request (PH-DATA, PH-RANDOM_ACCESS,
	// PH-EMPTY_FRAME) to Layer 1
	SendPrimitive(p *Primitive) error
}

// L3 receives indications and confirmations from an entity
type L3 interface {
	ReceiveMessage(msg *Message, e *Entity) error
}

// L1Func adapts a function to the L1 interface
type L1Func func(p *Primitive) error

// SendPrimitive calls f(p)
func (f L1Func) SendPrimitive(p *Primitive) error { return f(p) }

// L3Func adapts a function to the L3 interface
type L3Func func(msg *Message, e *Entity) error

// ReceiveMessage calls f(msg, e)
func (f L3Func) ReceiveMessage(msg *Message, e *Entity) error { return f(msg, e) }

// Flags change how an entity talks to Layer 1
type Flags uint

const (
	// FlagEmptyFrame answers a ready-to-send with PH-EMPTY_FRAME.req
	// instead of a fill frame when nothing is queued
	FlagEmptyFrame Flags = 1 << iota

	// FlagPollingOnly never pushes a frame to Layer 1 unsolicited
	FlagPollingOnly
)

// String returns string representation of Flags
func (f Flags) String() string {
	switch f {
	case 0:
		return "none"
	case FlagEmptyFrame:
		return "empty-frame"
	case FlagPollingOnly:
		return "polling-only"
	case FlagEmptyFrame | FlagPollingOnly:
		return "empty-frame|polling-only"
	default:
		return "invalid"
	}
}
