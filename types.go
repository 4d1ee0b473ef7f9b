package olsr

import (
	"math"
	"time"
)

// Willingness is a node's 0..7 hint about how eager it is to relay traffic
// as a Multi-Point Relay.
type Willingness uint8

const (
	WillNever   Willingness = 0
	WillLow     Willingness = 1
	WillDefault Willingness = 3
	WillHigh    Willingness = 6
	WillAlways  Willingness = 7
)

// Valid reports whether w is one of the five willingness tiers the protocol
// recognizes; intermediate values are rejected at config-validation time.
func (w Willingness) Valid() bool {
	switch w {
	case WillNever, WillLow, WillDefault, WillHigh, WillAlways:
		return true
	}
	return false
}

// LinkType is the low two bits of a HELLO link-code.
type LinkType uint8

const (
	LinkUnspec LinkType = 0
	LinkAsym   LinkType = 1
	LinkSym    LinkType = 2
	LinkLost   LinkType = 3
)

// NeighborType is bits 2-3 of a HELLO link-code.
type NeighborType uint8

const (
	NeighNotNeigh NeighborType = 0
	NeighSym      NeighborType = 1
	NeighMpr      NeighborType = 2
)

// NeighborStatus is the derived symmetry state of a NeighborTuple.
type NeighborStatus uint8

const (
	StatusNotSym NeighborStatus = iota
	StatusSym
)

func (s NeighborStatus) String() string {
	if s == StatusSym {
		return "SYM"
	}
	return "NOT_SYM"
}

// MessageType identifies the body carried by a Message.
type MessageType uint8

const (
	MsgHello    MessageType = 1
	MsgTC       MessageType = 2
	MsgMID      MessageType = 3
	MsgHNA      MessageType = 4
	MsgHelloAck MessageType = 5
)

func (t MessageType) String() string {
	switch t {
	case MsgHello:
		return "HELLO"
	case MsgTC:
		return "TC"
	case MsgMID:
		return "MID"
	case MsgHNA:
		return "HNA"
	case MsgHelloAck:
		return "HELLO-ACK"
	default:
		return "UNKNOWN"
	}
}

// Protocol-wide defaults and constants, resolved against the ns-3 OLSR model
// this spec is rooted in (OLSR_NEIGHB_HOLD_TIME, OLSR_TOP_HOLD_TIME,
// OLSR_DUP_HOLD_TIME, OLSR_MAXJITTER, OLSR_MAX_MSGS).
const (
	DefaultHelloInterval          = 2 * time.Second
	DefaultTcInterval             = 5 * time.Second
	DefaultMidInterval            = 5 * time.Second
	DefaultHnaInterval            = 5 * time.Second
	DefaultMaxCommunicationRadius = 300.0 // meters
	DefaultWillingness            = WillDefault

	// SaturationETX is the sentinel ETX assigned to a forward LinkQosTuple
	// before any HELLO-ACK has been observed for it.
	SaturationETX = 100.0

	// MaxMsgs bounds how many messages accumulate before the scheduler
	// flushes a packet eagerly instead of waiting for the jitter timer.
	MaxMsgs = 64

	// DupHoldTime is how long a DuplicateTuple is retained after first sight.
	DupHoldTime = 30 * time.Second

	// MaxDistanceHistory bounds the per-link distance samples used for LSD.
	MaxDistanceHistory = 5

	// AncrWindowMultiplier sizes the ANCR event window as a multiple of the
	// HELLO interval.
	AncrWindowMultiplier = 3

	// expiryEpsilon is the "already expired" nudge used to force-expire a
	// link on receipt of a LOST_LINK advertisement.
	expiryEpsilon = time.Millisecond
)

// Vec3 is a plain 3D vector used for position, velocity and the intermediate
// link-hold-time algebra; position z and velocity components are narrower on
// the wire (§4.2) but are carried as float64 once decoded.
type Vec3 struct {
	X, Y, Z float64
}

func (a Vec3) Sub(b Vec3) Vec3 {
	return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z}
}

func (a Vec3) Dot(b Vec3) float64 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

func (a Vec3) NormSquared() float64 {
	return a.Dot(a)
}

func (a Vec3) Norm() float64 {
	return math.Sqrt(a.NormSquared())
}

// CrossNormSquared returns ‖a×b‖², the squared magnitude of the cross
// product, as used directly by the LHT quadratic in §4.3.
func (a Vec3) CrossNormSquared(b Vec3) float64 {
	cx := a.Y*b.Z - a.Z*b.Y
	cy := a.Z*b.X - a.X*b.Z
	cz := a.X*b.Y - a.Y*b.X
	return cx*cx + cy*cy + cz*cz
}
