package olsr

import (
	"fmt"
	"net/netip"
)

// MalformedMessageError is returned by the codec when a single message's
// length fields are inconsistent or its link-code is invalid. The packet it
// was found in is still processed; only the offending message is dropped.
// When the message's own length field is unusable, the rest of that packet
// cannot be located and is not decoded.
type MalformedMessageError struct {
	Reason string
}

func (e MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed message: %s", e.Reason)
}

// NoRouteToHostError is surfaced to the IP layer via RouteOutput/RouteInput
// when neither the routing table nor the HNA table covers a destination.
type NoRouteToHostError struct {
	Dest netip.Addr
}

func (e NoRouteToHostError) Error() string {
	return fmt.Sprintf("no route to host: %s", e.Dest)
}

// SocketBindFailureError is fatal at initialization: the engine refuses to
// start participating on the interface that failed to bind.
type SocketBindFailureError struct {
	Iface string
	Err   error
}

func (e SocketBindFailureError) Error() string {
	return fmt.Sprintf("bind failed on %s: %s", e.Iface, e.Err)
}

func (e SocketBindFailureError) Unwrap() error {
	return e.Err
}

// StaleMessageError classifies a message that is silently dropped because
// it is superseded: an older-ANSN TC, an already-retransmitted duplicate, or
// a TTL-exhausted message. It is not logged as an error; it exists so drop
// accounting (§6a's messages_dropped_total{reason}) has a typed reason.
type StaleMessageError struct {
	Reason string
}

func (e StaleMessageError) Error() string {
	return fmt.Sprintf("stale message: %s", e.Reason)
}

// SelfOriginatedError marks a message whose originator is our own main
// address; dropped silently, never logged as an error.
type SelfOriginatedError struct {
	Originator netip.Addr
}

func (e SelfOriginatedError) Error() string {
	return fmt.Sprintf("self-originated message from %s", e.Originator)
}

// UnknownMessageTypeError marks a message whose type byte the codec does
// not recognize; the message is skipped and the remainder of the packet is
// still processed.
type UnknownMessageTypeError struct {
	Type MessageType
}

func (e UnknownMessageTypeError) Error() string {
	return fmt.Sprintf("unknown message type: %d", uint8(e.Type))
}
