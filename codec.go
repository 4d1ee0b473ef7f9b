package olsr

import (
	"encoding/binary"
	"math"
	"net/netip"
	"time"
)

// vtimeScale is the C constant of the OLSR mantissa/exponent duration
// encoding, (1+a/16)·2^b·C.
const vtimeScale = 1.0 / 16.0

// EncodeVTime packs a duration into the OLSR 8-bit mantissa/exponent
// format. Values are quantized; DecodeVTime(EncodeVTime(d)) is not exact but
// never undershoots the hold times the scheduler derives from it by more
// than one quantization step.
func EncodeVTime(d time.Duration) uint8 {
	seconds := d.Seconds()
	if seconds <= 0 {
		return 0
	}
	b := 0
	for seconds/vtimeScale >= math.Pow(2, float64(b+1)) && b < 15 {
		b++
	}
	a := int(16*(seconds/(vtimeScale*math.Pow(2, float64(b))) - 1) + 0.5)
	if a < 0 {
		a = 0
	}
	if a > 15 {
		a = 15
	}
	return uint8(a<<4 | b)
}

// DecodeVTime inverts EncodeVTime.
func DecodeVTime(v uint8) time.Duration {
	a := int(v >> 4)
	b := int(v & 0x0f)
	seconds := vtimeScale * (1 + float64(a)/16.0) * math.Pow(2, float64(b))
	return time.Duration(seconds * float64(time.Second))
}

// Packet is one UDP/698 datagram: a sequence number and 1..N messages.
type Packet struct {
	Seq      uint16
	Messages []Message
}

// Message is the common header shared by HELLO, HELLO-ACK, TC, MID and HNA,
// plus a type-specific Body.
type Message struct {
	Type       MessageType
	VTime      time.Duration
	Originator netip.Addr
	TTL        uint8
	HopCount   uint8
	Seq        uint16
	Body       any
}

// HelloLinkNeighbor is one (neighbor-iface, ETX) entry inside a link
// message.
type HelloLinkNeighbor struct {
	Iface netip.Addr
	ETX   uint32
}

// HelloLinkMessage groups neighbor entries under one (link-type,
// neighbor-type) link-code.
type HelloLinkMessage struct {
	LinkType     LinkType
	NeighborType NeighborType
	Neighbors    []HelloLinkNeighbor
}

// HelloBody is the HELLO message payload (§4.2): willingness, ANCR,
// position/velocity, and the link-message list.
type HelloBody struct {
	HTime       time.Duration
	Willingness Willingness
	ANCR        uint16
	Position    Vec3
	Velocity    Vec3
	Links       []HelloLinkMessage
}

// HelloAckBody acknowledges a specific receiver interface; HELLO-ACK is
// always sent with TTL=1 and is never forwarded.
type HelloAckBody struct {
	ReceiverIface netip.Addr
}

// TCNeighbor is one (advertisedNeighborMain, ETX) pair inside a TC body.
type TCNeighbor struct {
	Main netip.Addr
	ETX  uint32
}

// TCBody is the Topology Control payload.
type TCBody struct {
	ANSN      uint16
	Neighbors []TCNeighbor
}

// MIDBody lists a node's interfaces other than its main address.
type MIDBody struct {
	Interfaces []netip.Addr
}

// HNAAssociation is one (network, netmask) pair.
type HNAAssociation struct {
	Network netip.Addr
	Netmask netip.Addr
}

// HNABody lists a node's advertised external network associations.
type HNABody struct {
	Associations []HNAAssociation
}

func putAddr4(buf []byte, a netip.Addr) {
	a4 := a.As4()
	copy(buf, a4[:])
}

func getAddr4(buf []byte) netip.Addr {
	var a4 [4]byte
	copy(a4[:], buf)
	return netip.AddrFrom4(a4)
}

// EncodePacket serializes p into a wire-format datagram: 16-bit length,
// 16-bit sequence, then the concatenated messages.
func EncodePacket(p *Packet) ([]byte, error) {
	var body []byte
	for _, m := range p.Messages {
		mb, err := encodeMessage(&m)
		if err != nil {
			return nil, err
		}
		body = append(body, mb...)
	}

	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint16(out[0:2], uint16(len(out)))
	binary.BigEndian.PutUint16(out[2:4], p.Seq)
	copy(out[4:], body)
	return out, nil
}

func encodeMessage(m *Message) ([]byte, error) {
	var body []byte
	var err error
	switch b := m.Body.(type) {
	case *HelloBody:
		body, err = encodeHelloBody(b)
	case *HelloAckBody:
		body = make([]byte, 4)
		putAddr4(body, b.ReceiverIface)
	case *TCBody:
		body = encodeTCBody(b)
	case *MIDBody:
		body = make([]byte, 4*len(b.Interfaces))
		for i, a := range b.Interfaces {
			putAddr4(body[i*4:], a)
		}
	case *HNABody:
		body = make([]byte, 8*len(b.Associations))
		for i, assoc := range b.Associations {
			putAddr4(body[i*8:], assoc.Network)
			putAddr4(body[i*8+4:], assoc.Netmask)
		}
	default:
		return nil, MalformedMessageError{Reason: "unsupported body type"}
	}
	if err != nil {
		return nil, err
	}

	const headerLen = 1 + 1 + 2 + 4 + 1 + 1 + 2
	out := make([]byte, headerLen+len(body))
	out[0] = byte(m.Type)
	out[1] = EncodeVTime(m.VTime)
	binary.BigEndian.PutUint16(out[2:4], uint16(headerLen+len(body)))
	putAddr4(out[4:8], m.Originator)
	out[8] = m.TTL
	out[9] = m.HopCount
	binary.BigEndian.PutUint16(out[10:12], m.Seq)
	copy(out[12:], body)
	return out, nil
}

func encodeHelloBody(b *HelloBody) ([]byte, error) {
	var links []byte
	for _, lm := range b.Links {
		linkBody := make([]byte, 8*len(lm.Neighbors))
		for i, n := range lm.Neighbors {
			putAddr4(linkBody[i*8:], n.Iface)
			binary.BigEndian.PutUint32(linkBody[i*8+4:], n.ETX)
		}
		const linkHeaderLen = 1 + 1 + 2
		lb := make([]byte, linkHeaderLen+len(linkBody))
		lb[0] = byte(lm.LinkType) | byte(lm.NeighborType)<<2
		binary.BigEndian.PutUint16(lb[2:4], uint16(linkHeaderLen+len(linkBody)))
		copy(lb[4:], linkBody)
		links = append(links, lb...)
	}

	const headerLen = 1 + 1 + 1 + 2 + 4 + 4 + 2 + 2 + 2 + 2
	out := make([]byte, headerLen+len(links))
	out[1] = EncodeVTime(b.HTime)
	out[2] = byte(b.Willingness)
	binary.BigEndian.PutUint16(out[3:5], b.ANCR)
	binary.BigEndian.PutUint32(out[5:9], uint32(int32(b.Position.X)))
	binary.BigEndian.PutUint32(out[9:13], uint32(int32(b.Position.Y)))
	binary.BigEndian.PutUint16(out[13:15], uint16(int16(b.Position.Z)))
	binary.BigEndian.PutUint16(out[15:17], uint16(int16(b.Velocity.X)))
	binary.BigEndian.PutUint16(out[17:19], uint16(int16(b.Velocity.Y)))
	binary.BigEndian.PutUint16(out[19:21], uint16(int16(b.Velocity.Z)))
	copy(out[headerLen:], links)
	return out, nil
}

func encodeTCBody(b *TCBody) []byte {
	out := make([]byte, 4+8*len(b.Neighbors))
	binary.BigEndian.PutUint16(out[0:2], b.ANSN)
	for i, n := range b.Neighbors {
		putAddr4(out[4+i*8:], n.Main)
		binary.BigEndian.PutUint32(out[4+i*8+4:], n.ETX)
	}
	return out
}

// DecodePacket parses a wire-format datagram. Malformed individual messages
// are skipped and reported to onDrop (if non-nil); the remainder of the
// packet is still decoded per §4.2/§7's MalformedMessage policy. A message
// whose own length field is out of range ends decoding of the packet there,
// since the start of the next message cannot be located. A corruption that
// makes the packet header itself untrustworthy returns a non-nil error and
// no packet.
func DecodePacket(buf []byte, onDrop func(error)) (*Packet, error) {
	if len(buf) < 4 {
		return nil, MalformedMessageError{Reason: "packet shorter than header"}
	}
	length := binary.BigEndian.Uint16(buf[0:2])
	if int(length) != len(buf) {
		return nil, MalformedMessageError{Reason: "packet length field mismatch"}
	}
	p := &Packet{Seq: binary.BigEndian.Uint16(buf[2:4])}

	rest := buf[4:]
	for len(rest) > 0 {
		m, consumed, err := decodeMessage(rest)
		if err != nil {
			if onDrop != nil {
				onDrop(err)
			}
			if consumed == 0 {
				// Cannot safely resynchronize without a trustworthy length
				// field; stop processing the remainder of this packet.
				break
			}
			rest = rest[consumed:]
			continue
		}
		p.Messages = append(p.Messages, *m)
		rest = rest[consumed:]
	}
	return p, nil
}

func decodeMessage(buf []byte) (*Message, int, error) {
	const headerLen = 1 + 1 + 2 + 4 + 1 + 1 + 2
	if len(buf) < headerLen {
		return nil, 0, MalformedMessageError{Reason: "truncated message header"}
	}
	msgType := MessageType(buf[0])
	vtime := DecodeVTime(buf[1])
	msgLen := int(binary.BigEndian.Uint16(buf[2:4]))
	if msgLen < headerLen || msgLen > len(buf) {
		return nil, 0, MalformedMessageError{Reason: "message length field out of range"}
	}
	originator := getAddr4(buf[4:8])
	ttl := buf[8]
	hopCount := buf[9]
	seq := binary.BigEndian.Uint16(buf[10:12])
	body := buf[headerLen:msgLen]

	m := &Message{
		Type:       msgType,
		VTime:      vtime,
		Originator: originator,
		TTL:        ttl,
		HopCount:   hopCount,
		Seq:        seq,
	}

	var err error
	switch msgType {
	case MsgHello:
		m.Body, err = decodeHelloBody(body)
	case MsgHelloAck:
		if len(body) < 4 {
			err = MalformedMessageError{Reason: "truncated HELLO-ACK body"}
		} else {
			m.Body = &HelloAckBody{ReceiverIface: getAddr4(body)}
		}
	case MsgTC:
		m.Body, err = decodeTCBody(body)
	case MsgMID:
		m.Body, err = decodeMIDBody(body)
	case MsgHNA:
		m.Body, err = decodeHNABody(body)
	default:
		return nil, msgLen, UnknownMessageTypeError{Type: msgType}
	}
	if err != nil {
		return nil, msgLen, err
	}
	return m, msgLen, nil
}

func decodeHelloBody(body []byte) (*HelloBody, error) {
	const headerLen = 1 + 1 + 1 + 2 + 4 + 4 + 2 + 2 + 2 + 2
	if len(body) < headerLen {
		return nil, MalformedMessageError{Reason: "truncated HELLO body"}
	}
	b := &HelloBody{
		HTime:       DecodeVTime(body[1]),
		Willingness: Willingness(body[2]),
		ANCR:        binary.BigEndian.Uint16(body[3:5]),
		Position: Vec3{
			X: float64(int32(binary.BigEndian.Uint32(body[5:9]))),
			Y: float64(int32(binary.BigEndian.Uint32(body[9:13]))),
			Z: float64(int16(binary.BigEndian.Uint16(body[13:15]))),
		},
		Velocity: Vec3{
			X: float64(int16(binary.BigEndian.Uint16(body[15:17]))),
			Y: float64(int16(binary.BigEndian.Uint16(body[17:19]))),
			Z: float64(int16(binary.BigEndian.Uint16(body[19:21]))),
		},
	}
	if !b.Willingness.Valid() {
		return nil, MalformedMessageError{Reason: "invalid willingness"}
	}

	rest := body[headerLen:]
	for len(rest) > 0 {
		if len(rest) < 4 {
			return nil, MalformedMessageError{Reason: "truncated link message header"}
		}
		code := rest[0]
		linkType := LinkType(code & 0x03)
		neighborType := NeighborType((code >> 2) & 0x03)
		if linkType > LinkLost {
			return nil, MalformedMessageError{Reason: "invalid link-type bits"}
		}
		if neighborType > NeighMpr {
			return nil, MalformedMessageError{Reason: "invalid neighbor-type bits"}
		}
		if linkType == LinkSym && neighborType == NeighNotNeigh {
			return nil, MalformedMessageError{Reason: "SYM_LINK with NOT_NEIGH"}
		}
		lmLen := int(binary.BigEndian.Uint16(rest[2:4]))
		if lmLen < 4 || lmLen > len(rest) || (lmLen-4)%8 != 0 {
			return nil, MalformedMessageError{Reason: "link message length field out of range"}
		}
		lm := HelloLinkMessage{LinkType: linkType, NeighborType: neighborType}
		entries := rest[4:lmLen]
		for i := 0; i+8 <= len(entries); i += 8 {
			lm.Neighbors = append(lm.Neighbors, HelloLinkNeighbor{
				Iface: getAddr4(entries[i:]),
				ETX:   binary.BigEndian.Uint32(entries[i+4:]),
			})
		}
		b.Links = append(b.Links, lm)
		rest = rest[lmLen:]
	}
	return b, nil
}

func decodeTCBody(body []byte) (*TCBody, error) {
	if len(body) < 4 || (len(body)-4)%8 != 0 {
		return nil, MalformedMessageError{Reason: "malformed TC body"}
	}
	b := &TCBody{ANSN: binary.BigEndian.Uint16(body[0:2])}
	for i := 4; i+8 <= len(body); i += 8 {
		b.Neighbors = append(b.Neighbors, TCNeighbor{
			Main: getAddr4(body[i:]),
			ETX:  binary.BigEndian.Uint32(body[i+4:]),
		})
	}
	return b, nil
}

func decodeMIDBody(body []byte) (*MIDBody, error) {
	if len(body)%4 != 0 {
		return nil, MalformedMessageError{Reason: "malformed MID body"}
	}
	b := &MIDBody{}
	for i := 0; i+4 <= len(body); i += 4 {
		b.Interfaces = append(b.Interfaces, getAddr4(body[i:]))
	}
	return b, nil
}

func decodeHNABody(body []byte) (*HNABody, error) {
	if len(body)%8 != 0 {
		return nil, MalformedMessageError{Reason: "malformed HNA body"}
	}
	b := &HNABody{}
	for i := 0; i+8 <= len(body); i += 8 {
		b.Associations = append(b.Associations, HNAAssociation{
			Network: getAddr4(body[i:]),
			Netmask: getAddr4(body[i+4:]),
		})
	}
	return b, nil
}
