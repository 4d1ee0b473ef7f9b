package olsr

import (
	"net/netip"
	"testing"
	"time"
)

func TestVTimeRoundTrip(t *testing.T) {
	cases := []time.Duration{
		0,
		time.Second,
		2 * time.Second,
		5 * time.Second,
		30 * time.Second,
	}
	for _, d := range cases {
		encoded := EncodeVTime(d)
		decoded := DecodeVTime(encoded)
		// VTime is lossy (mantissa/exponent), so round-trip only needs to
		// land within one quantization step, not exactly reproduce d.
		diff := decoded - d
		if diff < 0 {
			diff = -diff
		}
		if diff > d/4+time.Second {
			t.Errorf("EncodeVTime(%s)->DecodeVTime = %s, too far off", d, decoded)
		}
	}
}

func mustAddr(t *testing.T, s string) netip.Addr {
	t.Helper()
	a, err := netip.ParseAddr(s)
	if err != nil {
		t.Fatalf("ParseAddr(%q): %v", s, err)
	}
	return a
}

func TestHelloRoundTrip(t *testing.T) {
	self := mustAddr(t, "10.1.1.1")
	peer := mustAddr(t, "10.1.1.2")

	for _, etx := range []uint32{1, 2, 50, 100 * 100} {
		for _, ancr := range []uint16{0, 1, 65535} {
			hello := HelloBody{
				HTime:       4 * time.Second,
				Willingness: WillDefault,
				ANCR:        ancr,
				Position:    Vec3{X: 1.5, Y: -2.5, Z: 3.5},
				Velocity:    Vec3{X: -1, Y: 0, Z: 2},
				Links: []HelloLinkMessage{
					{
						LinkType:     LinkSym,
						NeighborType: NeighMpr,
						Neighbors:    []HelloLinkNeighbor{{Iface: peer, ETX: etx}},
					},
				},
			}
			msg := Message{
				Type:       MsgHello,
				VTime:      4 * time.Second,
				Originator: self,
				TTL:        1,
				Seq:        7,
				Body:       &hello,
			}
			pkt := &Packet{Seq: 42, Messages: []Message{msg}}

			data, err := EncodePacket(pkt)
			if err != nil {
				t.Fatalf("EncodePacket: %v", err)
			}

			var dropped []error
			decoded, err := DecodePacket(data, func(e error) { dropped = append(dropped, e) })
			if err != nil {
				t.Fatalf("DecodePacket: %v", err)
			}
			if len(dropped) != 0 {
				t.Fatalf("unexpected drops: %v", dropped)
			}
			if len(decoded.Messages) != 1 {
				t.Fatalf("expected 1 message, got %d", len(decoded.Messages))
			}
			bodyPtr, ok := decoded.Messages[0].Body.(*HelloBody)
			if !ok {
				t.Fatalf("decoded body is %T, want *HelloBody", decoded.Messages[0].Body)
			}
			got := *bodyPtr
			if got.Willingness != hello.Willingness || got.ANCR != hello.ANCR {
				t.Errorf("got %+v, want %+v", got, hello)
			}
			if len(got.Links) != 1 || len(got.Links[0].Neighbors) != 1 {
				t.Fatalf("link structure mismatch: %+v", got.Links)
			}
			if got.Links[0].Neighbors[0].ETX != etx {
				t.Errorf("etx = %d, want %d", got.Links[0].Neighbors[0].ETX, etx)
			}
		}
	}
}

func TestDecodePacketMalformedDrops(t *testing.T) {
	_, err := DecodePacket([]byte{0x00}, func(error) {})
	if err == nil {
		t.Fatal("expected error decoding truncated packet header")
	}
}
