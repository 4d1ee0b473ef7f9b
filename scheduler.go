package olsr

import (
	"math/rand"
	"net/netip"
	"time"

	"go.uber.org/zap"
)

// outboxEntry pairs a queued message with the local interface it must be
// transmitted from, since HELLO bodies are interface-specific (§4.2) while
// TC/MID/HNA are broadcast from every participating interface.
type outboxEntry struct {
	iface netip.Addr
	msg   Message
}

// queue appends one message to the outbox and arms the coalescing jitter
// timer if it isn't already running, per §5's "single coalescing timer per
// node" and §4.8's packing rule.
func (e *Engine) queue(iface netip.Addr, msg Message) {
	e.outbox = append(e.outbox, outboxEntry{iface, msg})
	if len(e.outbox) >= MaxMsgs {
		e.flushLocked()
		return
	}
	if !e.jitterArmed {
		e.jitterArmed = true
		jitter := time.Duration(rand.Int63n(int64(e.config.HelloInterval) / 4))
		e.cancelJitter = e.clock.AfterFunc(jitter, e.onJitterFire)
	}
}

func (e *Engine) onJitterFire() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jitterArmed = false
	e.flushLocked()
}

// flushLocked packs the outbox into one packet per destination interface
// and sends each, per §4.8. Caller must hold e.mu.
func (e *Engine) flushLocked() {
	if len(e.outbox) == 0 {
		return
	}
	byIface := make(map[netip.Addr][]Message)
	for _, ent := range e.outbox {
		byIface[ent.iface] = append(byIface[ent.iface], ent.msg)
	}
	e.outbox = e.outbox[:0]

	for iface, msgs := range byIface {
		pkt := &Packet{Seq: e.pktSeq, Messages: msgs}
		e.pktSeq++
		data, err := EncodePacket(pkt)
		if err != nil {
			e.logger.Error("failed to encode outbound packet", zap.Error(err))
			continue
		}
		if e.sender == nil {
			continue
		}
		if err := e.sender.Send(iface, data); err != nil {
			e.logger.Warn("failed to send packet", zap.String("iface", iface.String()), zap.Error(err))
			continue
		}
		for _, m := range msgs {
			e.metrics.observeSent(m.Type.String())
		}
	}
}

// queueHelloAck builds and queues the HELLO-ACK owed immediately after
// processing one HELLO, per §4.3's "on HELLO-ACK send" rule.
func (e *Engine) queueHelloAck(localIface, senderIface netip.Addr) {
	msg := Message{
		Type:       MsgHelloAck,
		VTime:      2 * e.config.HelloInterval,
		Originator: e.self,
		TTL:        1,
		HopCount:   0,
		Seq:        e.pktSeq,
		Body:       &HelloAckBody{ReceiverIface: localIface},
	}
	e.queue(localIface, msg)
}

// scheduleExpiry arms a recurring housekeeping timer that re-checks every
// tuple's expiry and, if a neighbor lost its last link, re-elects MPRs and
// rebuilds the routing table. This generalizes §4.3 step 8's per-tuple on_expire
// scheduling (one timer per link) into a single periodic sweep, which is
// simpler to reason about and still satisfies §4.7's "on link-tuple removal
// past expiry ... invoke MPR election and Route recomputation" within one
// HELLO interval of latency.
func (e *Engine) scheduleExpiry() {
	var fire func()
	fire = func() {
		e.mu.Lock()
		now := e.clock.Now()
		if lost, _ := e.repo.ExpireAll(now); len(lost) > 0 {
			e.recomputeLocked(now)
		}
		e.mu.Unlock()
		cancel := e.clock.AfterFunc(e.config.HelloInterval, fire)
		e.addStopFn(cancel)
	}
	cancel := e.clock.AfterFunc(e.config.HelloInterval, fire)
	e.addStopFn(cancel)
}

// scheduleHello arms the recurring HELLO timer (§4.8).
func (e *Engine) scheduleHello() {
	var fire func()
	fire = func() {
		e.mu.Lock()
		now := e.clock.Now()
		for iface := range e.ifaces {
			e.queue(iface, e.buildHello(iface, now))
		}
		e.mu.Unlock()
		cancel := e.clock.AfterFunc(e.config.HelloInterval, fire)
		e.addStopFn(cancel)
	}
	cancel := e.clock.AfterFunc(e.config.HelloInterval, fire)
	e.addStopFn(cancel)
}

// buildHello assembles the HELLO body for one local interface from the
// current link set, per §4.2/§4.8. Caller must hold e.mu.
func (e *Engine) buildHello(iface netip.Addr, now time.Time) Message {
	var links []HelloLinkMessage
	for _, lt := range e.repo.Links() {
		if lt.Local != iface {
			continue
		}
		linkType := LinkAsym
		switch {
		case lt.SymExpiry.After(now):
			linkType = LinkSym
		case !lt.SymExpiry.IsZero() && lt.AsymExpiry.After(now):
			linkType = LinkLost
		}

		neighborMain := e.repo.GetMainAddress(lt.Neighbor)
		neighborType := NeighNotNeigh
		if n, ok := e.repo.FindNeighbor(neighborMain); ok && n.Status == StatusSym {
			if e.repo.IsMpr(neighborMain) {
				neighborType = NeighMpr
			} else {
				neighborType = NeighSym
			}
		}

		etx := uint32(SaturationETX)
		if fwd, ok := e.repo.FindLinkQos(iface, lt.Neighbor); ok {
			fwd.SendHelloCount++
			e.repo.UpsertLinkQos(fwd)
			etx = uint32(fwd.ETX)
		}

		links = append(links, HelloLinkMessage{
			LinkType:     linkType,
			NeighborType: neighborType,
			Neighbors:    []HelloLinkNeighbor{{Iface: lt.Neighbor, ETX: etx}},
		})
	}

	pos, vel := e.mobility.PositionVelocity()
	body := HelloBody{
		HTime:       2 * e.config.HelloInterval,
		Willingness: e.config.Willingness,
		ANCR:        e.ancr.value(now, time.Duration(AncrWindowMultiplier)*e.config.HelloInterval),
		Position:    pos,
		Velocity:    vel,
		Links:       links,
	}
	return Message{
		Type:       MsgHello,
		VTime:      2 * e.config.HelloInterval,
		Originator: e.self,
		TTL:        1,
		Seq:        e.pktSeq,
		Body:       &body,
	}
}

// scheduleTC arms the recurring TC timer (§4.8): only emitted while our
// MPR-selector set is non-empty.
func (e *Engine) scheduleTC() {
	var fire func()
	fire = func() {
		e.mu.Lock()
		now := e.clock.Now()
		selectors := e.repo.MprSelectors()
		if len(selectors) > 0 {
			neighbors := make([]TCNeighbor, 0, len(selectors))
			for _, sel := range selectors {
				best := 0.0
				for iface := range e.ifaces {
					fwd, hasFwd := e.repo.FindLinkQos(iface, sel.Selector)
					rev, hasRev := e.repo.FindLinkQos(sel.Selector, iface)
					if hasFwd && hasRev {
						if v := fwd.ETX * rev.ETX; v > best {
							best = v
						}
					}
				}
				neighbors = append(neighbors, TCNeighbor{Main: sel.Selector, ETX: uint32(best)})
			}
			msg := Message{
				Type:       MsgTC,
				VTime:      e.config.TcInterval,
				Originator: e.self,
				TTL:        255,
				Seq:        e.pktSeq,
				Body:       &TCBody{ANSN: e.ansn, Neighbors: neighbors},
			}
			for iface := range e.ifaces {
				e.queue(iface, msg)
			}
		}
		e.mu.Unlock()
		cancel := e.clock.AfterFunc(e.config.TcInterval, fire)
		e.addStopFn(cancel)
	}
	cancel := e.clock.AfterFunc(e.config.TcInterval, fire)
	e.addStopFn(cancel)
}

// scheduleMID arms the recurring MID timer (§4.8): only emitted when the
// node has 2 or more participating interfaces.
func (e *Engine) scheduleMID() {
	var doFire func()
	doFire = func() {
		e.mu.Lock()
		if len(e.ifaces) >= 2 {
			ifaceList := make([]netip.Addr, 0, len(e.ifaces))
			for i := range e.ifaces {
				if i == e.self {
					continue
				}
				ifaceList = append(ifaceList, i)
			}
			msg := Message{
				Type:       MsgMID,
				VTime:      3 * e.config.MidInterval,
				Originator: e.self,
				TTL:        255,
				Seq:        e.pktSeq,
				Body:       &MIDBody{Interfaces: ifaceList},
			}
			for iface := range e.ifaces {
				e.queue(iface, msg)
			}
		}
		e.mu.Unlock()
		cancel := e.clock.AfterFunc(e.config.MidInterval, doFire)
		e.addStopFn(cancel)
	}
	cancel := e.clock.AfterFunc(e.config.MidInterval, doFire)
	e.addStopFn(cancel)
}

// scheduleHNA arms the recurring HNA timer (§4.8): only emitted when there
// are local HNA associations.
func (e *Engine) scheduleHNA() {
	var fire func()
	fire = func() {
		e.mu.Lock()
		if len(e.localHNA) > 0 {
			assocs := make([]HNAAssociation, 0, len(e.localHNA))
			for prefix := range e.localHNA {
				assocs = append(assocs, HNAAssociation{Network: prefix.Addr(), Netmask: bitsToMask(prefix.Bits())})
			}
			msg := Message{
				Type:       MsgHNA,
				VTime:      3 * e.config.HnaInterval,
				Originator: e.self,
				TTL:        255,
				Seq:        e.pktSeq,
				Body:       &HNABody{Associations: assocs},
			}
			for iface := range e.ifaces {
				e.queue(iface, msg)
			}
		}
		e.mu.Unlock()
		cancel := e.clock.AfterFunc(e.config.HnaInterval, fire)
		e.addStopFn(cancel)
	}
	cancel := e.clock.AfterFunc(e.config.HnaInterval, fire)
	e.addStopFn(cancel)
}

// bitsToMask converts a CIDR prefix length back to a dotted-quad netmask
// address for the wire HNA encoding (§4.2).
func bitsToMask(bits int) netip.Addr {
	var b [4]byte
	for i := 0; i < bits; i++ {
		b[i/8] |= 0x80 >> uint(i%8)
	}
	return netip.AddrFrom4(b)
}

// forwardIfMprFlooded applies the default MPR-flooding rule of §4.8 to a
// received TC/MID/HNA message: forward once, via every local interface,
// iff the sender is a known MPR-selector and the message hasn't already
// been retransmitted. ingress is the local interface the message arrived
// on, recorded in the DuplicateTuple's ReceivedOn list per §3/§4.8 so a
// later copy of the same (origin, seq) arriving on a different interface
// can still be recognized as already seen.
func (e *Engine) forwardIfMprFlooded(senderMain, ingress netip.Addr, msg Message) {
	now := e.clock.Now()
	dup, exists := e.repo.FindDuplicate(msg.Originator, msg.Seq)
	if !exists {
		dup = DuplicateTuple{Origin: msg.Originator, Seq: msg.Seq}
	}
	alreadyReceivedOnIngress := false
	for _, i := range dup.ReceivedOn {
		if i == ingress {
			alreadyReceivedOnIngress = true
			break
		}
	}
	if !alreadyReceivedOnIngress {
		dup.ReceivedOn = append(dup.ReceivedOn, ingress)
	}
	dup.Expiry = now.Add(DupHoldTime)

	if msg.TTL <= 1 {
		e.repo.UpsertDuplicate(dup)
		return
	}
	if _, isSelector := e.repo.FindMprSelector(senderMain); !isSelector {
		e.repo.UpsertDuplicate(dup)
		return
	}
	if dup.Retransmitted {
		e.repo.UpsertDuplicate(dup)
		return
	}
	dup.Retransmitted = true
	e.repo.UpsertDuplicate(dup)

	fwd := msg
	fwd.TTL--
	fwd.HopCount++
	for iface := range e.ifaces {
		e.queue(iface, fwd)
	}
}
