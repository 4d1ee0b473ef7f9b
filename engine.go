package olsr

import (
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Sender transmits an already-encoded packet out of one local interface.
// Transport implements this for production use; simnet implements it with
// an in-process deliver-to-peer call for tests.
type Sender interface {
	Send(iface netip.Addr, data []byte) error
}

// Engine is one OLSR node: the tuple repository plus every periodic and
// reactive behavior bound to a single main address and set of local
// interfaces. It generalizes the teacher's Node (which owned its maps
// directly and ran one ticker loop) to the full extended protocol, while
// keeping the same "one handler at a time" discipline (§5): every exported
// mutating method and timer handler takes e.mu, so handlers never overlap
// (simnet additionally drives engines from a single goroutine under a
// VirtualClock).
type Engine struct {
	self   netip.Addr
	ifaces map[netip.Addr]struct{}

	config Config
	clock  Clock
	mobility Mobility
	sender Sender

	logger  *zap.Logger
	metrics *Metrics

	mu           sync.Mutex
	repo         *Repository
	ancr         ancrTracker
	ansn         uint16
	pktSeq       uint16
	outbox       []Message
	jitterArmed  bool
	cancelJitter func() bool

	localHNA map[netip.Prefix]netip.Addr

	routingTable atomic.Pointer[RoutingTable]

	stopFns []func() bool
}

// Self returns the engine's main address.
func (e *Engine) Self() netip.Addr { return e.self }

// NewEngine constructs an engine for the given main address, bound to the
// main address plus the listed additional local interface addresses (self is
// always included, whether or not it is listed). sender, mobility and clock
// may be nil: a nil sender sends nothing, and StaticMobility{} and
// RealClock{} are used in place of the other two.
func NewEngine(self netip.Addr, ifaces []netip.Addr, cfg Config, clock Clock, sender Sender, mobility Mobility, logger *zap.Logger, metrics *Metrics) *Engine {
	cfg.ApplyDefaults()
	ifaceSet := make(map[netip.Addr]struct{}, len(ifaces)+1)
	ifaceSet[self] = struct{}{}
	for _, i := range ifaces {
		ifaceSet[i] = struct{}{}
	}
	if mobility == nil {
		mobility = StaticMobility{}
	}
	if clock == nil {
		clock = RealClock{}
	}
	e := &Engine{
		self:     self,
		ifaces:   ifaceSet,
		config:   cfg,
		clock:    clock,
		mobility: mobility,
		sender:   sender,
		logger:   componentLogger(logger, "olsr.engine", self),
		metrics:  metrics,
		repo:     NewRepository(),
		localHNA: make(map[netip.Prefix]netip.Addr),
	}
	for i := range ifaceSet {
		e.repo.UpsertIfaceAssoc(IfaceAssocTuple{Iface: i, Main: self})
	}
	e.routingTable.Store(newRoutingTable())
	return e
}

// Start arms every periodic timer (HELLO, TC, MID, HNA) per §4.8/§5. It is
// the generalization of the teacher's single ticker-driven Run loop to four
// independently-scheduled emissions.
func (e *Engine) Start() {
	e.scheduleHello()
	e.scheduleTC()
	e.scheduleMID()
	e.scheduleHNA()
	e.scheduleExpiry()
}

// Stop cancels every outstanding timer.
func (e *Engine) Stop() {
	e.mu.Lock()
	fns := e.stopFns
	e.stopFns = nil
	e.mu.Unlock()
	for _, stop := range fns {
		stop()
	}
}

func (e *Engine) addStopFn(f func() bool) {
	e.mu.Lock()
	e.stopFns = append(e.stopFns, f)
	e.mu.Unlock()
}

// IngestDatagram decodes and dispatches one received UDP payload, arrived
// on local interface localIface from peer address fromIface. This is the
// single entry point both Transport's read goroutines (which call it
// directly, serialized by e.mu) and simnet's synchronous delivery call into.
func (e *Engine) IngestDatagram(localIface, fromIface netip.Addr, data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	changed := false
	pkt, err := DecodePacket(data, func(derr error) {
		e.metrics.observeDrop("malformed")
		e.logger.Debug("dropped malformed message", zap.Error(derr))
	})
	if err != nil {
		e.metrics.observeDrop("malformed")
		e.logger.Debug("dropped malformed packet", zap.Error(err))
		return
	}

	for _, msg := range pkt.Messages {
		if msg.Originator == e.self {
			e.metrics.observeDrop("self_originated")
			continue
		}
		if msg.TTL == 0 {
			e.metrics.observeDrop("stale")
			continue
		}
		e.metrics.observeReceived(msg.Type.String())
		if e.dispatch(localIface, fromIface, msg, now) {
			changed = true
		}
	}

	if lost, _ := e.repo.ExpireAll(now); len(lost) > 0 {
		changed = true
	}
	if changed {
		e.recomputeLocked(now)
	}
}

// dispatch applies one decoded message to the tuple repository, returning
// whether it could affect MPR election or routing and therefore requires a
// recompute.
func (e *Engine) dispatch(localIface, fromIface netip.Addr, msg Message, now time.Time) bool {
	switch msg.Type {
	case MsgHello:
		bodyPtr, ok := msg.Body.(*HelloBody)
		if !ok {
			e.metrics.observeDrop("malformed")
			return false
		}
		e.handleHello(localIface, fromIface, *bodyPtr, now)
		e.queueHelloAck(localIface, fromIface)
		return true

	case MsgHelloAck:
		bodyPtr, ok := msg.Body.(*HelloAckBody)
		if !ok {
			e.metrics.observeDrop("malformed")
			return false
		}
		if _, isOurs := e.ifaces[bodyPtr.ReceiverIface]; !isOurs {
			return false
		}
		HandleHelloAck(e.repo, bodyPtr.ReceiverIface, fromIface, now, 2*e.config.HelloInterval)
		return true

	case MsgTC:
		bodyPtr, ok := msg.Body.(*TCBody)
		if !ok {
			e.metrics.observeDrop("malformed")
			return false
		}
		body := *bodyPtr
		mainNeighbor := e.repo.GetMainAddress(fromIface)
		if !e.hasSymLinkTo(fromIface) {
			e.metrics.observeDrop("no_sym_link")
			return false
		}
		if HandleTC(e.repo, msg.Originator, body, now, msg.VTime) {
			e.metrics.observeDrop("stale")
			return false
		}
		e.forwardIfMprFlooded(mainNeighbor, localIface, msg)
		return true

	case MsgMID:
		bodyPtr, ok := msg.Body.(*MIDBody)
		if !ok {
			e.metrics.observeDrop("malformed")
			return false
		}
		body := *bodyPtr
		for _, iface := range body.Interfaces {
			e.repo.UpsertIfaceAssoc(IfaceAssocTuple{Iface: iface, Main: msg.Originator, Expiry: now.Add(msg.VTime)})
		}
		mainNeighbor := e.repo.GetMainAddress(fromIface)
		e.forwardIfMprFlooded(mainNeighbor, localIface, msg)
		return true

	case MsgHNA:
		bodyPtr, ok := msg.Body.(*HNABody)
		if !ok {
			e.metrics.observeDrop("malformed")
			return false
		}
		body := *bodyPtr
		for _, a := range body.Associations {
			prefix := netip.PrefixFrom(a.Network, maskToBits(a.Netmask))
			e.repo.UpsertAssociation(AssociationTuple{Gateway: msg.Originator, Network: prefix, Expiry: now.Add(msg.VTime)})
		}
		mainNeighbor := e.repo.GetMainAddress(fromIface)
		e.forwardIfMprFlooded(mainNeighbor, localIface, msg)
		return true

	default:
		e.metrics.observeDrop("unknown_type")
		return false
	}
}

func (e *Engine) hasSymLinkTo(fromIface netip.Addr) bool {
	now := e.clock.Now()
	for iface := range e.ifaces {
		if lt, ok := e.repo.FindLink(iface, fromIface); ok && lt.SymExpiry.After(now) {
			return true
		}
	}
	return false
}

func (e *Engine) handleHello(localIface, fromIface netip.Addr, hello HelloBody, now time.Time) {
	HandleHello(e.repo, &e.ancr, e.mobility, e.config.MaxCommunicationRadius, localIface, fromIface, hello, now)
	originatorMain := e.repo.GetMainAddress(fromIface)
	rebuildNeighborTuple(e.repo, originatorMain, now, hello.Willingness)
	vtime := hello.HTime
	if vtime <= 0 {
		vtime = 2 * e.config.HelloInterval
	}
	ingestTwoHopLinks(e.repo, originatorMain, e.self, hello.Links, now, vtime)
	ingestMprSelector(e.repo, originatorMain, e.ifaces, hello.Links, now, vtime)
}

// recomputeLocked re-elects MPRs and rebuilds the routing table. Caller
// must hold e.mu.
func (e *Engine) recomputeLocked(now time.Time) {
	neighbors := make(map[netip.Addr]NeighborTuple)
	for _, n := range e.repo.Neighbors() {
		neighbors[n.Main] = n
	}
	newSet := ElectMPRs(e.self, neighbors, e.repo.TwoHops())
	oldSet := e.repo.MprSet()
	if !sameSet(oldSet, newSet) {
		e.ansn++
	}
	e.repo.SetMprSet(newSet)

	rt := ComputeRoutingTable(e.self, e.repo)
	e.routingTable.Store(rt)
	e.logger.Debug("routing table changed", zap.Int("size", rt.Size()))
	e.metrics.refreshGauges(e.repo, rt)
}

func sameSet(a, b map[netip.Addr]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// maskToBits converts a dotted-quad netmask address into a CIDR prefix
// length, the wire encoding HNA uses (§4.2) in place of an explicit bit
// count.
func maskToBits(mask netip.Addr) int {
	bits := 0
	if !mask.Is4() {
		return 0
	}
	b := mask.As4()
	for _, octet := range b {
		for o := octet; o != 0; o <<= 1 {
			if o&0x80 != 0 {
				bits++
			} else {
				break
			}
		}
	}
	return bits
}

// RoutingTable returns the current, immutable routing table snapshot.
func (e *Engine) RoutingTable() *RoutingTable {
	return e.routingTable.Load()
}

// GetNeighbors, GetMprSet, GetMprSelectors, GetTwoHopNeighbors and
// GetTopologySet are the read-only accessors of §6.

func (e *Engine) GetNeighbors() []NeighborTuple {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.repo.Neighbors()
}

func (e *Engine) GetMprSet() map[netip.Addr]struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.repo.MprSet()
}

func (e *Engine) GetMprSelectors() []MprSelectorTuple {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.repo.MprSelectors()
}

func (e *Engine) GetTwoHopNeighbors() []TwoHopTuple {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.repo.TwoHops()
}

func (e *Engine) GetTopologySet() []TopologyTuple {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.repo.Topology()
}

func (e *Engine) GetRoutingTableEntries() []Route {
	return e.RoutingTable().Entries()
}

// AddHostNetworkAssociation records a local HNA entry to be advertised in
// our own HNA messages (§6).
func (e *Engine) AddHostNetworkAssociation(network netip.Prefix) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.localHNA[network] = e.self
}

func (e *Engine) RemoveHostNetworkAssociation(network netip.Prefix) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.localHNA, network)
}

// SetRoutingTableAssociation adopts every HNA network route in staticTable
// (its host routes are not adopted) as a local HNA announcement, the mechanism by which non-OLSR routes (e.g. a default
// gateway) are injected into the OLSR domain (§6).
func (e *Engine) SetRoutingTableAssociation(staticTable *RoutingTable) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if staticTable == nil {
		return
	}
	for prefix := range staticTable.hnaRoutes {
		e.localHNA[prefix] = e.self
	}
}
