// Package simnet is an in-process, line-oriented link-state oracle used
// exclusively by this module's own integration tests to drive multiple
// olsr.Engine instances against a scripted, deterministic link-up/down
// schedule. It is the direct descendant of the teacher's
// NetworkTypology/Controller pairing, generalized to connect olsr.Engine
// instances instead of the teacher's own Node type.
package simnet

import (
	"net/netip"
	"time"

	"github.com/anlitiantian/ETX-OLSR"
	"go.uber.org/zap"
)

// Network owns a Topology oracle, a VirtualClock shared by every node, and
// the set of running engines. Network is not itself concurrency-safe: drive it
// from a single goroutine, the same discipline §5 asks of Engine.
type Network struct {
	topology *Topology
	clock    *olsr.VirtualClock
	epoch    time.Time

	nodes map[NodeID]*node
	addrs map[NodeID]netip.Addr
	ids   map[netip.Addr]NodeID
}

type node struct {
	id     NodeID
	addr   netip.Addr
	engine *olsr.Engine
}

// NewNetwork builds an empty Network over the given Topology, with its
// VirtualClock starting at start.
func NewNetwork(topology *Topology, start time.Time) *Network {
	return &Network{
		topology: topology,
		clock:    olsr.NewVirtualClock(start),
		epoch:    start,
		nodes:    make(map[NodeID]*node),
		addrs:    make(map[NodeID]netip.Addr),
		ids:      make(map[netip.Addr]NodeID),
	}
}

// Clock returns the shared virtual clock, so tests can also use it directly
// to build a Mobility trace keyed to the same timeline.
func (net *Network) Clock() *olsr.VirtualClock { return net.clock }

// AddNode constructs an engine for id at addr and registers it with the
// network. mobility may be nil for a stationary node.
func (net *Network) AddNode(id NodeID, addr netip.Addr, cfg olsr.Config, mobility olsr.Mobility, logger *zap.Logger, metrics *olsr.Metrics) *olsr.Engine {
	n := &node{id: id, addr: addr}
	sender := &networkSender{net: net, id: id}
	n.engine = olsr.NewEngine(addr, nil, cfg, net.clock, sender, mobility, logger, metrics)
	net.nodes[id] = n
	net.addrs[id] = addr
	net.ids[addr] = id
	return n.engine
}

// Engine returns the running engine for id, if any.
func (net *Network) Engine(id NodeID) *olsr.Engine {
	if n, ok := net.nodes[id]; ok {
		return n.engine
	}
	return nil
}

// Start arms every node's periodic timers.
func (net *Network) Start() {
	for _, n := range net.nodes {
		n.engine.Start()
	}
}

// Advance moves the shared clock forward, running every timer callback (and
// therefore every engine's periodic sends and the deliveries they trigger)
// scheduled in between.
func (net *Network) Advance(d time.Duration) {
	net.clock.Advance(d)
}

// elapsed returns how much simulated network time has passed since the
// Network's epoch, the same time.Duration vocabulary the Topology's
// link-state script is now expressed in.
func (net *Network) elapsed() time.Duration {
	return net.clock.Now().Sub(net.epoch)
}

// deliver hands a just-sent datagram to every other node the Topology
// currently reports as reachable from sender, synchronously — there is no
// simulated propagation delay, matching the teacher's instantaneous
// Controller/NetworkTypology model.
func (net *Network) deliver(sender NodeID, fromIface netip.Addr, data []byte) error {
	at := net.elapsed()
	for id, n := range net.nodes {
		if id == sender {
			continue
		}
		if !net.topology.Query(QueryMsg{fromNode: sender, toNode: id, at: at}) {
			continue
		}
		n.engine.IngestDatagram(n.addr, fromIface, data)
	}
	return nil
}

// networkSender implements olsr.Sender by routing through the owning
// Network's link-state oracle instead of a real socket.
type networkSender struct {
	net *Network
	id  NodeID
}

func (s *networkSender) Send(iface netip.Addr, data []byte) error {
	return s.net.deliver(s.id, iface, data)
}
