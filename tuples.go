package olsr

import (
	"net/netip"
	"time"
)

// LinkTuple is the raw per-interface link state derived from HELLO receipt
// (§3). expiry is always >= max(symExpiry, asymExpiry).
type LinkTuple struct {
	Local, Neighbor netip.Addr
	SymExpiry       time.Time
	AsymExpiry      time.Time
	Expiry          time.Time
	ETX             float64
}

type linkKey struct{ local, neighbor netip.Addr }

// LinkQosTuple is the directional link-quality tuple: From -> To. Two
// instances exist per live link, one per direction, tracked independently
// because ETX is asymmetric.
type LinkQosTuple struct {
	From, To        netip.Addr
	SendHelloCount  int
	RecvAckCount    int
	ETX             float64
	Expiry          time.Time
	RelPos, RelVel  Vec3
	LHT             float64
	LSD             float64
	ANCR            uint16
	DistanceHistory []float64
}

type linkQosKey struct{ from, to netip.Addr }

// NeighborTuple is the derived 1-hop neighbor state (§3, invariant 2).
type NeighborTuple struct {
	Main        netip.Addr
	Status      NeighborStatus
	Willingness Willingness
}

// TwoHopTuple records that Neighbor's HELLO advertised TwoHop as SYM/MPR.
type TwoHopTuple struct {
	Neighbor netip.Addr
	TwoHop   netip.Addr
	Expiry   time.Time
}

type twoHopKey struct{ neighbor, twoHop netip.Addr }

// MprSelectorTuple marks a neighbor that has selected us as one of its MPRs.
type MprSelectorTuple struct {
	Selector netip.Addr
	Expiry   time.Time
}

// TopologyTuple is one (dest, last) edge advertised by a TC, at a given
// ANSN (§3, invariant 5).
type TopologyTuple struct {
	Dest   netip.Addr
	Last   netip.Addr
	Seq    uint16
	Expiry time.Time
	ETX    float64
}

type topologyKey struct{ dest, last netip.Addr }

// DuplicateTuple suppresses re-flooding the same (origin, seq) message more
// than once.
type DuplicateTuple struct {
	Origin        netip.Addr
	Seq           uint16
	Retransmitted bool
	ReceivedOn    []netip.Addr
	Expiry        time.Time
}

type duplicateKey struct {
	origin netip.Addr
	seq    uint16
}

// IfaceAssocTuple binds a secondary interface address to its node's main
// address, learned from MID. A zero Expiry marks a never-expiring local
// entry for one of our own interfaces.
type IfaceAssocTuple struct {
	Iface  netip.Addr
	Main   netip.Addr
	Expiry time.Time
}

// AssociationTuple is one externally reachable network learned from HNA.
type AssociationTuple struct {
	Gateway netip.Addr
	Network netip.Prefix
	Expiry  time.Time
}

type associationKey struct {
	gateway netip.Addr
	network netip.Prefix
}

// Repository is the authoritative in-memory store of all protocol tuple
// sets (§4.1). It performs no I/O and holds no goroutines of its own; it is
// a private mutable resource of whichever single handler is running, per
// §5's concurrency discipline. Methods return copies (find) or snapshots so
// callers never hold a pointer that outlives the processing step.
type Repository struct {
	links        map[linkKey]LinkTuple
	linkQos      map[linkQosKey]LinkQosTuple
	neighbors    map[netip.Addr]NeighborTuple
	twoHop       map[twoHopKey]TwoHopTuple
	mprSet       map[netip.Addr]struct{}
	mprSelectors map[netip.Addr]MprSelectorTuple
	topology     map[topologyKey]TopologyTuple
	duplicates   map[duplicateKey]DuplicateTuple
	ifaceAssoc   map[netip.Addr]IfaceAssocTuple
	associations map[associationKey]AssociationTuple
}

// NewRepository returns an empty tuple repository.
func NewRepository() *Repository {
	return &Repository{
		links:        make(map[linkKey]LinkTuple),
		linkQos:      make(map[linkQosKey]LinkQosTuple),
		neighbors:    make(map[netip.Addr]NeighborTuple),
		twoHop:       make(map[twoHopKey]TwoHopTuple),
		mprSet:       make(map[netip.Addr]struct{}),
		mprSelectors: make(map[netip.Addr]MprSelectorTuple),
		topology:     make(map[topologyKey]TopologyTuple),
		duplicates:   make(map[duplicateKey]DuplicateTuple),
		ifaceAssoc:   make(map[netip.Addr]IfaceAssocTuple),
		associations: make(map[associationKey]AssociationTuple),
	}
}

// --- LinkTuple ---

func (r *Repository) FindLink(local, neighbor netip.Addr) (LinkTuple, bool) {
	t, ok := r.links[linkKey{local, neighbor}]
	return t, ok
}

func (r *Repository) UpsertLink(t LinkTuple) {
	r.links[linkKey{t.Local, t.Neighbor}] = t
}

func (r *Repository) EraseLink(local, neighbor netip.Addr) {
	delete(r.links, linkKey{local, neighbor})
}

func (r *Repository) LinksByNeighbor(main netip.Addr, mainAddrOf func(netip.Addr) netip.Addr) []LinkTuple {
	var out []LinkTuple
	for _, t := range r.links {
		if mainAddrOf(t.Neighbor) == main {
			out = append(out, t)
		}
	}
	return out
}

func (r *Repository) Links() []LinkTuple {
	out := make([]LinkTuple, 0, len(r.links))
	for _, t := range r.links {
		out = append(out, t)
	}
	return out
}

// --- LinkQosTuple ---

func (r *Repository) FindLinkQos(from, to netip.Addr) (LinkQosTuple, bool) {
	t, ok := r.linkQos[linkQosKey{from, to}]
	return t, ok
}

func (r *Repository) UpsertLinkQos(t LinkQosTuple) {
	r.linkQos[linkQosKey{t.From, t.To}] = t
}

func (r *Repository) EraseLinkQos(from, to netip.Addr) {
	delete(r.linkQos, linkQosKey{from, to})
}

// --- NeighborTuple ---

func (r *Repository) FindNeighbor(main netip.Addr) (NeighborTuple, bool) {
	t, ok := r.neighbors[main]
	return t, ok
}

func (r *Repository) UpsertNeighbor(t NeighborTuple) {
	r.neighbors[t.Main] = t
}

func (r *Repository) EraseNeighbor(main netip.Addr) {
	delete(r.neighbors, main)
}

func (r *Repository) Neighbors() []NeighborTuple {
	out := make([]NeighborTuple, 0, len(r.neighbors))
	for _, t := range r.neighbors {
		out = append(out, t)
	}
	return out
}

// --- TwoHopTuple ---

func (r *Repository) FindTwoHop(neighbor, twoHop netip.Addr) (TwoHopTuple, bool) {
	t, ok := r.twoHop[twoHopKey{neighbor, twoHop}]
	return t, ok
}

func (r *Repository) UpsertTwoHop(t TwoHopTuple) {
	r.twoHop[twoHopKey{t.Neighbor, t.TwoHop}] = t
}

func (r *Repository) EraseTwoHop(neighbor, twoHop netip.Addr) {
	delete(r.twoHop, twoHopKey{neighbor, twoHop})
}

func (r *Repository) EraseTwoHopByNeighbor(neighbor netip.Addr) {
	for k := range r.twoHop {
		if k.neighbor == neighbor {
			delete(r.twoHop, k)
		}
	}
}

func (r *Repository) TwoHops() []TwoHopTuple {
	out := make([]TwoHopTuple, 0, len(r.twoHop))
	for _, t := range r.twoHop {
		out = append(out, t)
	}
	return out
}

// --- MprSet ---

func (r *Repository) SetMprSet(m map[netip.Addr]struct{}) {
	r.mprSet = m
}

func (r *Repository) MprSet() map[netip.Addr]struct{} {
	out := make(map[netip.Addr]struct{}, len(r.mprSet))
	for k := range r.mprSet {
		out[k] = struct{}{}
	}
	return out
}

func (r *Repository) IsMpr(main netip.Addr) bool {
	_, ok := r.mprSet[main]
	return ok
}

// --- MprSelectorTuple ---

func (r *Repository) FindMprSelector(selector netip.Addr) (MprSelectorTuple, bool) {
	t, ok := r.mprSelectors[selector]
	return t, ok
}

func (r *Repository) UpsertMprSelector(t MprSelectorTuple) {
	r.mprSelectors[t.Selector] = t
}

func (r *Repository) EraseMprSelector(selector netip.Addr) {
	delete(r.mprSelectors, selector)
}

func (r *Repository) MprSelectors() []MprSelectorTuple {
	out := make([]MprSelectorTuple, 0, len(r.mprSelectors))
	for _, t := range r.mprSelectors {
		out = append(out, t)
	}
	return out
}

// --- TopologyTuple ---

func (r *Repository) FindTopology(dest, last netip.Addr) (TopologyTuple, bool) {
	t, ok := r.topology[topologyKey{dest, last}]
	return t, ok
}

func (r *Repository) UpsertTopology(t TopologyTuple) {
	r.topology[topologyKey{t.Dest, t.Last}] = t
}

func (r *Repository) EraseTopology(dest, last netip.Addr) {
	delete(r.topology, topologyKey{dest, last})
}

func (r *Repository) TopologyByLast(last netip.Addr) []TopologyTuple {
	var out []TopologyTuple
	for k, t := range r.topology {
		if k.last == last {
			out = append(out, t)
		}
	}
	return out
}

func (r *Repository) Topology() []TopologyTuple {
	out := make([]TopologyTuple, 0, len(r.topology))
	for _, t := range r.topology {
		out = append(out, t)
	}
	return out
}

// --- DuplicateTuple ---

func (r *Repository) FindDuplicate(origin netip.Addr, seq uint16) (DuplicateTuple, bool) {
	t, ok := r.duplicates[duplicateKey{origin, seq}]
	return t, ok
}

func (r *Repository) UpsertDuplicate(t DuplicateTuple) {
	r.duplicates[duplicateKey{t.Origin, t.Seq}] = t
}

func (r *Repository) EraseDuplicate(origin netip.Addr, seq uint16) {
	delete(r.duplicates, duplicateKey{origin, seq})
}

// --- IfaceAssocTuple ---

func (r *Repository) FindIfaceAssoc(iface netip.Addr) (IfaceAssocTuple, bool) {
	t, ok := r.ifaceAssoc[iface]
	return t, ok
}

func (r *Repository) UpsertIfaceAssoc(t IfaceAssocTuple) {
	r.ifaceAssoc[t.Iface] = t
}

func (r *Repository) EraseIfaceAssoc(iface netip.Addr) {
	delete(r.ifaceAssoc, iface)
}

func (r *Repository) IfaceAssocs() []IfaceAssocTuple {
	out := make([]IfaceAssocTuple, 0, len(r.ifaceAssoc))
	for _, t := range r.ifaceAssoc {
		out = append(out, t)
	}
	return out
}

// GetMainAddress resolves an interface address to its owning node's main
// address via the interface-association set, falling back to the input
// address when no association is known (§3).
func (r *Repository) GetMainAddress(iface netip.Addr) netip.Addr {
	if t, ok := r.ifaceAssoc[iface]; ok {
		return t.Main
	}
	return iface
}

// --- AssociationTuple ---

func (r *Repository) FindAssociation(gateway netip.Addr, network netip.Prefix) (AssociationTuple, bool) {
	t, ok := r.associations[associationKey{gateway, network}]
	return t, ok
}

func (r *Repository) UpsertAssociation(t AssociationTuple) {
	r.associations[associationKey{t.Gateway, t.Network}] = t
}

func (r *Repository) EraseAssociation(gateway netip.Addr, network netip.Prefix) {
	delete(r.associations, associationKey{gateway, network})
}

func (r *Repository) Associations() []AssociationTuple {
	out := make([]AssociationTuple, 0, len(r.associations))
	for _, t := range r.associations {
		out = append(out, t)
	}
	return out
}

// ExpireAll walks every tuple set and erases anything past its expiry as of
// now, returning the main addresses of any neighbors that lost their last
// link. Callers use this list only to decide whether to re-elect MPRs and
// rebuild the routing table: two-hop and MPR-selector tuples anchored on a
// lost neighbor are not erased with it (they go when their own expiry
// passes), and no neighbor-loss event is recorded for ANCR. This is the
// idempotent re-check pattern of §5/§9: every timer
// handler re-derives what is actually expired rather than trusting the
// instant it was scheduled for.
func (r *Repository) ExpireAll(now time.Time) (lostNeighbors []netip.Addr, mainAddrOf func(netip.Addr) netip.Addr) {
	mainAddrOf = r.GetMainAddress
	touched := make(map[netip.Addr]struct{})

	for k, t := range r.links {
		if !t.Expiry.After(now) {
			touched[mainAddrOf(t.Neighbor)] = struct{}{}
			delete(r.links, k)
		}
	}
	for k, t := range r.linkQos {
		if !t.Expiry.After(now) {
			delete(r.linkQos, k)
		}
	}
	for k, t := range r.twoHop {
		if !t.Expiry.After(now) {
			delete(r.twoHop, k)
		}
	}
	for k, t := range r.mprSelectors {
		if !t.Expiry.After(now) {
			delete(r.mprSelectors, k)
		}
	}
	for k, t := range r.topology {
		if !t.Expiry.After(now) {
			delete(r.topology, k)
		}
	}
	for k, t := range r.duplicates {
		if !t.Expiry.After(now) {
			delete(r.duplicates, k)
		}
	}
	for k, t := range r.ifaceAssoc {
		if !t.Expiry.IsZero() && !t.Expiry.After(now) {
			delete(r.ifaceAssoc, k)
		}
	}
	for k, t := range r.associations {
		if !t.Expiry.After(now) {
			delete(r.associations, k)
		}
	}

	for main := range touched {
		if !r.hasLiveLinkTo(main, mainAddrOf) {
			lostNeighbors = append(lostNeighbors, main)
			delete(r.neighbors, main)
		}
	}
	return lostNeighbors, mainAddrOf
}

func (r *Repository) hasLiveLinkTo(main netip.Addr, mainAddrOf func(netip.Addr) netip.Addr) bool {
	for _, t := range r.links {
		if mainAddrOf(t.Neighbor) == main {
			return true
		}
	}
	return false
}
