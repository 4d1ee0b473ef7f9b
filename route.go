package olsr

import (
	"net/netip"
)

// Route is one routing-table entry: how to reach Dest.
type Route struct {
	Dest     netip.Addr
	NextHop  netip.Addr
	Iface    netip.Addr
	Distance int
	ETX      float64
}

// RoutingTable is the immutable result of one Route Computer run (§4.6). A
// *RoutingTable is never mutated after construction; the engine publishes
// new tables by swapping a pointer (§5), so concurrent readers never
// observe a half-built table.
type RoutingTable struct {
	routes    map[netip.Addr]Route
	hnaRoutes map[netip.Prefix]Route
}

func newRoutingTable() *RoutingTable {
	return &RoutingTable{
		routes:    make(map[netip.Addr]Route),
		hnaRoutes: make(map[netip.Prefix]Route),
	}
}

// Lookup returns the host route for dest, if any.
func (rt *RoutingTable) Lookup(dest netip.Addr) (Route, bool) {
	if rt == nil {
		return Route{}, false
	}
	r, ok := rt.routes[dest]
	return r, ok
}

// LookupHNA returns the narrowest HNA network route covering dest, if any.
func (rt *RoutingTable) LookupHNA(dest netip.Addr) (Route, bool) {
	if rt == nil {
		return Route{}, false
	}
	var best Route
	bestBits := -1
	found := false
	for prefix, r := range rt.hnaRoutes {
		if prefix.Contains(dest) && prefix.Bits() > bestBits {
			best, bestBits, found = r, prefix.Bits(), true
		}
	}
	return best, found
}

// Size returns the number of host routes, per the olsr_routing_table_size
// metric and the RoutingTableChanged(size) observation of §4.6.
func (rt *RoutingTable) Size() int {
	if rt == nil {
		return 0
	}
	return len(rt.routes)
}

// Entries returns a snapshot of every host route.
func (rt *RoutingTable) Entries() []Route {
	if rt == nil {
		return nil
	}
	out := make([]Route, 0, len(rt.routes))
	for _, r := range rt.routes {
		out = append(out, r)
	}
	return out
}

const etxUnknownPenalty = 1.0
const etxSaturationCap = SaturationETX * SaturationETX

// ComputeRoutingTable rebuilds the routing table from scratch by relaxing
// the three-level graph (neighbors -> two-hop -> topology) per §4.6. It is
// invoked exactly once after every batch of tuple mutations triggered by
// one incoming packet (§4.1), never incrementally.
func ComputeRoutingTable(self netip.Addr, repo *Repository) *RoutingTable {
	rt := newRoutingTable()

	// Step 2: 1-hop neighbors.
	for _, n := range repo.Neighbors() {
		if n.Status != StatusSym {
			continue
		}
		links := repo.LinksByNeighbor(n.Main, repo.GetMainAddress)
		bestETX := -1.0
		var bestLocal, bestNeighbor netip.Addr
		for _, l := range links {
			fwd, hasFwd := repo.FindLinkQos(l.Local, l.Neighbor)
			rev, hasRev := repo.FindLinkQos(l.Neighbor, l.Local)
			if !hasFwd || !hasRev {
				continue
			}
			etx := fwd.ETX * rev.ETX
			if bestETX < 0 || etx < bestETX {
				bestETX = etx
				bestLocal, bestNeighbor = l.Local, l.Neighbor
			}
		}
		if bestETX < 0 {
			continue
		}
		route := Route{Dest: bestNeighbor, NextHop: bestNeighbor, Iface: bestLocal, Distance: 1, ETX: bestETX}
		rt.routes[bestNeighbor] = route
		if bestNeighbor != n.Main {
			mainRoute := route
			mainRoute.Dest = n.Main
			rt.routes[n.Main] = mainRoute
		}
	}

	// Step 3: 2-hop neighbors.
	for _, t := range repo.TwoHops() {
		if t.TwoHop == self {
			continue
		}
		if _, alreadyRouted := rt.routes[t.TwoHop]; alreadyRouted {
			continue
		}
		n, ok := repo.FindNeighbor(t.Neighbor)
		if !ok || n.Willingness == WillNever {
			continue
		}
		entry, ok := rt.routes[t.Neighbor]
		if !ok {
			continue
		}
		edgeETX := etxUnknownPenalty
		if fwd, hasFwd := repo.FindLinkQos(t.Neighbor, t.TwoHop); hasFwd {
			if rev, hasRev := repo.FindLinkQos(t.TwoHop, t.Neighbor); hasRev {
				edgeETX = fwd.ETX * rev.ETX
			}
		}
		if edgeETX > etxSaturationCap {
			edgeETX = etxSaturationCap
		}
		rt.routes[t.TwoHop] = Route{
			Dest:     t.TwoHop,
			NextHop:  entry.NextHop,
			Iface:    entry.Iface,
			Distance: 2,
			ETX:      entry.ETX + edgeETX,
		}
	}

	// Step 4: relax over the topology set until fixed point.
	byDest := make(map[netip.Addr][]TopologyTuple)
	for _, t := range repo.Topology() {
		byDest[t.Dest] = append(byDest[t.Dest], t)
	}
	for {
		changed := false
		for dest, tuples := range byDest {
			for _, t := range tuples {
				lastRoute, ok := rt.routes[t.Last]
				if !ok {
					continue
				}
				destRoute, hasDest := rt.routes[dest]
				candidateETX := lastRoute.ETX + t.ETX
				if !hasDest || destRoute.ETX > candidateETX {
					rt.routes[dest] = Route{
						Dest:     dest,
						NextHop:  lastRoute.NextHop,
						Iface:    lastRoute.Iface,
						Distance: lastRoute.Distance + 1,
						ETX:      candidateETX,
					}
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}

	// Step 5: clone routes for secondary interfaces of already-routed
	// nodes.
	for _, ia := range repo.IfaceAssocs() {
		if _, already := rt.routes[ia.Iface]; already {
			continue
		}
		if mainRoute, ok := rt.routes[ia.Main]; ok {
			clone := mainRoute
			clone.Dest = ia.Iface
			rt.routes[ia.Iface] = clone
		}
	}

	// Step 6: HNA network routes.
	for _, a := range repo.Associations() {
		gwRoute, ok := rt.routes[a.Gateway]
		if !ok {
			continue
		}
		if _, dup := rt.hnaRoutes[a.Network]; dup {
			continue
		}
		rt.hnaRoutes[a.Network] = Route{
			Dest:     a.Network.Addr(),
			NextHop:  gwRoute.NextHop,
			Iface:    gwRoute.Iface,
			Distance: gwRoute.Distance + 1,
			ETX:      gwRoute.ETX,
		}
	}

	return rt
}
