package olsr

import (
	"net/netip"
	"sort"
)

// ElectMPRs runs the greedy MPR election of §4.4 over the current neighbor
// and two-hop sets, generalizing the teacher's calculateMPRs (which covered
// greedy reachability only) with willingness tiers and a degree tiebreak.
//
// self is excluded from consideration by construction (it is never a key in
// neighbors). The returned set is always a subset of SYM neighbors with
// willingness != WillNever.
func ElectMPRs(self netip.Addr, neighbors map[netip.Addr]NeighborTuple, twoHop []TwoHopTuple) map[netip.Addr]struct{} {
	// N: candidate 1-hop neighbors eligible to become MPRs.
	candidates := make(map[netip.Addr]NeighborTuple)
	for main, n := range neighbors {
		if n.Status == StatusSym && n.Willingness != WillNever {
			candidates[main] = n
		}
	}

	// coveredBy[x] = set of candidate neighbors that reach 2-hop node x.
	coveredBy := make(map[netip.Addr]map[netip.Addr]struct{})
	for _, t := range twoHop {
		if t.TwoHop == self {
			continue
		}
		if _, isNeighbor := neighbors[t.TwoHop]; isNeighbor {
			// Already a 1-hop neighbor; not part of N2.
			continue
		}
		if _, ok := candidates[t.Neighbor]; !ok {
			continue
		}
		if coveredBy[t.TwoHop] == nil {
			coveredBy[t.TwoHop] = make(map[netip.Addr]struct{})
		}
		coveredBy[t.TwoHop][t.Neighbor] = struct{}{}
	}

	m := make(map[netip.Addr]struct{})

	removeCoveredBy := func(n netip.Addr) {
		for x, by := range coveredBy {
			if _, ok := by[n]; ok {
				delete(coveredBy, x)
			}
		}
	}

	// Step 1: WILL_ALWAYS neighbors are unconditional MPRs.
	for main, n := range candidates {
		if n.Willingness == WillAlways {
			m[main] = struct{}{}
			removeCoveredBy(main)
		}
	}

	// Step 2: any 2-hop node reachable by exactly one remaining candidate
	// forces that candidate into M.
	for {
		forced := netip.Addr{}
		found := false
		for _, by := range coveredBy {
			if len(by) == 1 {
				for n := range by {
					forced = n
					found = true
				}
				break
			}
		}
		if !found {
			break
		}
		m[forced] = struct{}{}
		removeCoveredBy(forced)
	}

	// Step 3: greedily pick the candidate with the best (willingness,
	// reachability, degree) key until every remaining 2-hop node is
	// covered. Ties broken by ascending main address for stability under
	// repeated invocation on unchanged input.
	degree := func(n netip.Addr) int {
		d := 0
		for _, t := range twoHop {
			if t.Neighbor == n {
				if _, isNeighbor := neighbors[t.TwoHop]; !isNeighbor {
					d++
				}
			}
		}
		return d
	}

	for len(coveredBy) > 0 {
		reach := make(map[netip.Addr]int)
		for _, by := range coveredBy {
			for n := range by {
				reach[n]++
			}
		}

		var candidateList []netip.Addr
		for n := range reach {
			if _, already := m[n]; !already {
				candidateList = append(candidateList, n)
			}
		}
		if len(candidateList) == 0 {
			// Remaining 2-hop nodes are unreachable by any eligible
			// candidate (e.g. only via a WILL_NEVER neighbor); nothing
			// further to do.
			break
		}
		sort.Slice(candidateList, func(i, j int) bool {
			a, b := candidateList[i], candidateList[j]
			if candidates[a].Willingness != candidates[b].Willingness {
				return candidates[a].Willingness > candidates[b].Willingness
			}
			if reach[a] != reach[b] {
				return reach[a] > reach[b]
			}
			da, db := degree(a), degree(b)
			if da != db {
				return da > db
			}
			return a.Compare(b) < 0
		})
		best := candidateList[0]
		m[best] = struct{}{}
		removeCoveredBy(best)
	}

	return m
}
