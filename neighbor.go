package olsr

import (
	"net/netip"
	"time"
)

// ancrEvent is one neighbor-gained or neighbor-lost sample used by the
// Average Neighbor Change Rate statistic (§4.7).
type ancrEvent struct {
	at    time.Time
	iface netip.Addr
}

// ancrTracker maintains bounded gained/lost event lists within a
// 3*HelloInterval window, the generalization of the teacher's implicit
// "neighbor appeared/disappeared" bookkeeping into the explicit ANCR
// statistic the extended HELLO carries.
type ancrTracker struct {
	gained []ancrEvent
	lost   []ancrEvent
}

func (a *ancrTracker) recordGained(now time.Time, iface netip.Addr) {
	a.gained = append(a.gained, ancrEvent{now, iface})
}

func (a *ancrTracker) recordLost(now time.Time, iface netip.Addr) {
	a.lost = append(a.lost, ancrEvent{now, iface})
}

func (a *ancrTracker) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	a.gained = pruneEvents(a.gained, cutoff)
	a.lost = pruneEvents(a.lost, cutoff)
}

func pruneEvents(events []ancrEvent, cutoff time.Time) []ancrEvent {
	out := events[:0]
	for _, e := range events {
		if e.at.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// value is the ANCR figure emitted in our own HELLO: gained + lost events
// still inside the window.
func (a *ancrTracker) value(now time.Time, window time.Duration) uint16 {
	a.prune(now, window)
	n := len(a.gained) + len(a.lost)
	if n > 0xffff {
		n = 0xffff
	}
	return uint16(n)
}

func (a *ancrTracker) gainedCount(now time.Time, window time.Duration) int {
	a.prune(now, window)
	return len(a.gained)
}

func (a *ancrTracker) lostCount(now time.Time, window time.Duration) int {
	a.prune(now, window)
	return len(a.lost)
}

// rebuildNeighborTuple recomputes the NeighborTuple for main from the
// current link set, per §3 invariant 2: SYM iff at least one live link to
// one of the node's interfaces is currently symmetric. willingness is
// carried from whichever link most recently advertised it (the repository
// does not separately remember per-link willingness, so the caller passes
// the value observed on the link that triggered this rebuild).
func rebuildNeighborTuple(repo *Repository, main netip.Addr, now time.Time, willingness Willingness) {
	links := repo.LinksByNeighbor(main, repo.GetMainAddress)
	if len(links) == 0 {
		repo.EraseNeighbor(main)
		return
	}
	status := StatusNotSym
	for _, l := range links {
		if l.SymExpiry.After(now) {
			status = StatusSym
			break
		}
	}
	repo.UpsertNeighbor(NeighborTuple{Main: main, Status: status, Willingness: willingness})
}

// ingestTwoHopLinks applies one HELLO's link messages to the two-hop set,
// per §4.7: SYM_NEIGH/MPR_NEIGH entries upsert a TwoHopNeighborTuple;
// NOT_NEIGH entries revoke one.
func ingestTwoHopLinks(repo *Repository, originatorMain netip.Addr, self netip.Addr, links []HelloLinkMessage, now time.Time, vtime time.Duration) {
	for _, lm := range links {
		for _, n := range lm.Neighbors {
			main := repo.GetMainAddress(n.Iface)
			if main == self {
				continue
			}
			switch lm.NeighborType {
			case NeighSym, NeighMpr:
				repo.UpsertTwoHop(TwoHopTuple{
					Neighbor: originatorMain,
					TwoHop:   main,
					Expiry:   now.Add(vtime),
				})
			case NeighNotNeigh:
				repo.EraseTwoHop(originatorMain, main)
			}
		}
	}
}

// ingestMprSelector applies one HELLO's link messages to the MPR-selector
// set: an MPR_NEIGH entry naming one of our own interfaces means the
// originator has selected us.
func ingestMprSelector(repo *Repository, originatorMain netip.Addr, selfIfaces map[netip.Addr]struct{}, links []HelloLinkMessage, now time.Time, vtime time.Duration) {
	selected := false
	for _, lm := range links {
		if lm.NeighborType != NeighMpr {
			continue
		}
		for _, n := range lm.Neighbors {
			if _, ok := selfIfaces[n.Iface]; ok {
				selected = true
			}
		}
	}
	if selected {
		repo.UpsertMprSelector(MprSelectorTuple{Selector: originatorMain, Expiry: now.Add(vtime)})
	} else {
		repo.EraseMprSelector(originatorMain)
	}
}
