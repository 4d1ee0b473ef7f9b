package olsr

import (
	"testing"
	"time"
)

// TestHandleTC_StaleDropped is scenario 5 of SPEC_FULL.md §8: an
// out-of-order TC with a lower ANSN than one already recorded for the same
// originator must be dropped, and must not touch any tuple.
func TestHandleTC_StaleDropped(t *testing.T) {
	repo := NewRepository()
	origin := addr("10.0.0.9")
	neighborMain := addr("10.0.0.5")
	now := time.Unix(0, 0)
	vtime := 5 * time.Second

	first := TCBody{ANSN: 5, Neighbors: []TCNeighbor{{Main: neighborMain, ETX: 1}}}
	if dropped := HandleTC(repo, origin, first, now, vtime); dropped {
		t.Fatal("first TC (ANSN=5) should not be dropped")
	}
	before := repo.Topology()

	stale := TCBody{ANSN: 3, Neighbors: []TCNeighbor{{Main: addr("10.0.0.6"), ETX: 1}}}
	dropped := HandleTC(repo, origin, stale, now, vtime)
	if !dropped {
		t.Fatal("TC with lower ANSN than the recorded tuple must be dropped as stale")
	}

	after := repo.Topology()
	if len(after) != len(before) {
		t.Fatalf("stale TC must not modify the topology set: before=%d after=%d", len(before), len(after))
	}
	if _, ok := repo.FindTopology(addr("10.0.0.6"), origin); ok {
		t.Error("stale TC must not have inserted a new tuple")
	}
}

// TestHandleTC_EvictsOlderSeq covers §4.5 step 3: a fresh TC evicts any
// tuple for the same originator carrying a strictly older ANSN.
func TestHandleTC_EvictsOlderSeq(t *testing.T) {
	repo := NewRepository()
	origin := addr("10.0.0.9")
	oldNeighbor := addr("10.0.0.5")
	newNeighbor := addr("10.0.0.6")
	now := time.Unix(0, 0)
	vtime := 5 * time.Second

	HandleTC(repo, origin, TCBody{ANSN: 3, Neighbors: []TCNeighbor{{Main: oldNeighbor, ETX: 1}}}, now, vtime)
	if _, ok := repo.FindTopology(oldNeighbor, origin); !ok {
		t.Fatal("setup: expected tuple from first TC")
	}

	HandleTC(repo, origin, TCBody{ANSN: 5, Neighbors: []TCNeighbor{{Main: newNeighbor, ETX: 2}}}, now, vtime)

	if _, ok := repo.FindTopology(oldNeighbor, origin); ok {
		t.Error("tuple from the older ANSN must have been evicted")
	}
	tup, ok := repo.FindTopology(newNeighbor, origin)
	if !ok {
		t.Fatal("new tuple must be present")
	}
	if tup.Seq != 5 || tup.ETX != 2 {
		t.Errorf("got %+v, want seq=5 etx=2", tup)
	}
}

// TestHandleTC_RefreshesSameSeq: a second TC at the same ANSN still
// refreshes expiry and ETX without being treated as stale.
func TestHandleTC_RefreshesSameSeq(t *testing.T) {
	repo := NewRepository()
	origin := addr("10.0.0.9")
	neighborMain := addr("10.0.0.5")
	now := time.Unix(0, 0)
	vtime := 5 * time.Second

	HandleTC(repo, origin, TCBody{ANSN: 5, Neighbors: []TCNeighbor{{Main: neighborMain, ETX: 1}}}, now, vtime)
	later := now.Add(3 * time.Second)
	dropped := HandleTC(repo, origin, TCBody{ANSN: 5, Neighbors: []TCNeighbor{{Main: neighborMain, ETX: 4}}}, later, vtime)
	if dropped {
		t.Fatal("a TC at the same ANSN as the recorded tuple must not be dropped")
	}

	tup, ok := repo.FindTopology(neighborMain, origin)
	if !ok {
		t.Fatal("expected tuple to still be present")
	}
	if tup.ETX != 4 {
		t.Errorf("expected ETX refreshed to 4, got %v", tup.ETX)
	}
	if !tup.Expiry.Equal(later.Add(vtime)) {
		t.Errorf("expected expiry refreshed to %v, got %v", later.Add(vtime), tup.Expiry)
	}
}
