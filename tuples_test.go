package olsr

import (
	"net/netip"
	"testing"
	"time"
)

// TestExpireAll_P5ExpirationCompleteness: every tuple whose expiry is in the
// past is gone after one ExpireAll call, across every tuple set.
func TestExpireAll_P5ExpirationCompleteness(t *testing.T) {
	repo := NewRepository()
	now := time.Unix(1000, 0)
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	local := addr("10.0.0.1")
	neighbor := addr("10.0.0.2")
	twoHop := addr("10.0.0.3")
	selector := addr("10.0.0.4")
	origin := addr("10.0.0.5")
	last := addr("10.0.0.6")
	duplicateOrigin := addr("10.0.0.7")
	iface := addr("10.0.0.8")
	gateway := addr("10.0.0.9")
	network := netip.MustParsePrefix("192.168.0.0/24")

	repo.UpsertLink(LinkTuple{Local: local, Neighbor: neighbor, Expiry: past})
	repo.UpsertLinkQos(LinkQosTuple{From: local, To: neighbor, Expiry: past})
	repo.UpsertTwoHop(TwoHopTuple{Neighbor: neighbor, TwoHop: twoHop, Expiry: past})
	repo.UpsertMprSelector(MprSelectorTuple{Selector: selector, Expiry: past})
	repo.UpsertTopology(TopologyTuple{Dest: origin, Last: last, Seq: 1, Expiry: past})
	repo.UpsertDuplicate(DuplicateTuple{Origin: duplicateOrigin, Seq: 1, Expiry: past})
	repo.UpsertIfaceAssoc(IfaceAssocTuple{Iface: iface, Main: neighbor, Expiry: past})
	repo.UpsertAssociation(AssociationTuple{Gateway: gateway, Network: network, Expiry: past})
	repo.UpsertNeighbor(NeighborTuple{Main: neighbor, Status: StatusSym, Willingness: WillDefault})

	// A sibling set of tuples that must survive, to prove ExpireAll isn't
	// simply clearing everything.
	surviveNeighbor := addr("10.0.0.20")
	repo.UpsertLink(LinkTuple{Local: local, Neighbor: surviveNeighbor, Expiry: future})
	repo.UpsertLinkQos(LinkQosTuple{From: local, To: surviveNeighbor, Expiry: future})

	repo.ExpireAll(now)

	if _, ok := repo.FindLink(local, neighbor); ok {
		t.Error("expired LinkTuple still present")
	}
	if _, ok := repo.FindLinkQos(local, neighbor); ok {
		t.Error("expired LinkQosTuple still present")
	}
	if _, ok := repo.FindTwoHop(neighbor, twoHop); ok {
		t.Error("expired TwoHopTuple still present")
	}
	if _, ok := repo.FindMprSelector(selector); ok {
		t.Error("expired MprSelectorTuple still present")
	}
	if _, ok := repo.FindTopology(origin, last); ok {
		t.Error("expired TopologyTuple still present")
	}
	if _, ok := repo.FindDuplicate(duplicateOrigin, 1); ok {
		t.Error("expired DuplicateTuple still present")
	}
	if _, ok := repo.FindIfaceAssoc(iface); ok {
		t.Error("expired IfaceAssocTuple still present")
	}
	if _, ok := repo.FindAssociation(gateway, network); ok {
		t.Error("expired AssociationTuple still present")
	}
	if _, ok := repo.FindNeighbor(neighbor); ok {
		t.Error("neighbor with no remaining live link must be erased")
	}

	if _, ok := repo.FindLink(local, surviveNeighbor); !ok {
		t.Error("non-expired LinkTuple was incorrectly removed")
	}
	if _, ok := repo.FindLinkQos(local, surviveNeighbor); !ok {
		t.Error("non-expired LinkQosTuple was incorrectly removed")
	}
}

// TestExpireAll_NeverExpiringIfaceAssoc: a zero-Expiry IfaceAssocTuple (a
// local interface entry) is never evicted by ExpireAll.
func TestExpireAll_NeverExpiringIfaceAssoc(t *testing.T) {
	repo := NewRepository()
	self := addr("10.0.0.1")
	repo.UpsertIfaceAssoc(IfaceAssocTuple{Iface: self, Main: self})

	repo.ExpireAll(time.Unix(1<<30, 0))

	if _, ok := repo.FindIfaceAssoc(self); !ok {
		t.Error("a zero-Expiry IfaceAssocTuple must never be evicted")
	}
}

// TestExpireAll_ReturnsLostNeighbors: when a neighbor's only link expires,
// ExpireAll reports it in lostNeighbors for the caller's §4.7 cascade.
func TestExpireAll_ReturnsLostNeighbors(t *testing.T) {
	repo := NewRepository()
	local := addr("10.0.0.1")
	neighbor := addr("10.0.0.2")
	now := time.Unix(0, 0)
	repo.UpsertLink(LinkTuple{Local: local, Neighbor: neighbor, Expiry: now.Add(-time.Second)})
	repo.UpsertNeighbor(NeighborTuple{Main: neighbor, Status: StatusSym, Willingness: WillDefault})

	lost, _ := repo.ExpireAll(now)
	if len(lost) != 1 || lost[0] != neighbor {
		t.Errorf("expected [%s] lost, got %v", neighbor, lost)
	}
}

// TestGetMainAddress_FallsBackToInput: with no IfaceAssocTuple registered,
// GetMainAddress returns the input address unchanged.
func TestGetMainAddress_FallsBackToInput(t *testing.T) {
	repo := NewRepository()
	iface := addr("10.0.0.7")
	if got := repo.GetMainAddress(iface); got != iface {
		t.Errorf("got %s, want %s", got, iface)
	}
}
