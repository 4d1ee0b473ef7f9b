package olsr

import (
	"math"
	"testing"
	"time"
)

func TestComputeLHT_ParallelMotionSentinel(t *testing.T) {
	a := Vec3{X: 0, Y: 0, Z: 0} // relative velocity ~0
	b := Vec3{X: 10, Y: 0, Z: 0}
	got := computeLHT(a, b, b.Norm(), 50)
	if got != 1000 {
		t.Errorf("got %v, want 1000 (parallel-motion sentinel)", got)
	}
}

func TestComputeLHT_OutOfRangeNoFeasibleProjection(t *testing.T) {
	// d > r, and moving further away (a points away from b), so the 0.2s
	// projection also lands out of range.
	r := 10.0
	b := Vec3{X: 20, Y: 0, Z: 0} // already out of the 10m radius
	a := Vec3{X: 5, Y: 0, Z: 0}  // moving further away
	got := computeLHT(a, b, b.Norm(), r)
	if got != -1 {
		t.Errorf("got %v, want -1 (no feasible projection)", got)
	}
}

func TestComputeLHT_ApproachingFromOutOfRange(t *testing.T) {
	// d > r but closing fast enough that the 0.2s projection lands back in
	// range; LHT must resolve to a positive root, not the -1 sentinel.
	r := 10.0
	b := Vec3{X: 20, Y: 0, Z: 0}
	a := Vec3{X: -100, Y: 0, Z: 0} // closing fast
	got := computeLHT(a, b, b.Norm(), r)
	if got < 0 {
		t.Errorf("got %v, want a non-negative hold time for a closing trajectory", got)
	}
}

func TestComputeLHT_SolvesQuadratic(t *testing.T) {
	// b=(3,0,0) is already inside the r=5 radius (d=3<=r), moving away at
	// a=(1,0,0): solve ||b+a t||=5 -> (3+t)^2=25 -> t=2.
	r := 5.0
	b := Vec3{X: 3, Y: 0, Z: 0}
	a := Vec3{X: 1, Y: 0, Z: 0}
	got := computeLHT(a, b, b.Norm(), r)
	want := 2.0
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSampleVariance_FewerThanTwoSamplesIsZero(t *testing.T) {
	if v := sampleVariance(nil); v != 0 {
		t.Errorf("got %v, want 0 for empty history", v)
	}
	if v := sampleVariance([]float64{5}); v != 0 {
		t.Errorf("got %v, want 0 for single-sample history", v)
	}
}

func TestSampleVariance_KnownValues(t *testing.T) {
	// Sample variance of {2,4,4,4,5,5,7,9} is 4.571428... (unbiased, n-1).
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	got := sampleVariance(xs)
	want := 32.0 / 7.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestHandleHello_CreatesLinkAndQosTuples(t *testing.T) {
	repo := NewRepository()
	var ancr ancrTracker
	local := addr("10.0.0.1")
	sender := addr("10.0.0.2")
	now := time.Unix(0, 0)

	hello := HelloBody{HTime: 2, Willingness: WillDefault}
	HandleHello(repo, &ancr, StaticMobility{}, 300, local, sender, hello, now)

	lt, ok := repo.FindLink(local, sender)
	if !ok {
		t.Fatal("expected a LinkTuple to be created")
	}
	if lt.AsymExpiry.Before(now) {
		t.Error("asymExpiry must be set in the future")
	}

	fwd, ok := repo.FindLinkQos(local, sender)
	if !ok {
		t.Fatal("expected a forward LinkQosTuple to be created")
	}
	if fwd.ETX != SaturationETX {
		t.Errorf("fresh forward LinkQosTuple should carry the saturation sentinel, got %v", fwd.ETX)
	}
}

func TestHandleHello_LostLinkForceExpires(t *testing.T) {
	repo := NewRepository()
	var ancr ancrTracker
	local := addr("10.0.0.1")
	sender := addr("10.0.0.2")
	now := time.Unix(0, 0)

	repo.UpsertLink(LinkTuple{Local: local, Neighbor: sender, SymExpiry: now.Add(10e9), AsymExpiry: now.Add(10e9), Expiry: now.Add(10e9)})

	hello := HelloBody{
		HTime: 2,
		Links: []HelloLinkMessage{
			{LinkType: LinkLost, NeighborType: NeighSym, Neighbors: []HelloLinkNeighbor{{Iface: local, ETX: 1}}},
		},
	}
	HandleHello(repo, &ancr, StaticMobility{}, 300, local, sender, hello, now)

	lt, ok := repo.FindLink(local, sender)
	if !ok {
		t.Fatal("expected LinkTuple to still exist")
	}
	if lt.SymExpiry.After(now) {
		t.Error("a LOST_LINK advertisement must force symExpiry into the past")
	}
}

func TestHandleHelloAck_SentinelToEstimatedETX(t *testing.T) {
	repo := NewRepository()
	local := addr("10.0.0.1")
	sender := addr("10.0.0.2")
	now := time.Unix(0, 0)

	HandleHelloAck(repo, local, sender, now, 4)
	fwd, ok := repo.FindLinkQos(local, sender)
	if !ok {
		t.Fatal("expected a forward LinkQosTuple to exist")
	}
	if fwd.RecvAckCount != 1 {
		t.Errorf("got RecvAckCount=%d, want 1", fwd.RecvAckCount)
	}
	if fwd.ETX != 1 {
		t.Errorf("first ACK from sentinel state should floor to etx=1, got %v", fwd.ETX)
	}

	lt, ok := repo.FindLink(local, sender)
	if !ok {
		t.Fatal("expected HandleHelloAck to propagate ETX into a LinkTuple")
	}
	if lt.ETX != fwd.ETX {
		t.Errorf("LinkTuple.ETX = %v, want %v", lt.ETX, fwd.ETX)
	}
}
