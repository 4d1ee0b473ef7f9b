package olsr

import (
	"math"
	"net/netip"
	"time"
)

// Mobility supplies the local node's current position and velocity, treated
// as an oracle: the engine never predicts or integrates motion itself, it
// only reads the latest sample when a HELLO needs one (§4.3, §9).
type Mobility interface {
	PositionVelocity() (pos, vel Vec3)
}

// StaticMobility is a Mobility that never moves, the default for nodes that
// don't carry a GPS/mobility feed.
type StaticMobility struct{}

func (StaticMobility) PositionVelocity() (Vec3, Vec3) { return Vec3{}, Vec3{} }

// linkExpiry returns the instant a LinkTuple should next be re-checked: the
// earliest of its own expiries and the two associated LinkQosTuple
// expiries, per §4.3 step 8's "schedule on_expire at the minimum of
// symExpiry/expiry/LinkQos expiries".
func linkExpiry(repo *Repository, local, neighbor netip.Addr) time.Time {
	lt, ok := repo.FindLink(local, neighbor)
	if !ok {
		return time.Time{}
	}
	min := lt.Expiry
	if !lt.SymExpiry.IsZero() && lt.SymExpiry.Before(min) {
		min = lt.SymExpiry
	}
	if fwd, ok := repo.FindLinkQos(local, neighbor); ok && fwd.Expiry.Before(min) {
		min = fwd.Expiry
	}
	if rev, ok := repo.FindLinkQos(neighbor, local); ok && rev.Expiry.Before(min) {
		min = rev.Expiry
	}
	return min
}

// HandleHello applies one HELLO message received on local interface R from
// sender interface S to the link set and link-quality set, and computes the
// mobility-derived LHT/LSD metrics for the forward tuple (§4.3).
//
// ancr is the local node's own neighbor-change tracker; a newly-created
// LinkTuple records a "neighbor gained" sample against it.
func HandleHello(repo *Repository, ancr *ancrTracker, mob Mobility, radius float64, localIface, senderIface netip.Addr, hello HelloBody, now time.Time) {
	vtime := hello.HTime
	if vtime <= 0 {
		vtime = DefaultHelloInterval
	}

	lt, existed := repo.FindLink(localIface, senderIface)
	if !existed {
		lt = LinkTuple{Local: localIface, Neighbor: senderIface}
		ancr.recordGained(now, senderIface)
	}
	lt.AsymExpiry = now.Add(vtime)

	reverseETX := -1.0
	for _, lm := range hello.Links {
		mentionsUs := false
		for _, n := range lm.Neighbors {
			if n.Iface == localIface {
				mentionsUs = true
				if float64(n.ETX) > reverseETX {
					reverseETX = float64(n.ETX)
				}
			}
		}
		if !mentionsUs {
			continue
		}
		switch lm.LinkType {
		case LinkLost:
			lt.SymExpiry = now.Add(-expiryEpsilon)
		case LinkSym, LinkAsym:
			lt.SymExpiry = now.Add(vtime)
		}
	}
	if lt.Expiry.Before(lt.AsymExpiry) {
		lt.Expiry = lt.AsymExpiry
	}
	repo.UpsertLink(lt)

	// Reverse LinkQosTuple (S -> R): ETX as advertised by the peer about us.
	if reverseETX >= 0 {
		rev, ok := repo.FindLinkQos(senderIface, localIface)
		if !ok {
			rev = LinkQosTuple{From: senderIface, To: localIface, ETX: SaturationETX}
		}
		rev.ETX = reverseETX
		rev.Expiry = now.Add(vtime)
		repo.UpsertLinkQos(rev)
	}

	// Forward LinkQosTuple (R -> S): ours to maintain via HELLO-ACK receipt.
	fwd, ok := repo.FindLinkQos(localIface, senderIface)
	if !ok {
		fwd = LinkQosTuple{From: localIface, To: senderIface, ETX: SaturationETX}
	}
	fwd.Expiry = now.Add(vtime)
	fwd.ANCR = hello.ANCR
	computeMobility(&fwd, mob, hello.Position, hello.Velocity, radius)
	repo.UpsertLinkQos(fwd)
}

// computeMobility fills in the LHT/LSD fields of a forward LinkQosTuple from
// the peer's advertised position/velocity and the local node's own, per
// §4.3 step 7.
func computeMobility(fwd *LinkQosTuple, mob Mobility, peerPos, peerVel Vec3, radius float64) {
	selfPos, selfVel := mob.PositionVelocity()
	b := peerPos.Sub(selfPos) // relative position
	a := peerVel.Sub(selfVel) // relative velocity
	d := b.Norm()

	fwd.RelPos = b
	fwd.RelVel = a
	fwd.LHT = computeLHT(a, b, d, radius)

	fwd.DistanceHistory = append(fwd.DistanceHistory, d)
	if len(fwd.DistanceHistory) > MaxDistanceHistory {
		fwd.DistanceHistory = fwd.DistanceHistory[len(fwd.DistanceHistory)-MaxDistanceHistory:]
	}
	fwd.LSD = sampleVariance(fwd.DistanceHistory)
}

// computeLHT solves for the positive root of ‖b + a·t‖² = r², returning the
// sentinel values documented in §4.3/§9 for the degenerate cases.
func computeLHT(a, b Vec3, d, r float64) float64 {
	if a.NormSquared() < 0.01 {
		return 1000
	}
	if d > r {
		projected := b.Sub(Vec3{X: -a.X * 0.2, Y: -a.Y * 0.2, Z: -a.Z * 0.2})
		if projected.Norm() > r {
			return -1
		}
	}
	discriminant := r*r*a.NormSquared() - b.CrossNormSquared(a)
	if discriminant < 0 {
		return -1
	}
	t := (-b.Dot(a) + math.Sqrt(discriminant)) / a.NormSquared()
	if t < 0 {
		return -1
	}
	return t
}

// sampleVariance is the unbiased sample variance of xs, or 0 for fewer than
// two samples (LSD has no meaningful value yet).
func sampleVariance(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(n)
	var ss float64
	for _, x := range xs {
		diff := x - mean
		ss += diff * diff
	}
	return ss / float64(n-1)
}

// HandleHelloAck applies one HELLO-ACK acknowledging local interface R,
// sent by S, to the forward LinkQosTuple and LinkTuple (§4.3). The caller
// is responsible for having already confirmed R is one of our interfaces.
func HandleHelloAck(repo *Repository, localIface, senderIface netip.Addr, now time.Time, vtime time.Duration) {
	fwd, ok := repo.FindLinkQos(localIface, senderIface)
	if !ok {
		fwd = LinkQosTuple{From: localIface, To: senderIface, ETX: SaturationETX}
	}
	wasSentinel := fwd.RecvAckCount == 0 && fwd.ETX == SaturationETX
	fwd.RecvAckCount++
	if wasSentinel {
		fwd.SendHelloCount++
	}
	fwd.ETX = math.Round(float64(fwd.SendHelloCount) / float64(fwd.RecvAckCount))
	if fwd.ETX < 1 {
		fwd.ETX = 1
	}
	repo.UpsertLinkQos(fwd)

	lt, ok := repo.FindLink(localIface, senderIface)
	if !ok {
		lt = LinkTuple{Local: localIface, Neighbor: senderIface}
	}
	lt.ETX = fwd.ETX
	lt.AsymExpiry = now.Add(vtime)
	if lt.Expiry.Before(lt.AsymExpiry) {
		lt.Expiry = lt.AsymExpiry
	}
	repo.UpsertLink(lt)
}
