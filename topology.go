package olsr

import (
	"net/netip"
	"time"
)

// HandleTC applies one received TC message to the topology set, per §4.5.
// senderIface must already carry a SYM LinkTuple to us; the caller is
// expected to have checked that before calling (it needs the same
// information to decide whether to forward).
func HandleTC(repo *Repository, originatorMain netip.Addr, tc TCBody, now time.Time, vtime time.Duration) (dropped bool) {
	for _, t := range repo.TopologyByLast(originatorMain) {
		if t.Seq > tc.ANSN {
			return true
		}
	}
	for _, t := range repo.TopologyByLast(originatorMain) {
		if t.Seq < tc.ANSN {
			repo.EraseTopology(t.Dest, t.Last)
		}
	}
	for _, n := range tc.Neighbors {
		repo.UpsertTopology(TopologyTuple{
			Dest:   n.Main,
			Last:   originatorMain,
			Seq:    tc.ANSN,
			Expiry: now.Add(vtime),
			ETX:    float64(n.ETX),
		})
	}
	return false
}
