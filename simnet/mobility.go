package simnet

import (
	"time"

	"github.com/anlitiantian/ETX-OLSR"
)

// mobilitySample is one scripted (time, position, velocity) waypoint.
type mobilitySample struct {
	at  time.Time
	pos olsr.Vec3
	vel olsr.Vec3
}

// ScriptedMobility is an olsr.Mobility backed by a fixed, time-ordered
// waypoint list, for end-to-end tests that exercise the LHT/LSD mobility
// math (§4.3) without a real positioning feed. PositionVelocity returns the
// most recent waypoint not after the network's current time.
type ScriptedMobility struct {
	clock   *olsr.VirtualClock
	samples []mobilitySample
}

// NewScriptedMobility builds a trace read against clock's current time.
func NewScriptedMobility(clock *olsr.VirtualClock) *ScriptedMobility {
	return &ScriptedMobility{clock: clock}
}

// At appends a waypoint effective from instant t onward. Waypoints must be
// added in non-decreasing time order.
func (m *ScriptedMobility) At(t time.Time, pos, vel olsr.Vec3) *ScriptedMobility {
	m.samples = append(m.samples, mobilitySample{at: t, pos: pos, vel: vel})
	return m
}

func (m *ScriptedMobility) PositionVelocity() (olsr.Vec3, olsr.Vec3) {
	now := m.clock.Now()
	var current mobilitySample
	found := false
	for _, s := range m.samples {
		if s.at.After(now) {
			break
		}
		current = s
		found = true
	}
	if !found {
		return olsr.Vec3{}, olsr.Vec3{}
	}
	return current.pos, current.vel
}
