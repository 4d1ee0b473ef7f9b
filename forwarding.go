package olsr

import "net/netip"

// RouteInputAction tells the IP layer what to do with a packet arriving at
// RouteInput, per §4.9.
type RouteInputAction int

const (
	ActionDeliver RouteInputAction = iota
	ActionUnicast
	ActionMulticast
	ActionError
)

// RouteOutput resolves dest to a next hop, source interface and egress
// interface for a locally-originated packet, per §4.9. oif, if valid,
// restricts the search to routes bound to that interface.
func (e *Engine) RouteOutput(dest netip.Addr, oif netip.Addr) (Route, error) {
	rt := e.RoutingTable()
	route, ok := rt.Lookup(dest)
	if !ok {
		route, ok = rt.LookupHNA(dest)
	}
	if !ok {
		return Route{}, NoRouteToHostError{Dest: dest}
	}
	if oif.IsValid() && route.Iface != oif {
		return Route{}, NoRouteToHostError{Dest: dest}
	}
	return route, nil
}

// RouteInput decides what to do with a packet addressed to dest that
// arrived on ingress, per §4.9: deliver locally, unicast forward, multicast
// forward, or report no route.
func (e *Engine) RouteInput(dest netip.Addr, ingress netip.Addr) (RouteInputAction, Route, error) {
	if _, isOurs := e.ifaces[dest]; isOurs {
		return ActionDeliver, Route{}, nil
	}
	if dest.IsMulticast() {
		route, err := e.RouteOutput(dest, netip.Addr{})
		if err != nil {
			return ActionError, Route{}, err
		}
		return ActionMulticast, route, nil
	}
	route, err := e.RouteOutput(dest, netip.Addr{})
	if err != nil {
		return ActionError, Route{}, err
	}
	return ActionUnicast, route, nil
}
