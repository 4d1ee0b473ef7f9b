package olsr

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the Prometheus surface of one engine instance (§6a). Each
// engine registers its own set against the registerer it is given so
// multiple engines (as simnet runs many in one test binary) don't collide
// on the default registry.
type Metrics struct {
	MessagesSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	MessagesDropped  *prometheus.CounterVec

	Neighbors       prometheus.Gauge
	TwoHopNeighbors prometheus.Gauge
	MprSetSize      prometheus.Gauge
	MprSelectors    prometheus.Gauge
	TopologyTuples  prometheus.Gauge
	RoutingTableSize prometheus.Gauge
}

// NewMetrics registers the engine's metric set against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions between engines.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "olsr",
			Subsystem: "engine",
			Name:      "messages_sent_total",
			Help:      "Messages transmitted, by type.",
		}, []string{"type"}),
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "olsr",
			Subsystem: "engine",
			Name:      "messages_received_total",
			Help:      "Messages received, by type.",
		}, []string{"type"}),
		MessagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "olsr",
			Subsystem: "engine",
			Name:      "messages_dropped_total",
			Help:      "Messages dropped, by reason.",
		}, []string{"reason"}),
		Neighbors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "olsr",
			Name:      "neighbors",
			Help:      "Current size of the 1-hop neighbor set.",
		}),
		TwoHopNeighbors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "olsr",
			Name:      "two_hop_neighbors",
			Help:      "Current size of the 2-hop neighbor set.",
		}),
		MprSetSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "olsr",
			Name:      "mpr_set_size",
			Help:      "Current size of the MPR set.",
		}),
		MprSelectors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "olsr",
			Name:      "mpr_selector_set_size",
			Help:      "Current size of the MPR-selector set.",
		}),
		TopologyTuples: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "olsr",
			Name:      "topology_tuples",
			Help:      "Current size of the topology set.",
		}),
		RoutingTableSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "olsr",
			Name:      "routing_table_size",
			Help:      "Current number of host routes in the routing table.",
		}),
	}
}

func (m *Metrics) observeDrop(reason string) {
	if m == nil {
		return
	}
	m.MessagesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) observeSent(msgType string) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(msgType).Inc()
}

func (m *Metrics) observeReceived(msgType string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(msgType).Inc()
}

// refreshGauges reflects the repository's current tuple-set sizes and the
// just-computed routing table size into the gauges (§4.6's
// RoutingTableChanged observation feeds this).
func (m *Metrics) refreshGauges(repo *Repository, rt *RoutingTable) {
	if m == nil {
		return
	}
	m.Neighbors.Set(float64(len(repo.Neighbors())))
	m.TwoHopNeighbors.Set(float64(len(repo.TwoHops())))
	m.MprSetSize.Set(float64(len(repo.MprSet())))
	m.MprSelectors.Set(float64(len(repo.MprSelectors())))
	m.TopologyTuples.Set(float64(len(repo.Topology())))
	m.RoutingTableSize.Set(float64(rt.Size()))
}
