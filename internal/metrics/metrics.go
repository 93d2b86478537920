// Package metrics wires the controller's counters to Prometheus,
// grounded on friggdb/pool's promauto.NewGauge/NewCounterVec package-level
// var style. southbound.ResourceCounters is implemented here so the core
// (internal/controller, internal/rebalance) never imports Prometheus
// directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sonic-net/fgnhgctl/internal/southbound"
)

const namespace = "fgnhgctl"

var (
	// BucketRewrites counts every successful Writer.WriteBucket call.
	BucketRewrites = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bucket_rewrites_total",
		Help:      "Total number of hash-bucket reassignments programmed to the ASIC.",
	})

	// RebalanceFailures counts live-event Rebalance calls (made through
	// the controller's rebalanceBank) that returned an error, labelled by
	// the numeric fgerr.Kind of the failure.
	RebalanceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rebalance_failures_total",
		Help:      "Total number of bank rebalance attempts that failed, by error kind.",
	}, []string{"kind"})

	// Materialisations counts first-time group creations.
	Materialisations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "materialisations_total",
		Help:      "Total number of fine-grained groups materialised.",
	})

	// Degradations counts all-banks-down transitions to a plain
	// router-interface route.
	Degradations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "degradations_total",
		Help:      "Total number of groups that degraded to a router-interface route.",
	})

	// WarmRestartRecoveries counts prefixes recovered from the state-DB
	// checkpoint at startup.
	WarmRestartRecoveries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "warm_restart_recoveries_total",
		Help:      "Total number of prefixes recovered from the warm-restart checkpoint.",
	})

	// GroupsMaterialised tracks the live group count, bounded by the
	// platform's group ceiling.
	GroupsMaterialised = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "groups_materialised",
		Help:      "Current number of materialised fine-grained groups.",
	})

	resourceUsed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "resource_used",
		Help:      "Current ASIC resource usage, by kind.",
	}, []string{"kind"})

	resourceCeiling = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "resource_ceiling",
		Help:      "Configured ASIC resource ceiling, by kind. Zero means unbounded.",
	}, []string{"kind"})
)

func resourceKindLabel(kind southbound.ResourceKind) string {
	switch kind {
	case southbound.ResourceGroup:
		return "group"
	case southbound.ResourceGroupMember:
		return "group_member"
	case southbound.ResourceIPv4NextHop:
		return "ipv4_nexthop"
	case southbound.ResourceIPv6NextHop:
		return "ipv6_nexthop"
	case southbound.ResourceIPv4Neighbor:
		return "ipv4_neighbor"
	case southbound.ResourceIPv6Neighbor:
		return "ipv6_neighbor"
	default:
		return "unknown"
	}
}

// Counters is the Prometheus-backed southbound.ResourceCounters
// implementation wired in production; tests use southbound/fake.Counters
// instead. Prometheus gauges are write-only from the caller's side, so
// Counters keeps a plain integer shadow of each value alongside the
// published gauge, incrementing both on every call.
type Counters struct {
	usedShadow    map[southbound.ResourceKind]int
	ceilingShadow map[southbound.ResourceKind]int
}

// NewCounters returns a Counters wrapping the package's shared gauge
// vectors. The vectors themselves register exactly once at package init,
// so constructing more than one Counters (as tests may) never double-
// registers with the default Prometheus registry.
func NewCounters() *Counters {
	return &Counters{
		usedShadow:    make(map[southbound.ResourceKind]int),
		ceilingShadow: make(map[southbound.ResourceKind]int),
	}
}

func (c *Counters) SetCeiling(kind southbound.ResourceKind, ceiling int) {
	c.ceilingShadow[kind] = ceiling
	resourceCeiling.WithLabelValues(resourceKindLabel(kind)).Set(float64(ceiling))
}

func (c *Counters) Inc(kind southbound.ResourceKind) {
	c.usedShadow[kind]++
	resourceUsed.WithLabelValues(resourceKindLabel(kind)).Inc()
}

func (c *Counters) Dec(kind southbound.ResourceKind) {
	c.usedShadow[kind]--
	resourceUsed.WithLabelValues(resourceKindLabel(kind)).Dec()
}

func (c *Counters) Used(kind southbound.ResourceKind) int {
	return c.usedShadow[kind]
}

func (c *Counters) Ceiling(kind southbound.ResourceKind) int {
	return c.ceilingShadow[kind]
}
