package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the persistence core.
// A nil *Metrics records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	commits    *prometheus.HistogramVec
	lookups    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roster",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Mapper operations by operation, table and result.",
		}, []string{"op", "table", "result"}),
		commits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "roster",
			Subsystem: "store",
			Name:      "commit_duration_seconds",
			Help:      "Unit of work commit latency by result.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roster",
			Subsystem: "identity_map",
			Name:      "lookups_total",
			Help:      "Identity map lookups by entity type and result (hit or miss).",
		}, []string{"type", "result"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.operations, m.commits, m.lookups} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeOp(op, table string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, table, result(err)).Inc()
}

func (m *Metrics) observeCommit(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(result(err)).Observe(d.Seconds())
}

func (m *Metrics) observeLookup(typ string, hit bool) {
	if m == nil {
		return
	}
	res := "miss"
	if hit {
		res = "hit"
	}
	m.lookups.WithLabelValues(typ, res).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
