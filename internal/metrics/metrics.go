// Package metrics holds the Prometheus counters of the quote cache. A nil
// *Metrics is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "quotecache"

type Metrics struct {
	CacheLookups   *prometheus.CounterVec
	UpstreamCalls  *prometheus.CounterVec
	EventsHandled  *prometheus.CounterVec
	HoldingUpdates prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Quote cache lookups by result (hit, miss, corrupt).",
		}, []string{"result"}),
		UpstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_calls_total",
			Help:      "Upstream quote fetches by outcome (ok, not_found, error).",
		}, []string{"outcome"}),
		EventsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_events_total",
			Help:      "Price update events by outcome (applied, stale, invalid, failed).",
		}, []string{"outcome"}),
		HoldingUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holding_price_updates_total",
			Help:      "Holdings rows patched with a new last known price.",
		}),
	}
	reg.MustRegister(m.CacheLookups, m.UpstreamCalls, m.EventsHandled, m.HoldingUpdates)
	return m
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) UpstreamCall(outcome string) {
	if m == nil {
		return
	}
	m.UpstreamCalls.WithLabelValues(outcome).Inc()
}

func (m *Metrics) EventHandled(outcome string) {
	if m == nil {
		return
	}
	m.EventsHandled.WithLabelValues(outcome).Inc()
}

func (m *Metrics) HoldingsUpdated(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.HoldingUpdates.Add(float64(n))
}
