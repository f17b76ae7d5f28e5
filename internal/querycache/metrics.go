package querycache

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts cache traffic per query name.
type Metrics struct {
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	refreshes *prometheus.CounterVec
}

// NewMetrics registers the cache collectors. Collectors already registered on
// reg are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gestionrh_query_cache_hits_total",
			Help: "Number of query cache hits.",
		}, []string{"query"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gestionrh_query_cache_miss_total",
			Help: "Number of query cache misses.",
		}, []string{"query"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gestionrh_query_cache_refresh_total",
			Help: "Background query refreshes by outcome.",
		}, []string{"query", "outcome"}),
	}
	for _, target := range []**prometheus.CounterVec{&m.hits, &m.misses, &m.refreshes} {
		if err := reg.Register(*target); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return nil, err
			}
			existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				return nil, fmt.Errorf("querycache metrics: unexpected collector type %T", already.ExistingCollector)
			}
			*target = existing
		}
	}
	return m, nil
}

// queryName is the first key segment, keeping label cardinality bounded.
func queryName(key string) string {
	name, _, _ := strings.Cut(key, ":")
	return name
}

func (m *Metrics) hit(key string) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(queryName(key)).Inc()
}

func (m *Metrics) miss(key string) {
	if m == nil {
		return
	}
	m.misses.WithLabelValues(queryName(key)).Inc()
}

func (m *Metrics) refresh(key, outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(queryName(key), outcome).Inc()
}
