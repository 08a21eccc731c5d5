package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CatalogReplaceTotal counts catalog replacements by source (import, upstream) and result.
	CatalogReplaceTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_replace_total",
		Help: "Count of catalog replacements by source and outcome.",
	}, []string{"source", "result"})
	// CartMutationsTotal counts cart mutations by operation.
	CartMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Count of cart mutations by operation.",
	}, []string{"op"})
	// BudgetsGeneratedTotal counts generated budgets by result.
	BudgetsGeneratedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "budgets_generated_total",
		Help: "Count of budget generations by outcome.",
	}, []string{"result"})
	// UpstreamSyncTotal counts background catalog syncs by result.
	UpstreamSyncTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_sync_total",
		Help: "Count of upstream catalog sync runs by outcome.",
	}, []string{"result"})
	// UpstreamSyncDuration records sync run latency in milliseconds.
	UpstreamSyncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "upstream_sync_duration_ms",
		Help:    "Latency of upstream catalog sync runs in milliseconds.",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	})
)

// MustRegisterDomainMetrics registers the domain collectors once. Collectors
// already present in reg are reused.
func MustRegisterDomainMetrics(reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CatalogReplaceTotal = registerOrReuse(reg, CatalogReplaceTotal)
		CartMutationsTotal = registerOrReuse(reg, CartMutationsTotal)
		BudgetsGeneratedTotal = registerOrReuse(reg, BudgetsGeneratedTotal)
		UpstreamSyncTotal = registerOrReuse(reg, UpstreamSyncTotal)
		UpstreamSyncDuration = registerOrReuse(reg, UpstreamSyncDuration)
	})
}
