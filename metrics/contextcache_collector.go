package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pktrune/coreindex/authority"
)

// ContextCacheCollector exports the AuthorityContextCache's current byte
// occupancy, the L2 cache alongside scriptcache's L1.
type ContextCacheCollector struct {
	cache *authority.ContextCache
	bytes *prometheus.Desc
}

func NewContextCacheCollector(cache *authority.ContextCache) *ContextCacheCollector {
	return &ContextCacheCollector{
		cache: cache,
		bytes: prometheus.NewDesc(
			"runecore_contextcache_bytes",
			"Current estimated byte occupancy of the authority context cache.",
			nil, nil,
		),
	}
}

func (c *ContextCacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.bytes
}

func (c *ContextCacheCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(c.cache.CurrentBytes()))
}
