// Package metrics exposes the core's internal caches and per-rune state as
// prometheus.Collector implementations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pktrune/coreindex/scriptcache"
)

// ScriptCacheCollector exports scriptcache.Cache's hit/miss counters and
// current byte occupancy.
type ScriptCacheCollector struct {
	cache *scriptcache.Cache

	hits   *prometheus.Desc
	misses *prometheus.Desc
	bytes  *prometheus.Desc
}

func NewScriptCacheCollector(cache *scriptcache.Cache) *ScriptCacheCollector {
	return &ScriptCacheCollector{
		cache: cache,
		hits: prometheus.NewDesc(
			"runecore_scriptcache_hits_total",
			"Total scriptPubKey lookups served from the prevout script cache.",
			nil, nil,
		),
		misses: prometheus.NewDesc(
			"runecore_scriptcache_misses_total",
			"Total scriptPubKey lookups that required an RPC fetch.",
			nil, nil,
		),
		bytes: prometheus.NewDesc(
			"runecore_scriptcache_bytes",
			"Current estimated byte occupancy of the prevout script cache.",
			nil, nil,
		),
	}
}

func (c *ScriptCacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.bytes
}

func (c *ScriptCacheCollector) Collect(ch chan<- prometheus.Metric) {
	hits, misses := c.cache.Stats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(misses))
	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(c.cache.CurrentBytes()))
}
