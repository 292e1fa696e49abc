// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics exposes prometheus collectors for search fan-out,
// cache effectiveness and per-source health.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles every metric the service reports. A nil *Collector is
// valid and drops all observations, so metrics can be disabled by config
// without branching at every call site.
type Collector struct {
	registry *prometheus.Registry

	searchesTotal  *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	inflightShared prometheus.Counter
	sourceScore    *prometheus.GaugeVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		searchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dredgr_source_searches_total",
			Help: "Adapter calls by source and outcome.",
		}, []string{"source", "outcome"}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dredgr_source_search_duration_seconds",
			Help:    "Adapter call latency by source.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dredgr_result_cache_hits_total",
			Help: "Search branches served from the result cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dredgr_result_cache_misses_total",
			Help: "Search branches that had to call the adapter.",
		}),
		inflightShared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dredgr_inflight_shared_total",
			Help: "Search branches that joined an identical in-flight call.",
		}),
		sourceScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dredgr_source_score",
			Help: "Current adaptive score per source.",
		}, []string{"source"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.searchesTotal,
		c.searchDuration,
		c.cacheHits,
		c.cacheMisses,
		c.inflightShared,
		c.sourceScore,
	)
	return c
}

// Handler serves the scrape endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveSearch records one settled adapter call. Outcome is "success" or
// the failure kind.
func (c *Collector) ObserveSearch(source, outcome string, seconds float64) {
	if c == nil {
		return
	}
	c.searchesTotal.WithLabelValues(source, outcome).Inc()
	c.searchDuration.WithLabelValues(source).Observe(seconds)
}

func (c *Collector) CacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

func (c *Collector) CacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}

// InflightShared counts a branch resolved by someone else's identical call.
func (c *Collector) InflightShared() {
	if c == nil {
		return
	}
	c.inflightShared.Inc()
}

func (c *Collector) SetSourceScore(source string, score float64) {
	if c == nil {
		return
	}
	c.sourceScore.WithLabelValues(source).Set(score)
}
