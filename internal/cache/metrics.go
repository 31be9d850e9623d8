package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "digest_cache_hits_total",
	Help: "Number of cache reads that returned a live entry",
}, []string{"namespace"})

var cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "digest_cache_misses_total",
	Help: "Number of cache reads that returned nothing, by reason",
}, []string{"namespace", "reason"})

var cacheHeals = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "digest_cache_heals_total",
	Help: "Number of expired or corrupt records removed on read",
}, []string{"namespace", "reason"})

var cacheWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "digest_cache_write_failures_total",
	Help: "Number of cache writes that could not be persisted",
}, []string{"namespace"})
