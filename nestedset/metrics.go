package nestedset

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var mutationsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nestedset_mutations_total",
	Help: "The total number of structural tree mutations, by outcome",
}, []string{"table", "op", "result"})

var mutationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "nestedset_mutation_duration",
	Help:    "A histogram of tree mutation latencies, including lock waits",
	Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
}, []string{"table", "op"})

var lockWaitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "nestedset_lock_wait_duration",
	Help:    "A histogram of time spent waiting for in-process scope locks",
	Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
}, []string{"table"})

var lockTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nestedset_lock_timeouts_total",
	Help: "Mutations aborted because a scope lock was not acquired in time",
}, []string{"table"})

var shiftMismatches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nestedset_shift_mismatches_total",
	Help: "Mutations aborted because bulk updates disagreed with the interval arithmetic",
}, []string{"table", "op"})

var rebuildReroots = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nestedset_rebuild_reroots_total",
	Help: "Nodes re-rooted by rebuild because of cycles or dangling parents",
}, []string{"table"})

var rebuildNodes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nestedset_rebuild_nodes_total",
	Help: "Rows renumbered by rebuild",
}, []string{"table"})
