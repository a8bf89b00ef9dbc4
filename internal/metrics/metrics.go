// Package metrics holds the Prometheus collectors for Playgroup.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SubmissionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playgroup_submissions_total",
		Help: "Albums submitted",
	})
	VotesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playgroup_votes_total",
		Help: "Votes cast, excluding submitter auto-votes",
	})
	ReviewsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playgroup_reviews_total",
		Help: "Reviews written",
	})
	RejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "playgroup_rejections_total",
		Help: "Ledger writes rejected by a domain rule",
	}, []string{"reason"})

	CyclesCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playgroup_cycles_created_total",
		Help: "Cycles created by this process",
	})
	TransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "playgroup_transitions_total",
		Help: "Voting to listening transitions by outcome",
	}, []string{"outcome"})
	TransitionSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "playgroup_transition_seconds",
		Help:    "Duration of the transition transaction",
		Buckets: prometheus.DefBuckets,
	})

	AggregateCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "playgroup_aggregate_cache_total",
		Help: "Aggregate cache lookups by result",
	}, []string{"result"})
)

// Register registers all collectors with reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		SubmissionsTotal,
		VotesTotal,
		ReviewsTotal,
		RejectionsTotal,
		CyclesCreatedTotal,
		TransitionsTotal,
		TransitionSeconds,
		AggregateCacheTotal,
	)
}

// Handler serves the collectors of g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
