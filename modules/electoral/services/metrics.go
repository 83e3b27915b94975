package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

var (
	aggregationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "electoral",
		Subsystem: "aggregation",
		Name:      "runs_total",
		Help:      "Total number of aggregation runs broken down by result.",
	}, []string{"result"})

	aggregationIssues = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "electoral",
		Subsystem: "aggregation",
		Name:      "issues_total",
		Help:      "Total number of omitted nodes, undefined shares and inconsistencies found by aggregation.",
	}, []string{"kind"})

	simulationTrials = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "electoral",
		Subsystem: "simulation",
		Name:      "trials_total",
		Help:      "Total number of Monte Carlo trials run.",
	})

	simulationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "electoral",
		Subsystem: "simulation",
		Name:      "duration_seconds",
		Help:      "Wall time of projection simulations.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "electoral",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Total number of result cache lookups broken down by kind and hit/miss.",
	}, []string{"kind", "result"})

	writeConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "electoral",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Total number of storage write conflicts broken down by kind.",
	}, []string{"kind"})

	evaluationAccuracy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "electoral",
		Subsystem: "evaluation",
		Name:      "accuracy",
		Help:      "Overall accuracy of the most recent evaluation per level.",
	}, []string{"level"})
)

func recordAggregationRun(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	aggregationRuns.WithLabelValues(result).Inc()
}

func recordAggregationIssues(res AggregationResult) {
	var omitted, inconsistent float64
	for _, o := range res.Omitted {
		if o.Reason == domain.OmitInconsistent {
			inconsistent++
			continue
		}
		omitted++
	}
	aggregationIssues.WithLabelValues("omitted").Add(omitted)
	aggregationIssues.WithLabelValues("inconsistent_subtree").Add(inconsistent)
	aggregationIssues.WithLabelValues("undefined_share").Add(float64(len(res.UndefinedShares)))
	aggregationIssues.WithLabelValues("inconsistency").Add(float64(len(res.Inconsistencies)))
}

func recordSimulation(trials int, elapsed time.Duration) {
	simulationTrials.Add(float64(trials))
	simulationDuration.Observe(elapsed.Seconds())
}

func recordCacheRequest(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheRequests.WithLabelValues(kind, result).Inc()
}

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	writeConflicts.WithLabelValues(kind).Inc()
}

func recordEvaluation(level string, accuracy float64) {
	evaluationAccuracy.WithLabelValues(level).Set(accuracy)
}
