// Package metrics 定义推荐链路的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PipelineRuns 按终态统计运行次数（persisted / failed）。
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simrec_pipeline_runs_total",
			Help: "Total number of recommendation pipeline runs by terminal state",
		},
		[]string{"state"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "simrec_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// Candidates 是每次运行的候选集大小分布。
	Candidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "simrec_candidates",
			Help:    "Number of candidate items generated per run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 .. 2048
		},
	)

	// ScorerRequests 统计打分调用（result: success / failure / rejected）。
	ScorerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simrec_scorer_requests_total",
			Help: "Total number of scorer calls by model and result",
		},
		[]string{"model", "result"},
	)

	// BreakerState 是熔断器状态：0 = closed, 1 = half-open, 2 = open。
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "simrec_scorer_breaker_state",
			Help: "Circuit breaker state of remote scorers (0=closed, 1=half-open, 2=open)",
		},
		[]string{"model"},
	)
)
