package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPipelineRuns(t *testing.T) {
	before := testutil.ToFloat64(PipelineRuns.WithLabelValues("persisted"))
	PipelineRuns.WithLabelValues("persisted").Inc()
	if got := testutil.ToFloat64(PipelineRuns.WithLabelValues("persisted")); got != before+1 {
		t.Fatalf("simrec_pipeline_runs_total{state=persisted} = %v, want %v", got, before+1)
	}
}

func TestCollectorsRegistered(t *testing.T) {
	ScorerRequests.WithLabelValues("table", "success").Inc()
	if n := testutil.CollectAndCount(ScorerRequests); n == 0 {
		t.Fatal("simrec_scorer_requests_total has no series")
	}
}
