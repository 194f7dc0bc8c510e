package model

import (
	"context"

	"github.com/rushteam/simrec/core"
	"github.com/rushteam/simrec/metrics"
)

// Instrumented 为本地模型记录 simrec_scorer_requests_total。
// RPCModel 自带统计，无需再包装。
type Instrumented struct {
	inner core.Scorer
}

func Instrument(s core.Scorer) core.Scorer {
	if _, ok := s.(*RPCModel); ok {
		return s
	}
	return &Instrumented{inner: s}
}

func (m *Instrumented) Name() string { return m.inner.Name() }

func (m *Instrumented) Score(ctx context.Context, userID, itemID int64) (float64, error) {
	score, err := m.inner.Score(ctx, userID, itemID)
	m.observe(err, 1)
	return score, err
}

func (m *Instrumented) ScoreBatch(ctx context.Context, userID int64, itemIDs []int64) ([]float64, error) {
	scores, err := ScoreAll(ctx, m.inner, userID, itemIDs)
	m.observe(err, len(itemIDs))
	return scores, err
}

func (m *Instrumented) observe(err error, n int) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.ScorerRequests.WithLabelValues(m.inner.Name(), result).Add(float64(n))
}

var _ core.BatchScorer = (*Instrumented)(nil)
