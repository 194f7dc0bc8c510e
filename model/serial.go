package model

import (
	"context"
	"sync"

	"github.com/rushteam/simrec/core"
)

// SerialScorer 用互斥锁串行化对底层模型的访问，用于非线程安全的模型。
type SerialScorer struct {
	mu    sync.Mutex
	inner core.Scorer
}

func NewSerialScorer(inner core.Scorer) *SerialScorer {
	return &SerialScorer{inner: inner}
}

func (s *SerialScorer) Name() string { return s.inner.Name() }

func (s *SerialScorer) Score(ctx context.Context, userID, itemID int64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Score(ctx, userID, itemID)
}

// ScoreBatch 整批持锁，底层实现 BatchScorer 时直接透传。
func (s *SerialScorer) ScoreBatch(ctx context.Context, userID int64, itemIDs []int64) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ScoreAll(ctx, s.inner, userID, itemIDs)
}

var _ core.BatchScorer = (*SerialScorer)(nil)
