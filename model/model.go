// Package model 提供 core.Scorer 的实现：
//   - TableModel：离线预计算的 (user, item) → score 表
//   - EmbeddingModel：导出的矩阵分解/嵌入模型（内积 + 偏置）
//   - RPCModel：远程模型服务（批量、熔断、限流）
//
// 模型内部结构与训练不在本包范围内；对调用方而言它们只是 (user, item) → score 的纯函数。
// 未知的用户或物品返回 NaN，由排序阶段转换为 INVALID_SCORE。
package model

import (
	"context"
	"fmt"

	"github.com/rushteam/simrec/core"
)

// FuncScorer 把普通函数适配为 core.Scorer，常用于测试与简单规则打分。
type FuncScorer struct {
	ModelName string
	Fn        func(ctx context.Context, userID, itemID int64) (float64, error)
}

func (f FuncScorer) Name() string {
	if f.ModelName == "" {
		return "func"
	}
	return f.ModelName
}

func (f FuncScorer) Score(ctx context.Context, userID, itemID int64) (float64, error) {
	return f.Fn(ctx, userID, itemID)
}

// ScoreAll 为 itemIDs 逐个打分；scorer 实现 core.BatchScorer 时走批量接口。
// 返回值与 itemIDs 一一对应。
func ScoreAll(ctx context.Context, s core.Scorer, userID int64, itemIDs []int64) ([]float64, error) {
	if len(itemIDs) == 0 {
		return []float64{}, nil
	}
	if bs, ok := s.(core.BatchScorer); ok {
		scores, err := bs.ScoreBatch(ctx, userID, itemIDs)
		if err != nil {
			return nil, err
		}
		if len(scores) != len(itemIDs) {
			return nil, fmt.Errorf("scorer %s returned %d scores for %d items", s.Name(), len(scores), len(itemIDs))
		}
		return scores, nil
	}

	scores := make([]float64, len(itemIDs))
	for i, id := range itemIDs {
		if err := ctx.Err(); err != nil {
			return nil, core.FromContext(core.ModuleModel, err)
		}
		score, err := s.Score(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		scores[i] = score
	}
	return scores, nil
}

var _ core.Scorer = FuncScorer{}
