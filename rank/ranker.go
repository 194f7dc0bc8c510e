// Package rank 实现排序阶段：对候选打分、排序、截断并 join 元数据。
package rank

import (
	"context"
	"math"
	"strconv"

	"github.com/rushteam/simrec/core"
	"github.com/rushteam/simrec/model"
	"github.com/rushteam/simrec/pkg/utils"
	"github.com/rushteam/simrec/recall"
	"github.com/rushteam/simrec/rerank"
)

// Ranker 用 Scorer 给候选打分，输出去重后的 Top-K。
//
// 流程：
//  1. 对每个候选调用 Scorer（支持 BatchScorer 时批量）；任一 NaN 或 ±Inf 返回 INVALID_SCORE
//  2. 分数降序排序，分数相同时物品 ID 小的在前
//  3. 截断到 topK；候选不足 topK 时全部返回，不补齐
//  4. 为保留下来的物品 join 元数据；缺失返回 MISSING_METADATA
//  5. 输出中每个物品 ID 只出现一次
type Ranker struct {
	Scorer   core.Scorer
	Metadata core.InteractionStore
}

func NewRanker(scorer core.Scorer, metadata core.InteractionStore) *Ranker {
	return &Ranker{Scorer: scorer, Metadata: metadata}
}

func (r *Ranker) Name() string { return "rank." + r.Scorer.Name() }

// Rank 对 cands 排序并返回至多 topK 个物品。
func (r *Ranker) Rank(ctx context.Context, userID int64, cands *core.Candidates, topK int) ([]*core.Item, error) {
	if topK < 1 {
		return nil, core.NewInvalidParameterError(core.ModuleRank, "topK must be positive, got %d", topK)
	}
	if cands.Empty() {
		return []*core.Item{}, nil
	}

	items := make([]*core.Item, 0, len(cands.IDs))
	for _, id := range cands.IDs {
		it := core.NewItem(id)
		it.Endorsement = cands.Endorsements[id]
		items = append(items, it)
	}
	items = rerank.Dedup(items)

	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	scores, err := model.ScoreAll(ctx, r.Scorer, userID, ids)
	if err != nil {
		return nil, scorerError(ctx, err, userID)
	}

	modelName := r.Scorer.Name()
	for i, it := range items {
		if math.IsNaN(scores[i]) || math.IsInf(scores[i], 0) {
			return nil, core.NewInvalidScoreError(userID, it.ID, modelName)
		}
		it.Score = scores[i]
	}

	rerank.SortByScore(items)
	items = rerank.TopN(items, topK)

	for pos, it := range items {
		meta, err := r.Metadata.MetadataOf(ctx, it.ID)
		if err != nil {
			if core.IsNotFound(err) {
				return nil, core.NewMissingMetadataError(core.ModuleRank, it.ID).WithUser(userID)
			}
			return nil, scorerError(ctx, err, userID)
		}
		it.Meta = meta

		it.PutLabel(utils.LabelRecallSource, utils.Label{Value: recall.SourceName, Source: "recall"})
		it.PutLabel(utils.LabelRankModel, utils.Label{Value: modelName, Source: "rank"})
		it.PutLabel(utils.LabelRankPosition, utils.Label{Value: strconv.Itoa(pos + 1), Source: "rank"})
		if it.Endorsement.UserID != 0 {
			it.PutLabel(utils.LabelEndorsedBy, utils.Label{Value: strconv.FormatInt(it.Endorsement.UserID, 10), Source: "recall"})
		}
	}
	return rerank.Dedup(items), nil
}

func scorerError(ctx context.Context, err error, userID int64) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !core.IsDomainError(err) {
		return core.FromContext(core.ModuleRank, ctxErr)
	}
	if de := core.GetDomainError(err); de != nil {
		return de.WithUser(userID)
	}
	return &core.DomainError{
		Module:  core.ModuleRank,
		Code:    core.ErrorCodeInternalError,
		Message: "scoring failed",
		UserID:  userID,
		Err:     err,
	}
}
