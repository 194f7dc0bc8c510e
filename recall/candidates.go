// Package recall 实现候选生成：u2u（近邻用户）→ u2i（近邻正向评分过的物品）。
package recall

import (
	"context"
	"math"
	"sort"

	"github.com/rushteam/simrec/core"
)

// SourceName 是 u2u2i 召回源的标准命名，写入物品的 recall_source 标签。
const SourceName = "u2u2i"

// NeighborCandidates 是基于近邻用户的候选生成器（User-CF 的 u2i 拆分）。
//
// 算法流程：
//  1. 目标用户的全部交互 → 排除集（与评分无关）
//  2. 每个近邻评分 >= Threshold 的物品 → 并集
//  3. 并集 - 排除集 = 候选集（按物品 ID 升序，无重复）
//
// 空候选集是合法结果。目标用户没有任何交互时排除集为空（冷启动）。
// Endorsements 记录首个背书的近邻（近邻顺序，最近的在前），只用于输出，不影响成员关系。
type NeighborCandidates struct {
	Store core.InteractionStore

	// Threshold 是正向评分阈值（>= 即视为背书）
	Threshold float64
}

func NewNeighborCandidates(store core.InteractionStore, threshold float64) *NeighborCandidates {
	return &NeighborCandidates{Store: store, Threshold: threshold}
}

func (g *NeighborCandidates) Name() string { return "recall." + SourceName }

// Generate 为 targetUserID 生成候选集。
func (g *NeighborCandidates) Generate(ctx context.Context, targetUserID int64, neighbors core.NeighborSet) (*core.Candidates, error) {
	if targetUserID <= 0 {
		return nil, core.NewInvalidParameterError(core.ModuleRecall, "user id must be positive, got %d", targetUserID)
	}
	if math.IsNaN(g.Threshold) || math.IsInf(g.Threshold, 0) {
		return nil, core.NewInvalidParameterError(core.ModuleRecall, "positivity threshold must be finite, got %v", g.Threshold)
	}

	watched, err := g.Store.InteractionsOf(ctx, targetUserID)
	if err != nil {
		return nil, wrapStoreError(err, targetUserID)
	}
	exclude := make(map[int64]struct{}, len(watched))
	for _, in := range watched {
		exclude[in.ItemID] = struct{}{}
	}

	endorsements := make(map[int64]core.Endorsement)
	for _, n := range neighbors.Neighbors {
		if n.UserID == targetUserID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, core.FromContext(core.ModuleRecall, err)
		}
		rows, err := g.Store.InteractionsOf(ctx, n.UserID)
		if err != nil {
			return nil, wrapStoreError(err, n.UserID)
		}
		for _, in := range rows {
			if in.Rating < g.Threshold {
				continue
			}
			if _, seen := exclude[in.ItemID]; seen {
				continue
			}
			// 首个背书者生效
			if _, ok := endorsements[in.ItemID]; !ok {
				endorsements[in.ItemID] = core.Endorsement{UserID: n.UserID, Rating: in.Rating}
			}
		}
	}

	ids := make([]int64, 0, len(endorsements))
	for id := range endorsements {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return &core.Candidates{UserID: targetUserID, IDs: ids, Endorsements: endorsements}, nil
}

func wrapStoreError(err error, userID int64) error {
	if de := core.GetDomainError(err); de != nil {
		return de.WithUser(userID)
	}
	return &core.DomainError{
		Module:  core.ModuleRecall,
		Code:    core.ErrorCodeUnavailable,
		Message: "read interactions failed",
		UserID:  userID,
		Err:     err,
	}
}
