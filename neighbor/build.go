package neighbor

import (
	"fmt"
	"sort"

	"github.com/rushteam/simrec/core"
)

// BuildOptions 控制用户特征向量的构造方式。
//
// 向量构造（确定性）：
//   - 维度 = 交互表中所有物品 ID 升序
//   - 值 = 该用户对该物品的评分，未评分为 0
//   - MeanCenter 时已评分的值减去该用户的平均分（未评分仍为 0）
type BuildOptions struct {
	Metric     Metric
	MeanCenter bool
	Version    string
}

// Build 从交互表构建近邻索引。
// 同一 (user, item) 出现多次返回 INVALID_PARAMETER。
func Build(interactions []core.Interaction, opts BuildOptions) (*KNNIndex, error) {
	if len(interactions) == 0 {
		return nil, core.NewInvalidParameterError(core.ModuleNeighbor, "no interactions to build index from")
	}

	userSet := make(map[int64]struct{})
	itemSet := make(map[int64]struct{})
	for _, in := range interactions {
		if in.UserID <= 0 || in.ItemID <= 0 {
			return nil, core.NewInvalidParameterError(core.ModuleNeighbor,
				"non-positive id in interaction (user=%d item=%d)", in.UserID, in.ItemID)
		}
		userSet[in.UserID] = struct{}{}
		itemSet[in.ItemID] = struct{}{}
	}

	users := sortedKeys(userSet)
	dims := sortedKeys(itemSet)
	userRow := indexOf(users)
	itemCol := indexOf(dims)

	vectors := make([][]float64, len(users))
	for i := range vectors {
		vectors[i] = make([]float64, len(dims))
	}
	rated := make([]map[int]struct{}, len(users))
	sums := make([]float64, len(users))

	for _, in := range interactions {
		row, col := userRow[in.UserID], itemCol[in.ItemID]
		if rated[row] == nil {
			rated[row] = make(map[int]struct{})
		}
		if _, dup := rated[row][col]; dup {
			return nil, core.NewInvalidParameterError(core.ModuleNeighbor,
				"duplicate interaction for user=%d item=%d", in.UserID, in.ItemID)
		}
		rated[row][col] = struct{}{}
		vectors[row][col] = in.Rating
		sums[row] += in.Rating
	}

	if opts.MeanCenter {
		for row := range vectors {
			mean := sums[row] / float64(len(rated[row]))
			for col := range rated[row] {
				vectors[row][col] -= mean
			}
		}
	}

	version := opts.Version
	if version == "" {
		version = fmt.Sprintf("u%d-i%d-n%d", len(users), len(dims), len(interactions))
	}
	return NewKNNIndex(users, dims, vectors, opts.Metric, version)
}

func sortedKeys(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func indexOf(ids []int64) map[int64]int {
	m := make(map[int64]int, len(ids))
	for i, id := range ids {
		m[id] = i
	}
	return m
}
