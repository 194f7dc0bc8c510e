// Package neighbor 实现离线近邻索引（u2u）：在用户行为向量上做 KNN 查询。
//
// 索引是不可变快照：构建或加载之后只读，查询无副作用，可被任意多个 goroutine 共享。
package neighbor

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rushteam/simrec/core"
)

// ctxCheckEvery 控制扫描多少行检查一次 ctx。
const ctxCheckEvery = 1024

// KNNIndex 是进程内的暴力 KNN 索引。
//
// 行顺序 = 用户 ID 升序；列顺序 = 建索引时的物品 ID 升序（Dims）。
// 距离相同时按用户 ID 升序打破平局，保证结果可复现。
type KNNIndex struct {
	version string
	metric  Metric
	dims    []int64
	users   []int64
	rows    map[int64]int
	vectors [][]float64
}

// NewKNNIndex 由已有向量构建索引；users 与 vectors 一一对应。
func NewKNNIndex(users []int64, dims []int64, vectors [][]float64, metric Metric, version string) (*KNNIndex, error) {
	if len(users) != len(vectors) {
		return nil, fmt.Errorf("users and vectors length mismatch: %d != %d", len(users), len(vectors))
	}
	if metric == "" {
		metric = MetricEuclidean
	}
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}

	order := make([]int, len(users))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return users[order[i]] < users[order[j]] })

	idx := &KNNIndex{
		version: version,
		metric:  metric,
		dims:    append([]int64(nil), dims...),
		users:   make([]int64, len(users)),
		rows:    make(map[int64]int, len(users)),
		vectors: make([][]float64, len(users)),
	}
	for row, src := range order {
		uid := users[src]
		if uid <= 0 {
			return nil, fmt.Errorf("user id must be positive, got %d", uid)
		}
		if _, dup := idx.rows[uid]; dup {
			return nil, fmt.Errorf("duplicate user id %d", uid)
		}
		vec := vectors[src]
		if len(dims) > 0 && len(vec) != len(dims) {
			return nil, fmt.Errorf("user %d: vector has %d dims, want %d", uid, len(vec), len(dims))
		}
		if row > 0 && len(vec) != len(idx.vectors[0]) {
			return nil, fmt.Errorf("user %d: vector dimension mismatch", uid)
		}
		for _, v := range vec {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("user %d: vector contains non-finite value", uid)
			}
		}
		idx.users[row] = uid
		idx.rows[uid] = row
		idx.vectors[row] = append([]float64(nil), vec...)
	}
	return idx, nil
}

func (idx *KNNIndex) Size() int       { return len(idx.users) }
func (idx *KNNIndex) Metric() Metric  { return idx.metric }
func (idx *KNNIndex) Version() string { return idx.version }
func (idx *KNNIndex) Dims() []int64   { return append([]int64(nil), idx.dims...) }
func (idx *KNNIndex) Users() []int64  { return append([]int64(nil), idx.users...) }

func (idx *KNNIndex) Has(uid int64) bool {
	_, ok := idx.rows[uid]
	return ok
}

// Vector 返回用户的特征向量副本。
func (idx *KNNIndex) Vector(userID int64) ([]float64, bool) {
	row, ok := idx.rows[userID]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), idx.vectors[row]...), true
}

// Neighbors 实现 core.NeighborIndex。
func (idx *KNNIndex) Neighbors(ctx context.Context, userID int64, k int) (core.NeighborSet, error) {
	if userID <= 0 {
		return core.NeighborSet{}, core.NewInvalidParameterError(core.ModuleNeighbor, "user id must be positive, got %d", userID)
	}
	if k < 1 {
		return core.NeighborSet{}, core.NewInvalidParameterError(core.ModuleNeighbor, "k must be positive, got %d", k)
	}
	target, ok := idx.rows[userID]
	if !ok {
		return core.NeighborSet{}, core.NewUnknownUserError(userID)
	}
	if k > len(idx.users)-1 {
		return core.NeighborSet{}, core.NewInvalidParameterError(core.ModuleNeighbor,
			"k=%d exceeds available users (%d)", k, len(idx.users)-1)
	}

	query := idx.vectors[target]
	scored := make([]core.Neighbor, 0, len(idx.users)-1)
	for row, vec := range idx.vectors {
		if row%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return core.NeighborSet{}, core.FromContext(core.ModuleNeighbor, err)
			}
		}
		// 按行号排除自身，不依赖自身距离为 0
		if row == target {
			continue
		}
		scored = append(scored, core.Neighbor{
			UserID:   idx.users[row],
			Distance: idx.metric.Distance(query, vec),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Distance != scored[j].Distance {
			return scored[i].Distance < scored[j].Distance
		}
		return scored[i].UserID < scored[j].UserID
	})
	if len(scored) > k {
		scored = scored[:k]
	}

	return core.NeighborSet{TargetUserID: userID, Neighbors: scored}, nil
}

var _ core.NeighborIndex = (*KNNIndex)(nil)
