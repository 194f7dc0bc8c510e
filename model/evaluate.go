package model

import (
	"context"
	"math"
	"sort"

	"github.com/rushteam/simrec/core"
)

// Report 是离线评估指标。
type Report struct {
	N    int     `json:"n"`
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
}

// Evaluate 用留出集评估打分模型：RMSE、MAE、R²。
// 按用户分组调用（可利用 BatchScorer）；任何 NaN 或 ±Inf 打分返回 INVALID_SCORE。
func Evaluate(ctx context.Context, s core.Scorer, heldOut []core.Interaction) (Report, error) {
	if len(heldOut) == 0 {
		return Report{}, core.NewInvalidParameterError(core.ModuleModel, "no held-out interactions to evaluate")
	}

	byUser := make(map[int64][]core.Interaction)
	var users []int64
	for _, in := range heldOut {
		if _, ok := byUser[in.UserID]; !ok {
			users = append(users, in.UserID)
		}
		byUser[in.UserID] = append(byUser[in.UserID], in)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })

	var (
		sumSq, sumAbs, sumY float64
		ys                  []float64
	)
	for _, uid := range users {
		rows := byUser[uid]
		ids := make([]int64, len(rows))
		for i, r := range rows {
			ids[i] = r.ItemID
		}
		scores, err := ScoreAll(ctx, s, uid, ids)
		if err != nil {
			return Report{}, err
		}
		for i, r := range rows {
			if math.IsNaN(scores[i]) || math.IsInf(scores[i], 0) {
				return Report{}, core.NewInvalidScoreError(uid, r.ItemID, s.Name())
			}
			diff := scores[i] - r.Rating
			sumSq += diff * diff
			sumAbs += math.Abs(diff)
			sumY += r.Rating
			ys = append(ys, r.Rating)
		}
	}

	n := float64(len(ys))
	mean := sumY / n
	var ssTot float64
	for _, y := range ys {
		ssTot += (y - mean) * (y - mean)
	}

	rep := Report{
		N:    len(ys),
		RMSE: math.Sqrt(sumSq / n),
		MAE:  sumAbs / n,
	}
	switch {
	case ssTot > 0:
		rep.R2 = 1 - sumSq/ssTot
	case sumSq == 0:
		rep.R2 = 1
	}
	return rep, nil
}
