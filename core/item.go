package core

import "github.com/rushteam/simrec/pkg/utils"

// Item 是排序阶段的输出单元（ScoredCandidate）：物品 ID、分数、join 后的元数据、标签。
// Labels 用于解释与观测；Score 用于排序决策。
// 每个 ItemID 在一次推荐结果中只出现一次。
type Item struct {
	ID    int64
	Score float64

	// Meta 是 join 后的物品元数据（同一物品多次出现时首个生效）
	Meta *ItemMeta

	// Endorsement 是首个背书该物品的近邻及其评分（输出 sourceUserId 列）
	Endorsement Endorsement

	Labels map[string]utils.Label
}

func NewItem(id int64) *Item {
	return &Item{
		ID:     id,
		Labels: make(map[string]utils.Label),
	}
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (it *Item) PutLabel(key string, lbl utils.Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]utils.Label)
	}
	if old, ok := it.Labels[key]; ok {
		it.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	it.Labels[key] = lbl
}
