// Package rerank 提供排序之后的确定性整理：排序、去重、Top-N 截断。
package rerank

import (
	"sort"

	"github.com/rushteam/simrec/core"
)

// SortByScore 按分数降序排序；分数相同时物品 ID 小的在前，保证跨运行可复现。
// 调用方需保证不存在 NaN 分数。
func SortByScore(items []*core.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ID < items[j].ID
	})
}

// Dedup 按物品 ID 去重，首个出现的生效；nil 被丢弃。
func Dedup(items []*core.Item) []*core.Item {
	seen := make(map[int64]struct{}, len(items))
	out := items[:0:0]
	for _, it := range items {
		if it == nil {
			continue
		}
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it)
	}
	return out
}

// TopN 截取前 n 个物品。
// n <= 0 时不截断；n > len(items) 时返回全部（不补齐）。
func TopN(items []*core.Item, n int) []*core.Item {
	if n <= 0 || len(items) <= n {
		return items
	}
	return items[:n]
}
