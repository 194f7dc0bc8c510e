package filter

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/rushteam/simrec/core"
)

// BlacklistFilter 是黑名单过滤器，过滤掉黑名单中的物品。
type BlacklistFilter struct {
	ids map[int64]struct{}

	// Store 用于从存储中读取黑名单（可选），值为 JSON 数组 [1, 2, 3]
	Store core.Store

	// Key 是 Store 中的黑名单 key（可选）
	Key string
}

// NewBlacklistFilter 创建一个黑名单过滤器。
func NewBlacklistFilter(itemIDs []int64, store core.Store, key string) *BlacklistFilter {
	ids := make(map[int64]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		ids[id] = struct{}{}
	}
	return &BlacklistFilter{ids: ids, Store: store, Key: key}
}

func (f *BlacklistFilter) Name() string {
	return "filter.blacklist"
}

func (f *BlacklistFilter) ShouldFilter(ctx context.Context, _ *core.RecommendContext, item *core.Item) (bool, error) {
	if item == nil {
		return true, nil
	}
	if _, ok := f.ids[item.ID]; ok {
		return true, nil
	}

	if f.Store != nil && f.Key != "" {
		blacklist, err := loadIDs(ctx, f.Store, f.Key)
		if err != nil {
			return false, err
		}
		_, ok := blacklist[item.ID]
		return ok, nil
	}
	return false, nil
}

// loadIDs 读取 JSON 数组形式的 ID 列表；key 不存在视为空列表。
func loadIDs(ctx context.Context, s core.Store, key string) (map[int64]struct{}, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}
