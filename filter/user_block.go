package filter

import (
	"context"
	"strconv"
	"sync"

	"github.com/rushteam/simrec/core"
)

// UserBlockFilter 是用户拉黑过滤器，过滤掉用户拉黑的物品。
// 拉黑列表存于 {KeyPrefix}:{userID}，值为 JSON 数组；每个用户只读取一次。
type UserBlockFilter struct {
	Store core.Store

	// KeyPrefix 默认 "user:block"
	KeyPrefix string

	mu    sync.Mutex
	cache map[int64]map[int64]struct{}
}

func NewUserBlockFilter(store core.Store, keyPrefix string) *UserBlockFilter {
	if keyPrefix == "" {
		keyPrefix = "user:block"
	}
	return &UserBlockFilter{Store: store, KeyPrefix: keyPrefix}
}

func (f *UserBlockFilter) Name() string {
	return "filter.user_block"
}

func (f *UserBlockFilter) ShouldFilter(ctx context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error) {
	if item == nil || rctx == nil || rctx.UserID <= 0 || f.Store == nil {
		return false, nil
	}
	blocked, err := f.blocked(ctx, rctx.UserID)
	if err != nil {
		return false, err
	}
	_, ok := blocked[item.ID]
	return ok, nil
}

func (f *UserBlockFilter) blocked(ctx context.Context, userID int64) (map[int64]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if set, ok := f.cache[userID]; ok {
		return set, nil
	}
	set, err := loadIDs(ctx, f.Store, f.KeyPrefix+":"+strconv.FormatInt(userID, 10))
	if err != nil {
		return nil, err
	}
	if f.cache == nil {
		f.cache = make(map[int64]map[int64]struct{})
	}
	f.cache[userID] = set
	return set, nil
}
