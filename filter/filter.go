// Package filter 提供候选集上的业务过滤规则（黑名单、用户拉黑、CEL 表达式）。
// 过滤器只会移除候选，不会新增，候选集的不变量（无重复、不含已看过的物品）保持成立。
package filter

import (
	"context"

	"github.com/rushteam/simrec/core"
)

// Filter 是过滤器的抽象接口，用于判断一个候选是否应该被过滤掉。
// 返回 true 表示应该过滤（移除），false 表示保留。
type Filter interface {
	// Name 返回过滤器名称
	Name() string

	// ShouldFilter 判断 item 是否应该被过滤
	ShouldFilter(ctx context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error)
}

// MetadataFilter 是需要物品元数据的过滤器；Apply 会在调用前 join 元数据，
// 元数据缺失时返回 MISSING_METADATA。
type MetadataFilter interface {
	Filter
	NeedsMetadata() bool
}
