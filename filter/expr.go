package filter

import (
	"context"

	"github.com/rushteam/simrec/core"
	"github.com/rushteam/simrec/pkg/dsl"
)

// ExprFilter 用 CEL 表达式描述过滤规则，表达式为 true 时过滤。
//
// 示例：
//   - `"Horror" in item.genres`
//   - `item.fields.year < "1980"`
//   - `item.title.contains("Christmas") && user.id != 42`
type ExprFilter struct {
	prg *dsl.Program
}

// NewExprFilter 编译表达式；语法或类型错误在构造时返回。
func NewExprFilter(expr string) (*ExprFilter, error) {
	prg, err := dsl.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &ExprFilter{prg: prg}, nil
}

func (f *ExprFilter) Name() string { return "filter.expr" }

func (f *ExprFilter) NeedsMetadata() bool { return true }

func (f *ExprFilter) ShouldFilter(_ context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error) {
	if item.Meta == nil {
		return false, core.NewMissingMetadataError(core.ModuleFilter, item.ID)
	}
	return f.prg.Eval(item, rctx)
}

var _ MetadataFilter = (*ExprFilter)(nil)
