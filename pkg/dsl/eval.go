// Package dsl 是基于 CEL (Common Expression Language) 的规则表达式，
// 用于在候选物品及其元数据上描述业务规则。
package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/simrec/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("item", cel.MapType(cel.StringType, cel.DynType)),
			cel.Variable("user", cel.MapType(cel.StringType, cel.DynType)),
			cel.Variable("label", cel.MapType(cel.StringType, cel.StringType)),
		)
	})
	return celEnv, celEnvErr
}

// Program 是编译后的表达式，可被多个 goroutine 并发求值。
//
// 可用变量：
//   - item.id (int) / item.title (string) / item.genres (list<string>) / item.fields (map<string,string>)
//   - item.source_user (int) / item.source_rating (double)：首个背书的近邻及其评分
//   - user.id (int)
//   - label.<key> (string)：物品上的 Label 值
//
// 示例：
//   - `"Horror" in item.genres`
//   - `has(item.fields.year) && item.fields.year < "1980"`
//   - `item.source_rating >= 4.5 || user.id == 1`
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式；表达式必须返回 bool。
func Compile(expr string) (*Program, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return nil, fmt.Errorf("expression %q must return bool, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	return &Program{expr: expr, prg: prg}, nil
}

func (p *Program) String() string { return p.expr }

// Eval 对单个物品求值。
func (p *Program) Eval(item *core.Item, rctx *core.RecommendContext) (bool, error) {
	out, _, err := p.prg.Eval(buildInput(item, rctx))
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", p.expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression %q must return boolean, got %T", p.expr, out.Value())
	}
	return result, nil
}

func buildInput(item *core.Item, rctx *core.RecommendContext) map[string]any {
	it := map[string]any{
		"id":            item.ID,
		"score":         item.Score,
		"title":         "",
		"genres":        []any{},
		"fields":        map[string]any{},
		"source_user":   item.Endorsement.UserID,
		"source_rating": item.Endorsement.Rating,
	}
	if m := item.Meta; m != nil {
		it["title"] = m.Title
		genres := make([]any, len(m.Genres))
		for i, g := range m.Genres {
			genres[i] = g
		}
		it["genres"] = genres
		fields := make(map[string]any, len(m.Fields))
		for k, v := range m.Fields {
			fields[k] = v
		}
		it["fields"] = fields
	}

	labels := make(map[string]string, len(item.Labels))
	for k, v := range item.Labels {
		labels[k] = v.Value
	}

	user := map[string]any{"id": int64(0)}
	if rctx != nil {
		user["id"] = rctx.UserID
	}

	return map[string]any{
		"item":  it,
		"user":  user,
		"label": labels,
	}
}
