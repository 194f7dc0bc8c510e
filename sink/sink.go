// Package sink 把推荐结果落地为外部产物（CSV / JSON 文件、KV）。
//
// 产物只包含由输入决定的内容（不含 run id、时间戳），
// 相同的索引、交互表与模型快照产出逐字节相同的结果。
package sink

import (
	"context"
	"strconv"
	"strings"

	"github.com/rushteam/simrec/core"
)

// BaseColumns 是固定的前导列，顺序稳定，便于下游 diff。
var BaseColumns = []string{"itemId", "score", "title", "genres"}

// TrailingColumns 是固定的尾部列（首个背书的近邻）。
var TrailingColumns = []string{"sourceRating", "sourceUserId"}

// Columns 返回完整表头：itemId,score,title,genres,<extra...>,sourceRating,sourceUserId。
func Columns(extra []string) []string {
	cols := make([]string, 0, len(BaseColumns)+len(extra)+len(TrailingColumns))
	cols = append(cols, BaseColumns...)
	cols = append(cols, extra...)
	return append(cols, TrailingColumns...)
}

// Row 把一个物品渲染为与 Columns(extra) 对齐的一行。
func Row(it *core.Item, extra []string) []string {
	row := make([]string, 0, len(BaseColumns)+len(extra)+len(TrailingColumns))
	row = append(row, strconv.FormatInt(it.ID, 10), FormatFloat(it.Score))

	var title, genres string
	var fields map[string]string
	if it.Meta != nil {
		title = it.Meta.Title
		genres = strings.Join(it.Meta.Genres, "|")
		fields = it.Meta.Fields
	}
	row = append(row, title, genres)
	for _, f := range extra {
		row = append(row, fields[f])
	}

	if it.Endorsement.UserID != 0 {
		row = append(row, FormatFloat(it.Endorsement.Rating), strconv.FormatInt(it.Endorsement.UserID, 10))
	} else {
		row = append(row, "", "")
	}
	return row
}

// FormatFloat 使用最短的可往返表示，保证相同分数总是输出相同字节。
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// classify 把写出失败归类：ctx 结束 → TIMEOUT / CANCELED，其他 → PERSISTENCE。
func classify(ctx context.Context, sinkName string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return core.FromContext(core.ModuleSink, ctxErr)
	}
	if core.IsDomainError(err) {
		return err
	}
	return core.NewPersistenceError(sinkName, err)
}
