package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/rushteam/simrec/core"
	"github.com/rushteam/simrec/pkg/atomicfile"
)

// FileSink 把结果写到 <Dir>/user_<id>_rec.<ext>，先写临时文件再原子 rename。
// 失败或取消时不会留下部分写入的文件。
type FileSink struct {
	Dir string

	// ExtraFields 是额外输出的元数据列（ItemMeta.Fields 中的 key）
	ExtraFields []string

	format string
	encode func(w io.Writer, rec *core.Recommendation, extra []string) error
}

// NewCSVSink 输出 CSV（表头 + 每个物品一行）。
func NewCSVSink(dir string, extraFields []string) *FileSink {
	return &FileSink{Dir: dir, ExtraFields: extraFields, format: "csv", encode: encodeCSV}
}

// NewJSONSink 输出 JSON 文档。
func NewJSONSink(dir string, extraFields []string) *FileSink {
	return &FileSink{Dir: dir, ExtraFields: extraFields, format: "json", encode: encodeJSON}
}

func (s *FileSink) Name() string { return s.format + "_file" }

// Path 返回用户结果文件路径。
func (s *FileSink) Path(userID int64) string {
	return filepath.Join(s.Dir, "user_"+strconv.FormatInt(userID, 10)+"_rec."+s.format)
}

func (s *FileSink) Write(ctx context.Context, rec *core.Recommendation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", core.FromContext(core.ModuleSink, err)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", core.NewPersistenceError(s.Name(), err)
	}

	path := s.Path(rec.UserID)
	err := atomicfile.Write(ctx, path, func(w io.Writer) error {
		return s.encode(w, rec, s.ExtraFields)
	})
	if err != nil {
		return "", classify(ctx, s.Name(), err)
	}
	return path, nil
}

func encodeCSV(w io.Writer, rec *core.Recommendation, extra []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns(extra)); err != nil {
		return err
	}
	for _, it := range rec.Items {
		if err := cw.Write(Row(it, extra)); err != nil {
			return fmt.Errorf("write item %d: %w", it.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func encodeJSON(w io.Writer, rec *core.Recommendation, extra []string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewDocument(rec, extra))
}

var _ core.Sink = (*FileSink)(nil)
