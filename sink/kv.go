package sink

import (
	"context"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/rushteam/simrec/core"
)

// KVSink 把结果作为 JSON 文档写入 {Prefix}:rec:{userID}（Redis / Badger / Memory）。
// 单 key 单次写入，读者看到的要么是旧结果要么是完整的新结果。
type KVSink struct {
	Store       core.Store
	Prefix      string
	ExtraFields []string
}

func NewKVSink(store core.Store, prefix string, extraFields []string) *KVSink {
	if prefix == "" {
		prefix = "simrec"
	}
	return &KVSink{Store: store, Prefix: prefix, ExtraFields: extraFields}
}

func (s *KVSink) Name() string { return "kv_" + s.Store.Name() }

func (s *KVSink) Key(userID int64) string {
	return s.Prefix + ":rec:" + strconv.FormatInt(userID, 10)
}

func (s *KVSink) Write(ctx context.Context, rec *core.Recommendation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", core.FromContext(core.ModuleSink, err)
	}
	data, err := json.Marshal(NewDocument(rec, s.ExtraFields))
	if err != nil {
		return "", core.NewPersistenceError(s.Name(), err)
	}
	key := s.Key(rec.UserID)
	if err := s.Store.Set(ctx, key, data); err != nil {
		return "", classify(ctx, s.Name(), err)
	}
	return key, nil
}

var _ core.Sink = (*KVSink)(nil)
