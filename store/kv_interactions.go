package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/rushteam/simrec/core"
)

// KVOptions 控制 KVInteractionStore 的 key 布局与超时。
type KVOptions struct {
	// KeyPrefix 是 key 前缀，默认 "simrec"
	//   用户交互：{KeyPrefix}:user:{userID}  Hash，field = itemID，value = rating
	//   物品元数据：{KeyPrefix}:item:{itemID} JSON
	//   用户列表：{KeyPrefix}:users           JSON 数组
	KeyPrefix string

	// Timeout 是单次存储调用的超时；0 表示只使用调用方 ctx
	Timeout time.Duration
}

// KVInteractionStore 在任意 core.KeyValueStore（Memory / Redis / Badger）之上
// 实现 core.InteractionStore。
type KVInteractionStore struct {
	kv      core.KeyValueStore
	prefix  string
	timeout time.Duration
}

func NewKVInteractionStore(kv core.KeyValueStore, opts KVOptions) *KVInteractionStore {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "simrec"
	}
	return &KVInteractionStore{kv: kv, prefix: prefix, timeout: opts.Timeout}
}

func (s *KVInteractionStore) Name() string { return "kv:" + s.kv.Name() }

func (s *KVInteractionStore) userKey(userID int64) string {
	return s.prefix + ":user:" + strconv.FormatInt(userID, 10)
}

func (s *KVInteractionStore) itemKey(itemID int64) string {
	return s.prefix + ":item:" + strconv.FormatInt(itemID, 10)
}

func (s *KVInteractionStore) usersKey() string { return s.prefix + ":users" }

func (s *KVInteractionStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// wrap 把调用失败分类：ctx 已结束时返回 TIMEOUT / CANCELED，否则返回 UNAVAILABLE。
func (s *KVInteractionStore) wrap(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return core.FromContext(core.ModuleStore, ctxErr)
	}
	if core.IsDomainError(err) {
		return err
	}
	return &core.DomainError{
		Module:  core.ModuleStore,
		Code:    core.ErrorCodeUnavailable,
		Message: fmt.Sprintf("%s %s failed", s.kv.Name(), op),
		Err:     err,
	}
}

// InteractionsOf 读取用户 Hash；key 不存在时返回空切片。结果按物品 ID 升序。
func (s *KVInteractionStore) InteractionsOf(ctx context.Context, userID int64) ([]core.Interaction, error) {
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()

	fields, err := s.kv.HGetAll(cctx, s.userKey(userID))
	if err != nil {
		return nil, s.wrap(cctx, "hgetall", err)
	}

	out := make([]core.Interaction, 0, len(fields))
	for f, v := range fields {
		itemID, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("user %d: bad item field %q: %w", userID, f, err)
		}
		rating, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return nil, fmt.Errorf("user %d item %d: bad rating %q: %w", userID, itemID, v, err)
		}
		out = append(out, core.Interaction{UserID: userID, ItemID: itemID, Rating: rating})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (s *KVInteractionStore) MetadataOf(ctx context.Context, itemID int64) (*core.ItemMeta, error) {
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := s.kv.Get(cctx, s.itemKey(itemID))
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, notFoundItem(itemID)
		}
		return nil, s.wrap(cctx, "get", err)
	}

	var meta core.ItemMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("item %d: decode metadata: %w", itemID, err)
	}
	return &meta, nil
}

// Users 返回导入时记录的用户列表。
func (s *KVInteractionStore) Users(ctx context.Context) ([]int64, error) {
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := s.kv.Get(cctx, s.usersKey())
	if err != nil {
		if core.IsStoreNotFound(err) {
			return []int64{}, nil
		}
		return nil, s.wrap(cctx, "get", err)
	}
	var users []int64
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("decode user list: %w", err)
	}
	return users, nil
}

// Interactions 读取全部交互，用于从 KV 后端构建近邻索引。
func (s *KVInteractionStore) Interactions(ctx context.Context) ([]core.Interaction, error) {
	users, err := s.Users(ctx)
	if err != nil {
		return nil, err
	}
	var out []core.Interaction
	for _, uid := range users {
		rows, err := s.InteractionsOf(ctx, uid)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// importBatchUsers 是 Import 单次批量写入的用户数上限。
const importBatchUsers = 500

// Import 把 Table 快照写入 KV。覆盖同名 key，不删除多余的旧数据。
//
// 交互按用户分组：后端实现 core.HashBatchWriter 时每 importBatchUsers 个用户一次调用，
// 否则逐字段 HSet。
func (s *KVInteractionStore) Import(ctx context.Context, t *Table) error {
	var (
		keys   []string
		hashes = make(map[string]map[string][]byte)
	)
	for _, in := range t.Interactions() {
		key := s.userKey(in.UserID)
		h, ok := hashes[key]
		if !ok {
			h = make(map[string][]byte)
			hashes[key] = h
			keys = append(keys, key)
		}
		h[strconv.FormatInt(in.ItemID, 10)] = []byte(strconv.FormatFloat(in.Rating, 'g', -1, 64))
	}

	for start := 0; start < len(keys); start += importBatchUsers {
		if err := ctx.Err(); err != nil {
			return core.FromContext(core.ModuleStore, err)
		}
		end := min(start+importBatchUsers, len(keys))
		chunk := make(map[string]map[string][]byte, end-start)
		for _, k := range keys[start:end] {
			chunk[k] = hashes[k]
		}
		if err := s.writeHashes(ctx, chunk); err != nil {
			return err
		}
	}

	items := t.Items()
	kvs := make(map[string][]byte, len(items)+1)
	for i := range items {
		data, err := json.Marshal(&items[i])
		if err != nil {
			return fmt.Errorf("encode item %d: %w", items[i].ItemID, err)
		}
		kvs[s.itemKey(items[i].ItemID)] = data
	}
	users, err := json.Marshal(t.Users())
	if err != nil {
		return fmt.Errorf("encode user list: %w", err)
	}
	kvs[s.usersKey()] = users

	if err := s.kv.BatchSet(ctx, kvs); err != nil {
		return s.wrap(ctx, "batch set", err)
	}
	return nil
}

func (s *KVInteractionStore) writeHashes(ctx context.Context, hashes map[string]map[string][]byte) error {
	if w, ok := s.kv.(core.HashBatchWriter); ok {
		if err := w.BatchHSet(ctx, hashes); err != nil {
			return s.wrap(ctx, "batch hset", err)
		}
		return nil
	}
	for key, fields := range hashes {
		for f, v := range fields {
			if err := s.kv.HSet(ctx, key, f, v); err != nil {
				return s.wrap(ctx, "hset", err)
			}
		}
	}
	return nil
}

var _ core.InteractionStore = (*KVInteractionStore)(nil)
