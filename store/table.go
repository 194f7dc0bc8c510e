package store

import (
	"context"
	"sort"

	"github.com/rushteam/simrec/core"
)

// Table 是交互表 + 物品元数据的不可变内存快照，实现 core.InteractionStore。
// 构建后只读，可被任意多个 Pipeline 并发共享。
type Table struct {
	name   string
	byUser map[int64][]core.Interaction
	meta   map[int64]*core.ItemMeta
	users  []int64
	rows   []core.Interaction
}

// NewTable 校验并构建快照：
//   - 同一 (user, item) 出现多次返回 INVALID_PARAMETER
//   - ID 非正返回 INVALID_PARAMETER
//   - 元数据重复时首个生效
func NewTable(interactions []core.Interaction, items []core.ItemMeta) (*Table, error) {
	t := &Table{
		name:   "table",
		byUser: make(map[int64][]core.Interaction),
		meta:   make(map[int64]*core.ItemMeta, len(items)),
	}

	seen := make(map[[2]int64]struct{}, len(interactions))
	for _, in := range interactions {
		if in.UserID <= 0 || in.ItemID <= 0 {
			return nil, core.NewInvalidParameterError(core.ModuleStore,
				"non-positive id in interaction (user=%d item=%d)", in.UserID, in.ItemID)
		}
		key := [2]int64{in.UserID, in.ItemID}
		if _, dup := seen[key]; dup {
			return nil, core.NewInvalidParameterError(core.ModuleStore,
				"duplicate interaction for user=%d item=%d", in.UserID, in.ItemID)
		}
		seen[key] = struct{}{}
		t.byUser[in.UserID] = append(t.byUser[in.UserID], in)
	}

	for uid, rows := range t.byUser {
		sort.Slice(rows, func(i, j int) bool { return rows[i].ItemID < rows[j].ItemID })
		t.users = append(t.users, uid)
	}
	sort.Slice(t.users, func(i, j int) bool { return t.users[i] < t.users[j] })
	for _, uid := range t.users {
		t.rows = append(t.rows, t.byUser[uid]...)
	}

	for i := range items {
		m := items[i]
		if m.ItemID <= 0 {
			return nil, core.NewInvalidParameterError(core.ModuleStore, "non-positive item id %d in metadata", m.ItemID)
		}
		if _, ok := t.meta[m.ItemID]; ok {
			continue
		}
		t.meta[m.ItemID] = &m
	}
	return t, nil
}

func (t *Table) Name() string { return t.name }

// InteractionsOf 返回用户的交互（按物品 ID 升序）；没有交互时返回空切片。
func (t *Table) InteractionsOf(ctx context.Context, userID int64) ([]core.Interaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.FromContext(core.ModuleStore, err)
	}
	rows := t.byUser[userID]
	return append(make([]core.Interaction, 0, len(rows)), rows...), nil
}

func (t *Table) MetadataOf(ctx context.Context, itemID int64) (*core.ItemMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.FromContext(core.ModuleStore, err)
	}
	m, ok := t.meta[itemID]
	if !ok {
		return nil, notFoundItem(itemID)
	}
	cp := *m
	return &cp, nil
}

// Users 返回有交互记录的用户 ID（升序）。
func (t *Table) Users() []int64 { return append([]int64(nil), t.users...) }

// Interactions 返回全部交互（按用户、物品 ID 升序）。
func (t *Table) Interactions() []core.Interaction {
	return append([]core.Interaction(nil), t.rows...)
}

// Items 返回全部物品元数据（按物品 ID 升序）。
func (t *Table) Items() []core.ItemMeta {
	out := make([]core.ItemMeta, 0, len(t.meta))
	for _, m := range t.meta {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

func notFoundItem(itemID int64) *core.DomainError {
	return &core.DomainError{
		Module:  core.ModuleStore,
		Code:    core.ErrorCodeNotFound,
		Message: "item metadata not found",
		ItemID:  itemID,
	}
}

var _ core.InteractionStore = (*Table)(nil)
