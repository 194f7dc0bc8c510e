// Package store 提供 core.Store / core.KeyValueStore 的存储实现，
// 以及基于它们的 core.InteractionStore（交互表 + 物品元数据）。
//
// 注意：接口定义在 core 包，此包只包含实现。
//
//	var kv core.KeyValueStore = store.NewMemoryStore()
//	var is core.InteractionStore = store.NewKVInteractionStore(kv, store.KVOptions{})
package store

import "errors"

var errClosed = errors.New("store: closed")
