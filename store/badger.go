package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/rushteam/simrec/core"
)

// hash 字段的物理 key：h:{key}\x00{field}，同一个 hash 的字段共享前缀便于扫描。
const (
	badgerHashPrefix  = "h:"
	badgerValuePrefix = "v:"
	badgerHashSep     = "\x00"
)

// BadgerOptions 是嵌入式 Badger 的参数。
type BadgerOptions struct {
	Dir      string
	InMemory bool
}

// BadgerStore 是 Badger 实现的 KeyValueStore，适合单机持久化交互表快照。
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore 打开（或创建）Badger 数据库。
func OpenBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore 复用已打开的数据库，Close 时会一并关闭。
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (b *BadgerStore) Name() string { return "badger" }

func (b *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.get([]byte(badgerValuePrefix + key))
}

func (b *BadgerStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerValuePrefix+key), value)
	})
}

func (b *BadgerStore) Delete(ctx context.Context, key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(badgerValuePrefix + key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return b.deleteHash(txn, key)
	})
}

func (b *BadgerStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := make(map[string][]byte, len(keys))
	err := b.db.View(func(txn *badger.Txn) error {
		for _, k := range keys {
			item, err := txn.Get([]byte(badgerValuePrefix + k))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("get %s: %w", k, err)
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			result[k] = val
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// BatchSet 用 WriteBatch 写入，避免大批量时事务过大。
func (b *BadgerStore) BatchSet(ctx context.Context, kvs map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for k, v := range kvs {
		if err := wb.Set([]byte(badgerValuePrefix+k), v); err != nil {
			return fmt.Errorf("batch set %s: %w", k, err)
		}
	}
	return wb.Flush()
}

func (b *BadgerStore) HGet(ctx context.Context, key, field string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.get(hashField(key, field))
}

func (b *BadgerStore) HSet(ctx context.Context, key, field string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(hashField(key, field), value)
	})
}

// BatchHSet 与 BatchSet 一样走 WriteBatch，整批一次 Flush。
func (b *BadgerStore) BatchHSet(ctx context.Context, hashes map[string]map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for key, fields := range hashes {
		for f, v := range fields {
			if err := wb.Set(hashField(key, f), v); err != nil {
				return fmt.Errorf("batch hset %s: %w", key, err)
			}
		}
	}
	return wb.Flush()
}

func (b *BadgerStore) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := make(map[string][]byte)
	prefix := hashPrefix(key)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			field := string(item.Key()[len(prefix):])
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			result[field] = val
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func (b *BadgerStore) get(key []byte) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, core.ErrStoreNotFound
	}
	return val, err
}

func (b *BadgerStore) deleteHash(txn *badger.Txn, key string) error {
	prefix := hashPrefix(key)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func hashPrefix(key string) []byte {
	return []byte(badgerHashPrefix + key + badgerHashSep)
}

func hashField(key, field string) []byte {
	return []byte(badgerHashPrefix + key + badgerHashSep + field)
}

var (
	_ core.KeyValueStore   = (*BadgerStore)(nil)
	_ core.HashBatchWriter = (*BadgerStore)(nil)
)
