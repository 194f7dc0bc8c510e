package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rushteam/simrec/core"
)

// RedisOptions 是 Redis 连接参数。
type RedisOptions struct {
	Addr        string
	DB          int
	Password    string
	DialTimeout time.Duration
}

// RedisStore 把交互表和推荐结果放进 Redis：
// 每个用户的评分是一个 Hash（field = itemID），物品元数据、用户列表和推荐文档是 String。
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore 建立连接并 Ping 一次；连接失败返回 UNAVAILABLE。
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		DB:          opts.DB,
		Password:    opts.Password,
		DialTimeout: opts.DialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &core.DomainError{
			Module:  core.ModuleStore,
			Code:    core.ErrorCodeUnavailable,
			Message: fmt.Sprintf("redis %s unreachable", opts.Addr),
			Err:     err,
		}
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient 复用已有客户端（集群/哨兵由调用方构造）。
func NewRedisStoreFromClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Name() string { return "redis" }

// bytesOrNotFound 把 redis.Nil 映射为 core.ErrStoreNotFound。
func bytesOrNotFound(val []byte, err error) ([]byte, error) {
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrStoreNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	return bytesOrNotFound(r.client.Get(ctx, key).Bytes())
}

// Set 不设置过期时间；交互表快照和推荐文档都由下一次导入/运行覆盖。
func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

// Delete 删除 key；对 Hash 同样生效。
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// BatchGet 用一次 MGET 读取；不存在的 key 不出现在结果中。
func (r *RedisStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			result[keys[i]] = []byte(s)
		}
	}
	return result, nil
}

func (r *RedisStore) BatchSet(ctx context.Context, kvs map[string][]byte) error {
	if len(kvs) == 0 {
		return nil
	}
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range kvs {
			pipe.Set(ctx, k, v, 0)
		}
		return nil
	})
	return err
}

func (r *RedisStore) HGet(ctx context.Context, key, field string) ([]byte, error) {
	return bytesOrNotFound(r.client.HGet(ctx, key, field).Bytes())
}

func (r *RedisStore) HSet(ctx context.Context, key, field string, value []byte) error {
	return r.client.HSet(ctx, key, field, value).Err()
}

// BatchHSet 每个 Hash 一条多字段 HSET，整批在一个 pipeline 里发出。
func (r *RedisStore) BatchHSet(ctx context.Context, hashes map[string]map[string][]byte) error {
	if len(hashes) == 0 {
		return nil
	}
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, fields := range hashes {
			if len(fields) == 0 {
				continue
			}
			args := make(map[string]interface{}, len(fields))
			for f, v := range fields {
				args[f] = v
			}
			pipe.HSet(ctx, key, args)
		}
		return nil
	})
	return err
}

// HGetAll 对不存在的 key 返回空 map（Redis 语义）。
func (r *RedisStore) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	vals, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	result := make(map[string][]byte, len(vals))
	for f, v := range vals {
		result[f] = []byte(v)
	}
	return result, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

var (
	_ core.KeyValueStore   = (*RedisStore)(nil)
	_ core.HashBatchWriter = (*RedisStore)(nil)
)
