package core

import "context"

// Store 是 KV 存储的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 遵循依赖倒置原则：领域层定义接口，基础设施层实现接口
//
// 使用场景：
//   - 交互表快照：用户 → (物品, 评分)
//   - 物品元数据
//   - 推荐结果落地（sink.KVSink）
//
// 实现：
//   - store.MemoryStore（测试/开发）
//   - store.RedisStore（生产）
//   - store.BadgerStore（嵌入式持久化）
type Store interface {
	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	// Get 读取单个 key 的值，不存在时返回 ErrStoreNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 写入单个 key-value
	Set(ctx context.Context, key string, value []byte) error

	// Delete 删除单个 key
	Delete(ctx context.Context, key string) error

	// BatchGet 批量读取（减少网络往返），不存在的 key 不出现在结果中
	BatchGet(ctx context.Context, keys []string) (map[string][]byte, error)

	// BatchSet 批量写入
	BatchSet(ctx context.Context, kvs map[string][]byte) error

	// Close 关闭连接/释放资源
	Close() error
}

// KeyValueStore 是 Store 的扩展接口，增加哈希表操作。
// 交互表按用户存为一个 Hash：field = itemID，value = rating。
type KeyValueStore interface {
	Store

	// HGet 读取 Hash 字段
	HGet(ctx context.Context, key, field string) ([]byte, error)

	// HSet 写入 Hash 字段
	HSet(ctx context.Context, key, field string, value []byte) error

	// HGetAll 读取整个 Hash；key 不存在时返回空 map
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
}

// HashBatchWriter 是 KeyValueStore 的可选扩展：一次调用写入多个 Hash 的字段。
// Redis 用 pipeline 实现，Badger 用 WriteBatch 实现；批量导入交互表时优先使用。
type HashBatchWriter interface {
	// BatchHSet 写入 hashes[key][field] = value；已有字段被覆盖，其他字段保留
	BatchHSet(ctx context.Context, hashes map[string]map[string][]byte) error
}

// Store 错误定义（使用统一的 DomainError）
var (
	// ErrStoreNotFound 表示 key 不存在
	ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: key not found")

	// ErrStoreNotSupported 表示操作不支持
	ErrStoreNotSupported = NewDomainError(ModuleStore, ErrorCodeNotSupported, "store: operation not supported")
)

// IsStoreNotFound 检查错误是否为 key 不存在
func IsStoreNotFound(err error) bool {
	domainErr := GetDomainError(err)
	if domainErr != nil && domainErr.Module == ModuleStore {
		return domainErr.Code == ErrorCodeNotFound
	}
	return false
}
