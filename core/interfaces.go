package core

import "context"

// NeighborIndex 是离线近邻索引的领域接口。
//
// 设计原则：
//   - 索引是不可变快照，查询无副作用，并发读不互相阻塞
//   - 距离度量与特征构造在建索引时确定，不属于查询契约
//
// 实现：
//   - neighbor.KNNIndex（进程内暴力 KNN）
type NeighborIndex interface {
	// Neighbors 返回 userID 最近的至多 k 个其他用户（最近的在前，不含自身）。
	// userID 不存在返回 UNKNOWN_USER；k 不在 [1, Size()-1] 返回 INVALID_PARAMETER。
	Neighbors(ctx context.Context, userID int64, k int) (NeighborSet, error)

	// Size 返回索引中的用户总数
	Size() int
}

// InteractionStore 是交互表与物品元数据的只读访问接口。
//
// 实现：
//   - store.Table（内存快照）
//   - store.KVInteractionStore（Redis / Badger / Memory KV）
type InteractionStore interface {
	// Name 返回存储名称（用于日志/监控）
	Name() string

	// InteractionsOf 返回用户的全部交互；没有交互时返回空切片而不是错误
	InteractionsOf(ctx context.Context, userID int64) ([]Interaction, error)

	// MetadataOf 返回物品元数据；不存在时返回 NOT_FOUND 领域错误
	MetadataOf(ctx context.Context, itemID int64) (*ItemMeta, error)
}

// Scorer 是打分模型的最小抽象：输入 (user, item)，输出一个可比较的分数。
// 在固定的模型快照下必须是 (user, item) 的纯函数。
// 具体实现可以是本地模型（Embedding / 预计算表）或远程 RPC。
//
// 并发：实现需支持不同参数的并发调用；不支持时用 model.SerialScorer 包装。
type Scorer interface {
	Name() string
	Score(ctx context.Context, userID, itemID int64) (float64, error)
}

// BatchScorer 是可选的批量打分接口，返回值与 itemIDs 一一对应。
type BatchScorer interface {
	Scorer
	ScoreBatch(ctx context.Context, userID int64, itemIDs []int64) ([]float64, error)
}

// Sink 是推荐结果的输出目标（文件、KV 等）。
// 失败的运行不得留下部分写入的结果。
type Sink interface {
	Name() string

	// Write 落地结果，返回产物位置（文件路径或 key）
	Write(ctx context.Context, rec *Recommendation) (string, error)
}
