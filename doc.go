// Package simrec 是基于近邻用户（user-based CF）的电影推荐链路。
//
// 一次推荐依次经过：
//
//	NeighborIndex → 候选生成（u2u2i）→ 业务过滤 → 打分排序（Top-K）→ 落地输出
//
// 设计要点：
// - 状态机驱动：Idle → NeighborsResolved → CandidatesGenerated → Ranked → Persisted，任一步失败进入 Failed
// - 错误带上下文：core.DomainError 携带阶段、用户与物品，失败只在链路边界记录一次
// - 配置驱动：config.Load + config/builders 按配置组装存储、模型与输出
package simrec

import "github.com/rushteam/simrec/pipeline"

// 轻量 facade：便于直接 import "simrec" 使用核心抽象。
type (
	Pipeline = pipeline.Pipeline
	Request  = pipeline.Request
	Result   = pipeline.Result
	State    = pipeline.State
)

const (
	StateIdle                = pipeline.StateIdle
	StateNeighborsResolved   = pipeline.StateNeighborsResolved
	StateCandidatesGenerated = pipeline.StateCandidatesGenerated
	StateRanked              = pipeline.StateRanked
	StatePersisted           = pipeline.StatePersisted
	StateFailed              = pipeline.StateFailed
)
