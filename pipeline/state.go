package pipeline

// State 是一次推荐运行所处的状态。
//
//	Idle → NeighborsResolved → CandidatesGenerated → Ranked → Persisted
//	任一步失败 → Failed
type State string

const (
	StateIdle                State = "idle"
	StateNeighborsResolved   State = "neighbors_resolved"
	StateCandidatesGenerated State = "candidates_generated"
	StateRanked              State = "ranked"
	StatePersisted           State = "persisted"
	StateFailed              State = "failed"
)

// Terminal 表示运行已结束（成功或失败）。
func (s State) Terminal() bool {
	return s == StatePersisted || s == StateFailed
}

// 阶段名称，写入错误上下文与指标标签。
const (
	StageRequest    = "request"
	StageNeighbors  = "neighbors"
	StageCandidates = "candidates"
	StageFilter     = "filter"
	StageRank       = "rank"
	StagePersist    = "persist"
)
