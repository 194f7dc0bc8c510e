// Package pipeline 编排一次推荐：近邻 → 候选 → 过滤 → 排序 → 落地。
//
// Pipeline 本身无可变状态，可被多个 goroutine 并发调用；
// 不同用户的请求互不影响（见 BatchRunner）。运行内不做任何重试。
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rushteam/simrec/core"
	"github.com/rushteam/simrec/filter"
	"github.com/rushteam/simrec/metrics"
)

// CandidateGenerator 由 recall.NeighborCandidates 实现。
type CandidateGenerator interface {
	Generate(ctx context.Context, targetUserID int64, neighbors core.NeighborSet) (*core.Candidates, error)
}

// Ranker 由 rank.Ranker 实现。
type Ranker interface {
	Rank(ctx context.Context, userID int64, cands *core.Candidates, topK int) ([]*core.Item, error)
}

// Deps 是 Pipeline 的协作者；除 Filters 外均为必填。
type Deps struct {
	Index      core.NeighborIndex
	Candidates CandidateGenerator
	Filters    []filter.Filter
	Metadata   core.InteractionStore // 元数据过滤器使用
	Ranker     Ranker
	Sink       core.Sink
}

// Request 是一次推荐请求。
type Request struct {
	UserID       int64 `json:"user_id"`
	NumNeighbors int   `json:"num_neighbors"`
	TopK         int   `json:"top_k"`
}

// Result 是一次运行的完整记录。Err 非空时 State == StateFailed，
// FailedStage 指出失败阶段；成功时 Artifact 是产物位置。
type Result struct {
	RunID       string
	UserID      int64
	State       State
	FailedStage string

	Neighbors  core.NeighborSet
	Candidates *core.Candidates
	Items      []*core.Item

	// Empty 表示成功运行但没有可推荐的物品（区别于失败）
	Empty bool

	Artifact string
	Duration time.Duration
	Err      error
}

// Pipeline 是推荐链路的状态机。
type Pipeline struct {
	deps         Deps
	stageTimeout time.Duration
	newRunID     func() string
	log          zerolog.Logger
}

// Option 配置 Pipeline。
type Option func(*Pipeline)

func WithLogger(log zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithStageTimeout 为每个外部阶段设置超时；<= 0 表示只使用调用方 ctx。
func WithStageTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.stageTimeout = d }
}

// WithRunIDGenerator 替换 run id 生成器（默认 UUIDv4）。
func WithRunIDGenerator(fn func() string) Option {
	return func(p *Pipeline) { p.newRunID = fn }
}

func New(deps Deps, opts ...Option) (*Pipeline, error) {
	switch {
	case deps.Index == nil:
		return nil, core.NewInvalidParameterError(core.ModulePipeline, "neighbor index is required")
	case deps.Candidates == nil:
		return nil, core.NewInvalidParameterError(core.ModulePipeline, "candidate generator is required")
	case deps.Ranker == nil:
		return nil, core.NewInvalidParameterError(core.ModulePipeline, "ranker is required")
	case deps.Sink == nil:
		return nil, core.NewInvalidParameterError(core.ModulePipeline, "sink is required")
	}

	p := &Pipeline{
		deps:         deps,
		stageTimeout: core.DefaultStageTimeout,
		newRunID:     uuid.NewString,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With().Str("component", "pipeline").Logger()
	return p, nil
}

// Run 执行一次推荐。返回的 error 与 Result.Err 相同；Result 总是非 nil。
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	r := &run{
		p:     p,
		res:   &Result{RunID: p.newRunID(), UserID: req.UserID, State: StateIdle},
		start: time.Now(),
	}
	r.log = p.log.With().Str("run_id", r.res.RunID).Int64("user_id", req.UserID).Logger()
	r.execute(ctx, req)
	r.finish()
	return r.res, r.res.Err
}

type run struct {
	p     *Pipeline
	res   *Result
	start time.Time
	log   zerolog.Logger
}

func (r *run) execute(ctx context.Context, req Request) {
	if req.UserID <= 0 {
		r.fail(StageRequest, core.NewInvalidParameterError(core.ModulePipeline, "user id must be positive, got %d", req.UserID))
		return
	}
	if req.TopK < 1 {
		r.fail(StageRequest, core.NewInvalidParameterError(core.ModulePipeline, "top_k must be positive, got %d", req.TopK))
		return
	}

	// Idle → NeighborsResolved
	err := r.stage(ctx, StageNeighbors, func(sctx context.Context) error {
		set, err := r.p.deps.Index.Neighbors(sctx, req.UserID, req.NumNeighbors)
		r.res.Neighbors = set
		return err
	})
	if err != nil {
		return
	}
	r.transition(StateNeighborsResolved)

	// NeighborsResolved → CandidatesGenerated
	var cands *core.Candidates
	err = r.stage(ctx, StageCandidates, func(sctx context.Context) error {
		var err error
		cands, err = r.p.deps.Candidates.Generate(sctx, req.UserID, r.res.Neighbors)
		return err
	})
	if err != nil {
		return
	}
	if len(r.p.deps.Filters) > 0 && !cands.Empty() {
		rctx := &core.RecommendContext{UserID: req.UserID, RunID: r.res.RunID}
		err = r.stage(ctx, StageFilter, func(sctx context.Context) error {
			var err error
			cands, err = filter.Apply(sctx, rctx, r.p.deps.Filters, cands, r.p.deps.Metadata)
			return err
		})
		if err != nil {
			return
		}
	}
	r.res.Candidates = cands
	r.res.Empty = cands.Empty()
	metrics.Candidates.Observe(float64(cands.Len()))
	r.transition(StateCandidatesGenerated)

	// CandidatesGenerated → Ranked；空候选集不调用 Ranker
	items := []*core.Item{}
	if !r.res.Empty {
		err = r.stage(ctx, StageRank, func(sctx context.Context) error {
			var err error
			items, err = r.p.deps.Ranker.Rank(sctx, req.UserID, cands, req.TopK)
			return err
		})
		if err != nil {
			return
		}
	}
	r.res.Items = items
	r.transition(StateRanked)

	// Ranked → Persisted
	rec := &core.Recommendation{RunID: r.res.RunID, UserID: req.UserID, Items: items}
	err = r.stage(ctx, StagePersist, func(sctx context.Context) error {
		var err error
		r.res.Artifact, err = r.p.deps.Sink.Write(sctx, rec)
		return err
	})
	if err != nil {
		return
	}
	r.transition(StatePersisted)
}

// stage 在取消检查与阶段超时下执行 fn，失败时把运行转入 Failed。
func (r *run) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return r.fail(name, core.FromContext(core.ModulePipeline, err))
	}

	sctx, cancel := ctx, context.CancelFunc(func() {})
	if r.p.stageTimeout > 0 {
		sctx, cancel = context.WithTimeout(ctx, r.p.stageTimeout)
	}
	defer cancel()

	begin := time.Now()
	err := fn(sctx)
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(begin).Seconds())
	if err == nil {
		return nil
	}
	if ctxErr := sctx.Err(); ctxErr != nil && !core.IsDomainError(err) {
		err = core.FromContext(core.ModulePipeline, ctxErr)
	}
	return r.fail(name, err)
}

func (r *run) transition(to State) {
	r.log.Debug().Str("from", string(r.res.State)).Str("to", string(to)).Msg("state transition")
	r.res.State = to
}

// fail 把错误规范化为带阶段与用户上下文的 DomainError。
func (r *run) fail(stage string, err error) error {
	de := core.GetDomainError(err)
	if de == nil {
		de = &core.DomainError{
			Module:  core.ModulePipeline,
			Code:    core.ErrorCodeInternalError,
			Message: "stage " + stage + " failed",
			Err:     err,
		}
	}
	de = de.WithStage(stage).WithUser(r.res.UserID)

	r.res.State = StateFailed
	r.res.FailedStage = stage
	r.res.Err = de
	return de
}

func (r *run) finish() {
	r.res.Duration = time.Since(r.start)
	metrics.PipelineRuns.WithLabelValues(string(r.res.State)).Inc()

	if r.res.Err != nil {
		ev := r.log.Error().Err(r.res.Err).Str("stage", r.res.FailedStage)
		if de := core.GetDomainError(r.res.Err); de != nil {
			ev = ev.Str("code", de.Code)
			if de.ItemID != 0 {
				ev = ev.Int64("item_id", de.ItemID)
			}
		}
		ev.Dur("latency", r.res.Duration).Msg("recommendation run failed")
		return
	}

	r.log.Info().
		Str("state", string(r.res.State)).
		Int("neighbors", r.res.Neighbors.Len()).
		Int("candidates", r.res.Candidates.Len()).
		Int("returned", len(r.res.Items)).
		Bool("empty", r.res.Empty).
		Str("artifact", r.res.Artifact).
		Dur("latency", r.res.Duration).
		Msg("recommendation run finished")
}
