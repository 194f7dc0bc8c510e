package model

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rushteam/simrec/core"
	"github.com/rushteam/simrec/metrics"
)

// RPCOptions 是远程打分服务的参数。
type RPCOptions struct {
	Name     string
	Endpoint string // 例如 "http://localhost:8501/score"

	// Timeout 是单个 HTTP 请求的超时（与调用方 ctx 取更早者）
	Timeout time.Duration

	// BatchSize 单次请求的最大物品数；Concurrency 并发请求数上限
	BatchSize   int
	Concurrency int

	// RateLimit 每秒请求数，0 表示不限流；Burst 默认等于 Concurrency
	RateLimit float64
	Burst     int

	// 连续失败 MaxFailures 次后熔断，OpenTimeout 后进入半开
	MaxFailures uint32
	OpenTimeout time.Duration

	// Protocol 默认 ProtocolSimple；ProtocolTFServing 时使用 TFServing 描述的签名
	Protocol  Protocol
	TFServing TFServingOptions

	Client *http.Client
	Logger zerolog.Logger
}

// RPCModel 通过 HTTP 调用外部模型服务（TF Serving / TorchServe / 自建服务）。
//
// 默认请求格式（JSON）：
//
//	{"user_id": 7, "item_ids": [30, 50]}
//
// 响应格式（JSON）：
//
//	{"scores": [0.9, 0.6]}
//
// TF Serving 格式见 ProtocolTFServing。候选按 BatchSize 分块并发请求；任一块失败则整批失败（不返回部分结果）。
type RPCModel struct {
	opts    RPCOptions
	codec   codec
	client  *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[[]float64]
	log     zerolog.Logger
}

type rpcRequest struct {
	UserID  int64   `json:"user_id"`
	ItemIDs []int64 `json:"item_ids"`
}

type rpcResponse struct {
	Scores []float64 `json:"scores"`
}

func NewRPCModel(opts RPCOptions) *RPCModel {
	if opts.Name == "" {
		opts.Name = "rpc"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 256
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	if opts.Burst <= 0 {
		opts.Burst = opts.Concurrency
	}

	m := &RPCModel{
		opts:   opts,
		codec:  newCodec(opts),
		client: opts.Client,
		log:    opts.Logger.With().Str("component", "rpc_model").Str("model", opts.Name).Logger(),
	}
	if m.client == nil {
		m.client = &http.Client{}
	}
	if opts.RateLimit > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst)
	}

	metrics.BreakerState.WithLabelValues(opts.Name).Set(0)
	m.cb = gobreaker.NewCircuitBreaker[[]float64](gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.MaxFailures
		},
		// 调用方取消不计入失败
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("scorer circuit breaker state change")
			metrics.BreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})
	return m
}

func (m *RPCModel) Name() string { return m.opts.Name }

func (m *RPCModel) Score(ctx context.Context, userID, itemID int64) (float64, error) {
	scores, err := m.ScoreBatch(ctx, userID, []int64{itemID})
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// ScoreBatch 分块并发打分，结果与 itemIDs 一一对应。
func (m *RPCModel) ScoreBatch(ctx context.Context, userID int64, itemIDs []int64) ([]float64, error) {
	out := make([]float64, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)
	for start := 0; start < len(itemIDs); start += m.opts.BatchSize {
		end := min(start+m.opts.BatchSize, len(itemIDs))
		chunk := itemIDs[start:end]
		offset := start
		g.Go(func() error {
			scores, err := m.execute(gctx, userID, chunk)
			if err != nil {
				return err
			}
			copy(out[offset:], scores)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, core.FromContext(core.ModuleModel, ctxErr)
		}
		return nil, err
	}
	return out, nil
}

func (m *RPCModel) execute(ctx context.Context, userID int64, itemIDs []int64) ([]float64, error) {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, core.FromContext(core.ModuleModel, err)
		}
	}

	scores, err := m.cb.Execute(func() ([]float64, error) {
		return m.call(ctx, userID, itemIDs)
	})
	switch {
	case err == nil:
		metrics.ScorerRequests.WithLabelValues(m.opts.Name, "success").Inc()
		return scores, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.ScorerRequests.WithLabelValues(m.opts.Name, "rejected").Inc()
		return nil, &core.DomainError{
			Module:  core.ModuleModel,
			Code:    core.ErrorCodeUnavailable,
			Message: "scorer " + m.opts.Name + " circuit open",
			UserID:  userID,
			Err:     err,
		}
	default:
		metrics.ScorerRequests.WithLabelValues(m.opts.Name, "failure").Inc()
		return nil, err
	}
}

func (m *RPCModel) call(ctx context.Context, userID int64, itemIDs []int64) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	body, err := m.codec.encode(userID, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.codec.url(m.opts.Endpoint), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, core.FromContext(core.ModuleModel, ctxErr)
		}
		return nil, &core.DomainError{
			Module:  core.ModuleModel,
			Code:    core.ErrorCodeUnavailable,
			Message: "rpc call to " + m.opts.Endpoint + " failed",
			UserID:  userID,
			Err:     err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &core.DomainError{
			Module:  core.ModuleModel,
			Code:    core.ErrorCodeUnavailable,
			Message: fmt.Sprintf("rpc status=%d body=%s", resp.StatusCode, bytes.TrimSpace(msg)),
			UserID:  userID,
		}
	}

	return m.codec.decode(resp.Body, len(itemIDs))
}

// breakerStateValue: 0 = closed, 1 = half-open, 2 = open
func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

var _ core.BatchScorer = (*RPCModel)(nil)
