// Package builders 注册内置的打分模型与输出格式，并按配置组装完整的推荐链路。
package builders

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rushteam/simrec/config"
	"github.com/rushteam/simrec/core"
	"github.com/rushteam/simrec/model"
	"github.com/rushteam/simrec/sink"
)

func init() {
	config.RegisterScorer("table", BuildTableScorer)
	config.RegisterScorer("embedding", BuildEmbeddingScorer)
	config.RegisterScorer("rpc", BuildRPCScorer)
	config.RegisterSink("csv", BuildCSVSink)
	config.RegisterSink("json", BuildJSONSink)
	config.RegisterSink("kv", BuildKVSink)
}

func BuildTableScorer(cfg config.ScorerConfig, _ zerolog.Logger) (core.Scorer, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("scorer.path not set")
	}
	m, err := model.LoadTableModel(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("load table scorer: %w", err)
	}
	return m, nil
}

func BuildEmbeddingScorer(cfg config.ScorerConfig, _ zerolog.Logger) (core.Scorer, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("scorer.path not set")
	}
	m, err := model.LoadEmbeddingModel(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("load embedding scorer: %w", err)
	}
	return m, nil
}

func BuildRPCScorer(cfg config.ScorerConfig, log zerolog.Logger) (core.Scorer, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("scorer.endpoint not set")
	}
	protocol, err := model.ParseProtocol(cfg.Protocol)
	if err != nil {
		return nil, err
	}
	return model.NewRPCModel(model.RPCOptions{
		Name:        cfg.Name,
		Endpoint:    cfg.Endpoint,
		Protocol:    protocol,
		Timeout:     cfg.Timeout,
		BatchSize:   cfg.BatchSize,
		Concurrency: cfg.Concurrency,
		RateLimit:   cfg.RateLimit,
		Burst:       cfg.Burst,
		MaxFailures: cfg.Breaker.MaxFailures,
		OpenTimeout: cfg.Breaker.OpenTimeout,
		Logger:      log,
		TFServing: model.TFServingOptions{
			Model:     cfg.TFServing.Model,
			Version:   cfg.TFServing.Version,
			Signature: cfg.TFServing.Signature,
			UserInput: cfg.TFServing.UserInput,
			ItemInput: cfg.TFServing.ItemInput,
		},
	}), nil
}

func BuildCSVSink(cfg config.OutputConfig, _ core.Store) (core.Sink, error) {
	return sink.NewCSVSink(cfg.Dir, cfg.ExtraFields), nil
}

func BuildJSONSink(cfg config.OutputConfig, _ core.Store) (core.Sink, error) {
	return sink.NewJSONSink(cfg.Dir, cfg.ExtraFields), nil
}

func BuildKVSink(cfg config.OutputConfig, kv core.Store) (core.Sink, error) {
	if kv == nil {
		return nil, fmt.Errorf("kv output requires a store backend")
	}
	return sink.NewKVSink(kv, cfg.KeyPrefix, cfg.ExtraFields), nil
}
