package builders

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/rushteam/simrec/config"
	"github.com/rushteam/simrec/core"
	"github.com/rushteam/simrec/filter"
	"github.com/rushteam/simrec/model"
	"github.com/rushteam/simrec/neighbor"
	"github.com/rushteam/simrec/pipeline"
	"github.com/rushteam/simrec/rank"
	"github.com/rushteam/simrec/recall"
	"github.com/rushteam/simrec/store"
)

// App 持有按配置组装好的全部组件。
type App struct {
	Config *config.Config

	// KV 是存储后端（memory / redis / badger），也供 kv 输出与过滤器使用
	KV core.KeyValueStore

	// Table 是从 CSV 读入的交互表；未配置 ratings_path 时为 nil
	Table *store.Table

	Interactions core.InteractionStore
	Index        *neighbor.KNNIndex
	Scorer       core.Scorer
	Pipeline     *pipeline.Pipeline

	log zerolog.Logger
}

// New 按配置组装链路。失败时已打开的资源会被关闭。
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *App, err error) {
	app := &App{Config: cfg, log: log}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	if app.KV, err = OpenStore(ctx, cfg.Store); err != nil {
		return nil, err
	}
	if err = app.loadInteractions(ctx); err != nil {
		return nil, err
	}
	if app.Index, err = app.openIndex(ctx); err != nil {
		return nil, err
	}

	scorer, err := config.BuildScorer(cfg.Scorer, log)
	if err != nil {
		return nil, err
	}
	scorer = model.Instrument(scorer)
	if cfg.Scorer.Serialize {
		scorer = model.NewSerialScorer(scorer)
	}
	app.Scorer = scorer

	filters, err := BuildFilters(cfg.Filter, app.KV)
	if err != nil {
		return nil, err
	}
	out, err := config.BuildSink(cfg.Output, app.KV)
	if err != nil {
		return nil, err
	}

	app.Pipeline, err = pipeline.New(pipeline.Deps{
		Index:      app.Index,
		Candidates: recall.NewNeighborCandidates(app.Interactions, cfg.Pipeline.PositivityThreshold),
		Filters:    filters,
		Metadata:   app.Interactions,
		Ranker:     rank.NewRanker(scorer, app.Interactions),
		Sink:       out,
	}, pipeline.WithLogger(log), pipeline.WithStageTimeout(cfg.Pipeline.StageTimeout))
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("store", app.KV.Name()).
		Str("interactions", app.Interactions.Name()).
		Int("users", app.Index.Size()).
		Str("index_version", app.Index.Version()).
		Str("scorer", scorer.Name()).
		Str("sink", out.Name()).
		Int("filters", len(filters)).
		Msg("pipeline assembled")
	return app, nil
}

// Batch 返回使用配置并发度的批量执行器。
func (a *App) Batch() *pipeline.BatchRunner {
	return &pipeline.BatchRunner{Pipeline: a.Pipeline, Workers: a.Config.Pipeline.Workers}
}

func (a *App) Close() error {
	if a.KV == nil {
		return nil
	}
	return a.KV.Close()
}

// OpenStore 按 backend 打开存储后端。
func OpenStore(ctx context.Context, cfg config.StoreConfig) (core.KeyValueStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "redis":
		s, err := store.NewRedisStore(ctx, store.RedisOptions{
			Addr:        cfg.Redis.Addr,
			DB:          cfg.Redis.DB,
			Password:    cfg.Redis.Password,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "badger":
		s, err := store.OpenBadgerStore(store.BadgerOptions{Dir: cfg.Badger.Dir, InMemory: cfg.Badger.InMemory})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
}

// loadInteractions 读取 CSV 交互表；memory 后端直接使用内存表，其余后端通过 KV 访问。
func (a *App) loadInteractions(ctx context.Context) error {
	cfg := a.Config.Store
	if cfg.RatingsPath != "" {
		tbl, err := store.LoadTableFiles(cfg.RatingsPath, cfg.MoviesPath)
		if err != nil {
			return err
		}
		a.Table = tbl
	}

	if cfg.Backend == "" || cfg.Backend == "memory" {
		if a.Table == nil {
			return core.NewInvalidParameterError(core.ModuleConfig, "store.ratings_path is required for the memory backend")
		}
		a.Interactions = a.Table
		return nil
	}

	kvs := store.NewKVInteractionStore(a.KV, store.KVOptions{KeyPrefix: cfg.KeyPrefix, Timeout: cfg.Timeout})
	if a.Table != nil && cfg.Seed {
		if err := kvs.Import(ctx, a.Table); err != nil {
			return fmt.Errorf("seed %s: %w", a.KV.Name(), err)
		}
		a.log.Info().Int("users", len(a.Table.Users())).Str("store", a.KV.Name()).Msg("interaction table imported")
	}
	a.Interactions = kvs
	return nil
}

// openIndex 优先加载快照，快照不存在时从交互表构建。
func (a *App) openIndex(ctx context.Context) (*neighbor.KNNIndex, error) {
	cfg := a.Config.Index
	if cfg.Path != "" {
		idx, err := neighbor.Load(cfg.Path)
		if err == nil {
			a.log.Debug().Str("path", cfg.Path).Str("version", idx.Version()).Msg("neighbor index loaded")
			return idx, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		a.log.Warn().Str("path", cfg.Path).Msg("index snapshot not found, building from interactions")
	}
	return BuildIndex(ctx, a.Config.Index, a.Table, a.Interactions)
}

// BuildIndex 从交互表构建近邻索引。tbl 为 nil 时从 KV 交互存储读取全量交互。
func BuildIndex(ctx context.Context, cfg config.IndexConfig, tbl *store.Table, src core.InteractionStore) (*neighbor.KNNIndex, error) {
	metric, err := neighbor.ParseMetric(cfg.Metric)
	if err != nil {
		return nil, core.NewInvalidParameterError(core.ModuleConfig, "%v", err)
	}

	var rows []core.Interaction
	switch {
	case tbl != nil:
		rows = tbl.Interactions()
	default:
		kvs, ok := src.(*store.KVInteractionStore)
		if !ok {
			return nil, core.NewInvalidParameterError(core.ModuleConfig, "no interaction source to build the index from")
		}
		if rows, err = kvs.Interactions(ctx); err != nil {
			return nil, err
		}
	}
	return neighbor.Build(rows, neighbor.BuildOptions{Metric: metric, MeanCenter: cfg.MeanCenter})
}

// BuildFilters 按配置构建业务过滤器，未配置时返回空。
func BuildFilters(cfg config.FilterConfig, kv core.Store) ([]filter.Filter, error) {
	var filters []filter.Filter
	if len(cfg.Blacklist) > 0 || cfg.BlacklistKey != "" {
		var s core.Store
		if cfg.BlacklistKey != "" {
			s = kv
		}
		filters = append(filters, filter.NewBlacklistFilter(cfg.Blacklist, s, cfg.BlacklistKey))
	}
	if cfg.UserBlockPrefix != "" {
		filters = append(filters, filter.NewUserBlockFilter(kv, cfg.UserBlockPrefix))
	}
	if cfg.Expr != "" {
		f, err := filter.NewExprFilter(cfg.Expr)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}
