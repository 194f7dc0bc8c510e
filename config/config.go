// Package config 定义 simrec 的运行配置，并按 默认值 → YAML 文件 → 环境变量 的顺序加载。
//
// 组件的构建逻辑在 config/builders 中，通过 RegisterScorer / RegisterSink 注册：
//
//	import _ "github.com/rushteam/simrec/config/builders"
package config

import (
	"fmt"
	"io"
	"math"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/simrec/core"
)

// Config 是完整配置。koanf tag 用于加载，yaml tag 用于 WriteYAML 输出。
type Config struct {
	Pipeline PipelineConfig `koanf:"pipeline" yaml:"pipeline"`
	Index    IndexConfig    `koanf:"index" yaml:"index"`
	Store    StoreConfig    `koanf:"store" yaml:"store"`
	Scorer   ScorerConfig   `koanf:"scorer" yaml:"scorer"`
	Output   OutputConfig   `koanf:"output" yaml:"output"`
	Filter   FilterConfig   `koanf:"filter" yaml:"filter"`
	Log      LogConfig      `koanf:"log" yaml:"log"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics"`
}

type PipelineConfig struct {
	NumNeighbors        int           `koanf:"num_neighbors" yaml:"num_neighbors"`
	TopK                int           `koanf:"top_k" yaml:"top_k"`
	PositivityThreshold float64       `koanf:"positivity_threshold" yaml:"positivity_threshold"`
	StageTimeout        time.Duration `koanf:"stage_timeout" yaml:"stage_timeout"`

	// Workers 是 batch 子命令的并发上限，0 表示 GOMAXPROCS
	Workers int `koanf:"workers" yaml:"workers"`
}

// IndexConfig 描述近邻索引。Path 存在时直接加载快照，否则从交互表现建。
type IndexConfig struct {
	Path       string `koanf:"path" yaml:"path"`
	Metric     string `koanf:"metric" yaml:"metric"`
	MeanCenter bool   `koanf:"mean_center" yaml:"mean_center"`
}

type StoreConfig struct {
	// Backend: memory | redis | badger
	Backend     string        `koanf:"backend" yaml:"backend"`
	RatingsPath string        `koanf:"ratings_path" yaml:"ratings_path"`
	MoviesPath  string        `koanf:"movies_path" yaml:"movies_path"`
	KeyPrefix   string        `koanf:"key_prefix" yaml:"key_prefix"`
	Timeout     time.Duration `koanf:"timeout" yaml:"timeout"`

	// Seed 为 true 时把 CSV 读入的交互表导入 KV 后端
	Seed bool `koanf:"seed" yaml:"seed"`

	Redis  RedisConfig  `koanf:"redis" yaml:"redis"`
	Badger BadgerConfig `koanf:"badger" yaml:"badger"`
}

type RedisConfig struct {
	Addr        string        `koanf:"addr" yaml:"addr"`
	DB          int           `koanf:"db" yaml:"db"`
	Password    string        `koanf:"password" yaml:"password,omitempty"`
	DialTimeout time.Duration `koanf:"dial_timeout" yaml:"dial_timeout"`
}

type BadgerConfig struct {
	Dir      string `koanf:"dir" yaml:"dir"`
	InMemory bool   `koanf:"in_memory" yaml:"in_memory"`
}

type ScorerConfig struct {
	// Type: table | embedding | rpc，或通过 RegisterScorer 注册的其他类型
	Type string `koanf:"type" yaml:"type"`
	Name string `koanf:"name" yaml:"name,omitempty"`

	// Path 是 table / embedding 模型文件
	Path string `koanf:"path" yaml:"path,omitempty"`

	// Protocol: simple | tfserving（仅 rpc）
	Protocol  string          `koanf:"protocol" yaml:"protocol"`
	TFServing TFServingConfig `koanf:"tfserving" yaml:"tfserving"`

	Endpoint    string        `koanf:"endpoint" yaml:"endpoint,omitempty"`
	Timeout     time.Duration `koanf:"timeout" yaml:"timeout"`
	BatchSize   int           `koanf:"batch_size" yaml:"batch_size"`
	Concurrency int           `koanf:"concurrency" yaml:"concurrency"`
	RateLimit   float64       `koanf:"rate_limit" yaml:"rate_limit"`
	Burst       int           `koanf:"burst" yaml:"burst"`
	Breaker     BreakerConfig `koanf:"breaker" yaml:"breaker"`

	// Serialize 为 true 时用互斥锁包装模型（非线程安全的模型）
	Serialize bool `koanf:"serialize" yaml:"serialize"`
}

type TFServingConfig struct {
	Model     string `koanf:"model" yaml:"model,omitempty"`
	Version   string `koanf:"version" yaml:"version,omitempty"`
	Signature string `koanf:"signature" yaml:"signature,omitempty"`
	UserInput string `koanf:"user_input" yaml:"user_input,omitempty"`
	ItemInput string `koanf:"item_input" yaml:"item_input,omitempty"`
}

type BreakerConfig struct {
	MaxFailures uint32        `koanf:"max_failures" yaml:"max_failures"`
	OpenTimeout time.Duration `koanf:"open_timeout" yaml:"open_timeout"`
}

type OutputConfig struct {
	// Format: csv | json | kv，或通过 RegisterSink 注册的其他格式
	Format      string   `koanf:"format" yaml:"format"`
	Dir         string   `koanf:"dir" yaml:"dir"`
	ExtraFields []string `koanf:"extra_fields" yaml:"extra_fields"`
	KeyPrefix   string   `koanf:"key_prefix" yaml:"key_prefix"`
}

type FilterConfig struct {
	Blacklist    []int64 `koanf:"blacklist" yaml:"blacklist"`
	BlacklistKey string  `koanf:"blacklist_key" yaml:"blacklist_key,omitempty"`

	// UserBlockPrefix 非空时启用用户屏蔽过滤（{prefix}:{uid}）
	UserBlockPrefix string `koanf:"user_block_prefix" yaml:"user_block_prefix,omitempty"`

	// Expr 是 CEL 表达式，为 true 时丢弃该物品
	Expr string `koanf:"expr" yaml:"expr,omitempty"`
}

type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled"`
	Addr    string `koanf:"addr" yaml:"addr"`
}

// Default 返回默认配置。
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			NumNeighbors:        core.DefaultNumNeighbors,
			TopK:                core.DefaultTopK,
			PositivityThreshold: core.DefaultPositivityThreshold,
			StageTimeout:        core.DefaultStageTimeout,
		},
		Index: IndexConfig{
			Metric: "euclidean",
		},
		Store: StoreConfig{
			Backend:     "memory",
			RatingsPath: "ratings.csv",
			MoviesPath:  "movies.csv",
			KeyPrefix:   "simrec",
			Timeout:     2 * time.Second,
			Seed:        true,
			Redis: RedisConfig{
				Addr:        "127.0.0.1:6379",
				DialTimeout: 5 * time.Second,
			},
			Badger: BadgerConfig{
				Dir: "data/badger",
			},
		},
		Scorer: ScorerConfig{
			Type:        "table",
			Path:        "predictions.json",
			Protocol:    "simple",
			Timeout:     2 * time.Second,
			BatchSize:   256,
			Concurrency: 4,
			Breaker: BreakerConfig{
				MaxFailures: 5,
				OpenTimeout: 30 * time.Second,
			},
		},
		Output: OutputConfig{
			Format:    "csv",
			Dir:       "out",
			KeyPrefix: "simrec",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// Validate 检查取值范围与枚举。
func (c *Config) Validate() error {
	p := c.Pipeline
	if p.NumNeighbors < 1 {
		return invalid("pipeline.num_neighbors must be positive, got %d", p.NumNeighbors)
	}
	if p.TopK < 1 {
		return invalid("pipeline.top_k must be positive, got %d", p.TopK)
	}
	if math.IsNaN(p.PositivityThreshold) || math.IsInf(p.PositivityThreshold, 0) {
		return invalid("pipeline.positivity_threshold must be finite")
	}
	if p.StageTimeout < 0 || p.Workers < 0 {
		return invalid("pipeline.stage_timeout and pipeline.workers must not be negative")
	}

	switch c.Index.Metric {
	case "", "euclidean", "cosine":
	default:
		return invalid("unknown index.metric %q", c.Index.Metric)
	}

	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Store.Redis.Addr == "" {
			return invalid("store.redis.addr is required for the redis backend")
		}
	case "badger":
		if c.Store.Badger.Dir == "" && !c.Store.Badger.InMemory {
			return invalid("store.badger.dir is required unless store.badger.in_memory is set")
		}
	default:
		return invalid("unknown store.backend %q", c.Store.Backend)
	}

	if c.Scorer.Type == "" {
		return invalid("scorer.type is required")
	}
	if c.Scorer.Type == "rpc" && c.Scorer.Endpoint == "" {
		return invalid("scorer.endpoint is required for the rpc scorer")
	}
	switch c.Scorer.Protocol {
	case "", "simple", "tfserving":
	default:
		return invalid("unknown scorer.protocol %q", c.Scorer.Protocol)
	}
	if c.Scorer.BatchSize < 0 || c.Scorer.Concurrency < 0 || c.Scorer.RateLimit < 0 {
		return invalid("scorer batch_size, concurrency and rate_limit must not be negative")
	}

	if c.Output.Format == "" {
		return invalid("output.format is required")
	}
	if (c.Output.Format == "csv" || c.Output.Format == "json") && c.Output.Dir == "" {
		return invalid("output.dir is required for the %s format", c.Output.Format)
	}

	switch c.Log.Format {
	case "", "json", "console":
	default:
		return invalid("unknown log.format %q", c.Log.Format)
	}
	return nil
}

// WriteYAML 输出生效中的配置。
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

func invalid(format string, args ...interface{}) error {
	return core.NewInvalidParameterError(core.ModuleConfig, format, args...)
}
