package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rushteam/simrec/core"
)

// 使用配置驱动时，需在 main 或入口处 import _ "github.com/rushteam/simrec/config/builders"
// 以触发内置打分模型（table、embedding、rpc）与输出（csv、json、kv）的 init 注册。

// ScorerBuilder 根据 scorer 配置构建打分模型。
type ScorerBuilder func(cfg ScorerConfig, log zerolog.Logger) (core.Scorer, error)

// SinkBuilder 根据 output 配置构建结果输出；kv 是当前存储后端，文件类输出可忽略。
type SinkBuilder func(cfg OutputConfig, kv core.Store) (core.Sink, error)

var (
	registryMu sync.RWMutex
	scorers    = make(map[string]ScorerBuilder)
	sinks      = make(map[string]SinkBuilder)
)

// RegisterScorer 注册一种打分模型类型。建议在 init 中调用。
func RegisterScorer(typeName string, builder ScorerBuilder) {
	if typeName == "" || builder == nil {
		return
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	scorers[typeName] = builder
}

// RegisterSink 注册一种输出格式。
func RegisterSink(format string, builder SinkBuilder) {
	if format == "" || builder == nil {
		return
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	sinks[format] = builder
}

// SupportedScorers 返回已注册的打分模型类型（排序），用于错误提示。
func SupportedScorers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return sortedNames(scorers)
}

// SupportedSinks 返回已注册的输出格式（排序）。
func SupportedSinks() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return sortedNames(sinks)
}

// BuildScorer 按 cfg.Type 查找并调用已注册的构建函数。
func BuildScorer(cfg ScorerConfig, log zerolog.Logger) (core.Scorer, error) {
	registryMu.RLock()
	b, ok := scorers[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported scorer type %q (supported: %v)", cfg.Type, SupportedScorers())
	}
	return b(cfg, log)
}

// BuildSink 按 cfg.Format 查找并调用已注册的构建函数。
func BuildSink(cfg OutputConfig, kv core.Store) (core.Sink, error) {
	registryMu.RLock()
	b, ok := sinks[cfg.Format]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported output format %q (supported: %v)", cfg.Format, SupportedSinks())
	}
	return b(cfg, kv)
}

func sortedNames[T any](m map[string]T) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
