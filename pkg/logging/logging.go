// Package logging 统一构造 zerolog.Logger。
//
// 库代码不持有全局 logger：组件以值的方式接收 zerolog.Logger，
// 并通过 With().Str("component", name) 派生子 logger。
//
//	log := logging.New(logging.Config{Level: "debug", Format: "console"})
//	p := pipeline.New(deps, pipeline.WithLogger(log))
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config 是日志配置。
type Config struct {
	// Level: trace, debug, info, warn, error, disabled（默认 info）
	Level string

	// Format: json 或 console（默认 json）
	Format string

	// Output 默认 os.Stderr
	Output io.Writer
}

// New 按配置构造 logger；未知级别按 info 处理。
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(out).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
}

// ParseLevel 把字符串级别转换为 zerolog.Level。
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Component 派生带 component 字段的子 logger。
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
