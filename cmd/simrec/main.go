// Command simrec 是基于近邻用户的电影推荐命令行工具。
//
// 用法：
//
//	simrec index     [-config c.yaml] [-out index.json]
//	simrec recommend [-config c.yaml] <user_id> <num_similar_users> <num_films>
//	simrec batch     [-config c.yaml] [-k1 N] [-k2 M] <user_id>...
//	simrec evaluate  [-config c.yaml] -test ratings.csv
//
// 所有子命令都支持 -print-config，输出生效中的配置后退出。
// 配置按 默认值 → YAML 文件 → SIMREC_* 环境变量 叠加，例如 SIMREC_PIPELINE__TOP_K=20。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rushteam/simrec/config"
	"github.com/rushteam/simrec/config/builders"
	"github.com/rushteam/simrec/pkg/logging"
)

// errRunFailed 表示失败已由 pipeline 记录，main 只需设置退出码。
var errRunFailed = errors.New("run failed")

const usage = `usage: simrec <command> [flags] [args]

commands:
  index      build the neighbor index snapshot
  recommend  <user_id> <num_similar_users> <num_films>
  batch      recommend for several users in parallel
  evaluate   score held-out ratings and report RMSE/MAE/R2
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	boot := logging.New(logging.Config{Output: stderr})
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to YAML config (default $"+config.PathEnvVar+")")
	printConfig := fs.Bool("print-config", false, "print the effective configuration and exit")
	bind := cmd.flags(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Error().Err(err).Msg("load config")
		return 1
	}
	if *printConfig {
		if err := cfg.WriteYAML(stdout); err != nil {
			boot.Error().Err(err).Msg("print config")
			return 1
		}
		return 0
	}

	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: stderr})
	if cfg.Metrics.Enabled {
		shutdown := serveMetrics(cfg.Metrics.Addr, log)
		defer shutdown()
	}

	e := &env{cfg: cfg, log: log, stdout: stdout, args: fs.Args()}
	if err := bind(ctx, e); err != nil {
		if !errors.Is(err, errRunFailed) {
			log.Error().Err(err).Str("command", args[0]).Msg("command failed")
		}
		return 1
	}
	return 0
}

// env 是子命令的执行环境。
type env struct {
	cfg    *config.Config
	log    zerolog.Logger
	stdout io.Writer
	args   []string
}

type command struct {
	// flags 注册子命令专属参数，返回在参数解析后执行的函数
	flags func(fs *flag.FlagSet) func(ctx context.Context, e *env) error
}

var commands = map[string]command{
	"index":     {flags: indexFlags},
	"recommend": {flags: recommendFlags},
	"batch":     {flags: batchFlags},
	"evaluate":  {flags: evaluateFlags},
}

func (e *env) app(ctx context.Context) (*builders.App, error) {
	return builders.New(ctx, e.cfg, e.log)
}

func positiveInt(name, s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, s)
	}
	return n, nil
}

// serveMetrics 在后台暴露 /metrics，返回关闭函数。
func serveMetrics(addr string, log zerolog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Str("addr", addr).Msg("metrics endpoint stopped")
		}
	}()
	log.Info().Str("addr", addr).Msg("metrics endpoint listening")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
