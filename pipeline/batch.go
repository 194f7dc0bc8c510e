package pipeline

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// BatchRunner 并行执行多个互相独立的请求。
// 单个请求失败不会取消其他请求；结果与输入一一对应、顺序一致。
type BatchRunner struct {
	Pipeline *Pipeline

	// Workers 并发上限，<= 0 时使用 GOMAXPROCS
	Workers int
}

func (b *BatchRunner) Run(ctx context.Context, reqs []Request) []*Result {
	workers := b.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]*Result, len(reqs))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, req := range reqs {
		g.Go(func() error {
			results[i], _ = b.Pipeline.Run(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Failed 返回失败的结果。
func Failed(results []*Result) []*Result {
	var out []*Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
