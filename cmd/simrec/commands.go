package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/goccy/go-json"

	"github.com/rushteam/simrec/config"
	"github.com/rushteam/simrec/config/builders"
	"github.com/rushteam/simrec/core"
	"github.com/rushteam/simrec/model"
	"github.com/rushteam/simrec/neighbor"
	"github.com/rushteam/simrec/pipeline"
	"github.com/rushteam/simrec/store"
)

func indexFlags(fs *flag.FlagSet) func(context.Context, *env) error {
	out := fs.String("out", "", "snapshot path (default index.path, then index.json)")
	return func(ctx context.Context, e *env) error {
		path := *out
		if path == "" {
			path = e.cfg.Index.Path
		}
		if path == "" {
			path = "index.json"
		}

		var tbl *store.Table
		var src core.InteractionStore
		if e.cfg.Store.RatingsPath != "" {
			t, err := store.LoadTableFiles(e.cfg.Store.RatingsPath, e.cfg.Store.MoviesPath)
			if err != nil {
				return err
			}
			tbl = t
		} else {
			kv, err := builders.OpenStore(ctx, e.cfg.Store)
			if err != nil {
				return err
			}
			defer kv.Close()
			src = store.NewKVInteractionStore(kv, store.KVOptions{KeyPrefix: e.cfg.Store.KeyPrefix, Timeout: e.cfg.Store.Timeout})
		}

		idx, err := builders.BuildIndex(ctx, e.cfg.Index, tbl, src)
		if err != nil {
			return err
		}
		if err := neighbor.Save(ctx, path, idx); err != nil {
			return err
		}
		e.log.Info().
			Str("path", path).
			Str("version", idx.Version()).
			Str("metric", string(idx.Metric())).
			Int("users", idx.Size()).
			Int("dims", len(idx.Dims())).
			Msg("neighbor index saved")
		return nil
	}
}

func recommendFlags(_ *flag.FlagSet) func(context.Context, *env) error {
	return func(ctx context.Context, e *env) error {
		if len(e.args) != 3 {
			return fmt.Errorf("recommend expects <user_id> <num_similar_users> <num_films>, got %d args", len(e.args))
		}
		userID, err := positiveInt("user_id", e.args[0])
		if err != nil {
			return err
		}
		k1, err := positiveInt("num_similar_users", e.args[1])
		if err != nil {
			return err
		}
		k2, err := positiveInt("num_films", e.args[2])
		if err != nil {
			return err
		}

		app, err := e.app(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		res, err := app.Pipeline.Run(ctx, pipeline.Request{UserID: userID, NumNeighbors: int(k1), TopK: int(k2)})
		if err != nil {
			return errRunFailed
		}
		printItems(e, res)
		return nil
	}
}

func batchFlags(fs *flag.FlagSet) func(context.Context, *env) error {
	k1 := fs.Int("k1", 0, "number of similar users (default pipeline.num_neighbors)")
	k2 := fs.Int("k2", 0, "number of films (default pipeline.top_k)")
	return func(ctx context.Context, e *env) error {
		if len(e.args) == 0 {
			return fmt.Errorf("batch expects at least one user id")
		}
		numNeighbors, topK := *k1, *k2
		if numNeighbors == 0 {
			numNeighbors = e.cfg.Pipeline.NumNeighbors
		}
		if topK == 0 {
			topK = e.cfg.Pipeline.TopK
		}

		reqs := make([]pipeline.Request, 0, len(e.args))
		for _, arg := range e.args {
			uid, err := positiveInt("user_id", arg)
			if err != nil {
				return err
			}
			reqs = append(reqs, pipeline.Request{UserID: uid, NumNeighbors: numNeighbors, TopK: topK})
		}

		app, err := e.app(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		results := app.Batch().Run(ctx, reqs)
		tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "userId\tstate\titems\tartifact")
		for _, r := range results {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", r.UserID, r.State, len(r.Items), r.Artifact)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		failed := pipeline.Failed(results)
		e.log.Info().Int("requests", len(results)).Int("failed", len(failed)).Msg("batch finished")
		if len(failed) > 0 {
			return errRunFailed
		}
		return nil
	}
}

func evaluateFlags(fs *flag.FlagSet) func(context.Context, *env) error {
	test := fs.String("test", "", "held-out ratings CSV (userId,movieId,rating)")
	return func(ctx context.Context, e *env) error {
		if *test == "" {
			return fmt.Errorf("evaluate requires -test")
		}
		f, err := os.Open(*test)
		if err != nil {
			return err
		}
		defer f.Close()
		heldOut, err := store.LoadRatings(f)
		if err != nil {
			return err
		}

		scorer, err := config.BuildScorer(e.cfg.Scorer, e.log)
		if err != nil {
			return err
		}
		report, err := model.Evaluate(ctx, model.Instrument(scorer), heldOut)
		if err != nil {
			return err
		}
		e.log.Info().
			Str("scorer", scorer.Name()).
			Int("n", report.N).
			Float64("rmse", report.RMSE).
			Float64("mae", report.MAE).
			Float64("r2", report.R2).
			Msg("evaluation finished")

		enc := json.NewEncoder(e.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
}

func printItems(e *env, res *pipeline.Result) {
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "rank\titemId\tscore\ttitle\tsourceUserId")
	for i, it := range res.Items {
		title := ""
		if it.Meta != nil {
			title = it.Meta.Title
		}
		fmt.Fprintf(tw, "%d\t%d\t%.4f\t%s\t%d\n", i+1, it.ID, it.Score, title, it.Endorsement.UserID)
	}
	_ = tw.Flush()
	if res.Empty {
		fmt.Fprintln(e.stdout, "no candidates for this user")
	}
	fmt.Fprintf(e.stdout, "written to %s\n", res.Artifact)
}
