package builders

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rushteam/simrec/config"
	"github.com/rushteam/simrec/core"
	"github.com/rushteam/simrec/neighbor"
	"github.com/rushteam/simrec/pipeline"
	"github.com/rushteam/simrec/store"
)

const (
	ratingsCSV = `userId,movieId,rating,timestamp
7,10,2,964982703
7,20,5,964981247
3,30,4,964982224
3,10,5,964983815
5,40,2,964982931
5,50,3.5,964982400
9,10,4,964980868
`
	moviesCSV = `movieId,title,genres,year
10,Heat (1995),Action,1995
20,Up (2009),Animation,2009
30,Casino (1995),Crime|Drama,1995
40,Jaws (1975),Thriller,1975
50,Scream (1996),Horror,1996
`
	predictionsJSON = `{"name":"keras","predictions":[
{"user_id":7,"item_id":30,"score":0.9},
{"user_id":7,"item_id":50,"score":0.6}]}`
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		return path
	}

	cfg := config.Default()
	cfg.Store.RatingsPath = write("ratings.csv", ratingsCSV)
	cfg.Store.MoviesPath = write("movies.csv", moviesCSV)
	cfg.Scorer.Path = write("predictions.json", predictionsJSON)
	cfg.Output.Dir = filepath.Join(dir, "out")
	cfg.Output.ExtraFields = []string{"year"}
	return cfg
}

func recommend(t *testing.T, cfg *config.Config) (*App, *pipeline.Result) {
	t.Helper()
	app, err := New(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	res, err := app.Pipeline.Run(context.Background(), pipeline.Request{UserID: 7, NumNeighbors: 3, TopK: 2})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return app, res
}

func assertScenario(t *testing.T, res *pipeline.Result) {
	t.Helper()
	if len(res.Items) != 2 || res.Items[0].ID != 30 || res.Items[1].ID != 50 {
		t.Fatalf("Items = %+v, want [30 50]", res.Items)
	}
	if res.Items[0].Meta == nil || res.Items[0].Meta.Fields["year"] != "1995" {
		t.Fatalf("metadata not joined: %+v", res.Items[0].Meta)
	}
}

func TestNew_MemoryBackend(t *testing.T) {
	cfg := testConfig(t)
	app, res := recommend(t, cfg)
	assertScenario(t, res)

	if app.Interactions != core.InteractionStore(app.Table) {
		t.Fatal("memory backend should serve interactions from the table")
	}
	data, err := os.ReadFile(filepath.Join(cfg.Output.Dir, "user_7_rec.csv"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	want := "itemId,score,title,genres,year,sourceRating,sourceUserId\n" +
		"30,0.9,Casino (1995),Crime|Drama,1995,4,3\n" +
		"50,0.6,Scream (1996),Horror,1996,3.5,5\n"
	if string(data) != want {
		t.Fatalf("artifact =\n%s\nwant\n%s", data, want)
	}
}

func TestNew_BadgerBackendSeedsStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "badger"
	cfg.Store.Badger.InMemory = true

	app, res := recommend(t, cfg)
	assertScenario(t, res)
	if _, ok := app.Interactions.(*store.KVInteractionStore); !ok {
		t.Fatalf("Interactions = %T, want *store.KVInteractionStore", app.Interactions)
	}
	rows, err := app.Interactions.InteractionsOf(context.Background(), 5)
	if err != nil || len(rows) != 2 {
		t.Fatalf("InteractionsOf(5) = %v, %v", rows, err)
	}
}

func TestNew_KVOutput(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Format = "kv"

	app, res := recommend(t, cfg)
	if res.Artifact != "simrec:rec:7" {
		t.Fatalf("Artifact = %q", res.Artifact)
	}
	if data, err := app.KV.Get(context.Background(), res.Artifact); err != nil || len(data) == 0 {
		t.Fatalf("Get(%s) = %q, %v", res.Artifact, data, err)
	}
}

func TestNew_LoadsIndexSnapshot(t *testing.T) {
	cfg := testConfig(t)
	tbl, err := store.LoadTableFiles(cfg.Store.RatingsPath, cfg.Store.MoviesPath)
	if err != nil {
		t.Fatalf("LoadTableFiles() error = %v", err)
	}
	idx, err := neighbor.Build(tbl.Interactions(), neighbor.BuildOptions{Version: "snap-1"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	cfg.Index.Path = filepath.Join(t.TempDir(), "index.json")
	if err := neighbor.Save(context.Background(), cfg.Index.Path, idx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	app, res := recommend(t, cfg)
	assertScenario(t, res)
	if app.Index.Version() != "snap-1" {
		t.Fatalf("Index.Version() = %q, want snapshot version", app.Index.Version())
	}
}

func TestNew_MissingSnapshotBuildsIndex(t *testing.T) {
	cfg := testConfig(t)
	cfg.Index.Path = filepath.Join(t.TempDir(), "absent.json")

	app, _ := recommend(t, cfg)
	if app.Index.Size() != 4 {
		t.Fatalf("Index.Size() = %d, want 4", app.Index.Size())
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"no ratings for memory backend", func(c *config.Config) { c.Store.RatingsPath = "" }},
		{"missing ratings file", func(c *config.Config) { c.Store.RatingsPath = filepath.Join(c.Output.Dir, "none.csv") }},
		{"unknown scorer", func(c *config.Config) { c.Scorer.Type = "xgboost" }},
		{"missing model file", func(c *config.Config) { c.Scorer.Path = filepath.Join(c.Output.Dir, "none.json") }},
		{"bad filter expression", func(c *config.Config) { c.Filter.Expr = "item.id +" }},
		{"unknown output", func(c *config.Config) { c.Output.Format = "parquet" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			if app, err := New(context.Background(), cfg, zerolog.Nop()); err == nil {
				_ = app.Close()
				t.Fatal("New() error = nil")
			}
		})
	}
}

func TestBuildFilters(t *testing.T) {
	kv := store.NewMemoryStore()
	filters, err := BuildFilters(config.FilterConfig{
		Blacklist:       []int64{30},
		UserBlockPrefix: "user:block",
		Expr:            `item.id == 50`,
	}, kv)
	if err != nil {
		t.Fatalf("BuildFilters() error = %v", err)
	}
	if len(filters) != 3 {
		t.Fatalf("len(filters) = %d, want 3", len(filters))
	}

	none, err := BuildFilters(config.FilterConfig{}, kv)
	if err != nil || len(none) != 0 {
		t.Fatalf("BuildFilters(empty) = %v, %v", none, err)
	}
}

func TestBatch_UsesConfiguredWorkers(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.Workers = 2
	app, _ := recommend(t, cfg)

	results := app.Batch().Run(context.Background(), []pipeline.Request{
		{UserID: 7, NumNeighbors: 3, TopK: 2},
		{UserID: 404, NumNeighbors: 3, TopK: 2},
	})
	if results[0].Err != nil || !core.IsUnknownUser(results[1].Err) {
		t.Fatalf("results = %v, %v", results[0].Err, results[1].Err)
	}
}
