package pipeline

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rushteam/simrec/core"
	"github.com/rushteam/simrec/filter"
	"github.com/rushteam/simrec/model"
	"github.com/rushteam/simrec/neighbor"
	"github.com/rushteam/simrec/pkg/logging"
	"github.com/rushteam/simrec/rank"
	"github.com/rushteam/simrec/recall"
	"github.com/rushteam/simrec/sink"
	"github.com/rushteam/simrec/store"
)

type fixedIndex struct {
	sets map[int64][]int64
}

func (f fixedIndex) Size() int { return len(f.sets) }

func (f fixedIndex) Neighbors(_ context.Context, userID int64, k int) (core.NeighborSet, error) {
	ids, ok := f.sets[userID]
	if !ok {
		return core.NeighborSet{}, core.NewUnknownUserError(userID)
	}
	if k < 1 {
		return core.NeighborSet{}, core.NewInvalidParameterError(core.ModuleNeighbor, "k must be positive, got %d", k)
	}
	set := core.NeighborSet{TargetUserID: userID}
	for i, id := range ids {
		if i == k {
			break
		}
		set.Neighbors = append(set.Neighbors, core.Neighbor{UserID: id, Distance: float64(i + 1)})
	}
	return set, nil
}

type countingGenerator struct {
	inner CandidateGenerator
	calls atomic.Int32
}

func (g *countingGenerator) Generate(ctx context.Context, uid int64, n core.NeighborSet) (*core.Candidates, error) {
	g.calls.Add(1)
	return g.inner.Generate(ctx, uid, n)
}

type countingRanker struct {
	inner Ranker
	calls atomic.Int32
}

func (r *countingRanker) Rank(ctx context.Context, uid int64, c *core.Candidates, k int) ([]*core.Item, error) {
	r.calls.Add(1)
	return r.inner.Rank(ctx, uid, c, k)
}

type fixture struct {
	table     *store.Table
	index     core.NeighborIndex
	scorer    core.Scorer
	generator *countingGenerator
	ranker    *countingRanker
	sink      core.Sink
	dir       string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tbl, err := store.NewTable(
		[]core.Interaction{
			{UserID: 7, ItemID: 10, Rating: 2},
			{UserID: 7, ItemID: 20, Rating: 5},
			{UserID: 3, ItemID: 30, Rating: 4},
			{UserID: 3, ItemID: 10, Rating: 5},
			{UserID: 5, ItemID: 40, Rating: 2},
			{UserID: 5, ItemID: 50, Rating: 3.5},
			{UserID: 9, ItemID: 10, Rating: 4},
		},
		[]core.ItemMeta{
			{ItemID: 10, Title: "Heat (1995)", Genres: []string{"Action"}},
			{ItemID: 20, Title: "Up (2009)", Genres: []string{"Animation"}},
			{ItemID: 30, Title: "Casino (1995)", Genres: []string{"Crime", "Drama"}},
			{ItemID: 40, Title: "Jaws (1975)", Genres: []string{"Thriller"}},
			{ItemID: 50, Title: "Scream (1996)", Genres: []string{"Horror"}},
		},
	)
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}

	scores := map[int64]float64{30: 0.9, 50: 0.6}
	scorer := model.FuncScorer{ModelName: "fixed", Fn: func(_ context.Context, _, itemID int64) (float64, error) {
		if s, ok := scores[itemID]; ok {
			return s, nil
		}
		return 0.5, nil
	}}
	dir := t.TempDir()
	return &fixture{
		table:     tbl,
		index:     fixedIndex{sets: map[int64][]int64{7: {3, 5}, 8: {9}, 3: {5, 7}, 5: {3, 7}, 9: {7, 3}}},
		scorer:    scorer,
		generator: &countingGenerator{inner: recall.NewNeighborCandidates(tbl, 3)},
		ranker:    &countingRanker{inner: rank.NewRanker(scorer, tbl)},
		sink:      sink.NewCSVSink(dir, nil),
		dir:       dir,
	}
}

func (f *fixture) pipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	p, err := New(Deps{
		Index:      f.index,
		Candidates: f.generator,
		Metadata:   f.table,
		Ranker:     f.ranker,
		Sink:       f.sink,
	}, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestPipeline_Scenario(t *testing.T) {
	f := newFixture(t)
	var logs bytes.Buffer
	p := f.pipeline(t, WithLogger(logging.New(logging.Config{Level: "debug", Output: &logs})))

	res, err := p.Run(context.Background(), Request{UserID: 7, NumNeighbors: 2, TopK: 2})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.State != StatePersisted || res.Empty {
		t.Fatalf("State = %s, Empty = %v", res.State, res.Empty)
	}
	if got := res.Candidates.IDs; len(got) != 2 || got[0] != 30 || got[1] != 50 {
		t.Fatalf("Candidates = %v, want [30 50]", got)
	}
	if len(res.Items) != 2 || res.Items[0].ID != 30 || res.Items[0].Score != 0.9 || res.Items[1].ID != 50 {
		t.Fatalf("Items = %+v", res.Items)
	}

	data, err := os.ReadFile(res.Artifact)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	want := "itemId,score,title,genres,sourceRating,sourceUserId\n" +
		"30,0.9,Casino (1995),Crime|Drama,4,3\n" +
		"50,0.6,Scream (1996),Horror,3.5,5\n"
	if string(data) != want {
		t.Fatalf("artifact =\n%s\nwant\n%s", data, want)
	}
	if res.RunID == "" {
		t.Fatal("RunID is empty")
	}
	if !bytes.Contains(logs.Bytes(), []byte(`"to":"persisted"`)) {
		t.Fatalf("missing transition log: %s", logs.String())
	}
}

func TestPipeline_Deterministic(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)
	req := Request{UserID: 7, NumNeighbors: 2, TopK: 2}

	first, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	a, _ := os.ReadFile(first.Artifact)

	second, _ := p.Run(context.Background(), req)
	b, _ := os.ReadFile(second.Artifact)
	if !bytes.Equal(a, b) {
		t.Fatalf("artifacts differ:\n%s\n%s", a, b)
	}
	if first.RunID == second.RunID {
		t.Fatal("run ids should differ between runs")
	}
}

func TestPipeline_EmptyCandidates(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)

	// 用户 8 已看过其唯一近邻（9）正向评分的物品 10
	tbl, _ := store.NewTable(append(f.table.Interactions(), core.Interaction{UserID: 8, ItemID: 10, Rating: 1}), f.table.Items())
	f.generator.inner = recall.NewNeighborCandidates(tbl, 3)

	res, err := p.Run(context.Background(), Request{UserID: 8, NumNeighbors: 1, TopK: 5})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.State != StatePersisted || !res.Empty || len(res.Items) != 0 {
		t.Fatalf("State = %s, Empty = %v, Items = %d", res.State, res.Empty, len(res.Items))
	}
	if f.ranker.calls.Load() != 0 {
		t.Fatal("ranker invoked for empty candidate set")
	}
	data, _ := os.ReadFile(res.Artifact)
	if string(data) != "itemId,score,title,genres,sourceRating,sourceUserId\n" {
		t.Fatalf("empty artifact = %q", data)
	}
}

func TestPipeline_UnknownUser(t *testing.T) {
	f := newFixture(t)
	idx, err := neighbor.Build(f.table.Interactions(), neighbor.BuildOptions{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	f.index = idx
	p := f.pipeline(t)

	res, err := p.Run(context.Background(), Request{UserID: 99, NumNeighbors: 2, TopK: 2})
	if !core.IsUnknownUser(err) {
		t.Fatalf("Run() error = %v, want UNKNOWN_USER", err)
	}
	if res.State != StateFailed || res.FailedStage != StageNeighbors {
		t.Fatalf("State = %s, FailedStage = %s", res.State, res.FailedStage)
	}
	if de := core.GetDomainError(err); de.Stage != StageNeighbors || de.UserID != 99 {
		t.Fatalf("error context = %+v", de)
	}
	if f.generator.calls.Load() != 0 {
		t.Fatal("candidate generation attempted after neighbor failure")
	}
	if entries, _ := os.ReadDir(f.dir); len(entries) != 0 {
		t.Fatalf("failed run left %d files", len(entries))
	}
}

func TestPipeline_RealIndex(t *testing.T) {
	f := newFixture(t)
	idx, err := neighbor.Build(f.table.Interactions(), neighbor.BuildOptions{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	f.index = idx
	p := f.pipeline(t)

	res, err := p.Run(context.Background(), Request{UserID: 7, NumNeighbors: 3, TopK: 10})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, n := range res.Neighbors.Neighbors {
		if n.UserID == 7 {
			t.Fatal("neighbor set contains target user")
		}
	}
	for _, it := range res.Items {
		if it.ID == 10 || it.ID == 20 {
			t.Fatalf("recommended already watched item %d", it.ID)
		}
	}
}

func TestPipeline_Failures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(f *fixture)
		req       Request
		opts      []Option
		ctx       func() (context.Context, context.CancelFunc)
		stage     string
		checkCode func(error) bool
	}{
		{
			name:      "invalid top k",
			req:       Request{UserID: 7, NumNeighbors: 2, TopK: 0},
			stage:     StageRequest,
			checkCode: core.IsInvalidParameter,
		},
		{
			name:      "invalid k",
			req:       Request{UserID: 7, NumNeighbors: 0, TopK: 2},
			stage:     StageNeighbors,
			checkCode: core.IsInvalidParameter,
		},
		{
			name: "nan score",
			setup: func(f *fixture) {
				f.ranker.inner = rank.NewRanker(model.NewTableModel("empty", nil), f.table)
			},
			req:       Request{UserID: 7, NumNeighbors: 2, TopK: 2},
			stage:     StageRank,
			checkCode: core.IsInvalidScore,
		},
		{
			name: "infinite score with json sink",
			setup: func(f *fixture) {
				inf := model.FuncScorer{ModelName: "inf", Fn: func(context.Context, int64, int64) (float64, error) {
					return math.Inf(1), nil
				}}
				f.ranker.inner = rank.NewRanker(inf, f.table)
				f.sink = sink.NewJSONSink(f.dir, nil)
			},
			req:       Request{UserID: 7, NumNeighbors: 2, TopK: 2},
			stage:     StageRank,
			checkCode: core.IsInvalidScore,
		},
		{
			name: "missing metadata",
			setup: func(f *fixture) {
				noMeta, _ := store.NewTable(f.table.Interactions(), nil)
				f.ranker.inner = rank.NewRanker(f.scorer, noMeta)
			},
			req:       Request{UserID: 7, NumNeighbors: 2, TopK: 2},
			stage:     StageRank,
			checkCode: core.IsMissingMetadata,
		},
		{
			name: "unwritable sink",
			setup: func(f *fixture) {
				blocker := filepath.Join(f.dir, "blocker")
				_ = os.WriteFile(blocker, nil, 0o644)
				f.sink = sink.NewCSVSink(filepath.Join(blocker, "out"), nil)
			},
			req:       Request{UserID: 7, NumNeighbors: 2, TopK: 2},
			stage:     StagePersist,
			checkCode: core.IsPersistence,
		},
		{
			name: "scorer timeout",
			setup: func(f *fixture) {
				slow := model.FuncScorer{Fn: func(ctx context.Context, _, _ int64) (float64, error) {
					<-ctx.Done()
					return 0, ctx.Err()
				}}
				f.ranker.inner = rank.NewRanker(slow, f.table)
			},
			opts:      []Option{WithStageTimeout(20 * time.Millisecond)},
			req:       Request{UserID: 7, NumNeighbors: 2, TopK: 2},
			stage:     StageRank,
			checkCode: core.IsTimeout,
		},
		{
			name: "canceled before start",
			ctx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx, cancel
			},
			req:       Request{UserID: 7, NumNeighbors: 2, TopK: 2},
			stage:     StageNeighbors,
			checkCode: core.IsCanceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			p := f.pipeline(t, tt.opts...)

			ctx, cancel := context.WithCancel(context.Background())
			if tt.ctx != nil {
				ctx, cancel = tt.ctx()
			}
			defer cancel()

			res, err := p.Run(ctx, tt.req)
			if !tt.checkCode(err) {
				t.Fatalf("Run() error = %v", err)
			}
			if res.State != StateFailed || res.FailedStage != tt.stage {
				t.Fatalf("State = %s, FailedStage = %s, want failed at %s", res.State, res.FailedStage, tt.stage)
			}
			if res.Artifact != "" {
				t.Fatalf("failed run reported artifact %q", res.Artifact)
			}
			if _, statErr := os.Stat(filepath.Join(f.dir, "user_7_rec.csv")); !os.IsNotExist(statErr) {
				t.Fatalf("failed run published an artifact (stat err = %v)", statErr)
			}
		})
	}
}

func TestPipeline_Filters(t *testing.T) {
	f := newFixture(t)
	noHorror, err := filter.NewExprFilter(`"Horror" in item.genres`)
	if err != nil {
		t.Fatalf("NewExprFilter() error = %v", err)
	}
	p, err := New(Deps{
		Index:      f.index,
		Candidates: f.generator,
		Filters:    []filter.Filter{noHorror},
		Metadata:   f.table,
		Ranker:     f.ranker,
		Sink:       f.sink,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := p.Run(context.Background(), Request{UserID: 7, NumNeighbors: 2, TopK: 5})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].ID != 30 {
		t.Fatalf("Items = %+v, want only 30", res.Items)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); !core.IsInvalidParameter(err) {
		t.Fatalf("New() error = %v, want INVALID_PARAMETER", err)
	}
}

func TestBatchRunner(t *testing.T) {
	f := newFixture(t)
	b := &BatchRunner{Pipeline: f.pipeline(t), Workers: 2}

	results := b.Run(context.Background(), []Request{
		{UserID: 7, NumNeighbors: 2, TopK: 2},
		{UserID: 99, NumNeighbors: 2, TopK: 2},
		{UserID: 3, NumNeighbors: 1, TopK: 2},
	})
	if len(results) != 3 {
		t.Fatalf("Run() returned %d results", len(results))
	}
	if results[0].UserID != 7 || results[0].State != StatePersisted {
		t.Fatalf("results[0] = %s %v", results[0].State, results[0].Err)
	}
	if results[1].UserID != 99 || !core.IsUnknownUser(results[1].Err) {
		t.Fatalf("results[1] = %s %v", results[1].State, results[1].Err)
	}
	if results[2].UserID != 3 || results[2].State != StatePersisted {
		t.Fatalf("results[2] = %s %v", results[2].State, results[2].Err)
	}
	if failed := Failed(results); len(failed) != 1 || failed[0].UserID != 99 {
		t.Fatalf("Failed() = %v", failed)
	}
}
