package filter

import (
	"context"
	"testing"

	"github.com/rushteam/simrec/core"
	"github.com/rushteam/simrec/store"
)

func testCandidates() *core.Candidates {
	return &core.Candidates{
		UserID: 7,
		IDs:    []int64{30, 50, 60},
		Endorsements: map[int64]core.Endorsement{
			30: {UserID: 3, Rating: 4},
			50: {UserID: 5, Rating: 3.5},
			60: {UserID: 5, Rating: 5},
		},
	}
}

func testMetadata(t *testing.T, withItem60 bool) *store.Table {
	t.Helper()
	items := []core.ItemMeta{
		{ItemID: 30, Title: "Casino (1995)", Genres: []string{"Crime", "Drama"}},
		{ItemID: 50, Title: "Scream (1996)", Genres: []string{"Horror"}},
	}
	if withItem60 {
		items = append(items, core.ItemMeta{ItemID: 60, Title: "Up (2009)", Genres: []string{"Animation"}})
	}
	tbl, err := store.NewTable(nil, items)
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	return tbl
}

func ids(c *core.Candidates) []int64 { return c.IDs }

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	rctx := &core.RecommendContext{UserID: 7}

	horror, err := NewExprFilter(`"Horror" in item.genres`)
	if err != nil {
		t.Fatalf("NewExprFilter() error = %v", err)
	}

	tests := []struct {
		name    string
		filters []Filter
		want    []int64
	}{
		{name: "no filters", filters: nil, want: []int64{30, 50, 60}},
		{name: "blacklist", filters: []Filter{NewBlacklistFilter([]int64{60}, nil, "")}, want: []int64{30, 50}},
		{name: "expr", filters: []Filter{horror}, want: []int64{30, 60}},
		{name: "combined", filters: []Filter{horror, NewBlacklistFilter([]int64{30}, nil, "")}, want: []int64{60}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(ctx, rctx, tt.filters, testCandidates(), testMetadata(t, true))
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if !equalIDs(ids(got), tt.want) {
				t.Fatalf("Apply() = %v, want %v", got.IDs, tt.want)
			}
			if got.Endorsements[60].UserID != 5 {
				t.Fatalf("Endorsements not preserved: %v", got.Endorsements)
			}
		})
	}
}

func TestApply_MissingMetadata(t *testing.T) {
	horror, _ := NewExprFilter(`"Horror" in item.genres`)
	_, err := Apply(context.Background(), nil, []Filter{horror}, testCandidates(), testMetadata(t, false))
	if !core.IsMissingMetadata(err) {
		t.Fatalf("Apply() error = %v, want MISSING_METADATA", err)
	}
	if de := core.GetDomainError(err); de.ItemID != 60 || de.UserID != 7 {
		t.Fatalf("error context = %+v", de)
	}
}

func TestStoreBackedFilters(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	_ = kv.Set(ctx, "blacklist", []byte(`[50]`))
	_ = kv.Set(ctx, "user:block:7", []byte(`[30]`))

	filters := []Filter{
		NewBlacklistFilter(nil, kv, "blacklist"),
		NewUserBlockFilter(kv, ""),
	}
	got, err := Apply(ctx, &core.RecommendContext{UserID: 7}, filters, testCandidates(), nil)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !equalIDs(got.IDs, []int64{60}) {
		t.Fatalf("Apply() = %v, want [60]", got.IDs)
	}

	// other users are not affected by user 7's block list
	got, _ = Apply(ctx, &core.RecommendContext{UserID: 8}, filters, testCandidates(), nil)
	if !equalIDs(got.IDs, []int64{30, 60}) {
		t.Fatalf("Apply(user 8) = %v, want [30 60]", got.IDs)
	}
}

func TestStoreBackedFilters_BadPayload(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	_ = kv.Set(ctx, "blacklist", []byte(`not json`))

	_, err := Apply(ctx, nil, []Filter{NewBlacklistFilter(nil, kv, "blacklist")}, testCandidates(), nil)
	if err == nil {
		t.Fatal("Apply() expected decode error")
	}
}
