package rerank

import (
	"testing"

	"github.com/rushteam/simrec/core"
)

func scored(pairs ...float64) []*core.Item {
	items := make([]*core.Item, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		it := core.NewItem(int64(pairs[i]))
		it.Score = pairs[i+1]
		items = append(items, it)
	}
	return items
}

func idsOf(items []*core.Item) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestSortByScore_TieBreak(t *testing.T) {
	items := scored(50, 0.6, 40, 0.9, 30, 0.9, 10, 0.6)
	SortByScore(items)

	want := []int64{30, 40, 10, 50}
	got := idsOf(items)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SortByScore() = %v, want %v", got, want)
		}
	}
}

func TestDedup(t *testing.T) {
	items := scored(30, 0.9, 50, 0.6, 30, 0.1)
	items = append(items, nil)
	got := Dedup(items)
	if len(got) != 2 || got[0].Score != 0.9 {
		t.Fatalf("Dedup() = %v", idsOf(got))
	}
}

func TestTopN(t *testing.T) {
	items := scored(1, 3, 2, 2, 3, 1)
	tests := []struct {
		n    int
		want int
	}{
		{n: 0, want: 3},
		{n: 2, want: 2},
		{n: 5, want: 3},
	}
	for _, tt := range tests {
		if got := TopN(items, tt.n); len(got) != tt.want {
			t.Errorf("TopN(%d) returned %d items, want %d", tt.n, len(got), tt.want)
		}
	}
}
