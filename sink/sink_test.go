package sink

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"

	"github.com/rushteam/simrec/core"
	"github.com/rushteam/simrec/store"
)

func testRecommendation() *core.Recommendation {
	casino := core.NewItem(30)
	casino.Score = 0.9
	casino.Meta = &core.ItemMeta{ItemID: 30, Title: "Casino, The Cut (1995)", Genres: []string{"Crime", "Drama"}, Fields: map[string]string{"year": "1995"}}
	casino.Endorsement = core.Endorsement{UserID: 3, Rating: 4}

	scream := core.NewItem(50)
	scream.Score = 0.6
	scream.Meta = &core.ItemMeta{ItemID: 50, Title: "Scream (1996)", Genres: []string{"Horror"}}
	scream.Endorsement = core.Endorsement{UserID: 5, Rating: 3.5}

	return &core.Recommendation{RunID: "run-1", UserID: 7, Items: []*core.Item{casino, scream}}
}

func TestCSVSink_ExactBytes(t *testing.T) {
	dir := t.TempDir()
	s := NewCSVSink(dir, []string{"year"})

	path, err := s.Write(context.Background(), testRecommendation())
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if want := filepath.Join(dir, "user_7_rec.csv"); path != want {
		t.Fatalf("Write() path = %q, want %q", path, want)
	}

	got, _ := os.ReadFile(path)
	want := "itemId,score,title,genres,year,sourceRating,sourceUserId\n" +
		"30,0.9,\"Casino, The Cut (1995)\",Crime|Drama,1995,4,3\n" +
		"50,0.6,Scream (1996),Horror,,3.5,5\n"
	if string(got) != want {
		t.Fatalf("artifact =\n%s\nwant\n%s", got, want)
	}
}

func TestCSVSink_Deterministic(t *testing.T) {
	dir := t.TempDir()
	s := NewCSVSink(dir, nil)

	rec := testRecommendation()
	path, _ := s.Write(context.Background(), rec)
	first, _ := os.ReadFile(path)

	rec.RunID = "run-2"
	_, _ = s.Write(context.Background(), rec)
	second, _ := os.ReadFile(path)
	if string(first) != string(second) {
		t.Fatalf("artifacts differ across runs:\n%s\n%s", first, second)
	}
}

func TestCSVSink_Empty(t *testing.T) {
	s := NewCSVSink(t.TempDir(), nil)
	path, err := s.Write(context.Background(), &core.Recommendation{UserID: 9, Items: []*core.Item{}})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "itemId,score,title,genres,sourceRating,sourceUserId\n" {
		t.Fatalf("empty artifact = %q", got)
	}
}

func TestFileSink_CanceledLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	s := NewCSVSink(dir, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Write(ctx, testRecommendation())
	if !core.IsCanceled(err) {
		t.Fatalf("Write() error = %v, want CANCELED", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("canceled write left %d entries", len(entries))
	}
}

func TestFileSink_Unwritable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewCSVSink(filepath.Join(blocker, "out"), nil)

	_, err := s.Write(context.Background(), testRecommendation())
	if !core.IsPersistence(err) {
		t.Fatalf("Write() error = %v, want PERSISTENCE", err)
	}
}

func TestJSONSink(t *testing.T) {
	s := NewJSONSink(t.TempDir(), []string{"year"})
	path, err := s.Write(context.Background(), testRecommendation())
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if filepath.Ext(path) != ".json" {
		t.Fatalf("path = %q", path)
	}

	data, _ := os.ReadFile(path)
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if doc.UserID != 7 || len(doc.Items) != 2 || doc.Items[0].Fields["year"] != "1995" {
		t.Fatalf("doc = %+v", doc)
	}
	if doc.Items[1].SourceUserID == nil || *doc.Items[1].SourceUserID != 5 {
		t.Fatalf("source user = %v", doc.Items[1].SourceUserID)
	}
}

func TestKVSink(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	s := NewKVSink(kv, "", nil)

	key, err := s.Write(ctx, testRecommendation())
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if key != "simrec:rec:7" {
		t.Fatalf("key = %q", key)
	}
	data, err := kv.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil || len(doc.Items) != 2 || doc.Items[0].ItemID != 30 {
		t.Fatalf("stored doc = %s (%v)", data, err)
	}

	_ = kv.Close()
	if _, err := s.Write(ctx, testRecommendation()); !core.IsPersistence(err) {
		t.Fatalf("Write() after Close error = %v, want PERSISTENCE", err)
	}
}
