package model

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/rushteam/simrec/core"
)

func scoringServer(t *testing.T, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := rpcResponse{Scores: make([]float64, len(req.ItemIDs))}
		for i, id := range req.ItemIDs {
			resp.Scores[i] = float64(req.UserID) + float64(id)/100
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRPCModel_ScoreBatch(t *testing.T) {
	var requests atomic.Int32
	srv := scoringServer(t, &requests)

	m := NewRPCModel(RPCOptions{Name: "rpc-test", Endpoint: srv.URL, BatchSize: 2, Concurrency: 2})
	ids := []int64{30, 50, 10, 20, 40}
	scores, err := m.ScoreBatch(context.Background(), 7, ids)
	if err != nil {
		t.Fatalf("ScoreBatch() error = %v", err)
	}
	for i, id := range ids {
		if want := 7 + float64(id)/100; scores[i] != want {
			t.Fatalf("scores[%d] = %v, want %v", i, scores[i], want)
		}
	}
	if got := requests.Load(); got != 3 {
		t.Fatalf("requests = %d, want 3 chunks", got)
	}

	single, err := m.Score(context.Background(), 7, 30)
	if err != nil || single != 7.3 {
		t.Fatalf("Score() = %v, %v", single, err)
	}
}

func TestRPCModel_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	m := NewRPCModel(RPCOptions{Endpoint: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := m.ScoreBatch(context.Background(), 1, []int64{1})
	if !core.IsTimeout(err) {
		t.Fatalf("ScoreBatch() error = %v, want TIMEOUT", err)
	}
}

func TestRPCModel_CircuitBreaker(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	m := NewRPCModel(RPCOptions{Endpoint: srv.URL, MaxFailures: 2, OpenTimeout: time.Minute})
	for i := 0; i < 2; i++ {
		if _, err := m.Score(context.Background(), 1, 1); !core.IsUnavailable(err) {
			t.Fatalf("call %d error = %v, want UNAVAILABLE", i, err)
		}
	}

	_, err := m.Score(context.Background(), 1, 1)
	if !core.IsUnavailable(err) {
		t.Fatalf("open breaker error = %v, want UNAVAILABLE", err)
	}
	if got := requests.Load(); got != 2 {
		t.Fatalf("requests = %d, want 2 (third call rejected by breaker)", got)
	}
}

func TestRPCModel_TFServing(t *testing.T) {
	var (
		mu                    sync.Mutex
		gotPath, gotSignature string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotPath = r.URL.Path
		var req struct {
			Signature string             `json:"signature_name"`
			Instances []map[string]int64 `json:"instances"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotSignature = req.Signature
		// 标量与单元素数组混合返回
		preds := make([]any, len(req.Instances))
		for i, in := range req.Instances {
			score := float64(in["user"]) + float64(in["movie"])/100
			if i%2 == 0 {
				preds[i] = []float64{score}
			} else {
				preds[i] = score
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"predictions": preds})
	}))
	t.Cleanup(srv.Close)

	m := NewRPCModel(RPCOptions{
		Name:      "keras-rec",
		Endpoint:  srv.URL + "/",
		Protocol:  ProtocolTFServing,
		TFServing: TFServingOptions{Version: "3", UserInput: "user", ItemInput: "movie"},
	})
	scores, err := m.ScoreBatch(context.Background(), 7, []int64{30, 50})
	if err != nil {
		t.Fatalf("ScoreBatch() error = %v", err)
	}
	if scores[0] != 7.3 || scores[1] != 7.5 {
		t.Fatalf("scores = %v", scores)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotPath != "/v1/models/keras-rec/versions/3:predict" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotSignature != "serving_default" {
		t.Fatalf("signature = %q", gotSignature)
	}
}

func TestParseProtocol(t *testing.T) {
	tests := []struct {
		in      string
		want    Protocol
		wantErr bool
	}{
		{"", ProtocolSimple, false},
		{"simple", ProtocolSimple, false},
		{"TFServing", ProtocolTFServing, false},
		{"grpc", "", true},
	}
	for _, tt := range tests {
		got, err := ParseProtocol(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseProtocol(%q) = %q, %v", tt.in, got, err)
		}
	}
}
