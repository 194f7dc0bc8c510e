package neighbor

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/rushteam/simrec/pkg/atomicfile"
)

// snapshot 是索引落盘格式（JSON）。
type snapshot struct {
	Version string      `json:"version"`
	Metric  Metric      `json:"metric"`
	Dims    []int64     `json:"dims"`
	Users   []int64     `json:"users"`
	Vectors [][]float64 `json:"vectors"`
}

// Save 把索引原子写入 path。
func Save(ctx context.Context, path string, idx *KNNIndex) error {
	snap := snapshot{
		Version: idx.version,
		Metric:  idx.metric,
		Dims:    idx.dims,
		Users:   idx.users,
		Vectors: idx.vectors,
	}
	return atomicfile.Write(ctx, path, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(&snap)
	})
}

// Load 从 path 读取索引快照并校验形状。
func Load(path string) (*KNNIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index snapshot: %w", err)
	}
	defer f.Close()

	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode index snapshot %s: %w", path, err)
	}
	idx, err := NewKNNIndex(snap.Users, snap.Dims, snap.Vectors, snap.Metric, snap.Version)
	if err != nil {
		return nil, fmt.Errorf("invalid index snapshot %s: %w", path, err)
	}
	return idx, nil
}
