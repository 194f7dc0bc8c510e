package model

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/goccy/go-json"

	"github.com/rushteam/simrec/core"
)

// EmbeddingModel 是导出的嵌入式评分模型（矩阵分解 / Keras Embedding 网络）：
//
//	score = dot(UserVector, ItemVector) + UserBias + ItemBias + GlobalBias
//
// 向量在加载时校验维度，打分只做查表与内积，可并发调用。
type EmbeddingModel struct {
	name       string
	dim        int
	globalBias float64
	users      map[int64]embedding
	items      map[int64]embedding
}

type embedding struct {
	vector []float64
	bias   float64
}

// EmbeddingRow 是导出文件中的一行。
type EmbeddingRow struct {
	ID     int64     `json:"id"`
	Bias   float64   `json:"bias"`
	Vector []float64 `json:"vector"`
}

// EmbeddingExport 是 EmbeddingModel 的 JSON 导出格式。
type EmbeddingExport struct {
	Name       string         `json:"name"`
	GlobalBias float64        `json:"global_bias"`
	Users      []EmbeddingRow `json:"users"`
	Items      []EmbeddingRow `json:"items"`
}

// NewEmbeddingModel 校验并构建模型；所有向量维度必须一致。
func NewEmbeddingModel(exp EmbeddingExport) (*EmbeddingModel, error) {
	name := exp.Name
	if name == "" {
		name = "embedding"
	}
	m := &EmbeddingModel{
		name:       name,
		dim:        -1,
		globalBias: exp.GlobalBias,
		users:      make(map[int64]embedding, len(exp.Users)),
		items:      make(map[int64]embedding, len(exp.Items)),
	}
	if err := m.fill(m.users, "user", exp.Users); err != nil {
		return nil, err
	}
	if err := m.fill(m.items, "item", exp.Items); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *EmbeddingModel) fill(dst map[int64]embedding, kind string, rows []EmbeddingRow) error {
	for _, r := range rows {
		if m.dim < 0 {
			m.dim = len(r.Vector)
		}
		if len(r.Vector) != m.dim {
			return fmt.Errorf("%s %d: embedding has %d dims, want %d", kind, r.ID, len(r.Vector), m.dim)
		}
		dst[r.ID] = embedding{vector: append([]float64(nil), r.Vector...), bias: r.Bias}
	}
	return nil
}

// LoadEmbeddingModel 读取 EmbeddingExport JSON。
func LoadEmbeddingModel(path string) (*EmbeddingModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var exp EmbeddingExport
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("decode embedding model %s: %w", path, err)
	}
	return NewEmbeddingModel(exp)
}

func (m *EmbeddingModel) Name() string { return m.name }

// Score 用户或物品不在模型中时返回 NaN。
func (m *EmbeddingModel) Score(_ context.Context, userID, itemID int64) (float64, error) {
	u, ok := m.users[userID]
	if !ok {
		return math.NaN(), nil
	}
	it, ok := m.items[itemID]
	if !ok {
		return math.NaN(), nil
	}
	score := m.globalBias + u.bias + it.bias
	for i := range u.vector {
		score += u.vector[i] * it.vector[i]
	}
	return score, nil
}

var _ core.Scorer = (*EmbeddingModel)(nil)
