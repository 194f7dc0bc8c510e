package model

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/goccy/go-json"

	"github.com/rushteam/simrec/core"
)

// TableModel 是离线预计算的打分表：(user, item) → score。
// 适合把训练侧批量预测的结果直接导出给在线链路使用。
type TableModel struct {
	name   string
	scores map[[2]int64]float64
}

// Prediction 是打分表的一行。
type Prediction struct {
	UserID int64   `json:"user_id"`
	ItemID int64   `json:"item_id"`
	Score  float64 `json:"score"`
}

// NewTableModel 从预测列表构建打分表；同一 (user, item) 重复时后者覆盖前者。
func NewTableModel(name string, predictions []Prediction) *TableModel {
	if name == "" {
		name = "table"
	}
	m := &TableModel{name: name, scores: make(map[[2]int64]float64, len(predictions))}
	for _, p := range predictions {
		m.scores[[2]int64{p.UserID, p.ItemID}] = p.Score
	}
	return m
}

// LoadTableModel 读取 JSON 导出：
//
//	{"name": "keras-rec", "predictions": [{"user_id": 7, "item_id": 30, "score": 0.9}, ...]}
func LoadTableModel(path string) (*TableModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Name        string       `json:"name"`
		Predictions []Prediction `json:"predictions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode table model %s: %w", path, err)
	}
	return NewTableModel(raw.Name, raw.Predictions), nil
}

func (m *TableModel) Name() string { return m.name }

func (m *TableModel) Score(_ context.Context, userID, itemID int64) (float64, error) {
	if s, ok := m.scores[[2]int64{userID, itemID}]; ok {
		return s, nil
	}
	return math.NaN(), nil
}

var _ core.Scorer = (*TableModel)(nil)
