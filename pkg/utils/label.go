package utils

// Label 用于解释一个推荐结果“从哪来、被谁处理过”。
// Value 与 Source 的语义由调用方自定义；这里只提供标准化的合并规则。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"` // recall / filter / rank / sink ...
}

// 链路内置的 Label key。
const (
	LabelRecallSource = "recall_source" // 候选来源，固定为 "u2u2i"
	LabelEndorsedBy   = "endorsed_by"   // 首个背书的近邻用户
	LabelRankModel    = "rank_model"    // 打分模型名称
	LabelRankPosition = "rank_position" // 最终位次（从 1 开始）
)

// MergeLabel 合并同名 Label，保留历史：Value 以 '|' 累积，Source 以 ',' 累积。
// 相同的 Value 不重复追加。
func MergeLabel(existing Label, incoming Label) Label {
	if existing.Value == "" {
		return incoming
	}
	if incoming.Value == "" || incoming == existing {
		return existing
	}

	merged := existing
	merged.Value = existing.Value + "|" + incoming.Value
	switch {
	case existing.Source == "":
		merged.Source = incoming.Source
	case incoming.Source == "" || incoming.Source == existing.Source:
		merged.Source = existing.Source
	default:
		merged.Source = existing.Source + "," + incoming.Source
	}
	return merged
}
