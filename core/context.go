package core

import "github.com/rushteam/simrec/pkg/utils"

// RecommendContext 承载一次推荐请求的用户/运行信息，贯穿整个 Pipeline 透传。
type RecommendContext struct {
	UserID int64
	RunID  string

	// Labels 是请求级标签，用于解释与观测
	Labels map[string]utils.Label

	// Params 请求级参数（如过滤规则需要的上下文）
	Params map[string]any
}

// PutLabel 写入请求级 Label。
func (rctx *RecommendContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}

// GetLabel 获取请求级 Label。
func (rctx *RecommendContext) GetLabel(key string) (utils.Label, bool) {
	if rctx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := rctx.Labels[key]
	return lbl, ok
}
