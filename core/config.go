package core

import "time"

// 推荐链路的默认参数。
//
// DefaultPositivityThreshold 没有唯一正确值（历史脚本里出现过 3 和 3.5），
// 这里只是默认值，应通过配置显式指定。
const (
	DefaultNumNeighbors        = 5
	DefaultTopK                = 10
	DefaultPositivityThreshold = 3.0
	DefaultStageTimeout        = 5 * time.Second
)
