package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 携带足够的上下文（Stage / UserID / ItemID），无需重跑即可定位问题
//   - 支持 errors.Is / errors.As（通过 Unwrap 暴露底层错误）
//
// 使用场景：
//   - 近邻查询：UNKNOWN_USER, INVALID_PARAMETER
//   - 排序：MISSING_METADATA, INVALID_SCORE
//   - 外部调用：TIMEOUT, CANCELED, UNAVAILABLE
//   - 结果落盘：PERSISTENCE
type DomainError struct {
	Code    string // 错误代码（如 "UNKNOWN_USER", "TIMEOUT"）
	Message string // 错误消息
	Module  string // 模块名称（如 "neighbor", "rank", "sink"）

	Stage  string // 发生错误时 Pipeline 所处阶段（可选）
	UserID int64  // 相关用户（0 表示无）
	ItemID int64  // 相关物品（0 表示无）

	Err error // 底层错误（可选）
}

func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteString(e.Module)
	b.WriteString(": ")
	b.WriteString(e.Message)

	ctx := make([]string, 0, 4)
	ctx = append(ctx, "code="+e.Code)
	if e.Stage != "" {
		ctx = append(ctx, "stage="+e.Stage)
	}
	if e.UserID != 0 {
		ctx = append(ctx, fmt.Sprintf("user_id=%d", e.UserID))
	}
	if e.ItemID != 0 {
		ctx = append(ctx, fmt.Sprintf("item_id=%d", e.ItemID))
	}
	b.WriteString(" (")
	b.WriteString(strings.Join(ctx, " "))
	b.WriteString(")")

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DomainError) Unwrap() error { return e.Err }

// WithStage 返回一个带阶段信息的副本；已有阶段时保持不变（最内层阶段优先）。
func (e *DomainError) WithStage(stage string) *DomainError {
	cp := *e
	if cp.Stage == "" {
		cp.Stage = stage
	}
	return &cp
}

// WithUser 返回一个带用户 ID 的副本。
func (e *DomainError) WithUser(userID int64) *DomainError {
	cp := *e
	if cp.UserID == 0 {
		cp.UserID = userID
	}
	return &cp
}

// IsDomainError 检查错误链中是否存在 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链中的 DomainError，如果没有则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// 错误代码常量
const (
	// 通用错误代码
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeNotSupported  = "NOT_SUPPORTED"  // 操作不支持
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 服务不可用
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误

	// 推荐链路错误代码
	ErrorCodeUnknownUser      = "UNKNOWN_USER"      // 用户不在近邻特征空间中
	ErrorCodeInvalidParameter = "INVALID_PARAMETER" // K 越界、ID 非正等
	ErrorCodeMissingMetadata  = "MISSING_METADATA"  // 候选物品缺少元数据
	ErrorCodeInvalidScore     = "INVALID_SCORE"     // 打分为 NaN 或 ±Inf
	ErrorCodeTimeout          = "TIMEOUT"           // 外部调用超时
	ErrorCodeCanceled         = "CANCELED"          // 调用方取消
	ErrorCodePersistence      = "PERSISTENCE"       // 结果无法写出
)

// 模块名称常量
const (
	ModuleStore    = "store"    // 存储模块
	ModuleNeighbor = "neighbor" // 近邻索引模块
	ModuleRecall   = "recall"   // 候选生成模块
	ModuleFilter   = "filter"   // 过滤模块
	ModuleRank     = "rank"     // 排序模块
	ModuleModel    = "model"    // 打分模型模块
	ModuleSink     = "sink"     // 结果输出模块
	ModulePipeline = "pipeline" // 编排模块
	ModuleConfig   = "config"   // 配置模块
)

// NewUnknownUserError 用户不在近邻特征矩阵中。
func NewUnknownUserError(userID int64) *DomainError {
	return &DomainError{
		Module:  ModuleNeighbor,
		Code:    ErrorCodeUnknownUser,
		Message: "user not present in neighbor feature space",
		UserID:  userID,
	}
}

// NewInvalidParameterError 参数越界。
func NewInvalidParameterError(module, format string, args ...any) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    ErrorCodeInvalidParameter,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewMissingMetadataError 候选物品缺少元数据 join。
func NewMissingMetadataError(module string, itemID int64) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    ErrorCodeMissingMetadata,
		Message: "candidate item has no metadata record",
		ItemID:  itemID,
	}
}

// NewInvalidScoreError 打分为 NaN 或 ±Inf。
func NewInvalidScoreError(userID, itemID int64, model string) *DomainError {
	return &DomainError{
		Module:  ModuleRank,
		Code:    ErrorCodeInvalidScore,
		Message: "scorer " + model + " returned a non-finite score",
		UserID:  userID,
		ItemID:  itemID,
	}
}

// NewPersistenceError 结果输出失败。
func NewPersistenceError(sink string, err error) *DomainError {
	return &DomainError{
		Module:  ModuleSink,
		Code:    ErrorCodePersistence,
		Message: "write to " + sink + " failed",
		Err:     err,
	}
}

// FromContext 把 context 错误转换为 TIMEOUT / CANCELED 领域错误；其他错误原样返回。
func FromContext(module string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomainError(err) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &DomainError{Module: module, Code: ErrorCodeTimeout, Message: "deadline exceeded", Err: err}
	case errors.Is(err, context.Canceled):
		return &DomainError{Module: module, Code: ErrorCodeCanceled, Message: "canceled", Err: err}
	}
	return err
}

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// 通用错误检查函数

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool { return hasCode(err, ErrorCodeNotSupported) }

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool { return hasCode(err, ErrorCodeUnavailable) }

func IsUnknownUser(err error) bool      { return hasCode(err, ErrorCodeUnknownUser) }
func IsInvalidParameter(err error) bool { return hasCode(err, ErrorCodeInvalidParameter) }
func IsMissingMetadata(err error) bool  { return hasCode(err, ErrorCodeMissingMetadata) }
func IsInvalidScore(err error) bool     { return hasCode(err, ErrorCodeInvalidScore) }
func IsTimeout(err error) bool          { return hasCode(err, ErrorCodeTimeout) }
func IsCanceled(err error) bool         { return hasCode(err, ErrorCodeCanceled) }
func IsPersistence(err error) bool      { return hasCode(err, ErrorCodePersistence) }
