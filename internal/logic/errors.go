package logic

import (
	"errors"
)

// 业务错误分类，handler 层据此映射HTTP状态码
var (
	// ErrProjectNotFound 项目不存在
	ErrProjectNotFound = errors.New("project not found")

	// ErrDuplicateTransaction 交易已记录过（冲突，不可重试）
	ErrDuplicateTransaction = errors.New("transaction already recorded")

	// ErrValidation 入参校验失败
	ErrValidation = errors.New("validation failed")

	// ErrStoreUnavailable 存储暂不可用（瞬时，调用方可重试）
	ErrStoreUnavailable = errors.New("store unavailable")
)
