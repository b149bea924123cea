package service

import "errors"

// 业务错误值，HTTP 层据此映射状态码
var (
	// ErrRecordNotFound 邮箱不存在或没有可认领的记录
	ErrRecordNotFound = errors.New("没有找到对应的记录")

	// ErrCodeNotFound 上游调用成功但没有提取到验证码
	ErrCodeNotFound = errors.New("没有获取到验证码")
)

// ValidationError 请求数据校验失败
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError 创建校验错误
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// IsValidationError 检查错误是否为校验错误
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
