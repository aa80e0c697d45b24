package response

// AppError 接口错误：业务码 + 稳定错误码 + 是否可重试
type AppError struct {
	Code      int
	ErrorCode string
	Message   string
	Retryable bool
	Err       error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WrapError 包装错误
func WrapError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Detail 错误响应中的 data 部分
func (e *AppError) Detail() map[string]interface{} {
	if e == nil || e.ErrorCode == "" {
		return nil
	}
	return map[string]interface{}{
		"code":      e.ErrorCode,
		"retryable": e.Retryable,
	}
}
