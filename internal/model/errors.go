package model

import "errors"

// ErrorKind 是对外可见的稳定错误类型。
type ErrorKind string

const (
	KindInvalidInput         ErrorKind = "INVALID_INPUT"
	KindRateLimited          ErrorKind = "RATE_LIMITED"
	KindUpstreamUnavailable  ErrorKind = "UPSTREAM_UNAVAILABLE"
	KindEmbeddingUnavailable ErrorKind = "EMBEDDING_UNAVAILABLE"
	KindSessionExpired       ErrorKind = "SESSION_EXPIRED"
	KindNotFound             ErrorKind = "NOT_FOUND"
	KindUnauthorized         ErrorKind = "UNAUTHORIZED"
	KindForbidden            ErrorKind = "FORBIDDEN"
	KindAdminDisabled        ErrorKind = "ADMIN_DISABLED"
	KindInternal             ErrorKind = "INTERNAL"
)

// ErrRecordNotFound 在按 id 查找的记录不存在时返回。
var ErrRecordNotFound = errors.New("record not found")

// AppError 携带错误类型与可展示给用户的文案。
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewAppError 创建一个不包装底层错误的 AppError。
func NewAppError(kind ErrorKind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// KindOf 返回错误链上的 ErrorKind，无法识别时为 INTERNAL。
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, ErrRecordNotFound) {
		return KindNotFound
	}
	return KindInternal
}
