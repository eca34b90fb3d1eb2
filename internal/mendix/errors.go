package mendix

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind 平台错误分类（由HTTP状态码映射）
type ErrorKind string

const (
	KindNotFound     ErrorKind = "not_found"
	KindUnauthorized ErrorKind = "unauthorized"
	KindRateLimited  ErrorKind = "rate_limited"
	KindUnknown      ErrorKind = "unknown"
)

// APIError 平台API错误，携带HTTP状态码与响应体
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Operation  string
	Body       string
}

// Error implements the error interface
func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256]
	}
	return fmt.Sprintf("mendix %s: status %d (%s): %s", e.Operation, e.StatusCode, e.Kind, body)
}

// Fatal 该错误是否不可重试
func (e *APIError) Fatal() bool {
	return e.Kind == KindNotFound || e.Kind == KindUnauthorized
}

func kindFromStatus(status int) ErrorKind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindUnknown
	}
}

func newAPIError(operation string, status int, body []byte) *APIError {
	return &APIError{
		Kind:       kindFromStatus(status),
		StatusCode: status,
		Operation:  operation,
		Body:       string(body),
	}
}

// IsFatal 判断任意错误是否应短路重试。
// 结构化的APIError按Kind判断；其余错误沿用历史的文本约定
// （FATAL:标记、APP_NOT_FOUND、INVALID_CREDENTIALS）。
// 编排器在分类前会给错误加"step xxx:"前缀，所以文本约定
// 必须按子串匹配而不是前缀匹配。
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Fatal()
	}
	msg := err.Error()
	return strings.Contains(msg, "FATAL:") ||
		strings.Contains(msg, "APP_NOT_FOUND") ||
		strings.Contains(msg, "INVALID_CREDENTIALS")
}
