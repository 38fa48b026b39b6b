package httpapi

import (
	"errors"
	"net/http"

	"github.com/audi0417/Patient-CRM-sub002/internal/tenant"
)

// Result 与前端 Axios 拦截器约定的响应包
// - code: 2000 成功
// - type: 'success' | 'error' | 'warning'
// - message: string
// - result: any
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
	// 未认证使用 code=60401 + HTTP 401（前端拦截器会跳登录页）
	ResultUnauthenticated = 60401
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message, Result: nil}
}

// writeDenial 把访问控制错误映射为 HTTP 响应
func writeDenial(w http.ResponseWriter, err error) {
	var denied *tenant.AccessDeniedError
	if !errors.As(err, &denied) {
		// 底层错误细节不回给客户端，调用方负责记录
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}

	switch denied.Code {
	case "UNAUTHENTICATED":
		writeJSON(w, http.StatusUnauthorized,
			Result[any]{Code: ResultUnauthenticated, Type: "error", Message: denied.Message})
	case "NO_ORGANIZATION", "ORGANIZATION_NOT_FOUND", "ORGANIZATION_INACTIVE", "FIELD_ACCESS_DENIED":
		writeJSON(w, http.StatusForbidden, Fail(denied.Message))
	default:
		writeJSON(w, http.StatusForbidden, Fail(denied.Message))
	}
}
