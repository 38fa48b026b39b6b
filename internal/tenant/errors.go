package tenant

// AccessDeniedError 面向客户端的拒绝错误，带机器可读 code
// 这些错误会被审计记录，但不暴露跨租户记录是否存在。
type AccessDeniedError struct {
	Code    string
	Message string
}

func (e *AccessDeniedError) Error() string { return e.Code + ": " + e.Message }

// Is 按 code 匹配，便于 errors.Is 与哨兵值比较
func (e *AccessDeniedError) Is(target error) bool {
	t, ok := target.(*AccessDeniedError)
	return ok && t.Code == e.Code
}

var (
	ErrUnauthenticated      = &AccessDeniedError{Code: "UNAUTHENTICATED", Message: "authentication required"}
	ErrNoOrganization       = &AccessDeniedError{Code: "NO_ORGANIZATION", Message: "principal has no organization"}
	ErrOrganizationNotFound = &AccessDeniedError{Code: "ORGANIZATION_NOT_FOUND", Message: "organization not found"}
	ErrOrganizationInactive = &AccessDeniedError{Code: "ORGANIZATION_INACTIVE", Message: "organization is inactive"}
)

// Denied 构造带自定义消息的拒绝错误
func Denied(code, message string) *AccessDeniedError {
	return &AccessDeniedError{Code: code, Message: message}
}
