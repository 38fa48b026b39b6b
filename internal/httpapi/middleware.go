package httpapi

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/audi0417/Patient-CRM-sub002/internal/access"
	"github.com/audi0417/Patient-CRM-sub002/internal/audit"
	"github.com/audi0417/Patient-CRM-sub002/internal/query"
	"github.com/audi0417/Patient-CRM-sub002/internal/tenant"
)

// PrincipalFromRequest 从网关注入的请求头还原主体
// 认证在上游网关完成，本服务信任这些头；缺少 X-User-Id 视为未认证。
func PrincipalFromRequest(r *http.Request) *tenant.Principal {
	id := r.Header.Get("X-User-Id")
	if id == "" {
		return nil
	}
	return &tenant.Principal{
		ID:             id,
		Role:           tenant.Role(r.Header.Get("X-User-Role")),
		OrganizationID: r.Header.Get("X-Organization-Id"),
		TokenID:        r.Header.Get("X-Token-Id"),
	}
}

// RequestScope 一次请求的租户上下文
// 中间件解析成功后传给业务 handler，生命周期与请求相同。
type RequestScope struct {
	Principal *tenant.Principal
	Tenant    *tenant.Context
	Builder   *query.Builder
	Enforcer  *access.Enforcer
}

// ScopedHandler 带租户上下文的业务 handler
type ScopedHandler func(w http.ResponseWriter, r *http.Request, scope *RequestScope)

// Middleware 租户解析中间件
type Middleware struct {
	resolver *tenant.Resolver
	matrix   *access.Matrix
	emitter  audit.Emitter
	logger   *zap.Logger
}

func NewMiddleware(resolver *tenant.Resolver, matrix *access.Matrix, emitter audit.Emitter, logger *zap.Logger) *Middleware {
	return &Middleware{
		resolver: resolver,
		matrix:   matrix,
		emitter:  emitter,
		logger:   logger,
	}
}

// Wrap 在 handler 前完成主体还原与租户解析
// 解析失败直接拒绝，业务代码不会在无租户上下文的情况下执行。
func (m *Middleware) Wrap(next ScopedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		principal := PrincipalFromRequest(r)

		tc, qb, release, err := m.resolver.Resolve(r.Context(), principal)
		if err != nil {
			var denied *tenant.AccessDeniedError
			if errors.As(err, &denied) {
				m.logger.Info("request rejected by tenant resolution",
					zap.String("path", r.URL.Path),
					zap.Error(err))
			} else {
				m.logger.Error("tenant resolution failed",
					zap.String("path", r.URL.Path),
					zap.Error(err))
			}
			writeDenial(w, err)
			return
		}
		defer release()

		scope := &RequestScope{
			Principal: principal,
			Tenant:    tc,
			Builder:   qb,
			Enforcer:  access.NewEnforcer(m.matrix, principal, m.emitter, m.logger),
		}
		next(w, r, scope)

		m.logger.Debug("request completed",
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method),
			zap.String("organization_id", tc.OrganizationID),
			zap.Duration("elapsed", time.Since(start)))
	}
}
