package access

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/audi0417/Patient-CRM-sub002/internal/audit"
	"github.com/audi0417/Patient-CRM-sub002/internal/tenant"
)

// Enforcer 请求级访问控制门面
// 绑定一个请求的主体与机构，路由逻辑通过它做资源检查与字段过滤。
type Enforcer struct {
	matrix    *Matrix
	principal *tenant.Principal
	emitter   audit.Emitter
	logger    *zap.Logger
}

func NewEnforcer(matrix *Matrix, principal *tenant.Principal, emitter audit.Emitter, logger *zap.Logger) *Enforcer {
	return &Enforcer{
		matrix:    matrix,
		principal: principal,
		emitter:   emitter,
		logger:    logger,
	}
}

// CheckAccess 资源级检查，允许与拒绝都会产生审计事件
func (e *Enforcer) CheckAccess(ctx context.Context, resource string, op Operation) error {
	allowed := e.matrix.CheckPermission(e.principal.Role, resource, op)

	outcome := audit.OutcomeAllowed
	if !allowed {
		outcome = audit.OutcomeDenied
	}
	e.emit(ctx, resource, op, outcome, nil)

	if !allowed {
		return tenant.Denied("FIELD_ACCESS_DENIED",
			fmt.Sprintf("role %s may not %s %s", e.principal.Role, op, resource))
	}
	return nil
}

// CheckFieldAccess 单字段检查（定向读取敏感字段用）
func (e *Enforcer) CheckFieldAccess(ctx context.Context, table, field string, op Operation) error {
	if e.matrix.CheckFieldPermission(e.principal.Role, table, field, op) {
		e.emit(ctx, table, op, audit.OutcomeAllowed, nil)
		return nil
	}
	e.emit(ctx, table, op, audit.OutcomeDenied, []string{field})
	return tenant.Denied("FIELD_ACCESS_DENIED",
		fmt.Sprintf("role %s may not %s %s.%s", e.principal.Role, op, table, field))
}

// FilterFields 返回只保留该角色可访问字段的副本
// 被剔除的敏感字段记录审计，但绝不出现在响应里。幂等。
func (e *Enforcer) FilterFields(ctx context.Context, table string, record map[string]any, op Operation) map[string]any {
	if record == nil {
		return nil
	}

	filtered := make(map[string]any, len(record))
	var denied []string
	for field, value := range record {
		if e.matrix.CheckFieldPermission(e.principal.Role, table, field, op) {
			filtered[field] = value
			continue
		}
		denied = append(denied, field)
	}

	if len(denied) > 0 {
		e.logger.Debug("fields filtered from response",
			zap.String("table", table),
			zap.String("role", string(e.principal.Role)),
			zap.Strings("denied_fields", denied))
		e.emit(ctx, table, op, audit.OutcomeFiltered, denied)
	}
	return filtered
}

// FilterRecords 对记录序列逐条过滤
func (e *Enforcer) FilterRecords(ctx context.Context, table string, records []map[string]any, op Operation) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, record := range records {
		out = append(out, e.FilterFields(ctx, table, record, op))
	}
	return out
}

// SpecialRule 透传到矩阵的横切策略
func (e *Enforcer) SpecialRule(name string) bool {
	return e.matrix.SpecialRule(name, e.principal.Role)
}

func (e *Enforcer) emit(ctx context.Context, resource string, op Operation, outcome string, deniedFields []string) {
	e.emitter.Emit(ctx, audit.NewEvent(
		e.principal.OrganizationID,
		e.principal.ID,
		string(e.principal.Role),
		resource,
		string(op),
		outcome,
		deniedFields,
	))
}
