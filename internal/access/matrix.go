package access

import (
	"sort"

	"go.uber.org/zap"

	"github.com/audi0417/Patient-CRM-sub002/internal/tenant"
)

// Operation 资源操作
type Operation string

const (
	OpRead   Operation = "READ"
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// AnyRole 字段覆盖里的通配角色（对所有角色生效的硬性规则）
const AnyRole tenant.Role = "*"

// fieldKey 字段覆盖键
type fieldKey struct {
	Role  tenant.Role
	Table string
	Field string
}

// Matrix 角色 × 资源 × 操作权限表
// 纯静态策略求值，无每实体状态机；固定的资源/操作/分级模型，不做规则 DSL。
type Matrix struct {
	registry            *Registry
	grants              map[string]map[tenant.Role]map[Operation]bool
	roleClassifications map[tenant.Role]map[Classification]bool
	fieldOverrides      map[fieldKey]map[Operation]bool
	specialRules        map[string]map[tenant.Role]bool
	logger              *zap.Logger
}

func allOps() map[Operation]bool {
	return map[Operation]bool{OpRead: true, OpCreate: true, OpUpdate: true, OpDelete: true}
}

func ops(list ...Operation) map[Operation]bool {
	m := make(map[Operation]bool, len(list))
	for _, op := range list {
		m[op] = true
	}
	return m
}

// NewMatrix 构造默认权限矩阵
func NewMatrix(registry *Registry, logger *zap.Logger) *Matrix {
	return &Matrix{
		registry: registry,
		logger:   logger,
		grants: map[string]map[tenant.Role]map[Operation]bool{
			"organizations": {
				tenant.RoleSuperAdmin: allOps(),
				tenant.RoleAdmin:      ops(OpRead, OpUpdate),
				tenant.RoleUser:       ops(OpRead),
			},
			"users": {
				tenant.RoleSuperAdmin: allOps(),
				tenant.RoleAdmin:      allOps(),
				tenant.RoleUser:       ops(OpRead),
			},
			"patients": {
				tenant.RoleSuperAdmin: allOps(),
				tenant.RoleAdmin:      allOps(),
				tenant.RoleUser:       ops(OpRead, OpCreate, OpUpdate),
			},
			"appointments": {
				tenant.RoleSuperAdmin: allOps(),
				tenant.RoleAdmin:      allOps(),
				tenant.RoleUser:       ops(OpRead, OpCreate, OpUpdate),
			},
			"medical_records": {
				tenant.RoleSuperAdmin: allOps(),
				tenant.RoleAdmin:      allOps(),
				tenant.RoleUser:       ops(OpRead),
			},
			"billing_records": {
				tenant.RoleSuperAdmin: allOps(),
				tenant.RoleAdmin:      allOps(),
			},
			"audit_logs": {
				tenant.RoleSuperAdmin: ops(OpRead),
				tenant.RoleAdmin:      ops(OpRead),
			},
		},
		roleClassifications: map[tenant.Role]map[Classification]bool{
			tenant.RoleSuperAdmin: {Public: true, Internal: true, Confidential: true, Restricted: true},
			tenant.RoleAdmin:      {Public: true, Internal: true, Confidential: true, Restricted: true},
			tenant.RoleUser:       {Public: true, Internal: true},
		},
		fieldOverrides: map[fieldKey]map[Operation]bool{
			// 任何角色都不能读写 password（密码只参与登录校验，不出库）
			{AnyRole, "users", "password"}: {},
			// 一线人员可以查看病史/过敏史，但不能修改（只读覆盖）
			{tenant.RoleUser, "patients", "medicalHistory"}: ops(OpRead),
			{tenant.RoleUser, "patients", "allergies"}:      ops(OpRead),
		},
		specialRules: map[string]map[tenant.Role]bool{
			"cross_organization_access": {tenant.RoleSuperAdmin: true},
			"manage_subscription":       {tenant.RoleSuperAdmin: true},
			// 机构最后一个管理员不可删除：对所有角色关闭
			"delete_last_admin": {},
		},
	}
}

// CheckPermission 资源级权限判定
// 未登记的资源按配置缺口处理：拒绝并告警，不崩溃。
func (m *Matrix) CheckPermission(role tenant.Role, resource string, op Operation) bool {
	roles, ok := m.grants[resource]
	if !ok {
		m.logger.Warn("permission check against unknown resource, denying",
			zap.String("resource", resource),
			zap.String("role", string(role)))
		return false
	}
	return roles[role][op]
}

// CheckDataClassificationAccess 分级访问判定
// 显式集合成员测试，支持不连续的允许集合。
func (m *Matrix) CheckDataClassificationAccess(role tenant.Role, c Classification) bool {
	return m.roleClassifications[role][c]
}

// CheckFieldPermission 字段级权限判定
// 字段覆盖（精确角色优先，其次通配角色）一旦命中即为最终结果——
// 覆盖是显式操作集合，可以放宽也可以收紧；否则回退到分级判定。
func (m *Matrix) CheckFieldPermission(role tenant.Role, table, field string, op Operation) bool {
	if override, ok := m.fieldOverrides[fieldKey{role, table, field}]; ok {
		return override[op]
	}
	if override, ok := m.fieldOverrides[fieldKey{AnyRole, table, field}]; ok {
		return override[op]
	}
	return m.CheckDataClassificationAccess(role, m.registry.Classify(table, field))
}

// SpecialRule 固定命名的横切策略开关
// 未知规则名一律返回 false。
func (m *Matrix) SpecialRule(name string, role tenant.Role) bool {
	rule, ok := m.specialRules[name]
	if !ok {
		m.logger.Warn("special rule check against unknown rule, denying",
			zap.String("rule", name),
			zap.String("role", string(role)))
		return false
	}
	return rule[role]
}

// Registry 返回底层分级表（报表导出用）
func (m *Matrix) Registry() *Registry { return m.registry }

// Resources 返回已登记资源（排序）
func (m *Matrix) Resources() []string {
	names := make([]string, 0, len(m.grants))
	for name := range m.grants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
