package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/audi0417/Patient-CRM-sub002/internal/tenant"
)

func newTestMatrix() *Matrix {
	return NewMatrix(DefaultRegistry(), zap.NewNop())
}

func TestCheckPermission(t *testing.T) {
	m := newTestMatrix()

	assert.True(t, m.CheckPermission(tenant.RoleSuperAdmin, "organizations", OpDelete))
	assert.True(t, m.CheckPermission(tenant.RoleAdmin, "patients", OpDelete))
	assert.True(t, m.CheckPermission(tenant.RoleUser, "patients", OpCreate))

	// ADMIN 不能删机构
	assert.False(t, m.CheckPermission(tenant.RoleAdmin, "organizations", OpDelete))
	// USER 不能删病患
	assert.False(t, m.CheckPermission(tenant.RoleUser, "patients", OpDelete))
	// USER 无账单权限
	assert.False(t, m.CheckPermission(tenant.RoleUser, "billing_records", OpRead))
	// 审计日志只读
	assert.False(t, m.CheckPermission(tenant.RoleAdmin, "audit_logs", OpCreate))
}

func TestCheckPermissionUnknownResource(t *testing.T) {
	m := newTestMatrix()

	assert.False(t, m.CheckPermission(tenant.RoleSuperAdmin, "prescriptions", OpRead))
	assert.False(t, m.CheckPermission(tenant.RoleAdmin, "", OpRead))
}

func TestCheckDataClassificationAccess(t *testing.T) {
	m := newTestMatrix()

	assert.True(t, m.CheckDataClassificationAccess(tenant.RoleUser, Public))
	assert.True(t, m.CheckDataClassificationAccess(tenant.RoleUser, Internal))
	assert.False(t, m.CheckDataClassificationAccess(tenant.RoleUser, Confidential))
	assert.False(t, m.CheckDataClassificationAccess(tenant.RoleUser, Restricted))

	assert.True(t, m.CheckDataClassificationAccess(tenant.RoleAdmin, Restricted))
	assert.True(t, m.CheckDataClassificationAccess(tenant.RoleSuperAdmin, Restricted))

	// 未知角色全拒
	assert.False(t, m.CheckDataClassificationAccess(tenant.Role("GUEST"), Public))
}

func TestFieldOverrideReadOnlyMedicalHistory(t *testing.T) {
	m := newTestMatrix()

	// 覆盖放宽：USER 本无 Restricted 访问，但病史/过敏史可读
	assert.True(t, m.CheckFieldPermission(tenant.RoleUser, "patients", "medicalHistory", OpRead))
	assert.True(t, m.CheckFieldPermission(tenant.RoleUser, "patients", "allergies", OpRead))
	// 覆盖集合之外的操作仍然拒绝
	assert.False(t, m.CheckFieldPermission(tenant.RoleUser, "patients", "medicalHistory", OpUpdate))
	assert.False(t, m.CheckFieldPermission(tenant.RoleUser, "patients", "allergies", OpUpdate))

	// ADMIN 不受该覆盖影响，走分级判定
	assert.True(t, m.CheckFieldPermission(tenant.RoleAdmin, "patients", "medicalHistory", OpUpdate))
}

func TestPasswordDeniedForEveryRole(t *testing.T) {
	m := newTestMatrix()

	roles := []tenant.Role{tenant.RoleSuperAdmin, tenant.RoleAdmin, tenant.RoleUser}
	for _, role := range roles {
		for _, op := range []Operation{OpRead, OpCreate, OpUpdate, OpDelete} {
			assert.False(t, m.CheckFieldPermission(role, "users", "password", op),
				"role=%s op=%s", role, op)
		}
	}
}

func TestFieldPermissionClassificationFallback(t *testing.T) {
	m := newTestMatrix()

	// patients.phone 为 Confidential：USER 拒，ADMIN 允
	assert.False(t, m.CheckFieldPermission(tenant.RoleUser, "patients", "phone", OpRead))
	assert.True(t, m.CheckFieldPermission(tenant.RoleAdmin, "patients", "phone", OpRead))

	// patients.firstName 为 Internal：USER 允
	assert.True(t, m.CheckFieldPermission(tenant.RoleUser, "patients", "firstName", OpRead))

	// 未登记的表 fail closed 到 Restricted
	assert.False(t, m.CheckFieldPermission(tenant.RoleUser, "prescriptions", "dose", OpRead))
	assert.True(t, m.CheckFieldPermission(tenant.RoleAdmin, "prescriptions", "dose", OpRead))
}

func TestSpecialRules(t *testing.T) {
	m := newTestMatrix()

	assert.True(t, m.SpecialRule("cross_organization_access", tenant.RoleSuperAdmin))
	assert.False(t, m.SpecialRule("cross_organization_access", tenant.RoleAdmin))
	assert.True(t, m.SpecialRule("manage_subscription", tenant.RoleSuperAdmin))
	assert.False(t, m.SpecialRule("manage_subscription", tenant.RoleUser))

	// 对所有角色关闭的规则
	assert.False(t, m.SpecialRule("delete_last_admin", tenant.RoleSuperAdmin))

	// 未知规则一律拒绝
	assert.False(t, m.SpecialRule("time_travel", tenant.RoleSuperAdmin))
}

func TestResources(t *testing.T) {
	m := newTestMatrix()

	resources := m.Resources()
	assert.Contains(t, resources, "patients")
	assert.Contains(t, resources, "audit_logs")
	assert.IsIncreasing(t, resources)
}

func TestRegistrySnapshot(t *testing.T) {
	r := DefaultRegistry()

	entries := r.Snapshot()
	assert.NotEmpty(t, entries)

	found := false
	for _, e := range entries {
		if e.Table == "patients" && e.Field == "medicalHistory" {
			assert.Equal(t, Restricted, e.Classification)
			found = true
		}
	}
	assert.True(t, found)
}

func TestClassifyFailClosed(t *testing.T) {
	r := DefaultRegistry()

	assert.Equal(t, Restricted, r.Classify("unknown_table", "anything"))
	assert.Equal(t, Confidential, r.Classify("patients", "notAListedField"))
	assert.Equal(t, Public, r.Classify("patients", "id"))
}
