package tenant

// Role 上游令牌校验后得到的角色
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleUser       Role = "USER"
)

// Principal 已完成令牌校验的请求主体
// 签名/过期/吊销检查由上游协作方完成，本层只消费结果，请求内不可变。
type Principal struct {
	ID             string
	Role           Role
	OrganizationID string
	TokenID        string
}

// Limits 机构订阅限额
type Limits struct {
	MaxUsers    int
	MaxPatients int
}

// Organization 机构行（由开通流程维护，本层只读）
type Organization struct {
	ID       string
	Name     string
	Plan     string
	IsActive bool
	Limits   Limits
}

// Context 租户上下文
// 每个请求构造一次，请求结束即丢弃，不持久化、不跨请求复用。
type Context struct {
	OrganizationID string
	Plan           string
	Limits         Limits
}
