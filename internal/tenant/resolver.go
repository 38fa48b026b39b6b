package tenant

import (
	"context"

	"go.uber.org/zap"

	"github.com/audi0417/Patient-CRM-sub002/internal/query"
)

// OrganizationStore 机构查询接口
// 未找到时返回 (nil, nil)，查询失败返回底层错误。
type OrganizationStore interface {
	OrganizationByID(ctx context.Context, id string) (*Organization, error)
}

// ExecutorSource 为请求发放执行器
// 生产实现按请求取出专用数据库连接并在其上绑定会话变量
// （RLS 等数据库层策略的第二道防线），请求内的所有语句都走该
// 连接；释放函数在请求结束时归还连接。
type ExecutorSource interface {
	Acquire(ctx context.Context, organizationID string) (query.Executor, func(), error)
}

// Resolver 请求入口的租户网关
// 校验主体的机构有效性，构造租户上下文并绑定一个新的查询构造器。
type Resolver struct {
	orgs    OrganizationStore
	execs   ExecutorSource
	dialect query.Dialect
	logger  *zap.Logger
}

func NewResolver(orgs OrganizationStore, execs ExecutorSource, dialect query.Dialect, logger *zap.Logger) *Resolver {
	return &Resolver{
		orgs:    orgs,
		execs:   execs,
		dialect: dialect,
		logger:  logger,
	}
}

// Resolve 解析租户上下文
//
// 失败路径依次为：无主体 → UNAUTHENTICATED；主体无机构 → NO_ORGANIZATION；
// 机构不存在 → ORGANIZATION_NOT_FOUND；机构停用 → ORGANIZATION_INACTIVE。
// 成功时返回的 Builder 只绑定该机构且所有语句都走同一个获取到的
// 执行器；调用方负责在请求结束时调用释放函数。
func (r *Resolver) Resolve(ctx context.Context, p *Principal) (*Context, *query.Builder, func(), error) {
	if p == nil || p.ID == "" {
		return nil, nil, nil, ErrUnauthenticated
	}
	if p.OrganizationID == "" {
		return nil, nil, nil, ErrNoOrganization
	}

	org, err := r.orgs.OrganizationByID(ctx, p.OrganizationID)
	if err != nil {
		return nil, nil, nil, err
	}
	if org == nil {
		return nil, nil, nil, ErrOrganizationNotFound
	}
	if !org.IsActive {
		return nil, nil, nil, ErrOrganizationInactive
	}

	exec, release, err := r.execs.Acquire(ctx, org.ID)
	if err != nil {
		return nil, nil, nil, err
	}

	tc := &Context{
		OrganizationID: org.ID,
		Plan:           org.Plan,
		Limits:         org.Limits,
	}
	builder := query.NewBuilder(exec, org.ID, r.dialect, r.logger)
	return tc, builder, release, nil
}
