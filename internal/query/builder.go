package query

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// OrgColumn 租户隔离列（原 CRM schema 使用 camelCase 列名）
const OrgColumn = "organizationId"

// Executor 数据库执行接口
// 生产环境由 internal/database 的 Postgres 实现提供，测试使用内存 fake。
type Executor interface {
	Execute(ctx context.Context, query string, args ...any) (int64, error)
	QueryOne(ctx context.Context, query string, args ...any) (map[string]any, error)
	QueryAll(ctx context.Context, query string, args ...any) ([]map[string]any, error)
}

// Dialect 标识符引用规则（显式传入，避免模块级单例）
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
)

// QuoteIdent 按方言引用标识符
func (d Dialect) QuoteIdent(name string) string {
	// 目前只支持 PostgreSQL；camelCase 列名必须加双引号
	return `"` + name + `"`
}

// FindOptions 列表查询选项
type FindOptions struct {
	OrderBy string // "<column> [ASC|DESC]"，空表示不排序
	Limit   int
	Offset  int
}

// Builder 租户作用域查询构造器
// 每个请求创建一个实例，生命周期内只绑定一个 organizationId，
// 所有生成的语句都以参数形式带上该 id 的等值条件。
type Builder struct {
	exec    Executor
	orgID   string
	dialect Dialect
	logger  *zap.Logger
}

func NewBuilder(exec Executor, organizationID string, dialect Dialect, logger *zap.Logger) *Builder {
	return &Builder{
		exec:    exec,
		orgID:   organizationID,
		dialect: dialect,
		logger:  logger,
	}
}

// OrganizationID 返回绑定的机构 id
func (b *Builder) OrganizationID() string { return b.orgID }

// FindByID 按主键查询，未命中或属于其他机构都返回 nil
func (b *Builder) FindByID(ctx context.Context, table, id string) (map[string]any, error) {
	t, err := ValidateTable(table)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf(`SELECT * FROM %s WHERE %s = $1 AND %s = $2`,
		b.dialect.QuoteIdent(t), b.dialect.QuoteIdent("id"), b.dialect.QuoteIdent(OrgColumn))
	row, err := b.exec.QueryOne(ctx, stmt, id, b.orgID)
	if err != nil {
		return nil, wrapPersistence("findById "+t, err)
	}
	return row, nil
}

// FindAll 列表查询
func (b *Builder) FindAll(ctx context.Context, table string, opts FindOptions) ([]map[string]any, error) {
	t, err := ValidateTable(table)
	if err != nil {
		return nil, err
	}
	orderBy, err := ValidateOrderBy(opts.OrderBy)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	args := []any{b.orgID}
	fmt.Fprintf(&sb, `SELECT * FROM %s WHERE %s = $1`,
		b.dialect.QuoteIdent(t), b.dialect.QuoteIdent(OrgColumn))
	if orderBy != "" {
		parts := strings.SplitN(orderBy, " ", 2)
		fmt.Fprintf(&sb, ` ORDER BY %s %s`, b.dialect.QuoteIdent(parts[0]), parts[1])
	}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		fmt.Fprintf(&sb, ` OFFSET $%d`, len(args))
	}

	rows, err := b.exec.QueryAll(ctx, sb.String(), args...)
	if err != nil {
		return nil, wrapPersistence("findAll "+t, err)
	}
	return rows, nil
}

// FindWhere 条件查询（条件列名经过白名单校验，值全部参数化）
func (b *Builder) FindWhere(ctx context.Context, table string, conditions map[string]any) ([]map[string]any, error) {
	t, err := ValidateTable(table)
	if err != nil {
		return nil, err
	}
	where, args, err := b.buildWhere(conditions)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf(`SELECT * FROM %s WHERE %s`, b.dialect.QuoteIdent(t), where)
	rows, err := b.exec.QueryAll(ctx, stmt, args...)
	if err != nil {
		return nil, wrapPersistence("findWhere "+t, err)
	}
	return rows, nil
}

// Count 条件计数
func (b *Builder) Count(ctx context.Context, table string, conditions map[string]any) (int64, error) {
	t, err := ValidateTable(table)
	if err != nil {
		return 0, err
	}
	where, args, err := b.buildWhere(conditions)
	if err != nil {
		return 0, err
	}

	stmt := fmt.Sprintf(`SELECT COUNT(*) AS count FROM %s WHERE %s`, b.dialect.QuoteIdent(t), where)
	row, err := b.exec.QueryOne(ctx, stmt, args...)
	if err != nil {
		return 0, wrapPersistence("count "+t, err)
	}
	if row == nil {
		return 0, nil
	}
	switch v := row["count"].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, wrapPersistence("count "+t, fmt.Errorf("unexpected count type %T", row["count"]))
	}
}

// Insert 插入一行并返回插入结果
// payload 里的 organizationId 一律丢弃，强制写入绑定的机构 id。
func (b *Builder) Insert(ctx context.Context, table string, data map[string]any) (map[string]any, error) {
	t, err := ValidateTable(table)
	if err != nil {
		return nil, err
	}

	row := make(map[string]any, len(data)+1)
	for k, v := range data {
		if _, err := ValidateColumn(k); err != nil {
			return nil, err
		}
		row[k] = v
	}
	row[OrgColumn] = b.orgID

	columns := sortedKeys(row)
	quoted := make([]string, 0, len(columns))
	placeholders := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns))
	for i, col := range columns {
		quoted = append(quoted, b.dialect.QuoteIdent(col))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, row[col])
	}

	stmt := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING *`,
		b.dialect.QuoteIdent(t), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	inserted, err := b.exec.QueryOne(ctx, stmt, args...)
	if err != nil {
		return nil, wrapPersistence("insert "+t, err)
	}
	return inserted, nil
}

// Update 按主键更新
// WHERE 同时带 id 与 organizationId；0 行命中返回 nil，
// 不区分"记录不存在"与"属于其他机构"，避免跨租户存在性泄露。
func (b *Builder) Update(ctx context.Context, table, id string, data map[string]any) (map[string]any, error) {
	t, err := ValidateTable(table)
	if err != nil {
		return nil, err
	}

	row := make(map[string]any, len(data))
	for k, v := range data {
		if _, err := ValidateColumn(k); err != nil {
			return nil, err
		}
		// 主键和租户列不可通过 payload 修改
		if k == "id" || k == OrgColumn {
			continue
		}
		row[k] = v
	}
	if len(row) == 0 {
		return b.FindByID(ctx, t, id)
	}

	columns := sortedKeys(row)
	sets := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns)+2)
	for i, col := range columns {
		sets = append(sets, fmt.Sprintf("%s = $%d", b.dialect.QuoteIdent(col), i+1))
		args = append(args, row[col])
	}
	args = append(args, id, b.orgID)

	stmt := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = $%d AND %s = $%d RETURNING *`,
		b.dialect.QuoteIdent(t), strings.Join(sets, ", "),
		b.dialect.QuoteIdent("id"), len(args)-1,
		b.dialect.QuoteIdent(OrgColumn), len(args))
	updated, err := b.exec.QueryOne(ctx, stmt, args...)
	if err != nil {
		return nil, wrapPersistence("update "+t, err)
	}
	return updated, nil
}

// Delete 按主键删除，返回是否删除了记录
// 与 Update 一样，跨机构的 id 表现为"未找到"。
func (b *Builder) Delete(ctx context.Context, table, id string) (bool, error) {
	t, err := ValidateTable(table)
	if err != nil {
		return false, err
	}

	stmt := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND %s = $2`,
		b.dialect.QuoteIdent(t), b.dialect.QuoteIdent("id"), b.dialect.QuoteIdent(OrgColumn))
	affected, err := b.exec.Execute(ctx, stmt, id, b.orgID)
	if err != nil {
		return false, wrapPersistence("delete "+t, err)
	}
	return affected > 0, nil
}

// rawOrgPredicate raw SQL 必须包含的租户谓词（文本匹配）
var rawOrgPredicate = regexp.MustCompile(`(?i)"?organizationId"?\s*=`)

// Raw 逃生通道：直接执行 SQL
//
// 执行前检查 (a) SQL 文本包含 organizationId 等值谓词 (b) 参数中包含
// 绑定的机构 id。注意这只是尽力而为的文本检查，不是可靠的安全边界——
// 换一种写法就能绕过。新代码应使用上面的构造方法；每次调用都会记录日志。
func (b *Builder) Raw(ctx context.Context, sqlText string, params []any) ([]map[string]any, error) {
	if !rawOrgPredicate.MatchString(sqlText) {
		return nil, &UnsafeRawQueryError{Reason: "statement has no organizationId equality predicate"}
	}
	found := false
	for _, p := range params {
		if s, ok := p.(string); ok && s == b.orgID {
			found = true
			break
		}
	}
	if !found {
		return nil, &UnsafeRawQueryError{Reason: "params do not contain the bound organizationId"}
	}

	if b.logger != nil {
		b.logger.Warn("raw tenant query executed",
			zap.String("organization_id", b.orgID),
			zap.String("sql", sqlText))
	}

	rows, err := b.exec.QueryAll(ctx, sqlText, params...)
	if err != nil {
		return nil, wrapPersistence("raw", err)
	}
	return rows, nil
}

// buildWhere 组装 WHERE 子句，始终以租户条件开头
func (b *Builder) buildWhere(conditions map[string]any) (string, []any, error) {
	clauses := []string{fmt.Sprintf("%s = $1", b.dialect.QuoteIdent(OrgColumn))}
	args := []any{b.orgID}

	for _, col := range sortedKeys(conditions) {
		if _, err := ValidateColumn(col); err != nil {
			return "", nil, err
		}
		v := conditions[col]
		if v == nil {
			clauses = append(clauses, fmt.Sprintf("%s IS NULL", b.dialect.QuoteIdent(col)))
			continue
		}
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", b.dialect.QuoteIdent(col), len(args)))
	}

	return strings.Join(clauses, " AND "), args, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
