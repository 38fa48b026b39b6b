package database

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/audi0417/Patient-CRM-sub002/internal/query"
)

// 会话变量 app.organization_id 只在设置它的连接上可见。池化的
// *sql.DB 每条语句都可能换连接，所以一次请求的所有语句必须固定在
// 同一个 *sql.Conn 上，归还前清掉变量，避免泄到下一个租户。

// ConnExecutor 绑定单个数据库连接的语句执行器
// 查询结果以 map 返回，列名保持数据库中的大小写。
type ConnExecutor struct {
	conn   *sql.Conn
	logger *zap.Logger
}

// Execute 执行写语句，返回受影响行数
func (e *ConnExecutor) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := e.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// QueryOne 查询单行，无结果返回 nil
func (e *ConnExecutor) QueryOne(ctx context.Context, query string, args ...any) (map[string]any, error) {
	rows, err := e.QueryAll(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// QueryAll 查询多行
func (e *ConnExecutor) QueryAll(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := e.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// TenantConns 按请求发放绑定租户会话变量的连接
type TenantConns struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewTenantConns(db *sql.DB, logger *zap.Logger) *TenantConns {
	return &TenantConns{db: db, logger: logger}
}

// Acquire 取出一个专用连接并在其上设置 app.organization_id
//
// 返回的执行器与释放函数成对使用：请求结束必须调用释放函数。
// set_config 失败只降级告警（数据库侧 RLS 是第二道防线，应用层
// 的查询构造器仍然保证隔离），取不到连接则是真实错误，向上传播。
func (s *TenantConns) Acquire(ctx context.Context, organizationID string) (query.Executor, func(), error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, nil, err
	}

	if _, err := conn.ExecContext(ctx,
		"SELECT set_config('app.organization_id', $1, false)", organizationID); err != nil {
		s.logger.Warn("failed to bind organization to database session, secondary isolation degraded",
			zap.String("organization_id", organizationID),
			zap.Error(err))
	}

	release := func() {
		resetCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if _, err := conn.ExecContext(resetCtx,
			"SELECT set_config('app.organization_id', '', false)"); err != nil {
			s.logger.Warn("failed to reset organization session variable", zap.Error(err))
		}
		if err := conn.Close(); err != nil {
			s.logger.Warn("failed to release tenant connection", zap.Error(err))
		}
	}

	return &ConnExecutor{conn: conn, logger: s.logger}, release, nil
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		scanArgs := make([]any, len(columns))
		for i := range values {
			scanArgs[i] = &values[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			// lib/pq 对文本列返回 []byte
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
