package query

import "fmt"

// InvalidIdentifierError 非法 SQL 标识符
// 表名/列名/排序方向来自代码或配置，出现非法值属于编程错误，直接向上抛出。
type InvalidIdentifierError struct {
	Kind  string // "table" / "column" / "order_by"
	Value string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("INVALID_IDENTIFIER: invalid %s identifier %q", e.Kind, e.Value)
}

// UnsafeRawQueryError raw 查询未通过租户谓词检查
type UnsafeRawQueryError struct {
	Reason string
}

func (e *UnsafeRawQueryError) Error() string {
	return fmt.Sprintf("UNSAFE_RAW_QUERY: %s", e.Reason)
}

// PersistenceError 包装底层驱动错误
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("PERSISTENCE_ERROR: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func wrapPersistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
