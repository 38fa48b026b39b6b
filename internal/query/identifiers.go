package query

import (
	"regexp"
	"strings"
)

// 表名/列名/ORDER BY 无法使用占位符参数化，是唯一的注入面。
// 这里用固定白名单关闭它：白名单之外一律拒绝，不做转义。

// allowedTables 允许访问的表（与 scripts/schema.sql 保持一致）
var allowedTables = map[string]struct{}{
	"organizations":   {},
	"users":           {},
	"patients":        {},
	"appointments":    {},
	"medical_records": {},
	"billing_records": {},
	"audit_logs":      {},
}

// allowedOrderColumns ORDER BY 允许的列
var allowedOrderColumns = map[string]struct{}{
	"id":              {},
	"createdAt":       {},
	"updatedAt":       {},
	"name":            {},
	"firstName":       {},
	"lastName":        {},
	"appointmentDate": {},
	"status":          {},
}

var columnPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateTable 校验表名是否在白名单内
func ValidateTable(name string) (string, error) {
	if _, ok := allowedTables[name]; !ok {
		return "", &InvalidIdentifierError{Kind: "table", Value: name}
	}
	return name, nil
}

// ValidateColumn 校验列名格式
func ValidateColumn(name string) (string, error) {
	if !columnPattern.MatchString(name) {
		return "", &InvalidIdentifierError{Kind: "column", Value: name}
	}
	return name, nil
}

// ValidateOrderBy 校验排序表达式，返回 "<column> <ASC|DESC>"
// 空输入返回空字符串（表示不排序）；方向缺省为 ASC。
func ValidateOrderBy(spec string) (string, error) {
	fields := strings.Fields(spec)
	if len(fields) == 0 {
		return "", nil
	}
	if len(fields) > 2 {
		return "", &InvalidIdentifierError{Kind: "order_by", Value: spec}
	}

	column := fields[0]
	if _, ok := allowedOrderColumns[column]; !ok {
		return "", &InvalidIdentifierError{Kind: "order_by", Value: spec}
	}

	direction := "ASC"
	if len(fields) == 2 {
		switch strings.ToUpper(fields[1]) {
		case "ASC":
			direction = "ASC"
		case "DESC":
			direction = "DESC"
		default:
			return "", &InvalidIdentifierError{Kind: "order_by", Value: spec}
		}
	}

	return column + " " + direction, nil
}
