package access

import "sort"

// Classification 数据敏感级别
// 排序只用于文档和报表；访问判定使用每个角色的显式允许集合，
// 不做数值阈值比较（角色的允许集合不要求连续）。
type Classification int

const (
	Public Classification = iota
	Internal
	Confidential
	Restricted
)

func (c Classification) String() string {
	switch c {
	case Public:
		return "PUBLIC"
	case Internal:
		return "INTERNAL"
	case Confidential:
		return "CONFIDENTIAL"
	case Restricted:
		return "RESTRICTED"
	default:
		return "UNKNOWN"
	}
}

// Registry 静态数据分级表：表默认级别 + 字段级覆盖
type Registry struct {
	tableDefaults  map[string]Classification
	fieldOverrides map[string]map[string]Classification
}

// DefaultRegistry 诊所 CRM 的数据分级
func DefaultRegistry() *Registry {
	return &Registry{
		tableDefaults: map[string]Classification{
			"organizations":   Internal,
			"users":           Internal,
			"patients":        Confidential,
			"appointments":    Internal,
			"medical_records": Restricted,
			"billing_records": Confidential,
			"audit_logs":      Internal,
		},
		fieldOverrides: map[string]map[string]Classification{
			"organizations": {
				"name": Public,
			},
			"users": {
				"password": Restricted,
				"email":    Confidential,
				"phone":    Confidential,
			},
			"patients": {
				"id":             Public,
				"firstName":      Internal,
				"lastName":       Internal,
				"status":         Internal,
				"createdAt":      Internal,
				"updatedAt":      Internal,
				"organizationId": Internal,
				"phone":          Confidential,
				"email":          Confidential,
				"nationalId":     Restricted,
				"medicalHistory": Restricted,
				"allergies":      Restricted,
			},
			"appointments": {
				"notes": Confidential,
			},
		},
	}
}

// Classify 返回字段的级别：字段覆盖优先，其次表默认
// 未登记的表按最高级别处理（fail closed）。
func (r *Registry) Classify(table, field string) Classification {
	if fields, ok := r.fieldOverrides[table]; ok {
		if c, ok := fields[field]; ok {
			return c
		}
	}
	if c, ok := r.tableDefaults[table]; ok {
		return c
	}
	return Restricted
}

// Entry 分级表条目（field 为空表示表默认级别），用于合规报表导出
type Entry struct {
	Table          string
	Field          string
	Classification Classification
}

// Snapshot 按表/字段排序导出全部分级条目
func (r *Registry) Snapshot() []Entry {
	entries := make([]Entry, 0, len(r.tableDefaults))
	for table, c := range r.tableDefaults {
		entries = append(entries, Entry{Table: table, Classification: c})
	}
	for table, fields := range r.fieldOverrides {
		for field, c := range fields {
			entries = append(entries, Entry{Table: table, Field: field, Classification: c})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Table != entries[j].Table {
			return entries[i].Table < entries[j].Table
		}
		return entries[i].Field < entries[j].Field
	})
	return entries
}
