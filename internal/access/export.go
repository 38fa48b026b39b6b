package access

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/audi0417/Patient-CRM-sub002/internal/tenant"
)

// ClassificationExportHeader 分级表导出表头
var ClassificationExportHeader = []string{
	"Table",
	"Field",
	"Classification",
}

// MatrixExportHeader 权限矩阵导出表头
var MatrixExportHeader = []string{
	"Resource",
	"Role",
	"READ",
	"CREATE",
	"UPDATE",
	"DELETE",
}

var exportRoles = []tenant.Role{tenant.RoleSuperAdmin, tenant.RoleAdmin, tenant.RoleUser}

// GenerateComplianceWorkbook 生成合规报表 Excel 文件
// 两个工作表：数据分级快照 + 角色权限矩阵（合规审查与客户尽调用）。
func GenerateComplianceWorkbook(m *Matrix) ([]byte, error) {
	f := excelize.NewFile()

	if err := writeClassificationSheet(f, m.Registry()); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeMatrixSheet(f, m); err != nil {
		f.Close()
		return nil, err
	}
	f.DeleteSheet("Sheet1")

	buf, err := f.WriteToBuffer()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeClassificationSheet(f *excelize.File, registry *Registry) error {
	const sheetName = "Data Classification"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	if err := writeHeader(f, sheetName, ClassificationExportHeader); err != nil {
		return err
	}

	for rowIdx, entry := range registry.Snapshot() {
		row := rowIdx + 2
		field := entry.Field
		if field == "" {
			field = "(table default)"
		}
		values := []any{entry.Table, field, entry.Classification.String()}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}
	return nil
}

func writeMatrixSheet(f *excelize.File, m *Matrix) error {
	const sheetName = "Access Matrix"
	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	if err := writeHeader(f, sheetName, MatrixExportHeader); err != nil {
		return err
	}

	row := 2
	for _, resource := range m.Resources() {
		for _, role := range exportRoles {
			values := []any{
				resource,
				string(role),
				yesNo(m.CheckPermission(role, resource, OpRead)),
				yesNo(m.CheckPermission(role, resource, OpCreate)),
				yesNo(m.CheckPermission(role, resource, OpUpdate)),
				yesNo(m.CheckPermission(role, resource, OpDelete)),
			}
			for col, value := range values {
				cell, err := excelize.CoordinatesToCellName(col+1, row)
				if err != nil {
					return fmt.Errorf("failed to convert coordinates: %w", err)
				}
				if err := f.SetCellValue(sheetName, cell, value); err != nil {
					return fmt.Errorf("failed to set cell %s: %w", cell, err)
				}
			}
			row++
		}
	}
	return nil
}

func writeHeader(f *excelize.File, sheetName string, headers []string) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}
	return nil
}

func yesNo(allowed bool) string {
	if allowed {
		return "Y"
	}
	return "N"
}
