package repository

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/audi0417/Patient-CRM-sub002/internal/fieldcrypt"
	"github.com/audi0417/Patient-CRM-sub002/internal/query"
)

// EncryptedPatientFields 病患表落库前加密的字段
var EncryptedPatientFields = []string{"medicalHistory", "allergies", "nationalId"}

const patientsTable = "patients"

// encryptedFieldsColumn 标记列：记录该行哪些字段处于密文态（JSON 数组）
// 读路径按它决定解密哪些字段，缺失时回退到全量字段列表（旧数据）。
const encryptedFieldsColumn = "encryptedFields"

// PatientRepository 病患数据访问
// 写路径加密敏感字段，读路径解密；租户隔离由注入的 Builder 保证。
type PatientRepository struct {
	crypt  *fieldcrypt.Service
	logger *zap.Logger
}

func NewPatientRepository(crypt *fieldcrypt.Service, logger *zap.Logger) *PatientRepository {
	return &PatientRepository{crypt: crypt, logger: logger}
}

// List 列出当前机构的病患
func (r *PatientRepository) List(ctx context.Context, qb *query.Builder, opts query.FindOptions) ([]map[string]any, error) {
	rows, err := qb.FindAll(ctx, patientsTable, opts)
	if err != nil {
		return nil, err
	}
	return r.decryptRows(rows, qb.OrganizationID()), nil
}

// Get 按主键读取，未命中返回 nil
func (r *PatientRepository) Get(ctx context.Context, qb *query.Builder, id string) (map[string]any, error) {
	row, err := qb.FindByID(ctx, patientsTable, id)
	if err != nil || row == nil {
		return nil, err
	}
	return r.decryptRow(row, qb.OrganizationID()), nil
}

// Create 新建病患
func (r *PatientRepository) Create(ctx context.Context, qb *query.Builder, data map[string]any) (map[string]any, error) {
	payload, encrypted, err := r.crypt.EncryptFields(data, EncryptedPatientFields, qb.OrganizationID())
	if err != nil {
		return nil, err
	}
	if err := r.setEncryptedMarker(payload, encrypted); err != nil {
		return nil, err
	}

	inserted, err := qb.Insert(ctx, patientsTable, payload)
	if err != nil || inserted == nil {
		return nil, err
	}
	return r.decryptRow(inserted, qb.OrganizationID()), nil
}

// Update 按主键更新，跨机构的 id 表现为未找到（返回 nil）
func (r *PatientRepository) Update(ctx context.Context, qb *query.Builder, id string, data map[string]any) (map[string]any, error) {
	payload, encrypted, err := r.crypt.EncryptFields(data, EncryptedPatientFields, qb.OrganizationID())
	if err != nil {
		return nil, err
	}
	if len(encrypted) > 0 {
		if err := r.setEncryptedMarker(payload, encrypted); err != nil {
			return nil, err
		}
	}

	updated, err := qb.Update(ctx, patientsTable, id, payload)
	if err != nil || updated == nil {
		return nil, err
	}
	return r.decryptRow(updated, qb.OrganizationID()), nil
}

// Delete 按主键删除
func (r *PatientRepository) Delete(ctx context.Context, qb *query.Builder, id string) (bool, error) {
	return qb.Delete(ctx, patientsTable, id)
}

// Search 按条件查询（status、lastName 等白名单列）
func (r *PatientRepository) Search(ctx context.Context, qb *query.Builder, conditions map[string]any) ([]map[string]any, error) {
	rows, err := qb.FindWhere(ctx, patientsTable, conditions)
	if err != nil {
		return nil, err
	}
	return r.decryptRows(rows, qb.OrganizationID()), nil
}

// Count 统计当前机构病患数（配额检查用）
func (r *PatientRepository) Count(ctx context.Context, qb *query.Builder) (int64, error) {
	return qb.Count(ctx, patientsTable, nil)
}

// RevealField 定向读取单个敏感字段的明文
// 返回 (值, 是否找到记录, 错误)；解密失败向上传播（fail closed）。
func (r *PatientRepository) RevealField(ctx context.Context, qb *query.Builder, id, field string) (string, bool, error) {
	row, err := qb.FindByID(ctx, patientsTable, id)
	if err != nil {
		return "", false, err
	}
	if row == nil {
		return "", false, nil
	}

	value, ok := row[field].(string)
	if !ok || value == "" {
		return "", true, nil
	}
	if !fieldcrypt.LooksEncrypted(value) {
		return value, true, nil
	}

	plaintext, err := r.crypt.DecryptValue(value, qb.OrganizationID())
	if err != nil {
		return "", true, err
	}
	return plaintext, true, nil
}

// decryptRow 解密一行
// 标记列存在时只解密它列出的字段，避免把碰巧长得像密文的明文
// 误判；标记缺失或损坏时回退到全量字段列表。
func (r *PatientRepository) decryptRow(row map[string]any, organizationID string) map[string]any {
	fields := EncryptedPatientFields
	if raw, ok := row[encryptedFieldsColumn].(string); ok && raw != "" {
		var marked []string
		if err := json.Unmarshal([]byte(raw), &marked); err == nil {
			fields = marked
		} else {
			r.logger.Warn("malformed encryptedFields marker, falling back to full field list",
				zap.String("organization_id", organizationID),
				zap.Error(err))
		}
	}
	return r.crypt.DecryptFields(row, fields, organizationID)
}

func (r *PatientRepository) decryptRows(rows []map[string]any, organizationID string) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.decryptRow(row, organizationID))
	}
	return out
}

func (r *PatientRepository) setEncryptedMarker(payload map[string]any, encrypted []string) error {
	marker, err := json.Marshal(encrypted)
	if err != nil {
		return err
	}
	payload[encryptedFieldsColumn] = string(marker)
	return nil
}
