package fieldcrypt

import (
	"fmt"

	"go.uber.org/zap"
)

// Service 对象字段批量加解密
// 无状态：密钥按 (主密钥, 机构id) 每次派生，不缓存。
type Service struct {
	masterKey []byte
	logger    *zap.Logger
}

func NewService(masterKey []byte, logger *zap.Logger) (*Service, error) {
	if len(masterKey) != keySize {
		return nil, fmt.Errorf("FATAL_CONFIG: master key must be %d bytes", keySize)
	}
	return &Service{masterKey: masterKey, logger: logger}, nil
}

// EncryptFields 加密记录中指定的字段
//
// 返回记录副本与实际处于密文态的字段名列表。规则：
//   - 空串/缺失/非字符串值不产生密文（"未设置"与"设置为空"保持可区分）
//   - 已经是密文的字段保持原样，但仍计入返回列表（幂等）
func (s *Service) EncryptFields(record map[string]any, fields []string, organizationID string) (map[string]any, []string, error) {
	key, err := DeriveOrgKey(s.masterKey, organizationID)
	if err != nil {
		return nil, nil, err
	}

	out := cloneRecord(record)
	encrypted := make([]string, 0, len(fields))
	for _, field := range fields {
		value, ok := out[field]
		if !ok {
			continue
		}
		str, ok := value.(string)
		if !ok || str == "" {
			continue
		}
		if LooksEncrypted(str) {
			encrypted = append(encrypted, field)
			continue
		}

		ciphertext, err := Encrypt(str, key)
		if err != nil {
			return nil, nil, fmt.Errorf("encrypt field %s: %w", field, err)
		}
		out[field] = ciphertext
		encrypted = append(encrypted, field)
	}

	return out, encrypted, nil
}

// DecryptFields 解密记录中处于密文态的字段
//
// 单个字段解密失败（密文损坏、密钥不匹配）只记录日志并保留密文，
// 不中断其余字段——一条坏数据不应让整条记录不可读。
func (s *Service) DecryptFields(record map[string]any, fields []string, organizationID string) map[string]any {
	key, err := DeriveOrgKey(s.masterKey, organizationID)
	if err != nil {
		s.logger.Error("organization key derivation failed",
			zap.String("organization_id", organizationID),
			zap.Error(err))
		return cloneRecord(record)
	}

	out := cloneRecord(record)
	for _, field := range fields {
		value, ok := out[field]
		if !ok {
			continue
		}
		str, ok := value.(string)
		if !ok || !LooksEncrypted(str) {
			continue
		}

		plaintext, err := Decrypt(str, key)
		if err != nil {
			s.logger.Warn("field decryption failed, leaving ciphertext in place",
				zap.String("organization_id", organizationID),
				zap.String("field", field),
				zap.Error(err))
			continue
		}
		out[field] = plaintext
	}

	return out
}

// DecryptArray 对记录序列逐条应用 DecryptFields
func (s *Service) DecryptArray(records []map[string]any, fields []string, organizationID string) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, record := range records {
		out = append(out, s.DecryptFields(record, fields, organizationID))
	}
	return out
}

// DecryptValue 定向解密单个值，失败直接向调用方传播
func (s *Service) DecryptValue(value, organizationID string) (string, error) {
	key, err := DeriveOrgKey(s.masterKey, organizationID)
	if err != nil {
		return "", err
	}
	return Decrypt(value, key)
}

func cloneRecord(record map[string]any) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = v
	}
	return out
}
