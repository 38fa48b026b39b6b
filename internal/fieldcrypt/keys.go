package fieldcrypt

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// keyInfoPrefix HKDF info 前缀，和机构 id 拼接后作为派生上下文
// 改动该前缀会使所有已加密数据无法解密，等同于轮换主密钥。
const keyInfoPrefix = "patient-crm:field-key:"

const (
	// MinMasterKeyBytes 主密钥口令最小长度
	MinMasterKeyBytes = 32
	keySize           = 32
)

// NormalizeMasterKey 归一化主密钥
// 接受任意长度（≥32 字节）的口令，经 SHA-256 压缩为恰好 32 字节。
// 长度不足是致命配置错误，调用方必须中止启动。
func NormalizeMasterKey(secret string) ([]byte, error) {
	if len(secret) < MinMasterKeyBytes {
		return nil, fmt.Errorf("FATAL_CONFIG: master key must be at least %d bytes, got %d",
			MinMasterKeyBytes, len(secret))
	}
	digest := sha256.Sum256([]byte(secret))
	return digest[:], nil
}

// DeriveOrgKey 派生机构密钥
//
// key = HKDF(SHA-256, secret=masterKey, salt=空, info=前缀+organizationId, 32字节)
// 纯函数：不存储任何机构级密钥，轮换主密钥即废弃全部派生密钥，
// 这是有意的运维约束，不是缺陷。
func DeriveOrgKey(masterKey []byte, organizationID string) ([]byte, error) {
	if len(masterKey) != keySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", keySize, len(masterKey))
	}
	if organizationID == "" {
		return nil, fmt.Errorf("organization id is required for key derivation")
	}

	reader := hkdf.New(sha256.New, masterKey, nil, []byte(keyInfoPrefix+organizationID))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("hkdf expand failed: %w", err)
	}
	return key, nil
}
