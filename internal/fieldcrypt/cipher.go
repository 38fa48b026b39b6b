package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// 密文落盘格式：iv(hex):authTag(hex):cipher(hex)
// 该格式必须与历史已加密数据逐字节兼容，任何改动都是破坏性变更。
const (
	ivSize  = 16
	tagSize = 16

	ivHexLen  = ivSize * 2
	tagHexLen = tagSize * 2
)

// ErrDecryptionFailed 解密失败（结构错误或认证标签校验失败）
// 解密一律 fail closed：绝不返回猜测或截断的明文。
var ErrDecryptionFailed = errors.New("DECRYPTION_FAILED: field decryption failed")

// Encrypt 用 AES-256-GCM 加密单个字段值
// 每次调用生成新的随机 16 字节 IV，同一明文两次加密结果不同。
func Encrypt(plaintext string, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	// Seal 把认证标签附在密文末尾，拆出来按固定三段格式编码
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt 解密三段式密文
// 结构不符（段数、长度、hex 编码）或标签校验失败都返回 ErrDecryptionFailed。
func Decrypt(encoded string, key []byte) (string, error) {
	parts := strings.Split(encoded, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 segments, got %d", ErrDecryptionFailed, len(parts))
	}
	if len(parts[0]) != ivHexLen || len(parts[1]) != tagHexLen {
		return "", fmt.Errorf("%w: bad segment length", ErrDecryptionFailed)
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: bad iv encoding", ErrDecryptionFailed)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: bad tag encoding", ErrDecryptionFailed)
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext encoding", ErrDecryptionFailed)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		// 标签校验失败：密钥不匹配或密文被篡改
		return "", fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}
	return string(plaintext), nil
}

// LooksEncrypted 结构性判断值是否为密文
// 只看格式不做解密，用于区分历史明文和密文。
func LooksEncrypted(value string) bool {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return false
	}
	if len(parts[0]) != ivHexLen || len(parts[1]) != tagHexLen {
		return false
	}
	if len(parts[2]) == 0 || len(parts[2])%2 != 0 {
		return false
	}
	for _, p := range parts {
		if _, err := hex.DecodeString(p); err != nil {
			return false
		}
	}
	return true
}
