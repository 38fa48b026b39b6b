package config

import (
	"fmt"
	"os"
	"strconv"
)

// minMasterKeyBytes 主密钥最小长度（字节）
// 低于该长度视为致命配置错误，进程必须在启动阶段退出。
const minMasterKeyBytes = 32

// Config patient-crm（HTTP API）配置
type Config struct {
	HTTP struct {
		Addr string
	}
	Database DatabaseConfig
	Redis    struct {
		Addr     string
		Password string
		DB       int
	}
	Log struct {
		Level  string
		Format string
	}
	Encryption EncryptionConfig
	Audit      AuditConfig
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// EncryptionConfig 字段加密配置
type EncryptionConfig struct {
	// MasterKey 主密钥（任意长度口令，至少 32 字节）
	// 各机构密钥由该主密钥派生，不单独存储。
	MasterKey string
}

// AuditConfig 审计事件输出配置
// 审计日志的存储由外部协作方负责，这里只配置推送目标。
type AuditConfig struct {
	StreamEnabled bool   // 是否推送到 Redis Streams
	Stream        string // Stream 名称
	WebhookURL    string // 审计协作方 HTTP 地址（为空则不推送）
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "patientcrm")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "20"), 20)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Encryption.MasterKey = getEnv("ENCRYPTION_MASTER_KEY", "")

	cfg.Audit.StreamEnabled = getEnv("AUDIT_STREAM_ENABLED", "false") == "true"
	cfg.Audit.Stream = getEnv("AUDIT_STREAM", "patient-crm:audit")
	cfg.Audit.WebhookURL = getEnv("AUDIT_WEBHOOK_URL", "")

	return cfg
}

// Validate 校验致命配置项
// 主密钥缺失或过短必须让启动失败，不允许降级为运行期错误。
func (c *Config) Validate() error {
	if len(c.Encryption.MasterKey) == 0 {
		return fmt.Errorf("FATAL_CONFIG: ENCRYPTION_MASTER_KEY is not set")
	}
	if len(c.Encryption.MasterKey) < minMasterKeyBytes {
		return fmt.Errorf("FATAL_CONFIG: ENCRYPTION_MASTER_KEY must be at least %d bytes, got %d",
			minMasterKeyBytes, len(c.Encryption.MasterKey))
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
