package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"

	"kvconsole/internal/constants"
	"kvconsole/internal/utils"
)

type Config struct {
	ListenAddr string
	EnableTLS  bool
	CertFile   string
	KeyFile    string

	LogLevel  string
	LogFormat string
	LogFile   string

	Lifecycle LifecycleConfig
	Vault     VaultConfig
	Audit     AuditConfig

	HealthInterval       time.Duration
	OperationTimeout     time.Duration
	ConnectRatePerMinute int
	CORSOrigins          []string
	TrustedProxies       []string
}

type LifecycleConfig struct {
	DialTimeout        time.Duration
	ProbeTimeout       time.Duration
	RetryBackoff       time.Duration
	InsecureSkipVerify bool
	ManagedTLSDomains  []string
}

type VaultConfig struct {
	Driver string
	// Key is a hex-encoded 32-byte key. Empty means a random per-process key.
	Key           string
	RedisAddr     string
	RedisUsername string
	RedisPassword string
	RedisDB       int
	Prefix        string
	TTL           time.Duration
}

type AuditConfig struct {
	Capacity int
	File     string
}

// LoadEnvFile loads variables from an env file. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr: ":" + utils.GetEnv("PORT", constants.DefaultPort),
		CertFile:   utils.GetEnv("KVCONSOLE_CERT_FILE", "certs/server.crt"),
		KeyFile:    utils.GetEnv("KVCONSOLE_KEY_FILE", "certs/server.key"),
		LogLevel:   utils.GetEnv("KVCONSOLE_LOG_LEVEL", "info"),
		LogFormat:  utils.GetEnv("KVCONSOLE_LOG_FORMAT", "json"),
		LogFile:    utils.GetEnv("KVCONSOLE_LOG_FILE", ""),
		Lifecycle: LifecycleConfig{
			ManagedTLSDomains: utils.GetEnvList("KVCONSOLE_MANAGED_TLS_DOMAINS", constants.ManagedTLSDomains),
		},
		Vault: VaultConfig{
			Driver:        utils.GetEnv("KVCONSOLE_VAULT_DRIVER", constants.VaultDriverMemory),
			Key:           utils.GetEnv("KVCONSOLE_VAULT_KEY", ""),
			RedisAddr:     utils.GetEnv("KVCONSOLE_VAULT_REDIS_ADDR", ""),
			RedisUsername: utils.GetEnv("KVCONSOLE_VAULT_REDIS_USERNAME", ""),
			RedisPassword: utils.GetEnv("KVCONSOLE_VAULT_REDIS_PASSWORD", ""),
			Prefix:        utils.GetEnv("KVCONSOLE_VAULT_PREFIX", constants.VaultKeyPrefix),
		},
		Audit: AuditConfig{
			File: utils.GetEnv("KVCONSOLE_AUDIT_FILE", ""),
		},
		CORSOrigins:    utils.GetEnvList("KVCONSOLE_CORS_ORIGINS", nil),
		TrustedProxies: utils.GetEnvList("KVCONSOLE_TRUSTED_PROXIES", constants.DefaultTrustedProxies),
	}

	if v := utils.GetEnv("KVCONSOLE_LISTEN_ADDR", ""); v != "" {
		cfg.ListenAddr = v
	}

	var err error
	if cfg.EnableTLS, err = utils.GetEnvBool("KVCONSOLE_ENABLE_TLS", false); err != nil {
		return nil, err
	}
	if cfg.Lifecycle.DialTimeout, err = utils.GetEnvDuration("KVCONSOLE_DIAL_TIMEOUT", constants.DialTimeout); err != nil {
		return nil, err
	}
	if cfg.Lifecycle.ProbeTimeout, err = utils.GetEnvDuration("KVCONSOLE_PROBE_TIMEOUT", constants.ProbeTimeout); err != nil {
		return nil, err
	}
	if cfg.Lifecycle.RetryBackoff, err = utils.GetEnvDuration("KVCONSOLE_RETRY_BACKOFF", constants.DialRetryBackoff); err != nil {
		return nil, err
	}
	if cfg.Lifecycle.InsecureSkipVerify, err = utils.GetEnvBool("KVCONSOLE_TLS_INSECURE_SKIP_VERIFY", true); err != nil {
		return nil, err
	}
	if cfg.Vault.RedisDB, err = utils.GetEnvInt("KVCONSOLE_VAULT_REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Vault.TTL, err = utils.GetEnvDuration("KVCONSOLE_VAULT_TTL", constants.VaultTTL); err != nil {
		return nil, err
	}
	if cfg.Audit.Capacity, err = utils.GetEnvInt("KVCONSOLE_AUDIT_CAPACITY", constants.AuditCapacity); err != nil {
		return nil, err
	}
	if cfg.HealthInterval, err = utils.GetEnvDuration("KVCONSOLE_HEALTH_INTERVAL", constants.HealthInterval); err != nil {
		return nil, err
	}
	if cfg.OperationTimeout, err = utils.GetEnvDuration("KVCONSOLE_OPERATION_TIMEOUT", constants.OperationTimeout); err != nil {
		return nil, err
	}
	if cfg.ConnectRatePerMinute, err = utils.GetEnvInt("KVCONSOLE_CONNECT_RATE_PER_MINUTE", constants.ConnectRatePerMinute); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Vault.Driver {
	case constants.VaultDriverMemory, constants.VaultDriverSealed:
	case constants.VaultDriverRedis:
		if c.Vault.RedisAddr == "" {
			return fmt.Errorf("KVCONSOLE_VAULT_REDIS_ADDR is required for the %q vault driver", c.Vault.Driver)
		}
	default:
		return fmt.Errorf("unsupported vault driver %q", c.Vault.Driver)
	}
	if c.Audit.Capacity <= 0 {
		return fmt.Errorf("KVCONSOLE_AUDIT_CAPACITY must be a positive integer")
	}
	if c.Lifecycle.DialTimeout <= 0 || c.Lifecycle.ProbeTimeout <= 0 {
		return fmt.Errorf("dial and probe timeouts must be positive")
	}
	if c.Lifecycle.RetryBackoff < 0 {
		return fmt.Errorf("KVCONSOLE_RETRY_BACKOFF must not be negative")
	}
	if c.OperationTimeout <= 0 {
		return fmt.Errorf("KVCONSOLE_OPERATION_TIMEOUT must be positive")
	}
	if c.ConnectRatePerMinute <= 0 {
		return fmt.Errorf("KVCONSOLE_CONNECT_RATE_PER_MINUTE must be positive")
	}
	return nil
}
