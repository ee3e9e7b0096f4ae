package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvconsole/internal/constants"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, constants.DialTimeout, cfg.Lifecycle.DialTimeout)
	assert.Equal(t, constants.ProbeTimeout, cfg.Lifecycle.ProbeTimeout)
	assert.Equal(t, constants.DialRetryBackoff, cfg.Lifecycle.RetryBackoff)
	assert.True(t, cfg.Lifecycle.InsecureSkipVerify)
	assert.Equal(t, []string{"upstash.io"}, cfg.Lifecycle.ManagedTLSDomains)
	assert.Equal(t, constants.VaultDriverMemory, cfg.Vault.Driver)
	assert.Equal(t, 100, cfg.Audit.Capacity)
	assert.Equal(t, constants.ConnectRatePerMinute, cfg.ConnectRatePerMinute)
	assert.Equal(t, constants.DefaultTrustedProxies, cfg.TrustedProxies)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("KVCONSOLE_PROBE_TIMEOUT", "3s")
	t.Setenv("KVCONSOLE_TLS_INSECURE_SKIP_VERIFY", "false")
	t.Setenv("KVCONSOLE_MANAGED_TLS_DOMAINS", "upstash.io, example.cloud ,")
	t.Setenv("KVCONSOLE_VAULT_DRIVER", "redis")
	t.Setenv("KVCONSOLE_VAULT_REDIS_ADDR", "127.0.0.1:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 3*time.Second, cfg.Lifecycle.ProbeTimeout)
	assert.False(t, cfg.Lifecycle.InsecureSkipVerify)
	assert.Equal(t, []string{"upstash.io", "example.cloud"}, cfg.Lifecycle.ManagedTLSDomains)
	assert.Equal(t, "127.0.0.1:6379", cfg.Vault.RedisAddr)
}

func TestLoadInvalidValues(t *testing.T) {
	cases := map[string]string{
		"KVCONSOLE_PROBE_TIMEOUT":           "soon",
		"KVCONSOLE_AUDIT_CAPACITY":          "0",
		"KVCONSOLE_VAULT_DRIVER":            "etcd",
		"KVCONSOLE_ENABLE_TLS":              "maybe",
		"KVCONSOLE_CONNECT_RATE_PER_MINUTE": "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestRedisVaultRequiresAddr(t *testing.T) {
	t.Setenv("KVCONSOLE_VAULT_DRIVER", "redis")
	_, err := Load()
	assert.ErrorContains(t, err, "KVCONSOLE_VAULT_REDIS_ADDR")
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("KVCONSOLE_TEST_FROM_FILE=yes\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("KVCONSOLE_TEST_FROM_FILE") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "yes", os.Getenv("KVCONSOLE_TEST_FROM_FILE"))
}
