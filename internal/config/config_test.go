package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8053, cfg.DNSPort)
	assert.Equal(t, "0.0.0.0", cfg.BindAddress)
	assert.Equal(t, "127.0.0.1", cfg.RedisHost)
	assert.Equal(t, 6379, cfg.RedisPort)
	assert.Equal(t, "127.0.0.1", cfg.APIHost)
}

func TestLoadHonorsPlainEnvVars(t *testing.T) {
	t.Setenv("DNS_PORT", "9053")
	t.Setenv("BIND_ADDRESS", "127.0.0.1")
	t.Setenv("REDIS_HOST", "cache.internal")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9053, cfg.DNSPort)
	assert.Equal(t, "127.0.0.1", cfg.BindAddress)
	assert.Equal(t, "cache.internal", cfg.RedisHost)
}

func TestLoadHonorsPrefixedEnvVars(t *testing.T) {
	t.Setenv("HYDRADNS_DB_PATH", "/var/lib/hydradns/state.db")
	t.Setenv("HYDRADNS_API_PORT", "9090")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/hydradns/state.db", cfg.DBPath)
	assert.Equal(t, 9090, cfg.APIPort)
}
