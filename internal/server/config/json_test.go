package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseJson_LoadsAllFields(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	path := writeTempConfig(t, `{
		"endpoint_addr_http": ":9999",
		"database_dsn": "postgres://j:j@db:5432/vault",
		"secret_key": "json-secret",
		"default_quota_bytes": 1048576,
		"sweep_interval": "1m",
		"sweep_grace": "2m",
		"presign_expiry": "5m",
		"s3_root_user": "root",
		"s3_root_password": "pw",
		"s3_bucket": "b",
		"s3_region": "eu-west-1",
		"s3_base_endpoint": "http://s3:9000/",
		"s3_max_retries": 7,
		"s3_retry_base_delay": "100ms",
		"kdf_time": 2,
		"kdf_memory_kib": 32768,
		"kdf_threads": 2
	}`)

	os.Args = []string{"server", "-c", path}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)

	assert.Equal(t, ":9999", cfg.EndpointAddrHTTP)
	assert.Equal(t, "postgres://j:j@db:5432/vault", cfg.DatabaseDSN)
	assert.Equal(t, "json-secret", cfg.SecretKey)
	assert.Equal(t, int64(1048576), cfg.DefaultQuotaBytes)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 2*time.Minute, cfg.SweepGrace)
	assert.Equal(t, 5*time.Minute, cfg.PresignExpiry)
	assert.Equal(t, "root", cfg.S3RootUser)
	assert.Equal(t, "pw", cfg.S3RootPassword)
	assert.Equal(t, "b", cfg.S3Bucket)
	assert.Equal(t, "eu-west-1", cfg.S3Region)
	assert.Equal(t, "http://s3:9000/", cfg.S3BaseEndpoint)
	assert.Equal(t, uint64(7), cfg.S3MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.S3RetryBaseDelay)
	assert.Equal(t, uint32(2), cfg.KDFTime)
	assert.Equal(t, uint32(32768), cfg.KDFMemoryKiB)
	assert.Equal(t, uint8(2), cfg.KDFThreads)
}

func TestParseJson_NoFileFlag_LeavesConfigUntouched(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"server"}

	cfg := &Config{}
	cfg.LoadDefaults()
	before := *cfg
	parseJson(cfg)

	assert.Equal(t, before, *cfg)
}

func TestParseJson_InvalidJsonPanics(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	path := writeTempConfig(t, `{not json`)
	os.Args = []string{"server", "-c", path}

	cfg := &Config{}
	cfg.LoadDefaults()

	assert.Panics(t, func() { parseJson(cfg) })
}
