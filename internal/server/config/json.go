package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/sealvault/sealvault/internal/flagx"
	"github.com/sealvault/sealvault/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "15m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP  string         `json:"endpoint_addr_http"`
	DatabaseDSN       string         `json:"database_dsn"`
	SecretKey         string         `json:"secret_key"`
	DefaultQuotaBytes int64          `json:"default_quota_bytes"`
	SweepInterval     timex.Duration `json:"sweep_interval"`
	SweepGrace        timex.Duration `json:"sweep_grace"`
	PresignExpiry     timex.Duration `json:"presign_expiry"`
	S3RootUser        string         `json:"s3_root_user"`
	S3RootPassword    string         `json:"s3_root_password"`
	S3Bucket          string         `json:"s3_bucket"`
	S3Region          string         `json:"s3_region"`
	S3BaseEndpoint    string         `json:"s3_base_endpoint"`
	S3MaxRetries      uint64         `json:"s3_max_retries"`
	S3RetryBaseDelay  timex.Duration `json:"s3_retry_base_delay"`
	KDFTime           uint32         `json:"kdf_time"`
	KDFMemoryKiB      uint32         `json:"kdf_memory_kib"`
	KDFThreads        uint8          `json:"kdf_threads"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The lookup order for the JSON file path is the -c or -config command-line
// flags; if neither is set, no JSON file is loaded. If the file cannot be
// read or contains invalid JSON, the function panics.
//
// The caller is expected to merge these values with defaults and
// command-line flags as part of the full configuration process.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.DefaultQuotaBytes = c.DefaultQuotaBytes
	config.SweepInterval = time.Duration(c.SweepInterval.Duration)
	config.SweepGrace = time.Duration(c.SweepGrace.Duration)
	config.PresignExpiry = time.Duration(c.PresignExpiry.Duration)
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.S3MaxRetries = c.S3MaxRetries
	config.S3RetryBaseDelay = time.Duration(c.S3RetryBaseDelay.Duration)
	config.KDFTime = c.KDFTime
	config.KDFMemoryKiB = c.KDFMemoryKiB
	config.KDFThreads = c.KDFThreads
}
