package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dmitrijs2005/staffkeeper/internal/flagx"
	"github.com/dmitrijs2005/staffkeeper/internal/timex"
)

// FileConfig is the on-disk form of Config. Durations accept "90s" style
// strings (and integer nanoseconds in JSON). Absent keys keep their current
// value; pointers distinguish false/zero from absent where that matters.
type FileConfig struct {
	EndpointAddrGRPC    string         `json:"endpoint_addr_grpc" toml:"endpoint_addr_grpc"`
	EndpointAddrMetrics *string        `json:"endpoint_addr_metrics" toml:"endpoint_addr_metrics"`
	Store               string         `json:"store" toml:"store"`
	DatabaseDSN         string         `json:"database_dsn" toml:"database_dsn"`
	SecretKey           string         `json:"secret_key" toml:"secret_key"`
	AccessTokenTTL      timex.Duration `json:"access_token_ttl" toml:"access_token_ttl"`
	RequestTimeout      timex.Duration `json:"request_timeout" toml:"request_timeout"`
	LoginTimeout        timex.Duration `json:"login_timeout" toml:"login_timeout"`

	PasswordScheme   string         `json:"password_scheme" toml:"password_scheme"`
	PBKDF2Iterations int            `json:"pbkdf2_iterations" toml:"pbkdf2_iterations"`
	PasswordMaxAge   timex.Duration `json:"password_max_age" toml:"password_max_age"`

	MaxAttempts      int            `json:"max_attempts" toml:"max_attempts"`
	LockDuration     timex.Duration `json:"lock_duration" toml:"lock_duration"`
	LockWriteRetries *int           `json:"lock_write_retries" toml:"lock_write_retries"`
	LoginRate        float64        `json:"login_rate" toml:"login_rate"`
	LoginBurst       int            `json:"login_burst" toml:"login_burst"`

	LogLevel  string `json:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" toml:"log_format"`

	AuditS3        *bool  `json:"audit_s3" toml:"audit_s3"`
	S3AccessKey    string `json:"s3_access_key" toml:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key" toml:"s3_secret_key"`
	S3Bucket       string `json:"s3_bucket" toml:"s3_bucket"`
	S3Region       string `json:"s3_region" toml:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint" toml:"s3_base_endpoint"`
	S3Prefix       string `json:"s3_prefix" toml:"s3_prefix"`
}

// parseFile overlays the file named by -c/-config, if any. Files ending in
// .toml are read as TOML, everything else as JSON.
func parseFile(config *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	fc := &FileConfig{}
	switch flagx.FileFormat(path) {
	case flagx.FormatTOML:
		err = toml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	fc.apply(config)
	return nil
}

func (fc *FileConfig) apply(c *Config) {
	setString(&c.EndpointAddrGRPC, fc.EndpointAddrGRPC)
	if fc.EndpointAddrMetrics != nil {
		c.EndpointAddrMetrics = *fc.EndpointAddrMetrics
	}
	setString(&c.Store, fc.Store)
	setString(&c.DatabaseDSN, fc.DatabaseDSN)
	setString(&c.SecretKey, fc.SecretKey)
	setDuration(&c.AccessTokenTTL, fc.AccessTokenTTL)
	setDuration(&c.RequestTimeout, fc.RequestTimeout)
	setDuration(&c.LoginTimeout, fc.LoginTimeout)

	setString(&c.PasswordScheme, fc.PasswordScheme)
	if fc.PBKDF2Iterations != 0 {
		c.PBKDF2Iterations = fc.PBKDF2Iterations
	}
	setDuration(&c.PasswordMaxAge, fc.PasswordMaxAge)

	if fc.MaxAttempts != 0 {
		c.MaxAttempts = fc.MaxAttempts
	}
	setDuration(&c.LockDuration, fc.LockDuration)
	if fc.LockWriteRetries != nil {
		c.LockWriteRetries = *fc.LockWriteRetries
	}
	if fc.LoginRate != 0 {
		c.LoginRate = fc.LoginRate
	}
	if fc.LoginBurst != 0 {
		c.LoginBurst = fc.LoginBurst
	}

	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)

	if fc.AuditS3 != nil {
		c.AuditS3 = *fc.AuditS3
	}
	setString(&c.S3AccessKey, fc.S3AccessKey)
	setString(&c.S3SecretKey, fc.S3SecretKey)
	setString(&c.S3Bucket, fc.S3Bucket)
	setString(&c.S3Region, fc.S3Region)
	setString(&c.S3BaseEndpoint, fc.S3BaseEndpoint)
	setString(&c.S3Prefix, fc.S3Prefix)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.IsSet() {
		*dst = v.Duration
	}
}
