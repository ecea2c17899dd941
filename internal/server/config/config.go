// Package config handles configuration for the server component: defaults,
// an optional JSON or TOML file overlay, and command-line flags.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/staffkeeper/internal/cryptox"
)

// Config holds runtime settings for the StaffKeeper server.
//
// Store is one of "postgres", "sqlite" or "memory"; DatabaseDSN is ignored for
// the memory store. SecretKey signs access tokens (HS256) and must be
// overridden outside development.
type Config struct {
	EndpointAddrGRPC    string
	EndpointAddrMetrics string
	Store               string
	DatabaseDSN         string
	SecretKey           string
	AccessTokenTTL      time.Duration
	RequestTimeout      time.Duration
	LoginTimeout        time.Duration

	PasswordScheme   string
	PBKDF2Iterations int
	PasswordMaxAge   time.Duration

	MaxAttempts      int
	LockDuration     time.Duration
	LockWriteRetries int
	LoginRate        float64
	LoginBurst       int

	LogLevel  string
	LogFormat string

	AuditS3        bool
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
	S3Prefix       string
}

// LoadDefaults populates Config with development defaults.
// NOTE: the secret key is insecure and must be overridden in production.
func (c *Config) LoadDefaults() {
	c.EndpointAddrGRPC = ":50051"
	c.EndpointAddrMetrics = ":9090"
	c.Store = "sqlite"
	c.DatabaseDSN = "file:staffkeeper.db?_pragma=busy_timeout(5000)"
	c.SecretKey = "secretKey"
	c.AccessTokenTTL = 15 * time.Minute
	c.RequestTimeout = 10 * time.Second
	c.LoginTimeout = 2 * time.Minute

	c.PasswordScheme = string(cryptox.SchemePBKDF2)
	c.PBKDF2Iterations = cryptox.MinPBKDF2Iterations
	c.PasswordMaxAge = 90 * 24 * time.Hour

	c.MaxAttempts = 3
	c.LockDuration = time.Minute
	c.LockWriteRetries = 3
	c.LoginRate = 1
	c.LoginBurst = 5

	c.LogLevel = "info"
	c.LogFormat = "json"

	c.S3Bucket = "staffkeeper-audit"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.S3Prefix = "audit"
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store {
	case "postgres", "sqlite":
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("database dsn is required"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is required"))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, errors.New("max attempts must be positive"))
	}
	if c.LockDuration <= 0 {
		errs = append(errs, errors.New("lock duration must be positive"))
	}
	if c.LoginTimeout <= 0 {
		errs = append(errs, errors.New("login timeout must be positive"))
	}
	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("access token ttl must be positive"))
	}
	if c.LoginRate <= 0 || c.LoginBurst < 1 {
		errs = append(errs, errors.New("login rate and burst must be positive"))
	}
	if c.AuditS3 && c.S3Bucket == "" {
		errs = append(errs, errors.New("s3 bucket is required for the audit archive"))
	}
	return errors.Join(errs...)
}

// CodecParams maps the password settings onto codec parameters.
func (c *Config) CodecParams() cryptox.Params {
	p := cryptox.DefaultParams()
	p.Scheme = cryptox.Scheme(c.PasswordScheme)
	p.PBKDF2Iterations = c.PBKDF2Iterations
	return p
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional config file and finally from command-line flags.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseFile(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
