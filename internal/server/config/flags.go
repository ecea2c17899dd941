package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/staffkeeper/internal/flagx"
)

var flagNames = []string{
	"-a", "-m", "-store", "-d", "-k", "-ttl", "-timeout", "-login-timeout",
	"-scheme", "-iterations", "-max-age",
	"-attempts", "-lock", "-lock-retries", "-login-rate", "-login-burst",
	"-log-level", "-log-format",
	"-audit-s3", "-s3-user", "-s3-password", "-s3-bucket", "-s3-region", "-s3-endpoint", "-s3-prefix",
}

// parseFlags populates Config fields from command-line flags.
//
// Durations use Go syntax ("90s", "15m"). Only the flags listed in
// flagNames are looked at; -c and -config are handled by parseFile.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, flagNames)

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "gRPC listen address")
	fs.StringVar(&config.EndpointAddrMetrics, "m", config.EndpointAddrMetrics, "metrics listen address, empty to disable")
	fs.StringVar(&config.Store, "store", config.Store, "account store: postgres, sqlite or memory")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "k", config.SecretKey, "access token signing key")
	fs.DurationVar(&config.AccessTokenTTL, "ttl", config.AccessTokenTTL, "access token lifetime")
	fs.DurationVar(&config.RequestTimeout, "timeout", config.RequestTimeout, "per-request timeout")
	fs.DurationVar(&config.LoginTimeout, "login-timeout", config.LoginTimeout, "whole login conversation timeout")

	fs.StringVar(&config.PasswordScheme, "scheme", config.PasswordScheme, "password scheme: pbkdf2-sha256 or argon2id")
	fs.IntVar(&config.PBKDF2Iterations, "iterations", config.PBKDF2Iterations, "pbkdf2 iterations")
	fs.DurationVar(&config.PasswordMaxAge, "max-age", config.PasswordMaxAge, "chosen password lifetime")

	fs.IntVar(&config.MaxAttempts, "attempts", config.MaxAttempts, "password attempts per login")
	fs.DurationVar(&config.LockDuration, "lock", config.LockDuration, "lock duration")
	fs.IntVar(&config.LockWriteRetries, "lock-retries", config.LockWriteRetries, "lock write retries")
	fs.Float64Var(&config.LoginRate, "login-rate", config.LoginRate, "login streams per second per peer")
	fs.IntVar(&config.LoginBurst, "login-burst", config.LoginBurst, "login burst per peer")

	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "debug, info, warn or error")
	fs.StringVar(&config.LogFormat, "log-format", config.LogFormat, "json or text")

	fs.BoolVar(&config.AuditS3, "audit-s3", config.AuditS3, "archive audit events to S3")
	fs.StringVar(&config.S3AccessKey, "s3-user", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "s3-password", config.S3SecretKey, "S3 secret key")
	fs.StringVar(&config.S3Bucket, "s3-bucket", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "s3-region", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "s3-endpoint", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.S3Prefix, "s3-prefix", config.S3Prefix, "S3 key prefix")

	return fs.Parse(args)
}
