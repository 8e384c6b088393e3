// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CredKeeper Contributors

// Package config loads and validates service configuration.
//
// Sources are merged in increasing precedence: built-in defaults, a
// YAML file, CREDKEEPER_* environment variables, then command-line
// flags. The resulting Config is immutable after Load; nothing in the
// service mutates configuration at runtime.
package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// envPrefix namespaces environment overrides, e.g.
// CREDKEEPER_DATABASE_URL maps to database.url.
const envPrefix = "CREDKEEPER_"

// minSigningKeyBytes mirrors the token issuer's minimum HMAC key size.
const minSigningKeyBytes = 32

// Config is the root configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Auth          AuthConfig          `koanf:"auth"`
	Mail          MailConfig          `koanf:"mail"`
	Observability ObservabilityConfig `koanf:"observability"`
	Log           LogConfig           `koanf:"log"`
}

// ServerConfig configures the public HTTP API.
type ServerConfig struct {
	Addr string `koanf:"addr"`
	// BaseURL is the externally reachable root used in reset emails.
	BaseURL string `koanf:"base_url"`
}

// DatabaseConfig configures the credential store connection.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// AuthConfig configures token signing.
type AuthConfig struct {
	// SigningKey is the HMAC key for session tokens. Rotating it
	// invalidates every outstanding token.
	SigningKey string `koanf:"signing_key"`
}

// MailConfig configures reset email delivery.
type MailConfig struct {
	// Provider selects the mailer: "sendgrid" or "log".
	Provider    string `koanf:"provider"`
	SendGridKey string `koanf:"sendgrid_key"`
	FromAddress string `koanf:"from_address"`
	FromName    string `koanf:"from_name"`
}

// ObservabilityConfig configures the metrics and health server.
type ObservabilityConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or text
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:    ":8080",
			BaseURL: "http://localhost:8080",
		},
		Mail: MailConfig{
			Provider: "log",
			FromName: "CredKeeper",
		},
		Observability: ObservabilityConfig{
			Addr: ":9090",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load merges configuration sources and validates the result. path may
// be empty; a missing explicit file is an error, flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, oops.Code("CONFIG_FILE_MISSING").
				With("path", path).
				Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_INVALID").
				With("path", path).
				Wrap(err)
		}
	}

	// Section names are single words, so only the first underscore
	// separates section from key: CREDKEEPER_AUTH_SIGNING_KEY maps to
	// auth.signing_key.
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".", 1)
	}), nil)
	if err != nil {
		return nil, oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_UNMARSHAL_FAILED").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants that must hold before the service starts.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			With("field", "database.url").
			Errorf("database URL is required")
	}
	if len(c.Auth.SigningKey) < minSigningKeyBytes {
		return oops.Code("CONFIG_INVALID").
			With("field", "auth.signing_key").
			Errorf("signing key must be at least %d bytes", minSigningKeyBytes)
	}

	switch c.Mail.Provider {
	case "log":
	case "sendgrid":
		if c.Mail.SendGridKey == "" {
			return oops.Code("CONFIG_INVALID").
				With("field", "mail.sendgrid_key").
				Errorf("sendgrid provider requires an API key")
		}
		if c.Mail.FromAddress == "" {
			return oops.Code("CONFIG_INVALID").
				With("field", "mail.from_address").
				Errorf("sendgrid provider requires a from address")
		}
	default:
		return oops.Code("CONFIG_INVALID").
			With("field", "mail.provider").
			Errorf("unknown mail provider %q", c.Mail.Provider)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return oops.Code("CONFIG_INVALID").
			With("field", "log.format").
			Errorf("log format must be json or text, got %q", c.Log.Format)
	}

	return nil
}
