// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads apiconnect settings from YAML and the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/apiconnect/internal/connector/transport"
	"github.com/tombee/apiconnect/internal/database"
	"github.com/tombee/apiconnect/internal/log"
	"github.com/tombee/apiconnect/internal/record"
	"github.com/tombee/apiconnect/internal/tracing"
	"github.com/tombee/apiconnect/pkg/errors"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = database.DriverSQLite
	StoragePostgres = database.DriverPostgres
)

// Config is the application configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	HTTP    HTTPConfig    `yaml:"http"`
	Server  ServerConfig  `yaml:"server"`
	OAuth   OAuthConfig   `yaml:"oauth"`
	Storage StorageConfig `yaml:"storage"`
	Tracing TracingConfig `yaml:"tracing"`

	// Entities declares the record types connectors read from and write to.
	Entities []record.Schema `yaml:"entities"`

	// Catalog is the path of the connectors and automations file. Relative
	// paths are resolved against the config file's directory.
	Catalog string `yaml:"catalog"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// HTTPConfig configures the outbound transport.
type HTTPConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	TLSInsecure       bool          `yaml:"tls_insecure"`
}

// ServerConfig configures `apiconnect serve`.
type ServerConfig struct {
	Addr string `yaml:"addr"`

	// PublicURL is the externally reachable base URL used to build OAuth
	// redirect URIs.
	PublicURL       string        `yaml:"public_url"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// OAuthConfig configures the OAuth2 flow.
type OAuthConfig struct {
	// StateSecret signs the state parameter. May be a secret reference.
	StateSecret string `yaml:"state_secret"`
}

// StorageConfig selects where connectors and records are kept.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	WAL    bool   `yaml:"wal"`
}

// TracingConfig enables span export. The console exporter writes to stderr.
type TracingConfig struct {
	Enabled     bool              `yaml:"enabled"`
	ServiceName string            `yaml:"service_name"`
	Exporter    string            `yaml:"exporter"`
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	CACertPath  string            `yaml:"ca_cert"`
	Headers     map[string]string `yaml:"headers"`
	SampleRate  float64           `yaml:"sample_rate"`
}

// Default returns the built-in configuration. Server.PublicURL is derived
// from Server.Addr by Load when unset.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: string(log.FormatJSON),
		},
		HTTP: HTTPConfig{
			Timeout: transport.DefaultTimeout,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8069",
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Driver: StorageMemory,
		},
		Tracing: TracingConfig{
			ServiceName: "apiconnect",
			Exporter:    tracing.ExporterConsole,
		},
	}
}

// Load reads configPath (optional), applies APICONNECT_* environment
// overrides and validates the result.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &errors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &errors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}
	return cfg, nil
}

// LoadDefault loads the config file at ConfigPath when it exists.
func LoadDefault() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return Load("")
	}
	return Load(path)
}

func (c *Config) loadFromFile(path string) error {
	path = expandHome(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	if c.Catalog != "" {
		c.Catalog = expandHome(c.Catalog)
		if !filepath.IsAbs(c.Catalog) {
			c.Catalog = filepath.Join(filepath.Dir(path), c.Catalog)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = def.HTTP.Timeout
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = "http://" + c.Server.Addr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = def.Storage.Driver
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = def.Tracing.ServiceName
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = def.Tracing.Exporter
	}
}

func (c *Config) loadFromEnv() {
	if val := firstEnv("APICONNECT_LOG_LEVEL", "LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = isTrue(val)
	}
	if isTrue(os.Getenv("APICONNECT_DEBUG")) {
		c.Log.Level = "debug"
	}

	if val := os.Getenv("APICONNECT_HTTP_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.HTTP.Timeout = d
		}
	}
	if val := os.Getenv("APICONNECT_HTTP_RPS"); val != "" {
		if rps, err := strconv.ParseFloat(val, 64); err == nil {
			c.HTTP.RequestsPerSecond = rps
		}
	}
	if val := os.Getenv("APICONNECT_SERVER_ADDR"); val != "" {
		c.Server.Addr = val
	}
	if val := os.Getenv("APICONNECT_PUBLIC_URL"); val != "" {
		c.Server.PublicURL = val
	}
	if val := os.Getenv("APICONNECT_OAUTH_STATE_SECRET"); val != "" {
		c.OAuth.StateSecret = val
	}
	if val := os.Getenv("APICONNECT_STORAGE_DRIVER"); val != "" {
		c.Storage.Driver = strings.ToLower(val)
	}
	if val := os.Getenv("APICONNECT_STORAGE_DSN"); val != "" {
		c.Storage.DSN = val
	}
	if val := os.Getenv("APICONNECT_CATALOG"); val != "" {
		c.Catalog = expandHome(val)
	}
	if val := os.Getenv("APICONNECT_TRACING"); val != "" {
		c.Tracing.Enabled = isTrue(val)
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		c.Tracing.Endpoint = val
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return &errors.ValidationError{Field: "log.level", Message: fmt.Sprintf("unknown level %q", c.Log.Level), Suggestion: "use trace, debug, info, warn or error"}
	}
	switch log.Format(c.Log.Format) {
	case log.FormatJSON, log.FormatText:
	default:
		return &errors.ValidationError{Field: "log.format", Message: fmt.Sprintf("unknown format %q", c.Log.Format), Suggestion: "use json or text"}
	}

	if err := c.TransportConfig().Validate(); err != nil {
		return &errors.ValidationError{Field: "http", Message: err.Error()}
	}

	u, err := url.Parse(c.Server.PublicURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &errors.ValidationError{Field: "server.public_url", Message: fmt.Sprintf("invalid url %q", c.Server.PublicURL)}
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StorageSQLite, StoragePostgres:
		if c.Storage.DSN == "" {
			return &errors.ValidationError{Field: "storage.dsn", Message: "dsn is required for " + c.Storage.Driver}
		}
	default:
		return &errors.ValidationError{Field: "storage.driver", Message: fmt.Sprintf("unknown driver %q", c.Storage.Driver), Suggestion: "use memory, sqlite or postgres"}
	}

	switch c.Tracing.Exporter {
	case tracing.ExporterConsole:
	case tracing.ExporterOTLP, tracing.ExporterOTLPHTTP:
		if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
			return &errors.ValidationError{Field: "tracing.endpoint", Message: "endpoint is required for " + c.Tracing.Exporter}
		}
	default:
		return &errors.ValidationError{Field: "tracing.exporter", Message: fmt.Sprintf("unknown exporter %q", c.Tracing.Exporter), Suggestion: "use console, otlp or otlp-http"}
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return &errors.ValidationError{Field: "tracing.sample_rate", Message: "sample_rate must be between 0 and 1"}
	}

	seen := make(map[string]bool, len(c.Entities))
	for i, s := range c.Entities {
		if err := s.Validate(); err != nil {
			return errors.Wrapf(err, "entities[%d]", i)
		}
		if seen[s.Type] {
			return &errors.ValidationError{Field: fmt.Sprintf("entities[%d].type", i), Message: fmt.Sprintf("duplicate entity type %q", s.Type)}
		}
		seen[s.Type] = true
	}
	return nil
}

// LogConfig converts the log section for log.New.
func (c *Config) LogConfig() *log.Config {
	cfg := log.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Format = log.Format(c.Log.Format)
	cfg.AddSource = c.Log.AddSource
	return cfg
}

// TransportConfig converts the http section for transport.NewHTTPTransport.
func (c *Config) TransportConfig() *transport.HTTPTransportConfig {
	return &transport.HTTPTransportConfig{
		Timeout:           c.HTTP.Timeout,
		TLSInsecure:       c.HTTP.TLSInsecure,
		RequestsPerSecond: c.HTTP.RequestsPerSecond,
		Burst:             c.HTTP.Burst,
	}
}

// TracingConfig converts the tracing section for tracing.NewProvider.
func (c *Config) TracingConfig(version string) tracing.Config {
	return tracing.Config{
		Enabled:        c.Tracing.Enabled,
		ServiceName:    c.Tracing.ServiceName,
		ServiceVersion: version,
		Exporter:       c.Tracing.Exporter,
		Endpoint:       c.Tracing.Endpoint,
		Insecure:       c.Tracing.Insecure,
		CACertPath:     expandHome(c.Tracing.CACertPath),
		Headers:        c.Tracing.Headers,
		SampleRate:     c.Tracing.SampleRate,
	}
}

// DatabaseConfig converts the storage section for database.Open. It is
// only meaningful for the sqlite and postgres drivers.
func (c *Config) DatabaseConfig() database.Config {
	cfg := database.DefaultConfig()
	cfg.Driver = c.Storage.Driver
	cfg.DSN = expandHome(c.Storage.DSN)
	cfg.WAL = c.Storage.WAL
	return cfg
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func isTrue(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "1" || v == "true" || v == "yes"
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
