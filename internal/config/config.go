// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for chatdesk.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/chatdesk/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete chatdesk configuration.
type Config struct {
	// Completion gateway (Groq)
	Gateway GatewayConfig `toml:"gateway" yaml:"gateway" json:"gateway"`

	// Persistence of chats and todos
	Storage StorageConfig `toml:"storage" yaml:"storage" json:"storage"`

	// HTTP API
	Server ServerConfig `toml:"server" yaml:"server" json:"server"`

	// Structured logging
	Logging LoggingConfig `toml:"logging" yaml:"logging" json:"logging"`

	// Terminal surface
	UI UIConfig `toml:"ui" yaml:"ui" json:"ui"`
}

// GatewayConfig configures the completion gateway.
type GatewayConfig struct {
	// APIKey is the Groq credential. Usually supplied via GROQ_API_KEY.
	APIKey string `toml:"api_key" yaml:"api_key" json:"api_key"`

	// BaseURL overrides the Groq API root (proxies, testing).
	BaseURL string `toml:"base_url" yaml:"base_url" json:"base_url"`

	// TimeoutSecs bounds one completion request.
	TimeoutSecs int `toml:"timeout_secs" yaml:"timeout_secs" json:"timeout_secs"`
}

// StorageConfig configures persistence.
type StorageConfig struct {
	// Backend is "file", "sqlite", or "memory".
	Backend string `toml:"backend" yaml:"backend" json:"backend"`

	// Path is the data directory (file) or database file (sqlite).
	Path string `toml:"path" yaml:"path" json:"path"`

	// Namespace is the record key. Default: ai-chatbot-storage
	Namespace string `toml:"namespace" yaml:"namespace" json:"namespace"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `toml:"host" yaml:"host" json:"host"`
	Port int    `toml:"port" yaml:"port" json:"port"`

	// AllowedOrigins lists CORS origins. Empty allows same-origin only.
	AllowedOrigins []string `toml:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`

	// RateLimitRPS and RateLimitBurst configure the per-client token bucket.
	// 0 disables rate limiting.
	RateLimitRPS   float64 `toml:"rate_limit_rps" yaml:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int     `toml:"rate_limit_burst" yaml:"rate_limit_burst" json:"rate_limit_burst"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `toml:"max_body_bytes" yaml:"max_body_bytes" json:"max_body_bytes"`

	// AuthToken, when set, is required as a Bearer token on /api routes.
	AuthToken string `toml:"auth_token" yaml:"auth_token" json:"auth_token"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `toml:"level" yaml:"level" json:"level"`

	// Format is "console" or "json".
	Format string `toml:"format" yaml:"format" json:"format"`

	// File receives logs instead of stderr when set.
	File string `toml:"file" yaml:"file" json:"file"`
}

// UIConfig configures the terminal surface.
type UIConfig struct {
	// Markdown renders assistant replies with glamour.
	Markdown bool `toml:"markdown" yaml:"markdown" json:"markdown"`

	// WordWrap is the render width for replies.
	WordWrap int `toml:"word_wrap" yaml:"word_wrap" json:"word_wrap"`

	// NoColor disables ANSI styling.
	NoColor bool `toml:"no_color" yaml:"no_color" json:"no_color"`
}

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			TimeoutSecs: 30,
		},
		Storage: StorageConfig{
			Backend:   BackendFile,
			Namespace: "ai-chatbot-storage",
		},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8787,
			RateLimitRPS:   5,
			RateLimitBurst: 20,
			MaxBodyBytes:   1 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		UI: UIConfig{
			Markdown: true,
			WordWrap: 80,
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the chatdesk directory (~/.chatdesk).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".chatdesk"), nil
}

// DefaultPaths returns the config files tried by Load, in order.
func DefaultPaths() []string {
	dir, err := ConfigDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(dir, "config.toml"),
		filepath.Join(dir, "config.yaml"),
		filepath.Join(dir, "config.yml"),
		filepath.Join(dir, "config.json"),
	}
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from path, or from the first existing default
// path when path is empty. Missing default files are not an error. The
// pipeline is: file, .env files, environment overrides, defaults, validation.
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFromPath(path)
	}
	for _, candidate := range DefaultPaths() {
		if _, err := os.Stat(candidate); err == nil {
			return LoadFromPath(candidate)
		}
	}
	return finish(Default())
}

// LoadFromPath loads configuration from a specific file. The decoder is
// chosen by extension: .json, .yaml/.yml, otherwise TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := decodeFile(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	LoadDotEnv()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decodeFile(cfg *Config, path string) error {
	// SECURITY: API keys may live in the file.
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read JSON file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode JSON file: %w", err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read YAML file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode YAML file: %w", err)
		}
	default:
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("failed to decode TOML file: %w", err)
		}
	}
	return nil
}

// ensureSecurePermissions tightens config files to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// DotEnvFiles are loaded from the working directory, first match wins per
// variable. Variables already set in the environment are never replaced.
var DotEnvFiles = []string{".env.local", ".env"}

// LoadDotEnv loads DotEnvFiles that exist.
func LoadDotEnv() {
	for _, name := range DotEnvFiles {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not load %s: %v\n", name, err)
		}
	}
}

// SetDefaults fills zero values and resolves derived paths.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Gateway.TimeoutSecs == 0 {
		c.Gateway.TimeoutSecs = defaults.Gateway.TimeoutSecs
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = defaults.Storage.Backend
	}
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	if c.Storage.Namespace == "" {
		c.Storage.Namespace = defaults.Storage.Namespace
	}
	if c.Storage.Path == "" {
		dir, err := ConfigDir()
		if err != nil {
			dir = ".chatdesk"
		}
		switch c.Storage.Backend {
		case BackendSQLite:
			c.Storage.Path = filepath.Join(dir, "chatdesk.db")
		default:
			c.Storage.Path = filepath.Join(dir, "data")
		}
	}
	c.Storage.Path = ExpandHome(c.Storage.Path)

	if c.Server.Host == "" {
		c.Server.Host = defaults.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaults.Server.Port
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = defaults.Server.MaxBodyBytes
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
	}
	c.Logging.File = ExpandHome(c.Logging.File)

	if c.UI.WordWrap == 0 {
		c.UI.WordWrap = defaults.UI.WordWrap
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variables on top of file values.
func (c *Config) ApplyEnvOverrides() {
	// GROQ_API_KEY
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		c.Gateway.APIKey = key
	}

	// CHATDESK_GROQ_BASE_URL
	if base := os.Getenv("CHATDESK_GROQ_BASE_URL"); base != "" {
		c.Gateway.BaseURL = base
	}

	// CHATDESK_STORAGE / CHATDESK_STORAGE_PATH
	if backend := os.Getenv("CHATDESK_STORAGE"); backend != "" {
		c.Storage.Backend = backend
	}
	if path := os.Getenv("CHATDESK_STORAGE_PATH"); path != "" {
		c.Storage.Path = path
	}

	// CHATDESK_HOST / CHATDESK_PORT
	if host := os.Getenv("CHATDESK_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("CHATDESK_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			c.Server.Port = n
		}
	}

	// CHATDESK_AUTH_TOKEN
	if token := os.Getenv("CHATDESK_AUTH_TOKEN"); token != "" {
		c.Server.AuthToken = token
	}

	// CHATDESK_LOG_LEVEL / CHATDESK_LOG_FORMAT
	if level := os.Getenv("CHATDESK_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("CHATDESK_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}

	// NO_COLOR (https://no-color.org)
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		c.UI.NoColor = true
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns ValidationErrors listing every
// problem found.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Gateway.TimeoutSecs < 0 {
		add("gateway.timeout_secs", "must not be negative, got %d", c.Gateway.TimeoutSecs)
	}
	if c.Gateway.BaseURL != "" {
		u, err := url.Parse(c.Gateway.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("gateway.base_url", "must be an http(s) URL, got %q", c.Gateway.BaseURL)
		}
	}

	switch c.Storage.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		add("storage.backend", "invalid backend '%s', must be one of: file, sqlite, memory", c.Storage.Backend)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimitRPS < 0 {
		add("server.rate_limit_rps", "must not be negative")
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
		add("server.rate_limit_burst", "must be at least 1 when rate limiting is enabled")
	}
	if c.Server.MaxBodyBytes < 0 {
		add("server.max_body_bytes", "must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		add("logging.format", "invalid format '%s', must be one of: console, json", c.Logging.Format)
	}

	if c.UI.WordWrap < 0 {
		add("ui.word_wrap", "must not be negative")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// SAVE AND DISPLAY
// =============================================================================

// SaveTOML writes cfg to path with 0600 permissions.
// SECURITY: The file may contain the API key.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# chatdesk configuration file\n")
	buf.WriteString("# GROQ_API_KEY in the environment overrides gateway.api_key\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	clone := *c
	clone.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	clone.Gateway.APIKey = MaskKey(c.Gateway.APIKey)
	if c.Server.AuthToken != "" {
		clone.Server.AuthToken = MaskKey(c.Server.AuthToken)
	}
	return &clone
}

// String renders the redacted configuration as TOML.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c.Redacted()); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return buf.String()
}

// MaskKey hides a credential while showing whether one is set.
// SECURITY: Never show any part of the key.
func MaskKey(key string) string {
	if key == "" {
		return "[not set]"
	}
	return fmt.Sprintf("[REDACTED, length=%d]", len(key))
}

// ErrNoAPIKey is reported by RequireAPIKey.
var ErrNoAPIKey = errors.New("GROQ_API_KEY is not set; chats will show a configuration error")

// RequireAPIKey returns ErrNoAPIKey when no credential is configured.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.Gateway.APIKey) == "" {
		return ErrNoAPIKey
	}
	return nil
}
