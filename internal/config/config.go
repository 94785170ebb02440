// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"console-gateway/internal/verbs"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/console-gateway/config.toml",
	"configs/config.toml",
}

// reservedRoutes are served by the gateway itself.
var reservedRoutes = []string{"/api/v2", "/console", "/healthz", "/gateway/status"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host     string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port     int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	Backend  string `kong:"help='Backend base URL (overrides config).',env='BACKEND_URL'"`
	APIKey   string `kong:"help='Backend application API key (overrides config).',env='BACKEND_API_KEY'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Backend     BackendConfig     `toml:"backend"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Gateway     GatewayConfig     `toml:"gateway"`
	Credentials CredentialsConfig `toml:"credentials"`
	Log         LogConfig         `toml:"log"`
	Metrics     MetricsConfig     `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8080); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// BackendConfig holds the REST backend location and application key.
type BackendConfig struct {
	BaseURL         string `toml:"base_url"`
	APIKey          string `toml:"api_key"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	IdleConnections int    `toml:"idle_connections"`
	MaxReplyBytes   int64  `toml:"max_reply_bytes"`
}

// PipelineConfig controls which paths the stages govern and the credential
// header names.
type PipelineConfig struct {
	GovernedPaths        []string `toml:"governed_paths"`
	CaseTransformExclude []string `toml:"case_transform_exclude"`
	APIKeyHeader         string   `toml:"api_key_header"`
	SessionTokenHeader   string   `toml:"session_token_header"`
	LoginPath            string   `toml:"login_path"`
}

// GatewayConfig restricts what the gateway forwards.
type GatewayConfig struct {
	AllowedVerbs []string `toml:"allowed_verbs"`
}

// AllowedMask returns the allowed verbs as a bitmask. An empty list allows
// every verb.
func (g *GatewayConfig) AllowedMask() verbs.Mask {
	if len(g.AllowedVerbs) == 0 {
		return verbs.All
	}
	m, err := verbs.Encode(g.AllowedVerbs)
	if err != nil {
		return verbs.None
	}
	return m
}

// CredentialsConfig selects where the session token is kept.
type CredentialsConfig struct {
	Store string `toml:"store"` // "file" or "memory"
	Path  string `toml:"path"`  // file store only; empty means the XDG state dir
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/console-gateway/config.toml then configs/config.toml.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.Backend != "" {
		c.Backend.BaseURL = cli.Backend
	}
	if cli.APIKey != "" {
		c.Backend.APIKey = cli.APIKey
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	if c.Backend.APIKey == "YOUR_API_KEY_HERE" {
		return fmt.Errorf("backend.api_key contains placeholder value; set a real key or leave it empty")
	}

	// Backend URL: required, absolute, http(s).
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("backend.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("backend.base_url must use http or https; got %q", c.Backend.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("backend.base_url must include a host; got %q", c.Backend.BaseURL)
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Backend.TimeoutSeconds < 0 {
		return fmt.Errorf("backend.timeout_seconds must be non-negative; got %d", c.Backend.TimeoutSeconds)
	}
	if c.Backend.IdleConnections < 0 {
		return fmt.Errorf("backend.idle_connections must be non-negative; got %d", c.Backend.IdleConnections)
	}
	if c.Backend.MaxReplyBytes < 0 {
		return fmt.Errorf("backend.max_reply_bytes must be non-negative; got %d", c.Backend.MaxReplyBytes)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Pipeline paths.
	for _, p := range c.Pipeline.GovernedPaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("pipeline.governed_paths entries must start with '/'; got %q", p)
		}
	}
	for _, p := range c.Pipeline.CaseTransformExclude {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("pipeline.case_transform_exclude entries must start with '/'; got %q", p)
		}
	}
	if c.Pipeline.LoginPath != "" && !strings.HasPrefix(c.Pipeline.LoginPath, "/") {
		return fmt.Errorf("pipeline.login_path must start with '/'; got %q", c.Pipeline.LoginPath)
	}

	// Gateway verbs.
	if _, err := verbs.Encode(c.Gateway.AllowedVerbs); err != nil {
		return fmt.Errorf("gateway.allowed_verbs: %w", err)
	}

	// Credential store.
	switch strings.ToLower(c.Credentials.Store) {
	case "file", "memory", "":
		// valid
	default:
		return fmt.Errorf("credentials.store must be one of: file, memory; got %q", c.Credentials.Store)
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range reservedRoutes {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	c.Backend.BaseURL = strings.TrimSuffix(c.Backend.BaseURL, "/")
	if c.Backend.TimeoutSeconds == 0 {
		c.Backend.TimeoutSeconds = 120
	}
	if c.Backend.IdleConnections == 0 {
		c.Backend.IdleConnections = 100
	}
	if c.Backend.MaxReplyBytes == 0 {
		c.Backend.MaxReplyBytes = 64 * 1024 * 1024 // 64 MB
	}
	if len(c.Pipeline.GovernedPaths) == 0 {
		c.Pipeline.GovernedPaths = []string{"/api/v2"}
	}
	if c.Pipeline.CaseTransformExclude == nil {
		c.Pipeline.CaseTransformExclude = []string{"/api/v2/user/session", "/api/v2/system/admin/session"}
	}
	if c.Pipeline.APIKeyHeader == "" {
		c.Pipeline.APIKeyHeader = "X-DreamFactory-API-Key"
	}
	if c.Pipeline.SessionTokenHeader == "" {
		c.Pipeline.SessionTokenHeader = "X-DreamFactory-Session-Token"
	}
	if c.Pipeline.LoginPath == "" {
		c.Pipeline.LoginPath = "/login"
	}
	if len(c.Gateway.AllowedVerbs) == 0 {
		c.Gateway.AllowedVerbs = verbs.All.Decode()
	}
	if c.Credentials.Store == "" {
		c.Credentials.Store = "file"
	}
	c.Credentials.Store = strings.ToLower(c.Credentials.Store)
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
// The file may hold the backend API key.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
