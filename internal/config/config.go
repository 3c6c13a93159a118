// Package config loads chathub settings from defaults, CHATHUB_* environment
// variables and an optional JSON file, in that order of increasing precedence.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

const envPrefix = "CHATHUB_"

// EnvConfigFile names the environment variable holding the config file path.
const EnvConfigFile = envPrefix + "CONFIG_FILE"

type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Hub       *HubConfig       `json:"hub"`
	Auth      *AuthConfig      `json:"auth"`
	Router    *RouterConfig    `json:"router"`
}

type DatabaseConfig struct {
	Driver  string        `json:"driver"` // "sqlite3" (mattn) or "sqlite" (modernc)
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Host          string        `json:"host"`
	Port          int           `json:"port"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	AllowedOrigin string        `json:"allowed_origin"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

type HubConfig struct {
	QueueSize           int           `json:"queue_size"`
	CollaboratorTimeout time.Duration `json:"collaborator_timeout"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
	Issuer    string `json:"issuer"`
}

type RouterConfig struct {
	MessagesPerMinute int `json:"messages_per_minute"`
}

// DefaultConfig returns settings suitable for a single local instance.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Driver:  "sqlite3",
			Path:    "./data/chathub.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Host:          "0.0.0.0",
			Port:          5001,
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  30 * time.Second,
			AllowedOrigin: "*",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Hub: &HubConfig{
			QueueSize:           1000,
			CollaboratorTimeout: 5 * time.Second,
		},
		Auth: &AuthConfig{
			Issuer: "chathub",
		},
		Router: &RouterConfig{
			MessagesPerMinute: 100,
		},
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Driver != "sqlite3" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("database driver must be sqlite3 or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Hub == nil {
		return fmt.Errorf("hub configuration is required")
	}
	if c.Hub.QueueSize <= 0 {
		return fmt.Errorf("hub queue size must be positive")
	}
	if c.Hub.CollaboratorTimeout <= 0 {
		return fmt.Errorf("hub collaborator timeout must be positive")
	}

	if c.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("JWT secret must be at least 16 characters")
	}

	if c.Router == nil {
		return fmt.Errorf("router configuration is required")
	}
	if c.Router.MessagesPerMinute < 0 {
		return fmt.Errorf("router messages per minute cannot be negative")
	}

	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// LoadFromEnv applies CHATHUB_* variables on top of the defaults. Values that
// fail to parse are ignored.
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

func applyEnv(config *Config) {
	envString("DATABASE_DRIVER", &config.Database.Driver)
	envString("DATABASE_PATH", &config.Database.Path)
	envDuration("DATABASE_TIMEOUT", &config.Database.Timeout)

	envString("HTTP_HOST", &config.HTTP.Host)
	envInt("HTTP_PORT", &config.HTTP.Port)
	envDuration("HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	envDuration("HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)
	envString("HTTP_ALLOWED_ORIGIN", &config.HTTP.AllowedOrigin)

	envDuration("WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	envDuration("WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)
	envDuration("WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	envInt("WEBSOCKET_BUFFER_SIZE", &config.WebSocket.BufferSize)

	envInt("HUB_QUEUE_SIZE", &config.Hub.QueueSize)
	envDuration("HUB_COLLABORATOR_TIMEOUT", &config.Hub.CollaboratorTimeout)

	envString("AUTH_JWT_SECRET", &config.Auth.JWTSecret)
	envString("AUTH_ISSUER", &config.Auth.Issuer)

	envInt("ROUTER_MESSAGES_PER_MINUTE", &config.Router.MessagesPerMinute)
}

func envString(key string, dst *string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// ConfigFile is the JSON shape of a config file. Durations are Go duration
// strings such as "30s".
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Hub       *HubConfigFile       `json:"hub"`
	Auth      *AuthConfig          `json:"auth"`
	Router    *RouterConfigFile    `json:"router"`
}

type DatabaseConfigFile struct {
	Driver  string `json:"driver"`
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	ReadTimeout   string `json:"read_timeout"`
	WriteTimeout  string `json:"write_timeout"`
	AllowedOrigin string `json:"allowed_origin"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type HubConfigFile struct {
	QueueSize           int    `json:"queue_size"`
	CollaboratorTimeout string `json:"collaborator_timeout"`
}

type RouterConfigFile struct {
	MessagesPerMinute *int `json:"messages_per_minute"`
}

// LoadFromFile applies a JSON file on top of the defaults and validates the result.
func LoadFromFile(filepath string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, filepath); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

func applyFile(config *Config, filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	var p durationParser
	if db := file.Database; db != nil {
		setString(&config.Database.Driver, db.Driver)
		setString(&config.Database.Path, db.Path)
		p.parse("database.timeout", db.Timeout, &config.Database.Timeout)
	}
	if h := file.HTTP; h != nil {
		setString(&config.HTTP.Host, h.Host)
		setInt(&config.HTTP.Port, h.Port)
		p.parse("http.read_timeout", h.ReadTimeout, &config.HTTP.ReadTimeout)
		p.parse("http.write_timeout", h.WriteTimeout, &config.HTTP.WriteTimeout)
		setString(&config.HTTP.AllowedOrigin, h.AllowedOrigin)
	}
	if ws := file.WebSocket; ws != nil {
		p.parse("websocket.ping_interval", ws.PingInterval, &config.WebSocket.PingInterval)
		p.parse("websocket.read_timeout", ws.ReadTimeout, &config.WebSocket.ReadTimeout)
		p.parse("websocket.write_timeout", ws.WriteTimeout, &config.WebSocket.WriteTimeout)
		setInt(&config.WebSocket.BufferSize, ws.BufferSize)
	}
	if hub := file.Hub; hub != nil {
		setInt(&config.Hub.QueueSize, hub.QueueSize)
		p.parse("hub.collaborator_timeout", hub.CollaboratorTimeout, &config.Hub.CollaboratorTimeout)
	}
	if auth := file.Auth; auth != nil {
		setString(&config.Auth.JWTSecret, auth.JWTSecret)
		setString(&config.Auth.Issuer, auth.Issuer)
	}
	if r := file.Router; r != nil && r.MessagesPerMinute != nil {
		config.Router.MessagesPerMinute = *r.MessagesPerMinute
	}

	if p.err != nil {
		return fmt.Errorf("config file %s: %w", filepath, p.err)
	}
	return nil
}

type durationParser struct{ err error }

func (p *durationParser) parse(field, value string, dst *time.Duration) {
	if value == "" || p.err != nil {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", field, err)
		return
	}
	*dst = d
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// LoadConfigWithPrecedence layers defaults, environment and the file at
// filepath (if non-empty), then validates.
func LoadConfigWithPrecedence(filepath string) (*Config, error) {
	config := LoadFromEnv()

	if filepath != "" {
		if err := applyFile(config, filepath); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// Load resolves the file path from CHATHUB_CONFIG_FILE.
func Load() (*Config, error) {
	return LoadConfigWithPrecedence(os.Getenv(EnvConfigFile))
}
