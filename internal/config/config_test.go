package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
	if config.WebSocket.PingInterval != 30*time.Second || config.WebSocket.ReadTimeout != 60*time.Second {
		t.Errorf("Unexpected heartbeat defaults: %+v", config.WebSocket)
	}
	if config.Database.Driver != "sqlite3" {
		t.Errorf("Expected sqlite3 driver, got %q", config.Database.Driver)
	}
	if config.Router.MessagesPerMinute != 100 {
		t.Errorf("Expected 100 messages per minute, got %d", config.Router.MessagesPerMinute)
	}
	if config.Addr() != "0.0.0.0:5001" {
		t.Errorf("Unexpected addr %s", config.Addr())
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"bad driver", func(c *Config) { c.Database.Driver = "postgres" }, "driver"},
		{"empty path", func(c *Config) { c.Database.Path = "" }, "database path"},
		{"bad port", func(c *Config) { c.HTTP.Port = -1 }, "port"},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }, "host"},
		{"read timeout below ping", func(c *Config) { c.WebSocket.ReadTimeout = 10 * time.Second }, "ping interval"},
		{"zero buffer", func(c *Config) { c.WebSocket.BufferSize = 0 }, "buffer size"},
		{"zero queue", func(c *Config) { c.Hub.QueueSize = 0 }, "queue size"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "JWT secret"},
		{"negative rate", func(c *Config) { c.Router.MessagesPerMinute = -1 }, "messages per minute"},
		{"missing section", func(c *Config) { c.Hub = nil }, "hub configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			err := c.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("CHATHUB_HTTP_PORT", "9090")
	t.Setenv("CHATHUB_DATABASE_PATH", "/tmp/test.db")
	t.Setenv("CHATHUB_DATABASE_DRIVER", "sqlite")
	t.Setenv("CHATHUB_WEBSOCKET_PING_INTERVAL", "15s")
	t.Setenv("CHATHUB_HUB_COLLABORATOR_TIMEOUT", "2s")
	t.Setenv("CHATHUB_AUTH_JWT_SECRET", "0123456789abcdef")
	t.Setenv("CHATHUB_ROUTER_MESSAGES_PER_MINUTE", "7")

	config := LoadFromEnv()

	if config.HTTP.Port != 9090 {
		t.Errorf("Expected HTTP port 9090, got %d", config.HTTP.Port)
	}
	if config.Database.Path != "/tmp/test.db" || config.Database.Driver != "sqlite" {
		t.Errorf("Unexpected database config %+v", config.Database)
	}
	if config.WebSocket.PingInterval != 15*time.Second {
		t.Errorf("Expected 15s ping, got %v", config.WebSocket.PingInterval)
	}
	if config.Hub.CollaboratorTimeout != 2*time.Second {
		t.Errorf("Expected 2s collaborator timeout, got %v", config.Hub.CollaboratorTimeout)
	}
	if config.Auth.JWTSecret != "0123456789abcdef" {
		t.Error("JWT secret not loaded")
	}
	if config.Router.MessagesPerMinute != 7 {
		t.Errorf("Expected 7 messages per minute, got %d", config.Router.MessagesPerMinute)
	}
}

func TestConfig_LoadFromEnvIgnoresUnparsable(t *testing.T) {
	t.Setenv("CHATHUB_HTTP_PORT", "not-a-number")
	t.Setenv("CHATHUB_WEBSOCKET_READ_TIMEOUT", "soon")

	config := LoadFromEnv()
	if config.HTTP.Port != 5001 {
		t.Errorf("Invalid port should keep default, got %d", config.HTTP.Port)
	}
	if config.WebSocket.ReadTimeout != 60*time.Second {
		t.Errorf("Invalid duration should keep default, got %v", config.WebSocket.ReadTimeout)
	}
}

func TestConfig_LoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `{
		"database": {"path": "/tmp/testfile.db", "timeout": "10s"},
		"http": {"port": 8081, "read_timeout": "10s", "allowed_origin": "http://localhost:5173"},
		"websocket": {"ping_interval": "20s", "read_timeout": "45s", "buffer_size": 32},
		"hub": {"queue_size": 64, "collaborator_timeout": "1s"},
		"auth": {"jwt_secret": "file-secret-0123456789", "issuer": "tests"},
		"router": {"messages_per_minute": 0}
	}`)

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile should succeed: %v", err)
	}

	if config.Database.Path != "/tmp/testfile.db" || config.Database.Timeout != 10*time.Second {
		t.Errorf("Unexpected database config %+v", config.Database)
	}
	if config.HTTP.Port != 8081 || config.HTTP.AllowedOrigin != "http://localhost:5173" {
		t.Errorf("Unexpected HTTP config %+v", config.HTTP)
	}
	if config.HTTP.WriteTimeout != 30*time.Second {
		t.Error("Unset fields should keep defaults")
	}
	if config.WebSocket.BufferSize != 32 || config.WebSocket.ReadTimeout != 45*time.Second {
		t.Errorf("Unexpected websocket config %+v", config.WebSocket)
	}
	if config.Hub.QueueSize != 64 || config.Hub.CollaboratorTimeout != time.Second {
		t.Errorf("Unexpected hub config %+v", config.Hub)
	}
	if config.Auth.Issuer != "tests" {
		t.Errorf("Unexpected issuer %q", config.Auth.Issuer)
	}
	if config.Router.MessagesPerMinute != 0 {
		t.Errorf("Explicit zero should disable rate limiting, got %d", config.Router.MessagesPerMinute)
	}
}

func TestConfig_LoadFromFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", `{"database": `},
		{"bad duration", `{"websocket": {"ping_interval": "often"}}`},
		{"invalid result", `{"http": {"port": 70000}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFromFile(writeConfigFile(t, tt.content)); err == nil {
				t.Error("Expected error")
			}
		})
	}

	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestConfig_LoadConfigWithPrecedence(t *testing.T) {
	t.Setenv("CHATHUB_HTTP_PORT", "9090")
	t.Setenv("CHATHUB_HTTP_HOST", "127.0.0.1")
	path := writeConfigFile(t, `{"http": {"port": 7070}}`)

	config, err := LoadConfigWithPrecedence(path)
	if err != nil {
		t.Fatalf("LoadConfigWithPrecedence failed: %v", err)
	}

	if config.HTTP.Port != 7070 {
		t.Errorf("File should win over environment, got port %d", config.HTTP.Port)
	}
	if config.HTTP.Host != "127.0.0.1" {
		t.Errorf("Environment should win over defaults, got host %q", config.HTTP.Host)
	}

	if _, err := LoadConfigWithPrecedence(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Missing file should be reported")
	}
}

func TestConfig_LoadUsesConfigFileEnv(t *testing.T) {
	t.Setenv(EnvConfigFile, writeConfigFile(t, `{"http": {"port": 6060}}`))

	config, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.HTTP.Port != 6060 {
		t.Errorf("Expected port from CHATHUB_CONFIG_FILE, got %d", config.HTTP.Port)
	}
}
