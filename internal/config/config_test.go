package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.BaseURL != "http://127.0.0.1:8080/api" {
		t.Errorf("api.base_url = %q, want http://127.0.0.1:8080/api", cfg.API.BaseURL)
	}
	if !cfg.Transport.Reconnect {
		t.Error("transport.reconnect = false, want true")
	}
	if cfg.Transport.ReconnectAttempts != 3 {
		t.Errorf("transport.reconnect_attempts = %d, want 3", cfg.Transport.ReconnectAttempts)
	}
	if got := cfg.Transport.GetReconnectDelay(); got != 3*time.Second {
		t.Errorf("reconnect delay = %v, want 3s", got)
	}
	if got := cfg.Transport.GetHeartbeatInterval(); got != 30*time.Second {
		t.Errorf("heartbeat interval = %v, want 30s", got)
	}
	if got := cfg.Transport.GetResponseTimeout(); got != 30*time.Second {
		t.Errorf("response timeout = %v, want 30s", got)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log.level = %q, want info", cfg.Log.Level)
	}
	if !cfg.Storage.Enabled {
		t.Error("storage.enabled = false, want true")
	}
}

func TestLoad_FromFile(t *testing.T) {
	Reset()
	defer Reset()

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	content := `
api:
  base_url: "https://chat.example.com/api"
transport:
  reconnect_delay: 100ms
  reconnect_attempts: 5
log:
  level: debug
  format: json
`
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.BaseURL != "https://chat.example.com/api" {
		t.Errorf("api.base_url = %q", cfg.API.BaseURL)
	}
	if got := cfg.Transport.GetReconnectDelay(); got != 100*time.Millisecond {
		t.Errorf("reconnect delay = %v, want 100ms", got)
	}
	if cfg.Transport.ReconnectAttempts != 5 {
		t.Errorf("reconnect_attempts = %d, want 5", cfg.Transport.ReconnectAttempts)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q, want debug", cfg.Log.Level)
	}
	// Unset keys keep their defaults.
	if !cfg.Transport.Heartbeat {
		t.Error("transport.heartbeat = false, want default true")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Transport.ReconnectAttempts != 3 {
		t.Errorf("reconnect_attempts = %d, want default 3", cfg.Transport.ReconnectAttempts)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	Reset()
	defer Reset()

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte("api: [broken"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(configFile); err == nil {
		t.Error("Load succeeded with invalid YAML, want error")
	}
}

func TestSaveTo_Roundtrip(t *testing.T) {
	Reset()
	defer Reset()

	path := filepath.Join(t.TempDir(), "out", "config.yaml")
	cfg := &Config{}
	cfg.API.BaseURL = "https://example.org/api"
	cfg.Transport.ReconnectAttempts = 7

	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.API.BaseURL != "https://example.org/api" {
		t.Errorf("base_url = %q after roundtrip", loaded.API.BaseURL)
	}
	if loaded.Transport.ReconnectAttempts != 7 {
		t.Errorf("reconnect_attempts = %d after roundtrip, want 7", loaded.Transport.ReconnectAttempts)
	}
}

func TestGetTimeoutFallbacks(t *testing.T) {
	c := APIConfig{Timeout: "not-a-duration"}
	if got := c.GetTimeout(); got != 30*time.Second {
		t.Errorf("GetTimeout = %v, want 30s fallback", got)
	}
}
