// Package config loads and persists chatwire configuration via viper.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"chatwire/pkg/logger"
)

// Config is the root configuration structure.
type Config struct {
	API       APIConfig       `mapstructure:"api" yaml:"api"`
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Log       logger.Config   `mapstructure:"log" yaml:"log"`
}

// APIConfig configures the HTTP fallback and history endpoints.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Timeout string `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

// GetTimeout parses the request timeout, defaulting to 30 seconds.
func (c *APIConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// TransportConfig configures the WebSocket connection supervisor.
type TransportConfig struct {
	Reconnect         bool   `mapstructure:"reconnect" yaml:"reconnect"`
	ReconnectDelay    string `mapstructure:"reconnect_delay" yaml:"reconnect_delay,omitempty"`
	ReconnectAttempts int    `mapstructure:"reconnect_attempts" yaml:"reconnect_attempts,omitempty"`
	Heartbeat         bool   `mapstructure:"heartbeat" yaml:"heartbeat"`
	HeartbeatInterval string `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval,omitempty"`
	ConnectTimeout    string `mapstructure:"connect_timeout" yaml:"connect_timeout,omitempty"`
	ResponseTimeout   string `mapstructure:"response_timeout" yaml:"response_timeout,omitempty"`
}

// GetReconnectDelay parses the delay between reconnect attempts.
func (c *TransportConfig) GetReconnectDelay() time.Duration {
	return parseDuration(c.ReconnectDelay, 3*time.Second)
}

// GetHeartbeatInterval parses the ping interval.
func (c *TransportConfig) GetHeartbeatInterval() time.Duration {
	return parseDuration(c.HeartbeatInterval, 30*time.Second)
}

// GetConnectTimeout parses the bounded wait for a connection to open.
func (c *TransportConfig) GetConnectTimeout() time.Duration {
	return parseDuration(c.ConnectTimeout, 10*time.Second)
}

// GetResponseTimeout parses the wall-clock limit for a streamed exchange.
func (c *TransportConfig) GetResponseTimeout() time.Duration {
	return parseDuration(c.ResponseTimeout, 30*time.Second)
}

// AuthConfig configures where the bearer token comes from.
type AuthConfig struct {
	Token     string `mapstructure:"token" yaml:"token,omitempty"`
	TokenFile string `mapstructure:"token_file" yaml:"token_file,omitempty"`
}

// StorageConfig configures the local transcript cache.
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path,omitempty"`
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

var (
	mu           sync.Mutex
	globalConfig *Config
	configPath   string
)

// Load reads configuration from the given path, applying defaults and
// CHATWIRE_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("CHATWIRE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			// A missing file just means defaults; anything else is fatal.
			if !os.IsNotExist(err) {
				var pathErr *os.PathError
				if !errors.As(err, &pathErr) || !os.IsNotExist(pathErr) {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the loaded configuration, or nil before Load.
func GetConfig() *Config {
	mu.Lock()
	defer mu.Unlock()
	return globalConfig
}

// Get returns a configuration value by key, nil when unset.
func Get(key string) any {
	return viper.Get(key)
}

// Set updates a configuration value and persists it to the loaded
// config path.
func Set(key string, value string) error {
	viper.Set(key, value)
	return Save()
}

// Save writes the current settings back to the loaded config path.
func Save() error {
	mu.Lock()
	defer mu.Unlock()

	if configPath == "" {
		return errors.New("config path not set")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}

	// 0600: the file may contain the auth token.
	return os.WriteFile(configPath, data, 0600)
}

// SaveTo serializes cfg as YAML to the given path.
func SaveTo(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Reset clears the loaded configuration and all viper state. Test helper.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}
