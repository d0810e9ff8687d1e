package config

import "github.com/spf13/viper"

// SetDefaults registers default values for all configuration keys.
func SetDefaults() {
	viper.SetDefault("api.base_url", "http://127.0.0.1:8080/api")
	viper.SetDefault("api.timeout", "30s")

	viper.SetDefault("transport.reconnect", true)
	viper.SetDefault("transport.reconnect_delay", "3s")
	viper.SetDefault("transport.reconnect_attempts", 3)
	viper.SetDefault("transport.heartbeat", true)
	viper.SetDefault("transport.heartbeat_interval", "30s")
	viper.SetDefault("transport.connect_timeout", "10s")
	viper.SetDefault("transport.response_timeout", "30s")

	viper.SetDefault("auth.token", "")
	viper.SetDefault("auth.token_file", "")

	viper.SetDefault("storage.enabled", true)
	viper.SetDefault("storage.path", "~/.chatwire/history.db")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")
}
