package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"chatwire/internal/config"
	"chatwire/internal/storage"
)

// InitOptions are the init command options.
type InitOptions struct {
	Force bool
}

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize chatwire configuration",
		Long:  "Create the configuration directory, a default config file and the transcript database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunInit(opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "overwrite existing configuration")

	return cmd
}

// RunInit performs initialization.
func RunInit(opts *InitOptions) error {
	configDir, err := config.DefaultConfigDir()
	if err != nil {
		return fmt.Errorf("get config dir: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil && !opts.Force {
		return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", configPath)
	}

	dirs := []string{
		configDir,
		filepath.Join(configDir, "logs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	defaultConfig := map[string]any{
		"api": map[string]any{
			"base_url": "http://127.0.0.1:8080/api",
			"timeout":  "30s",
		},
		"transport": map[string]any{
			"reconnect":          true,
			"reconnect_delay":    "3s",
			"reconnect_attempts": 3,
			"heartbeat":          true,
			"heartbeat_interval": "30s",
			"response_timeout":   "30s",
		},
		"auth": map[string]any{
			"token": "",
		},
		"storage": map[string]any{
			"enabled": true,
		},
		"log": map[string]any{
			"level":  "info",
			"format": "console",
		},
	}

	data, err := yaml.Marshal(defaultConfig)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// 0600: the file may hold the auth token.
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	historyPath, err := config.DefaultHistoryPath()
	if err != nil {
		return fmt.Errorf("get history path: %w", err)
	}

	db, err := storage.Open(historyPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	db.Close()

	fmt.Printf("Initialized chatwire at %s\n", configDir)
	fmt.Printf("  Config: %s\n", configPath)
	fmt.Printf("  Database: %s\n", historyPath)

	return nil
}
