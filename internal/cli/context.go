package cli

import (
	"sync"

	"github.com/rs/zerolog"

	"chatwire/internal/api"
	"chatwire/internal/chat"
	"chatwire/internal/config"
	"chatwire/internal/storage"
	"chatwire/pkg/logger"
)

// CLIContext carries the per-invocation wiring: config, logger and
// lazily opened collaborators.
type CLIContext struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zerolog.Logger
	Verbose    bool
	Quiet      bool

	clientOnce sync.Once
	client     *api.Client

	storageOnce sync.Once
	storage     *storage.DB
	storageErr  error

	coordOnce   sync.Once
	coordinator *chat.Coordinator
}

// NewCLIContext creates a CLI context.
func NewCLIContext(cfg *config.Config, configPath string, log *zerolog.Logger, verbose, quiet bool) *CLIContext {
	return &CLIContext{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     log,
		Verbose:    verbose,
		Quiet:      quiet,
	}
}

// Tokens builds the token source from configuration. A token file wins
// over an inline token; both absent means unauthenticated.
func (c *CLIContext) Tokens() api.TokenSource {
	if c.Config.Auth.TokenFile != "" {
		path, err := config.ExpandPath(c.Config.Auth.TokenFile)
		if err == nil {
			return api.FileToken(path)
		}
	}
	if c.Config.Auth.Token != "" {
		return api.StaticToken(c.Config.Auth.Token)
	}
	return nil
}

// APIClient returns the shared backend client.
func (c *CLIContext) APIClient() *api.Client {
	c.clientOnce.Do(func() {
		c.client = api.NewClient(c.Config.API.BaseURL, c.Config.API.GetTimeout(), c.Tokens())
	})
	return c.client
}

// GetStorage opens the transcript cache on first use. Returns nil with
// no error when storage is disabled.
func (c *CLIContext) GetStorage() (*storage.DB, error) {
	c.storageOnce.Do(func() {
		if !c.Config.Storage.Enabled {
			return
		}
		path := c.Config.Storage.Path
		if path == "" {
			path, c.storageErr = config.DefaultHistoryPath()
			if c.storageErr != nil {
				return
			}
		}
		c.storage, c.storageErr = storage.Open(path)
	})
	return c.storage, c.storageErr
}

// Coordinator builds the stream session coordinator on first use.
func (c *CLIContext) Coordinator() *chat.Coordinator {
	c.coordOnce.Do(func() {
		var cache chat.TranscriptCache
		db, dbErr := c.GetStorage()
		if dbErr != nil {
			// Degrade: chat still works without the local cache.
			logger.Warn().Err(dbErr).Msg("transcript cache unavailable")
		} else if db != nil {
			cache = db
		}

		client := c.APIClient()
		c.coordinator = chat.NewCoordinator(chat.Options{
			Backend:   client,
			Tokens:    c.Tokens(),
			Directory: client,
			Cache:     cache,
			Config: chat.Config{
				Reconnect:         c.Config.Transport.Reconnect,
				ReconnectDelay:    c.Config.Transport.GetReconnectDelay(),
				ReconnectAttempts: c.Config.Transport.ReconnectAttempts,
				Heartbeat:         c.Config.Transport.Heartbeat,
				HeartbeatInterval: c.Config.Transport.GetHeartbeatInterval(),
				ConnectTimeout:    c.Config.Transport.GetConnectTimeout(),
				ResponseTimeout:   c.Config.Transport.GetResponseTimeout(),
			},
		})
	})
	return c.coordinator
}

// Close releases everything the context opened.
func (c *CLIContext) Close() error {
	if c.coordinator != nil {
		c.coordinator.DisconnectAll()
	}
	if c.storage != nil {
		return c.storage.Close()
	}
	return nil
}

// Log returns the context logger, falling back to the global one.
func (c *CLIContext) Log() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.Get()
}
