package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable override.
const EnvPrefix = "BOT"

// LoadConfig loads and validates configuration from:
// 1. Default values
// 2. An optional .env file in the working directory
// 3. The YAML file at path (optional; missing files fall back to defaults)
// 4. BOT_* environment variables
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: failed to load .env file: %v", ErrConfiguration, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) && !isConfigNotFound(err) {
				return nil, fmt.Errorf("%w: failed to read config file %s: %v", ErrConfiguration, path, err)
			}
			slog.Info("Configuration file not found, using defaults and environment", "path", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return cfg, nil
}

func isConfigNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return true
	}
	var pathErr *os.PathError
	return errors.As(err, &pathErr) && errors.Is(pathErr.Err, fs.ErrNotExist)
}

// setDefaults registers every key so that AutomaticEnv can resolve it during
// Unmarshal, including keys whose default is empty.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", DefaultLogJSON)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.api_url", DefaultTelegramAPIURL)
	v.SetDefault("telegram.request_timeout", DefaultTelegramRequestTimeout)
	v.SetDefault("telegram.connect_timeout", DefaultTelegramConnectTimeout)
	v.SetDefault("telegram.webhook_url", "")
	v.SetDefault("telegram.webhook_secret", "")
	v.SetDefault("telegram.max_connections", DefaultTelegramMaxConnections)
	v.SetDefault("telegram.drop_pending_updates", false)

	v.SetDefault("database.path", DefaultDBPath)
	v.SetDefault("database.max_open_conns", DefaultDBMaxOpenConns)
	v.SetDefault("database.max_idle_conns", DefaultDBMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", DefaultDBConnMaxLifetime)
	v.SetDefault("database.operation_timeout", DefaultDBOperationTimeout)

	v.SetDefault("storage.backend", DefaultStorageBackend)
	v.SetDefault("storage.bucket", DefaultStorageBucket)
	v.SetDefault("storage.supabase_url", "")
	v.SetDefault("storage.supabase_key", "")
	v.SetDefault("storage.local_dir", "")
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("storage.timeout", DefaultStorageTimeout)

	v.SetDefault("media.enabled", DefaultMediaEnabled)
	v.SetDefault("media.download_timeout", DefaultMediaDownloadTimeout)
	v.SetDefault("media.max_file_size", DefaultMediaMaxFileSize)

	v.SetDefault("server.addr", DefaultServerAddr)
	v.SetDefault("server.webhook_path", DefaultServerWebhookPath)
	v.SetDefault("server.handler_timeout", DefaultServerHandlerTimeout)
	v.SetDefault("server.read_timeout", DefaultServerReadTimeout)
	v.SetDefault("server.write_timeout", DefaultServerWriteTimeout)
	v.SetDefault("server.max_body_bytes", DefaultServerMaxBodyBytes)

	v.SetDefault("dispatcher.skip_duplicates", DefaultDispatcherSkipDuplicates)
	v.SetDefault("dispatcher.record_replies", DefaultDispatcherRecordReplies)

	v.SetDefault("messages.welcome", DefaultMessages.Welcome)
	v.SetDefault("messages.help", DefaultMessages.Help)
	v.SetDefault("messages.stats", DefaultMessages.Stats)
	v.SetDefault("messages.stats_since", DefaultMessages.StatsSince)
	v.SetDefault("messages.history", DefaultMessages.History)
	v.SetDefault("messages.history_empty", DefaultMessages.HistoryEmpty)
	v.SetDefault("messages.last_upload", DefaultMessages.LastUpload)
	v.SetDefault("messages.no_uploads", DefaultMessages.NoUploads)
	v.SetDefault("messages.text_received", DefaultMessages.TextReceived)
	v.SetDefault("messages.media_stored", DefaultMessages.MediaStored)
	v.SetDefault("messages.media_degraded", DefaultMessages.MediaDegraded)
	v.SetDefault("messages.unknown", DefaultMessages.Unknown)
	v.SetDefault("messages.recovery", DefaultMessages.Recovery)

	tasks := make(map[string]any, len(DefaultTasks))
	for name, task := range DefaultTasks {
		tasks[name] = map[string]any{"enabled": task.Enabled, "schedule": task.Schedule}
	}
	v.SetDefault("scheduler.tasks", tasks)
}
