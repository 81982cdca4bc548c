// Package config manages application configuration from environment variables,
// config files, and default values.
package config

import (
	"errors"
	"time"
)

// ErrConfiguration is wrapped around every loading or validation failure.
var ErrConfiguration = errors.New("configuration error")

// Config is the complete application configuration. Values can be set in
// config.yaml or through BOT_ prefixed environment variables
// (e.g. BOT_TELEGRAM_TOKEN).
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Media      MediaConfig      `mapstructure:"media"`
	Server     ServerConfig     `mapstructure:"server"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Messages   MessagesConfig   `mapstructure:"messages"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

// LoggerConfig controls log level and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds Bot API credentials and transport settings.
type TelegramConfig struct {
	Token          string        `mapstructure:"token"           validate:"required"`
	APIURL         string        `mapstructure:"api_url"         validate:"required,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"min=1s,max=2m"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"min=100ms,max=1m"`
	WebhookURL     string        `mapstructure:"webhook_url"     validate:"omitempty,url"`
	WebhookSecret  string        `mapstructure:"webhook_secret"`
	MaxConnections int           `mapstructure:"max_connections" validate:"min=1,max=100"`
	// DropPendingUpdates discards queued updates when the webhook URL changes.
	DropPendingUpdates bool `mapstructure:"drop_pending_updates"`
}

// DatabaseConfig configures the relational store and its connection pool.
type DatabaseConfig struct {
	Path             string        `mapstructure:"path"              validate:"required"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"    validate:"min=1"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"    validate:"min=0"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime" validate:"min=0"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" validate:"min=100ms,max=1m"`
}

// StorageConfig selects and configures the object store used for media.
type StorageConfig struct {
	Backend       string        `mapstructure:"backend"         validate:"oneof=supabase local"`
	Bucket        string        `mapstructure:"bucket"          validate:"required"`
	SupabaseURL   string        `mapstructure:"supabase_url"    validate:"omitempty,url"`
	SupabaseKey   string        `mapstructure:"supabase_key"`
	LocalDir      string        `mapstructure:"local_dir"`
	PublicBaseURL string        `mapstructure:"public_base_url" validate:"omitempty,url"`
	Timeout       time.Duration `mapstructure:"timeout"         validate:"min=1s,max=5m"`
}

// MediaConfig bounds media downloads.
type MediaConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout" validate:"min=1s,max=5m"`
	MaxFileSize     int64         `mapstructure:"max_file_size"    validate:"min=1024"`
}

// ServerConfig configures the webhook HTTP endpoint.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"            validate:"required"`
	WebhookPath    string        `mapstructure:"webhook_path"    validate:"required,startswith=/"`
	HandlerTimeout time.Duration `mapstructure:"handler_timeout" validate:"min=1s,max=5m"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"    validate:"min=1s"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"   validate:"min=1s"`
	MaxBodyBytes   string        `mapstructure:"max_body_bytes"  validate:"required"`
}

// DispatcherConfig toggles behavioural variants of update handling.
type DispatcherConfig struct {
	// SkipDuplicates suppresses media retrieval and replies for redelivered
	// updates whose inbound message row already exists.
	SkipDuplicates bool `mapstructure:"skip_duplicates"`
	// RecordReplies stores sent acknowledgements as bot messages.
	RecordReplies bool `mapstructure:"record_replies"`
}

// MessagesConfig holds every user-facing reply string.
type MessagesConfig struct {
	Welcome       string `mapstructure:"welcome"        validate:"required"`
	Help          string `mapstructure:"help"           validate:"required"`
	Stats         string `mapstructure:"stats"          validate:"required"`
	StatsSince    string `mapstructure:"stats_since"    validate:"required"`
	History       string `mapstructure:"history"        validate:"required"`
	HistoryEmpty  string `mapstructure:"history_empty"  validate:"required"`
	LastUpload    string `mapstructure:"last_upload"    validate:"required"`
	NoUploads     string `mapstructure:"no_uploads"     validate:"required"`
	TextReceived  string `mapstructure:"text_received"  validate:"required"`
	MediaStored   string `mapstructure:"media_stored"   validate:"required"`
	MediaDegraded string `mapstructure:"media_degraded" validate:"required"`
	Unknown       string `mapstructure:"unknown"        validate:"required"`
	Recovery      string `mapstructure:"recovery"       validate:"required"`
}

// SchedulerConfig lists optional maintenance tasks for long-running deployments.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig enables a task and sets its cron schedule.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}
