package config

import "time"

// Default values for configuration
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = true

	DefaultTelegramAPIURL         = "https://api.telegram.org"
	DefaultTelegramRequestTimeout = 10 * time.Second
	DefaultTelegramConnectTimeout = 5 * time.Second
	DefaultTelegramMaxConnections = 100

	DefaultDBPath             = "storage.db"
	DefaultDBMaxOpenConns     = 1 // SQLite serialises writers
	DefaultDBMaxIdleConns     = 1
	DefaultDBConnMaxLifetime  = 5 * time.Minute
	DefaultDBOperationTimeout = 5 * time.Second

	DefaultStorageBackend = "supabase"
	DefaultStorageBucket  = "telegram-media"
	DefaultStorageTimeout = 30 * time.Second

	DefaultMediaEnabled         = true
	DefaultMediaDownloadTimeout = 30 * time.Second
	DefaultMediaMaxFileSize     = 20 * 1024 * 1024 // Bot API download limit

	DefaultServerAddr           = ":8080"
	DefaultServerWebhookPath    = "/webhook"
	DefaultServerHandlerTimeout = 25 * time.Second
	DefaultServerReadTimeout    = 10 * time.Second
	DefaultServerWriteTimeout   = 30 * time.Second
	DefaultServerMaxBodyBytes   = "1M"

	DefaultDispatcherSkipDuplicates = false
	DefaultDispatcherRecordReplies  = true
)

// DefaultMessages are the built-in reply strings.
var DefaultMessages = MessagesConfig{
	Welcome:       "👋 Welcome! Your messages and media will be stored securely.",
	Help:          "💬 This bot stores your messages and media.\n\nCommands:\n/start - Start the bot\n/help - Show this help message\n/stats - Show your message statistics\n/history - Show your recent messages\n/last - Show your last stored media",
	Stats:         "📊 You have sent %d messages, %d of them with media.",
	StatsSince:    "🗓 Member since %s.",
	History:       "🕘 Your recent messages:",
	HistoryEmpty:  "📭 You have not sent any messages yet.",
	LastUpload:    "📎 Your last %s: %s",
	NoUploads:     "📭 You have not stored any media yet.",
	TextReceived:  "✅ Your message has been received and stored.",
	MediaStored:   "✅ Your %s has been received and stored: %s",
	MediaDegraded: "⚠️ Your %s has been received, but it could not be stored right now.",
	Unknown:       "✅ Your message has been received.",
	Recovery:      "✅ Message received.",
}

// DefaultTasks are the optional maintenance tasks, disabled by default.
var DefaultTasks = map[string]TaskConfig{
	"sql_maintenance": {Enabled: false, Schedule: "0 0 4 * * *"},
	"keep_alive":      {Enabled: false, Schedule: "0 */5 * * * *"},
}
