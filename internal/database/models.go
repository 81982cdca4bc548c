package database

import (
	"database/sql"
	"time"
)

// Table names.
const (
	TableUsers          = "users"
	TableMessageHistory = "message_history"
	TableUserData       = "user_data"
)

// UserDataLastUpload is the user_data key holding the most recent stored
// media as a LastUpload.
const UserDataLastUpload = "last_upload"

// User is a chat participant. One row per Telegram user id; rows are
// upserted on every event and never deleted.
type User struct {
	UserID     int64          `db:"user_id"`
	Username   sql.NullString `db:"username"`
	FirstName  string         `db:"first_name"`
	LastName   sql.NullString `db:"last_name"`
	CreatedAt  time.Time      `db:"created_at"`
	LastActive time.Time      `db:"last_active"`
}

// Message is one inbound or outbound chat message. Media columns are only
// set for media messages; StorageURL stays NULL when re-hosting failed.
type Message struct {
	ID          int64          `db:"id"`
	UserID      int64          `db:"user_id"`
	MessageID   sql.NullInt64  `db:"message_id"`
	MessageText string         `db:"message_text"`
	Timestamp   time.Time      `db:"timestamp"`
	IsBot       bool           `db:"is_bot"`
	FileType    sql.NullString `db:"file_type"`
	FileName    sql.NullString `db:"file_name"`
	MimeType    sql.NullString `db:"mime_type"`
	Duration    sql.NullInt64  `db:"duration"`
	StorageURL  sql.NullString `db:"storage_url"`
}

// UserData is one per-user key/value entry. DataValue holds JSON.
type UserData struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	DataKey   string    `db:"data_key"`
	DataValue string    `db:"data_value"`
	UpdatedAt time.Time `db:"updated_at"`
}

// LastUpload describes the most recent media a user had re-hosted.
type LastUpload struct {
	Kind     string    `json:"kind"`
	URL      string    `json:"url"`
	FileName string    `json:"file_name,omitempty"`
	StoredAt time.Time `json:"stored_at"`
}

// MessageStats summarises a user's inbound history.
type MessageStats struct {
	Total int
	Media int
}

// NullString converts an empty string into SQL NULL.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
