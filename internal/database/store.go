package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edgard/stashbot/internal/logger"
)

// Store defines the typed data access operations used by the dispatcher and
// maintenance tasks. Methods accept context.Context for cancellation and
// timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// UpsertUser inserts the user or refreshes its profile and last_active.
	UpsertUser(ctx context.Context, user *User) error

	// TouchUser refreshes last_active of an existing user. It reports whether
	// the user exists.
	TouchUser(ctx context.Context, userID int64) (bool, error)

	// GetUser returns the user row, or nil when it does not exist.
	GetUser(ctx context.Context, userID int64) (*User, error)

	// SaveMessage appends a message row and sets message.ID.
	SaveMessage(ctx context.Context, message *Message) error

	// HasMessage reports whether an inbound message with this platform id
	// is already stored for the user.
	HasMessage(ctx context.Context, userID int64, messageID int) (bool, error)

	// GetUserMessages returns the user's most recent messages, newest first.
	GetUserMessages(ctx context.Context, userID int64, limit int) ([]Message, error)

	// GetMessageStats counts the user's inbound messages and media messages.
	GetMessageStats(ctx context.Context, userID int64) (MessageStats, error)

	// SaveUserData stores value as JSON under (userID, key), replacing any
	// previous value.
	SaveUserData(ctx context.Context, userID int64, key string, value any) error

	// GetUserData decodes the value stored under (userID, key) into dest. It
	// reports false when no value exists.
	GetUserData(ctx context.Context, userID int64, key string, dest any) (bool, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore implements Store on top of the generic Querier.
type sqlxStore struct {
	db     *sqlx.DB
	q      *Querier
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, log *slog.Logger) Store {
	if log == nil {
		log = logger.Discard()
	}
	return &sqlxStore{
		db:     db,
		q:      NewQuerier(db, log),
		logger: log.With("component", "store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify("ping", "", err)
	}
	return nil
}

// UpsertUser writes every profile column plus last_active; created_at is left
// to its column default so it is set exactly once.
func (s *sqlxStore) UpsertUser(ctx context.Context, user *User) error {
	if user == nil {
		return fmt.Errorf("cannot save nil user")
	}
	if user.UserID == 0 {
		return fmt.Errorf("user must have a non-zero user_id")
	}

	user.LastActive = s.now()
	rec, err := s.q.Upsert(ctx, TableUsers, Record{
		"user_id":     user.UserID,
		"username":    user.Username,
		"first_name":  user.FirstName,
		"last_name":   user.LastName,
		"last_active": user.LastActive,
	}, []string{"user_id"})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error upserting user", "user_id", user.UserID, "error", err)
		return fmt.Errorf("failed to upsert user %d: %w", user.UserID, err)
	}

	if t, ok := rec["created_at"].(time.Time); ok {
		user.CreatedAt = t
	}

	s.logger.DebugContext(ctx, "User upserted successfully", "user_id", user.UserID)
	return nil
}

// TouchUser updates last_active without touching the profile columns.
func (s *sqlxStore) TouchUser(ctx context.Context, userID int64) (bool, error) {
	rows, err := s.q.Update(ctx, TableUsers, Record{"last_active": s.now()}, Condition{"user_id": userID})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error touching user", "user_id", userID, "error", err)
		return false, fmt.Errorf("failed to touch user %d: %w", userID, err)
	}
	return len(rows) > 0, nil
}

// GetUser returns the user row, or nil, nil when not found.
func (s *sqlxStore) GetUser(ctx context.Context, userID int64) (*User, error) {
	if userID == 0 {
		return nil, fmt.Errorf("user_id cannot be zero")
	}

	var users []User
	err := s.q.SelectInto(ctx, &users, TableUsers, nil, Condition{"user_id": userID}, &SelectOptions{Limit: 1})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error getting user", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	if len(users) == 0 {
		s.logger.DebugContext(ctx, "No user found", "user_id", userID)
		return nil, nil
	}
	return &users[0], nil
}

// SaveMessage inserts a new message record.
func (s *sqlxStore) SaveMessage(ctx context.Context, message *Message) error {
	if message == nil {
		return fmt.Errorf("cannot save nil message")
	}
	if message.UserID == 0 {
		return fmt.Errorf("message must have a non-zero user_id")
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = s.now()
	}

	rec, err := s.q.Insert(ctx, TableMessageHistory, Record{
		"user_id":      message.UserID,
		"message_id":   message.MessageID,
		"message_text": message.MessageText,
		"timestamp":    message.Timestamp,
		"is_bot":       message.IsBot,
		"file_type":    message.FileType,
		"file_name":    message.FileName,
		"mime_type":    message.MimeType,
		"duration":     message.Duration,
		"storage_url":  message.StorageURL,
	})
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, ErrDuplicate) {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "Error saving message",
			"user_id", message.UserID, "message_id", message.MessageID.Int64, "is_bot", message.IsBot, "error", err)
		return fmt.Errorf("failed to save message for user %d: %w", message.UserID, err)
	}

	if id, ok := rec["id"].(int64); ok {
		message.ID = id
	}

	s.logger.DebugContext(ctx, "Message saved successfully",
		"user_id", message.UserID, "id", message.ID, "is_bot", message.IsBot)
	return nil
}

// HasMessage looks up an inbound row by its platform message id.
func (s *sqlxStore) HasMessage(ctx context.Context, userID int64, messageID int) (bool, error) {
	rows, err := s.q.Select(ctx, TableMessageHistory, []string{"id"},
		Condition{"user_id": userID, "message_id": messageID, "is_bot": false}, &SelectOptions{Limit: 1})
	if err != nil {
		return false, fmt.Errorf("failed to look up message %d for user %d: %w", messageID, userID, err)
	}
	return len(rows) > 0, nil
}

// GetUserMessages returns up to limit messages for userID, newest first.
func (s *sqlxStore) GetUserMessages(ctx context.Context, userID int64, limit int) ([]Message, error) {
	if userID == 0 {
		return nil, fmt.Errorf("user_id cannot be zero")
	}
	if limit <= 0 {
		limit = 10
	}

	var messages []Message
	err := s.q.SelectInto(ctx, &messages, TableMessageHistory, nil,
		Condition{"user_id": userID},
		&SelectOptions{
			OrderBy: []Order{{Column: "timestamp", Desc: true}, {Column: "id", Desc: true}},
			Limit:   limit,
		})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error getting user messages", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get messages for user %d: %w", userID, err)
	}
	return messages, nil
}

// GetMessageStats counts the user's inbound messages and how many carry media.
func (s *sqlxStore) GetMessageStats(ctx context.Context, userID int64) (MessageStats, error) {
	rows, err := s.q.Select(ctx, TableMessageHistory, []string{"file_type"},
		Condition{"user_id": userID, "is_bot": false}, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error getting message stats", "user_id", userID, "error", err)
		return MessageStats{}, fmt.Errorf("failed to get message stats for user %d: %w", userID, err)
	}

	stats := MessageStats{Total: len(rows)}
	for _, row := range rows {
		if ft, ok := row["file_type"].(string); ok && ft != "" {
			stats.Media++
		}
	}
	return stats, nil
}

// SaveUserData upserts on (user_id, data_key).
func (s *sqlxStore) SaveUserData(ctx context.Context, userID int64, key string, value any) error {
	if userID == 0 {
		return fmt.Errorf("user_id cannot be zero")
	}
	if key == "" {
		return fmt.Errorf("data key cannot be empty")
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode user data %q: %w", key, err)
	}

	_, err = s.q.Upsert(ctx, TableUserData, Record{
		"user_id":    userID,
		"data_key":   key,
		"data_value": string(encoded),
		"updated_at": s.now(),
	}, []string{"user_id", "data_key"})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving user data", "user_id", userID, "key", key, "error", err)
		return fmt.Errorf("failed to save user data %q for user %d: %w", key, userID, err)
	}
	return nil
}

// GetUserData loads and decodes one user_data entry.
func (s *sqlxStore) GetUserData(ctx context.Context, userID int64, key string, dest any) (bool, error) {
	var rows []UserData
	err := s.q.SelectInto(ctx, &rows, TableUserData, nil,
		Condition{"user_id": userID, "data_key": key}, &SelectOptions{Limit: 1})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error getting user data", "user_id", userID, "key", key, "error", err)
		return false, fmt.Errorf("failed to get user data %q for user %d: %w", key, userID, err)
	}
	if len(rows) == 0 {
		return false, nil
	}
	if err := json.Unmarshal([]byte(rows[0].DataValue), dest); err != nil {
		return false, fmt.Errorf("failed to decode user data %q for user %d: %w", key, userID, err)
	}
	return true, nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)

	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", classify("vacuum", "", err))

	default:
		s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	}

	return nil
}
