// Package dispatcher runs one inbound webhook update through classification,
// persistence, media re-hosting and reply delivery.
package dispatcher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/edgard/stashbot/internal/bot/handlers"
	"github.com/edgard/stashbot/internal/config"
	"github.com/edgard/stashbot/internal/database"
	"github.com/edgard/stashbot/internal/delivery"
	"github.com/edgard/stashbot/internal/logger"
	"github.com/edgard/stashbot/internal/media"
	"github.com/edgard/stashbot/internal/update"
)

const logPreviewLen = 64

// Outcome is the structured result returned to the transport.
type Outcome struct {
	Success        bool   `json:"success"`
	ContentKind    string `json:"content_kind"`
	DeliveryMethod string `json:"delivery_method"`
}

// MediaRetriever copies an attached file into the object store.
type MediaRetriever interface {
	RetrieveAndStore(ctx context.Context, ref update.FileRef, owner media.Owner) media.Result
}

// Deliverer sends a reply through the fallback chain.
type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, text string) delivery.Result
}

// Deps holds the Dispatcher's collaborators. Media may be nil when media
// re-hosting is disabled.
type Deps struct {
	Logger           *slog.Logger
	Store            database.Store
	Media            MediaRetriever
	Deliverer        Deliverer
	Messages         config.MessagesConfig
	Config           config.DispatcherConfig
	OperationTimeout time.Duration
}

// Dispatcher handles webhook updates. It is safe for concurrent use.
type Dispatcher struct {
	logger    *slog.Logger
	store     database.Store
	media     MediaRetriever
	deliverer Deliverer
	commands  map[string]handlers.RegisteredHandler
	messages  config.MessagesConfig
	cfg       config.DispatcherConfig
	opTimeout time.Duration
}

// New creates a Dispatcher with the built-in command set.
func New(deps Deps) *Dispatcher {
	log := deps.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Dispatcher{
		logger:    log.With("component", "dispatcher"),
		store:     deps.Store,
		media:     deps.Media,
		deliverer: deps.Deliverer,
		commands: handlers.RegisterAllCommands(handlers.HandlerDeps{
			Logger:   log,
			Messages: deps.Messages,
			Store:    deps.Store,
		}),
		messages:  deps.Messages,
		cfg:       deps.Config,
		opTimeout: deps.OperationTimeout,
	}
}

// event carries one update through the pipeline.
type event struct {
	c         update.Classified
	log       *slog.Logger
	userSaved bool
	media     *media.Result
}

// Handle processes one raw update. It always returns normally: persistence
// and media failures degrade the reply, delivery failures are reported in
// the outcome, and panics are recovered.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) (out Outcome) {
	out = Outcome{ContentKind: string(update.KindUnknown), DeliveryMethod: string(delivery.MethodNone)}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "Panic while handling update", "panic", r, "stack", string(debug.Stack()))
			out.Success = false
		}
	}()

	c := update.Classify(raw)
	out.ContentKind = string(c.Kind)

	ev := &event{c: c}
	ev.log = d.logger.With("chat_id", c.ChatID, "user_id", c.UserID, "kind", c.Kind)
	if c.Kind == update.KindUnknown {
		ev.log.InfoContext(ctx, "Unrecognised update", "raw_keys", c.RawKeys)
	}

	d.persistUser(ctx, ev)

	if d.cfg.SkipDuplicates && d.isRedelivery(ctx, ev) {
		ev.log.InfoContext(ctx, "Skipping redelivered update", "message_id", c.Message.ID)
		out.Success = true
		return out
	}

	if c.Kind.IsMedia() && c.File != nil && d.media != nil {
		res := d.media.RetrieveAndStore(ctx, *c.File, media.Owner{UserID: c.UserID, MessageID: messageID(c)})
		ev.media = &res
	}

	d.persistInbound(ctx, ev)
	d.rememberUpload(ctx, ev)

	text := d.replyText(ctx, ev)
	res := d.deliverer.Deliver(ctx, c.ChatID, text)
	out.DeliveryMethod = string(res.Method)
	out.Success = res.Sent

	if res.Sent {
		if res.Method == delivery.MethodRecovery {
			text = d.messages.Recovery
		}
		d.persistReply(ctx, ev, res.MessageID, text)
	} else {
		ev.log.WarnContext(ctx, "Acknowledgement not sent", "method", res.Method, "error", res.Err)
	}

	ev.log.InfoContext(ctx, "Update handled",
		"success", out.Success, "delivery_method", out.DeliveryMethod,
		"text", logger.TruncateString(c.Text(), logPreviewLen), "duration", time.Since(start))
	return out
}

// persistUser upserts the sender. Without a decodable profile only
// last_active of an already known user is refreshed.
func (d *Dispatcher) persistUser(ctx context.Context, ev *event) {
	c := ev.c
	if c.UserID == 0 || d.store == nil {
		return
	}

	opCtx, cancel := d.opContext(ctx)
	defer cancel()

	if c.Message == nil || c.Message.From == nil {
		found, err := d.store.TouchUser(opCtx, c.UserID)
		if err != nil {
			ev.log.ErrorContext(ctx, "Failed to refresh user", "error", err)
			return
		}
		ev.userSaved = found
		return
	}

	from := c.Message.From
	err := d.store.UpsertUser(opCtx, &database.User{
		UserID:    c.UserID,
		Username:  database.NullString(from.Username),
		FirstName: from.FirstName,
		LastName:  database.NullString(from.LastName),
	})
	if err != nil {
		ev.log.ErrorContext(ctx, "Failed to save user", "error", err)
		return
	}
	ev.userSaved = true
}

func (d *Dispatcher) isRedelivery(ctx context.Context, ev *event) bool {
	if !ev.userSaved || ev.c.Message == nil || ev.c.Message.ID == 0 {
		return false
	}

	opCtx, cancel := d.opContext(ctx)
	defer cancel()

	exists, err := d.store.HasMessage(opCtx, ev.c.UserID, ev.c.Message.ID)
	if err != nil {
		ev.log.WarnContext(ctx, "Failed to check for redelivery", "error", err)
		return false
	}
	return exists
}

func (d *Dispatcher) persistInbound(ctx context.Context, ev *event) {
	if !ev.userSaved {
		return
	}
	c := ev.c

	msg := &database.Message{
		UserID:      c.UserID,
		MessageText: c.Text(),
	}
	if id := messageID(c); id != 0 {
		msg.MessageID = sql.NullInt64{Int64: int64(id), Valid: true}
	}
	if c.Kind.IsMedia() && c.File != nil {
		msg.FileType = database.NullString(string(c.Kind))
		msg.FileName = database.NullString(c.File.FileName)
		msg.MimeType = database.NullString(c.File.MimeType)
		if c.File.Duration > 0 {
			msg.Duration = sql.NullInt64{Int64: int64(c.File.Duration), Valid: true}
		}
		if ev.media != nil && ev.media.Stored {
			msg.StorageURL = database.NullString(ev.media.PublicURL)
			if msg.MimeType.String == "" {
				msg.MimeType = database.NullString(ev.media.ContentType)
			}
		}
	}

	opCtx, cancel := d.opContext(ctx)
	defer cancel()

	if err := d.store.SaveMessage(opCtx, msg); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			ev.log.WarnContext(ctx, "Inbound message already stored", "message_id", msg.MessageID.Int64)
			return
		}
		ev.log.ErrorContext(ctx, "Failed to save inbound message", "error", err)
	}
}

// rememberUpload records the newest stored media for the /last command.
func (d *Dispatcher) rememberUpload(ctx context.Context, ev *event) {
	if !ev.userSaved || ev.media == nil || !ev.media.Stored {
		return
	}

	upload := database.LastUpload{
		Kind:     kindLabel(ev.c.Kind),
		URL:      ev.media.PublicURL,
		StoredAt: time.Now().UTC(),
	}
	if ev.c.File != nil {
		upload.FileName = ev.c.File.FileName
	}

	opCtx, cancel := d.opContext(ctx)
	defer cancel()

	if err := d.store.SaveUserData(opCtx, ev.c.UserID, database.UserDataLastUpload, upload); err != nil {
		ev.log.WarnContext(ctx, "Failed to remember last upload", "error", err)
	}
}

func (d *Dispatcher) persistReply(ctx context.Context, ev *event, sentID int, text string) {
	if !d.cfg.RecordReplies || !ev.userSaved {
		return
	}

	msg := &database.Message{
		UserID:      ev.c.UserID,
		MessageText: text,
		IsBot:       true,
	}
	if sentID != 0 {
		msg.MessageID = sql.NullInt64{Int64: int64(sentID), Valid: true}
	}

	opCtx, cancel := d.opContext(ctx)
	defer cancel()

	if err := d.store.SaveMessage(opCtx, msg); err != nil {
		ev.log.ErrorContext(ctx, "Failed to save reply", "error", err)
	}
}

func (d *Dispatcher) replyText(ctx context.Context, ev *event) string {
	c := ev.c
	switch {
	case c.Kind == update.KindText:
		if h, req, ok := handlers.Lookup(d.commands, c.Message.Text); ok {
			req.ChatID, req.UserID, req.Message = c.ChatID, c.UserID, c.Message
			return h.Wrapped()(ctx, req)
		}
		return d.messages.TextReceived

	case c.Kind.IsMedia():
		if ev.media == nil {
			return d.messages.Unknown
		}
		if ev.media.Stored {
			return fmt.Sprintf(d.messages.MediaStored, kindLabel(c.Kind), ev.media.PublicURL)
		}
		return fmt.Sprintf(d.messages.MediaDegraded, kindLabel(c.Kind))

	default:
		return d.messages.Unknown
	}
}

func (d *Dispatcher) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.opTimeout)
}

func messageID(c update.Classified) int {
	if c.Message == nil {
		return 0
	}
	return c.Message.ID
}

func kindLabel(k update.Kind) string {
	if k == update.KindVoice {
		return "voice message"
	}
	return string(k)
}
