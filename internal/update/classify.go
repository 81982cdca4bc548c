// Package update classifies raw Telegram webhook payloads by content kind.
package update

import (
	"encoding/json"
	"sort"

	"github.com/go-telegram/bot/models"
	"github.com/tidwall/gjson"
)

// Kind is the content kind of an inbound update.
type Kind string

// Content kinds, in classification precedence order.
const (
	KindText     Kind = "text"
	KindPhoto    Kind = "photo"
	KindDocument Kind = "document"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindVoice    Kind = "voice"
	KindUnknown  Kind = "unknown"
)

// precedence lists the message keys checked for content, first match wins.
var precedence = []Kind{KindText, KindPhoto, KindDocument, KindVideo, KindAudio, KindVoice}

// IsMedia reports whether the kind carries a downloadable file.
func (k Kind) IsMedia() bool {
	switch k {
	case KindPhoto, KindDocument, KindVideo, KindAudio, KindVoice:
		return true
	default:
		return false
	}
}

// FileRef is the platform reference to an attached file plus the metadata
// the platform sent with it. Zero values mean "not provided".
type FileRef struct {
	FileID    string
	FileName  string
	MimeType  string
	FileSize  int64
	Duration  int
	Width     int
	Height    int
	Title     string
	Performer string
}

// Classified is the result of Classify.
type Classified struct {
	Kind Kind
	// ChatID and UserID are zero when absent. HasChat tells a real zero id
	// apart from a missing one.
	ChatID  int64
	UserID  int64
	HasChat bool
	// Message is nil when the payload carries no message object.
	Message *models.Message
	// File is set for media kinds only.
	File *FileRef
	// RawKeys lists the message keys (or top-level keys when there is no
	// message at all) for unknown payloads. It is empty for malformed input.
	RawKeys []string
}

// Text returns the message text, or the caption for media messages.
func (c Classified) Text() string {
	if c.Message == nil {
		return ""
	}
	if c.Kind == KindText {
		return c.Message.Text
	}
	return c.Message.Caption
}

// Classify inspects a raw webhook payload. It never fails: malformed input is
// reported as KindUnknown, with chat and user ids recovered from the raw bytes
// where possible. The kind, file reference and sender come from the raw keys,
// so a type mismatch in an unrelated field does not change the result.
func Classify(raw []byte) Classified {
	result := Classified{Kind: KindUnknown}
	if !gjson.ValidBytes(raw) {
		return result
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return result
	}

	msg := root.Get("message")
	result.ChatID, result.HasChat = intField(msg, "chat.id")
	result.UserID, _ = intField(msg, "from.id")

	if !msg.Exists() {
		result.RawKeys = objectKeys(root)
		return result
	}
	if !msg.IsObject() {
		return result
	}

	for _, kind := range precedence {
		if present(msg, kind) {
			result.Kind = kind
			break
		}
	}

	result.Message = decodeMessage(msg)

	if result.Kind == KindUnknown {
		result.RawKeys = objectKeys(msg)
		return result
	}
	result.File = fileRef(result.Kind, msg)
	return result
}

// decodeMessage decodes the message object, falling back to the fields that
// can be read leniently when the typed decode rejects the payload.
func decodeMessage(msg gjson.Result) *models.Message {
	var m models.Message
	if err := json.Unmarshal([]byte(msg.Raw), &m); err == nil {
		return &m
	}

	m = models.Message{
		Text:    stringField(msg, "text"),
		Caption: stringField(msg, "caption"),
	}
	if id, ok := intField(msg, "message_id"); ok {
		m.ID = int(id)
	}
	if date, ok := intField(msg, "date"); ok {
		m.Date = int(date)
	}
	if id, ok := intField(msg, "chat.id"); ok {
		m.Chat = models.Chat{ID: id}
	}
	if id, ok := intField(msg, "from.id"); ok {
		m.From = &models.User{
			ID:        id,
			IsBot:     msg.Get("from.is_bot").Bool(),
			FirstName: stringField(msg, "from.first_name"),
			LastName:  stringField(msg, "from.last_name"),
			Username:  stringField(msg, "from.username"),
		}
	}
	return &m
}

func present(msg gjson.Result, kind Kind) bool {
	v := msg.Get(string(kind))
	switch kind {
	case KindText:
		return v.Type == gjson.String
	case KindPhoto:
		return v.IsArray() && len(v.Array()) > 0
	default:
		return v.IsObject()
	}
}

func intField(obj gjson.Result, path string) (int64, bool) {
	if !obj.IsObject() {
		return 0, false
	}
	v := obj.Get(path)
	if v.Type != gjson.Number {
		return 0, false
	}
	return v.Int(), true
}

func objectKeys(obj gjson.Result) []string {
	if !obj.IsObject() {
		return nil
	}
	var keys []string
	obj.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	sort.Strings(keys)
	return keys
}

func stringField(obj gjson.Result, path string) string {
	v := obj.Get(path)
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}

func fileRef(kind Kind, msg gjson.Result) *FileRef {
	var f gjson.Result
	if kind == KindPhoto {
		// Sizes arrive smallest first; keep the largest.
		sizes := msg.Get("photo").Array()
		f = sizes[len(sizes)-1]
	} else {
		f = msg.Get(string(kind))
	}

	ref := &FileRef{
		FileID:   stringField(f, "file_id"),
		FileName: stringField(f, "file_name"),
		MimeType: stringField(f, "mime_type"),
	}
	if n, ok := intField(f, "file_size"); ok {
		ref.FileSize = n
	}

	switch kind {
	case KindPhoto:
		ref.FileName, ref.MimeType = "", ""
		ref.Width, ref.Height = dimension(f, "width"), dimension(f, "height")
	case KindVideo:
		ref.Duration = dimension(f, "duration")
		ref.Width, ref.Height = dimension(f, "width"), dimension(f, "height")
	case KindAudio:
		ref.Duration = dimension(f, "duration")
		ref.Title = stringField(f, "title")
		ref.Performer = stringField(f, "performer")
	case KindVoice:
		ref.FileName = ""
		ref.Duration = dimension(f, "duration")
	}
	return ref
}

func dimension(obj gjson.Result, path string) int {
	n, _ := intField(obj, path)
	return int(n)
}
