package update_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/stashbot/internal/update"
)

func TestClassifyKinds(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		raw      string
		kind     update.Kind
		fileID   string
		hasChat  bool
		chatID   int64
		userID   int64
		rawKeys  []string
		hasFile  bool
		wantText string
	}{
		{
			name:     "text",
			raw:      `{"update_id":1,"message":{"message_id":9,"chat":{"id":555,"type":"private"},"from":{"id":42,"is_bot":false,"first_name":"Ann"},"date":1700000000,"text":"/start"}}`,
			kind:     update.KindText,
			hasChat:  true,
			chatID:   555,
			userID:   42,
			wantText: "/start",
		},
		{
			name:     "empty text is still text",
			raw:      `{"message":{"message_id":1,"chat":{"id":1},"text":""}}`,
			kind:     update.KindText,
			hasChat:  true,
			chatID:   1,
			wantText: "",
		},
		{
			name:     "photo picks last size",
			raw:      `{"message":{"message_id":2,"chat":{"id":7},"from":{"id":8,"first_name":"B"},"photo":[{"file_id":"small","file_unique_id":"s","width":90,"height":90},{"file_id":"medium","file_unique_id":"m","width":320,"height":320},{"file_id":"large","file_unique_id":"l","width":1280,"height":1280}],"caption":"cat"}}`,
			kind:     update.KindPhoto,
			fileID:   "large",
			hasFile:  true,
			hasChat:  true,
			chatID:   7,
			userID:   8,
			wantText: "cat",
		},
		{
			name:    "document",
			raw:     `{"message":{"message_id":3,"chat":{"id":7},"document":{"file_id":"doc","file_unique_id":"d","file_name":"report.pdf","mime_type":"application/pdf"}}}`,
			kind:    update.KindDocument,
			fileID:  "doc",
			hasFile: true,
			hasChat: true,
			chatID:  7,
		},
		{
			name:    "video",
			raw:     `{"message":{"message_id":4,"chat":{"id":7},"video":{"file_id":"vid","file_unique_id":"v","width":640,"height":480,"duration":12}}}`,
			kind:    update.KindVideo,
			fileID:  "vid",
			hasFile: true,
			hasChat: true,
			chatID:  7,
		},
		{
			name:    "audio",
			raw:     `{"message":{"message_id":5,"chat":{"id":7},"audio":{"file_id":"aud","file_unique_id":"a","duration":200,"title":"Song"}}}`,
			kind:    update.KindAudio,
			fileID:  "aud",
			hasFile: true,
			hasChat: true,
			chatID:  7,
		},
		{
			name:    "voice",
			raw:     `{"message":{"message_id":6,"chat":{"id":7},"voice":{"file_id":"voc","file_unique_id":"o","duration":3,"mime_type":"audio/ogg"}}}`,
			kind:    update.KindVoice,
			fileID:  "voc",
			hasFile: true,
			hasChat: true,
			chatID:  7,
		},
		{
			name:     "text wins over photo",
			raw:      `{"message":{"message_id":7,"chat":{"id":7},"text":"hi","photo":[{"file_id":"p","file_unique_id":"p","width":1,"height":1}]}}`,
			kind:     update.KindText,
			hasChat:  true,
			chatID:   7,
			wantText: "hi",
		},
		{
			name:    "sticker is unknown with message keys",
			raw:     `{"message":{"message_id":8,"chat":{"id":7},"sticker":{"file_id":"st"}}}`,
			kind:    update.KindUnknown,
			hasChat: true,
			chatID:  7,
			rawKeys: []string{"chat", "message_id", "sticker"},
		},
		{
			name:    "no message lists top-level keys",
			raw:     `{"update_id":3,"edited_message":{"chat":{"id":1}}}`,
			kind:    update.KindUnknown,
			rawKeys: []string{"edited_message", "update_id"},
		},
		{
			name: "message not an object",
			raw:  `{"message":"not-an-object"}`,
			kind: update.KindUnknown,
		},
		{
			name:     "mistyped message_id keeps the text kind",
			raw:      `{"message":{"message_id":"nine","chat":{"id":555},"from":{"id":42},"text":"x"}}`,
			kind:     update.KindText,
			hasChat:  true,
			chatID:   555,
			userID:   42,
			wantText: "x",
		},
		{
			name:     "mistyped date keeps the text kind",
			raw:      `{"message":{"chat":{"id":555},"from":{"id":42,"first_name":"Ann"},"text":"hello","message_id":9,"date":"yesterday"}}`,
			kind:     update.KindText,
			hasChat:  true,
			chatID:   555,
			userID:   42,
			wantText: "hello",
		},
		{
			name:     "mistyped message_id keeps the photo kind",
			raw:      `{"message":{"message_id":"9","chat":{"id":7},"from":{"id":8},"photo":[{"file_id":"small","width":90,"height":90},{"file_id":"large","width":1280,"height":1280}],"caption":"cat"}}`,
			kind:     update.KindPhoto,
			fileID:   "large",
			hasFile:  true,
			hasChat:  true,
			chatID:   7,
			userID:   8,
			wantText: "cat",
		},
		{
			name:    "unknown content with mistyped fields lists message keys",
			raw:     `{"message":{"message_id":"nine","chat":{"id":555},"sticker":{"file_id":"st"}}}`,
			kind:    update.KindUnknown,
			hasChat: true,
			chatID:  555,
			rawKeys: []string{"chat", "message_id", "sticker"},
		},
		{name: "array", raw: `[1,2,3]`, kind: update.KindUnknown},
		{name: "garbage", raw: `{"message":`, kind: update.KindUnknown},
		{name: "empty", raw: ``, kind: update.KindUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := update.Classify([]byte(tc.raw))

			assert.Equal(t, tc.kind, got.Kind)
			assert.Equal(t, tc.hasChat, got.HasChat)
			assert.Equal(t, tc.chatID, got.ChatID)
			assert.Equal(t, tc.userID, got.UserID)
			assert.Equal(t, tc.rawKeys, got.RawKeys)
			assert.Equal(t, tc.kind.IsMedia(), got.File != nil)
			if tc.hasFile {
				require.NotNil(t, got.File)
				assert.Equal(t, tc.fileID, got.File.FileID)
			}
			if tc.kind != update.KindUnknown {
				require.NotNil(t, got.Message)
				assert.Equal(t, tc.wantText, got.Text())
			}
		})
	}
}

func TestClassifyMediaMetadata(t *testing.T) {
	t.Parallel()

	doc := update.Classify([]byte(`{"message":{"message_id":3,"chat":{"id":7},"document":{"file_id":"doc","file_unique_id":"d","file_name":"report.pdf","mime_type":"application/pdf","file_size":2048}}}`))
	require.NotNil(t, doc.File)
	assert.Equal(t, "report.pdf", doc.File.FileName)
	assert.Equal(t, "application/pdf", doc.File.MimeType)
	assert.Equal(t, int64(2048), doc.File.FileSize)

	audio := update.Classify([]byte(`{"message":{"message_id":5,"chat":{"id":7},"audio":{"file_id":"aud","file_unique_id":"a","duration":200,"title":"Song","performer":"Band"}}}`))
	require.NotNil(t, audio.File)
	assert.Equal(t, 200, audio.File.Duration)
	assert.Equal(t, "Song", audio.File.Title)
	assert.Equal(t, "Band", audio.File.Performer)

	photo := update.Classify([]byte(`{"message":{"message_id":2,"chat":{"id":7},"photo":[{"file_id":"a","file_unique_id":"a","width":10,"height":10},{"file_id":"b","file_unique_id":"b","width":20,"height":30}]}}`))
	require.NotNil(t, photo.File)
	assert.Equal(t, 20, photo.File.Width)
	assert.Equal(t, 30, photo.File.Height)
}

func TestKindIsMedia(t *testing.T) {
	t.Parallel()

	assert.False(t, update.KindText.IsMedia())
	assert.False(t, update.KindUnknown.IsMedia())
	for _, k := range []update.Kind{update.KindPhoto, update.KindDocument, update.KindVideo, update.KindAudio, update.KindVoice} {
		assert.True(t, k.IsMedia(), k)
	}
}

func TestClassifyLenientSender(t *testing.T) {
	t.Parallel()

	got := update.Classify([]byte(`{"message":{"chat":{"id":555,"type":"private"},"from":{"id":42,"first_name":"Ann","last_name":"Lee","username":"ann"},"text":"hello","message_id":9,"date":"yesterday"}}`))

	require.NotNil(t, got.Message)
	assert.Equal(t, 9, got.Message.ID)
	assert.Equal(t, int64(555), got.Message.Chat.ID)
	require.NotNil(t, got.Message.From)
	assert.Equal(t, int64(42), got.Message.From.ID)
	assert.Equal(t, "Ann", got.Message.From.FirstName)
	assert.Equal(t, "Lee", got.Message.From.LastName)
	assert.Equal(t, "ann", got.Message.From.Username)

	doc := update.Classify([]byte(`{"message":{"message_id":"3","chat":{"id":7},"document":{"file_id":"doc","file_name":"report.pdf","mime_type":"application/pdf","file_size":2048}}}`))
	require.NotNil(t, doc.File)
	assert.Equal(t, update.KindDocument, doc.Kind)
	assert.Equal(t, "report.pdf", doc.File.FileName)
	assert.Equal(t, int64(2048), doc.File.FileSize)
	assert.Nil(t, doc.Message.From)
}
