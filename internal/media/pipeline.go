// Package media re-hosts attached files: it resolves a Bot API file id,
// downloads the content and uploads it to the configured object store.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	"github.com/edgard/stashbot/internal/config"
	"github.com/edgard/stashbot/internal/logger"
	"github.com/edgard/stashbot/internal/storage"
	"github.com/edgard/stashbot/internal/update"
)

var (
	// ErrFileResolution reports that the file id could not be resolved to a
	// download path.
	ErrFileResolution = errors.New("file resolution failed")
	// ErrDownload reports that the file content could not be fetched.
	ErrDownload = errors.New("file download failed")
	// ErrStorage reports that the object store rejected the bucket or upload.
	ErrStorage = errors.New("object storage failed")
)

var extPattern = regexp.MustCompile(`^\.[A-Za-z0-9]{1,16}$`)

// FileSource resolves and downloads platform files.
type FileSource interface {
	FilePath(ctx context.Context, fileID string) (string, error)
	Download(ctx context.Context, filePath string, maxBytes int64) ([]byte, error)
}

// Owner identifies the message a file belongs to.
type Owner struct {
	UserID    int64
	MessageID int
}

// Result describes one retrieval attempt. Err is set exactly when Stored is
// false.
type Result struct {
	Stored      bool
	Key         string
	PublicURL   string
	Size        int64
	ContentType string
	Err         error
}

// Pipeline moves files from the platform to the object store. Each call makes
// a single attempt; there are no retries.
type Pipeline struct {
	files           FileSource
	store           storage.ObjectStore
	logger          *slog.Logger
	downloadTimeout time.Duration
	maxFileSize     int64
	now             func() time.Time
}

// NewPipeline creates a Pipeline.
func NewPipeline(files FileSource, store storage.ObjectStore, cfg config.MediaConfig, log *slog.Logger) *Pipeline {
	if log == nil {
		log = logger.Discard()
	}
	return &Pipeline{
		files:           files,
		store:           store,
		logger:          log.With("component", "media"),
		downloadTimeout: cfg.DownloadTimeout,
		maxFileSize:     cfg.MaxFileSize,
		now:             time.Now,
	}
}

// RetrieveAndStore copies the referenced file into the object store and
// returns its public URL. Failures are reported in Result.Err wrapped with
// ErrFileResolution, ErrDownload or ErrStorage.
func (p *Pipeline) RetrieveAndStore(ctx context.Context, ref update.FileRef, owner Owner) Result {
	log := p.logger.With("file_id", ref.FileID, "user_id", owner.UserID, "message_id", owner.MessageID)

	res, err := p.retrieveAndStore(ctx, ref, owner)
	if err != nil {
		log.WarnContext(ctx, "Media retrieval failed", "error", err)
		return Result{Err: err}
	}

	log.InfoContext(ctx, "Media stored",
		"key", res.Key, "size", humanize.Bytes(uint64(res.Size)), "content_type", res.ContentType)
	return res
}

func (p *Pipeline) retrieveAndStore(ctx context.Context, ref update.FileRef, owner Owner) (Result, error) {
	if p.maxFileSize > 0 && ref.FileSize > p.maxFileSize {
		return Result{}, fmt.Errorf("%w: declared size %s exceeds limit %s", ErrDownload,
			humanize.Bytes(uint64(ref.FileSize)), humanize.Bytes(uint64(p.maxFileSize)))
	}

	dlCtx := ctx
	if p.downloadTimeout > 0 {
		var cancel context.CancelFunc
		dlCtx, cancel = context.WithTimeout(ctx, p.downloadTimeout)
		defer cancel()
	}

	path, err := p.files.FilePath(dlCtx, ref.FileID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrFileResolution, err)
	}
	if path == "" {
		return Result{}, fmt.Errorf("%w: empty file path", ErrFileResolution)
	}

	data, err := p.files.Download(dlCtx, path, p.maxFileSize)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrDownload, err)
	}

	if err := p.store.EnsureBucket(ctx); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	key := ObjectKey(owner, p.now(), ref.FileName)
	contentType := ref.MimeType
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}

	if err := p.store.Upload(ctx, key, data, contentType); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return Result{
		Stored:      true,
		Key:         key,
		PublicURL:   p.store.PublicURL(key),
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

// ObjectKey names a stored file user_{userID}_{messageID}_{unixSeconds}{ext}.
// The extension comes from the original file name and is dropped when absent
// or unusual.
func ObjectKey(owner Owner, at time.Time, fileName string) string {
	ext := filepath.Ext(fileName)
	if !extPattern.MatchString(ext) {
		ext = ""
	}
	return fmt.Sprintf("user_%d_%d_%d%s", owner.UserID, owner.MessageID, at.Unix(), ext)
}
