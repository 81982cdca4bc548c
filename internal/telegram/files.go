package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-telegram/bot"
)

// ErrFileTooLarge is returned when a download exceeds the configured cap.
var ErrFileTooLarge = errors.New("file exceeds size limit")

// FileSource resolves file ids to server paths and downloads the content.
type FileSource struct {
	bot     *bot.Bot
	client  *http.Client
	baseURL string
	token   string
}

// NewFileSource creates a FileSource. The client is used for the download
// request only; GetFile goes through the bot.
func NewFileSource(b *bot.Bot, client *http.Client, apiURL, token string) *FileSource {
	return &FileSource{
		bot:     b,
		client:  client,
		baseURL: strings.TrimRight(apiURL, "/"),
		token:   token,
	}
}

// FilePath resolves fileID to its download path on the Bot API file server.
func (f *FileSource) FilePath(ctx context.Context, fileID string) (string, error) {
	if fileID == "" {
		return "", fmt.Errorf("empty fileID provided")
	}
	file, err := f.bot.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("failed to get file: %w", err)
	}
	if file == nil || file.FilePath == "" {
		return "", fmt.Errorf("empty file path returned from Telegram")
	}
	return file.FilePath, nil
}

// Download fetches the file at filePath. At most maxBytes are accepted; a
// larger body yields ErrFileTooLarge.
func (f *FileSource) Download(ctx context.Context, filePath string, maxBytes int64) (data []byte, err error) {
	url := fmt.Sprintf("%s/file/bot%s/%s", f.baseURL, f.token, strings.TrimLeft(filePath, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %s", redact(err.Error(), f.token))
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close response body: %w", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrFileTooLarge, resp.ContentLength, maxBytes)
	}

	reader := io.Reader(resp.Body)
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, maxBytes+1)
	}
	data, err = io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read file data: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("received empty file data")
	}
	return data, nil
}
