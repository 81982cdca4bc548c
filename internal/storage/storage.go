// Package storage provides the object stores media files are re-hosted in.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/edgard/stashbot/internal/config"
)

// ErrUnexpectedStatus is wrapped around non-success responses from a remote
// object store.
var ErrUnexpectedStatus = errors.New("unexpected storage response")

// ObjectStore is a bucket of publicly readable objects.
type ObjectStore interface {
	// EnsureBucket creates the bucket or confirms it exists.
	EnsureBucket(ctx context.Context) error
	// Upload writes data under key, replacing any previous object.
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	// PublicURL returns the URL the object under key is served from.
	PublicURL(key string) string
}

// New builds the backend selected by cfg.Backend. The client is used by
// remote backends only.
func New(cfg config.StorageConfig, client *http.Client) (ObjectStore, error) {
	switch cfg.Backend {
	case "supabase":
		return NewSupabase(client, cfg.SupabaseURL, cfg.SupabaseKey, cfg.Bucket), nil
	case "local":
		return NewLocal(cfg.LocalDir, cfg.PublicBaseURL, cfg.Bucket), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
