package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/tidwall/gjson"
)

// Supabase stores objects through the Supabase Storage REST API.
type Supabase struct {
	client  *http.Client
	baseURL string
	key     string
	bucket  string
	ensured atomic.Bool
}

// NewSupabase creates a Supabase Storage client for one public bucket. key is
// the service role key.
func NewSupabase(client *http.Client, baseURL, key, bucket string) *Supabase {
	return &Supabase{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		bucket:  bucket,
	}
}

// EnsureBucket creates the public bucket. An existing bucket counts as
// success; once confirmed, later calls return immediately.
func (s *Supabase) EnsureBucket(ctx context.Context) error {
	if s.ensured.Load() {
		return nil
	}

	body, err := json.Marshal(map[string]any{"id": s.bucket, "name": s.bucket, "public": true})
	if err != nil {
		return fmt.Errorf("failed to encode bucket request: %w", err)
	}

	status, respBody, err := s.do(ctx, http.MethodPost, s.baseURL+"/storage/v1/bucket", "application/json", body, nil)
	if err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	if !isSuccess(status) && !isDuplicate(status, respBody) {
		return fmt.Errorf("create bucket %s: %w: %d %s", s.bucket, ErrUnexpectedStatus, status, errorMessage(respBody))
	}

	s.ensured.Store(true)
	return nil
}

// Upload writes data under key, overwriting an existing object.
func (s *Supabase) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, url.PathEscape(s.bucket), escapeKey(key))
	status, respBody, err := s.do(ctx, http.MethodPost, endpoint, contentType, data, map[string]string{"x-upsert": "true"})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	if !isSuccess(status) {
		return fmt.Errorf("upload %s: %w: %d %s", key, ErrUnexpectedStatus, status, errorMessage(respBody))
	}
	return nil
}

// PublicURL returns the public object URL for key.
func (s *Supabase) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, url.PathEscape(s.bucket), escapeKey(key))
}

func (s *Supabase) do(ctx context.Context, method, endpoint, contentType string, body []byte, headers map[string]string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("apikey", s.key)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// isDuplicate recognises "already exists". Supabase reports it either as
// HTTP 409 or as a 400 whose body carries statusCode "409".
func isDuplicate(status int, body []byte) bool {
	if status == http.StatusConflict {
		return true
	}
	parsed := gjson.ParseBytes(body)
	return parsed.Get("statusCode").String() == "409" || strings.EqualFold(parsed.Get("error").String(), "Duplicate")
}

func errorMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "message"); msg.Exists() {
		return msg.String()
	}
	return strings.TrimSpace(string(body))
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
