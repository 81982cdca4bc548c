package storage_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/stashbot/internal/config"
	"github.com/edgard/stashbot/internal/storage"
)

type recordedRequest struct {
	Method      string
	Path        string
	Auth        string
	APIKey      string
	ContentType string
	Upsert      string
	Body        string
}

type fakeSupabase struct {
	*httptest.Server
	mu           sync.Mutex
	requests     []recordedRequest
	bucketStatus int
	bucketBody   string
	uploadStatus int
}

func newFakeSupabase(t *testing.T) *fakeSupabase {
	t.Helper()
	f := &fakeSupabase{bucketStatus: http.StatusOK, bucketBody: `{"name":"media"}`, uploadStatus: http.StatusOK}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			Auth:        r.Header.Get("Authorization"),
			APIKey:      r.Header.Get("apikey"),
			ContentType: r.Header.Get("Content-Type"),
			Upsert:      r.Header.Get("x-upsert"),
			Body:        string(body),
		})
		bucketStatus, bucketBody, uploadStatus := f.bucketStatus, f.bucketBody, f.uploadStatus
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/storage/v1/bucket" {
			w.WriteHeader(bucketStatus)
			_, _ = io.WriteString(w, bucketBody)
			return
		}
		w.WriteHeader(uploadStatus)
		if uploadStatus == http.StatusOK {
			_, _ = io.WriteString(w, `{"Key":"media/x"}`)
			return
		}
		_, _ = io.WriteString(w, `{"statusCode":"403","error":"Unauthorized","message":"new row violates row-level security policy"}`)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeSupabase) setBucketResponse(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bucketStatus, f.bucketBody = status, body
}

func (f *fakeSupabase) setUploadStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadStatus = status
}

func (f *fakeSupabase) Requests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func TestSupabaseUploadFlow(t *testing.T) {
	t.Parallel()
	fake := newFakeSupabase(t)
	store := storage.NewSupabase(&http.Client{Timeout: 5 * time.Second}, fake.URL+"/", "service-key", "media")
	ctx := context.Background()

	require.NoError(t, store.EnsureBucket(ctx))
	require.NoError(t, store.EnsureBucket(ctx))
	require.NoError(t, store.Upload(ctx, "user_42_10_1700000000.jpg", []byte("jpeg"), "image/jpeg"))

	reqs := fake.Requests()
	require.Len(t, reqs, 2, "bucket creation is only attempted until it succeeds")
	assert.Equal(t, "/storage/v1/bucket", reqs[0].Path)
	assert.JSONEq(t, `{"id":"media","name":"media","public":true}`, reqs[0].Body)
	assert.Equal(t, "Bearer service-key", reqs[0].Auth)
	assert.Equal(t, "service-key", reqs[0].APIKey)

	assert.Equal(t, http.MethodPost, reqs[1].Method)
	assert.Equal(t, "/storage/v1/object/media/user_42_10_1700000000.jpg", reqs[1].Path)
	assert.Equal(t, "image/jpeg", reqs[1].ContentType)
	assert.Equal(t, "true", reqs[1].Upsert)
	assert.Equal(t, "jpeg", reqs[1].Body)

	assert.Equal(t, fake.URL+"/storage/v1/object/public/media/user_42_10_1700000000.jpg",
		store.PublicURL("user_42_10_1700000000.jpg"))
}

func TestSupabaseEnsureBucketExisting(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{name: "conflict status", status: http.StatusConflict, body: `{"message":"exists"}`},
		{name: "duplicate in body", status: http.StatusBadRequest, body: `{"statusCode":"409","error":"Duplicate","message":"The resource already exists"}`},
		{name: "forbidden", status: http.StatusForbidden, body: `{"statusCode":"403","error":"Unauthorized","message":"invalid signature"}`, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fake := newFakeSupabase(t)
			fake.setBucketResponse(tc.status, tc.body)

			store := storage.NewSupabase(&http.Client{Timeout: 5 * time.Second}, fake.URL, "k", "media")
			err := store.EnsureBucket(context.Background())
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, storage.ErrUnexpectedStatus)
				assert.Contains(t, err.Error(), "invalid signature")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSupabaseUploadRejected(t *testing.T) {
	t.Parallel()
	fake := newFakeSupabase(t)
	fake.setUploadStatus(http.StatusForbidden)

	store := storage.NewSupabase(&http.Client{Timeout: 5 * time.Second}, fake.URL, "k", "media")
	err := store.Upload(context.Background(), "a.bin", []byte("x"), "application/octet-stream")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrUnexpectedStatus)
}

func TestLocalStore(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store := storage.NewLocal(dir, "https://files.example.com/media/", "media")
	ctx := context.Background()

	require.NoError(t, store.EnsureBucket(ctx))
	require.NoError(t, store.EnsureBucket(ctx))
	require.NoError(t, store.Upload(ctx, "user_1_2_3.txt", []byte("hello"), "text/plain"))
	require.NoError(t, store.Upload(ctx, "user_1_2_3.txt", []byte("hello again"), "text/plain"))

	data, err := os.ReadFile(filepath.Join(dir, "media", "user_1_2_3.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello again", string(data))
	assert.Equal(t, "https://files.example.com/media/user_1_2_3.txt", store.PublicURL("user_1_2_3.txt"))

	assert.Error(t, store.Upload(ctx, "../escape.txt", []byte("x"), ""))
	assert.Error(t, store.Upload(ctx, "", []byte("x"), ""))
}

func TestNewSelectsBackend(t *testing.T) {
	t.Parallel()

	s, err := storage.New(config.StorageConfig{Backend: "local", LocalDir: t.TempDir(), Bucket: "b", PublicBaseURL: "http://x"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &storage.Local{}, s)

	s, err = storage.New(config.StorageConfig{Backend: "supabase", SupabaseURL: "http://x", Bucket: "b"}, http.DefaultClient)
	require.NoError(t, err)
	assert.IsType(t, &storage.Supabase{}, s)

	_, err = storage.New(config.StorageConfig{Backend: "s3"}, nil)
	assert.Error(t, err)
}
