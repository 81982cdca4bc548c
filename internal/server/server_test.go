package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/stashbot/internal/config"
	"github.com/edgard/stashbot/internal/dispatcher"
	"github.com/edgard/stashbot/internal/server"
)

type fakeHandler struct {
	mu          sync.Mutex
	bodies      []string
	hadDeadline bool
	outcome     dispatcher.Outcome
}

func (f *fakeHandler) Handle(ctx context.Context, raw []byte) dispatcher.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, f.hadDeadline = ctx.Deadline()
	f.bodies = append(f.bodies, string(raw))
	return f.outcome
}

func (f *fakeHandler) Bodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bodies...)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Addr:           "127.0.0.1:0",
		WebhookPath:    "/webhook",
		HandlerTimeout: 5 * time.Second,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxBodyBytes:   "1K",
	}
}

func postWebhook(t *testing.T, h http.Handler, body, secret string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if secret != "" {
		req.Header.Set(server.HeaderSecretToken, secret)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookReturnsOutcome(t *testing.T) {
	t.Parallel()
	handler := &fakeHandler{outcome: dispatcher.Outcome{Success: true, ContentKind: "text", DeliveryMethod: "Primary"}}
	srv := server.New(testServerConfig(), "s3cret", handler, nil, nil)

	rec := postWebhook(t, srv.Handler(), `{"update_id":1}`, "s3cret")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"content_kind":"text","delivery_method":"Primary"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	assert.Equal(t, []string{`{"update_id":1}`}, handler.Bodies())
	assert.True(t, handler.hadDeadline)
}

func TestWebhookFailedOutcomeIsStill200(t *testing.T) {
	t.Parallel()
	handler := &fakeHandler{outcome: dispatcher.Outcome{ContentKind: "unknown", DeliveryMethod: "None"}}
	srv := server.New(testServerConfig(), "", handler, nil, nil)

	rec := postWebhook(t, srv.Handler(), `{"message":"not-an-object"}`, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var out dispatcher.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.False(t, out.Success)
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	t.Parallel()
	handler := &fakeHandler{}
	srv := server.New(testServerConfig(), "s3cret", handler, nil, nil)

	for _, secret := range []string{"", "wrong"} {
		rec := postWebhook(t, srv.Handler(), `{}`, secret)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	assert.Empty(t, handler.Bodies())
}

func TestWebhookBodyLimit(t *testing.T) {
	t.Parallel()
	handler := &fakeHandler{}
	srv := server.New(testServerConfig(), "", handler, nil, nil)

	rec := postWebhook(t, srv.Handler(), `{"text":"`+strings.Repeat("a", 4096)+`"}`, "")

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, handler.Bodies())
}

func TestWebhookWrongMethod(t *testing.T) {
	t.Parallel()
	srv := server.New(testServerConfig(), "", &fakeHandler{}, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		pinger     server.Pinger
		wantStatus int
		wantBody   string
	}{
		{name: "no pinger", wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "healthy store", pinger: fakePinger{}, wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "store down", pinger: fakePinger{err: errors.New("database is closed")}, wantStatus: http.StatusServiceUnavailable, wantBody: "degraded"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := server.New(testServerConfig(), "", &fakeHandler{}, tc.pinger, nil)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tc.wantStatus, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantBody, body["status"])
		})
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	srv := server.New(testServerConfig(), "", &fakeHandler{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
