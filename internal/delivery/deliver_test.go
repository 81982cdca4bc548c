package delivery_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/edgard/stashbot/internal/delivery"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type call struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu    sync.Mutex
	calls []call
	fn    func(ctx context.Context, text string) (int, error)
}

func (f *fakeSender) Send(ctx context.Context, chatID int64, text string) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{chatID: chatID, text: text})
	f.mu.Unlock()
	return f.fn(ctx, text)
}

func (f *fakeSender) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func ok(id int) func(context.Context, string) (int, error) {
	return func(context.Context, string) (int, error) { return id, nil }
}

func fail(msg string) func(context.Context, string) (int, error) {
	return func(context.Context, string) (int, error) { return 0, errors.New(msg) }
}

const recoveryText = "Message received."

func TestDeliverFallbackOrdering(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		primary     func(context.Context, string) (int, error)
		direct      func(context.Context, string) (int, error)
		wantSent    bool
		wantMethod  delivery.Method
		wantID      int
		wantDirect  []string
		wantPrimary int
	}{
		{
			name:        "primary succeeds",
			primary:     ok(11),
			direct:      ok(99),
			wantSent:    true,
			wantMethod:  delivery.MethodPrimary,
			wantID:      11,
			wantPrimary: 1,
		},
		{
			name:        "direct fallback succeeds",
			primary:     fail("primary down"),
			direct:      ok(12),
			wantSent:    true,
			wantMethod:  delivery.MethodDirect,
			wantID:      12,
			wantDirect:  []string{"hello"},
			wantPrimary: 1,
		},
		{
			name:    "recovery succeeds",
			primary: fail("primary down"),
			direct: func(_ context.Context, text string) (int, error) {
				if text == recoveryText {
					return 13, nil
				}
				return 0, errors.New("too long")
			},
			wantSent:    true,
			wantMethod:  delivery.MethodRecovery,
			wantID:      13,
			wantDirect:  []string{"hello", recoveryText},
			wantPrimary: 1,
		},
		{
			name:        "everything fails",
			primary:     fail("primary down"),
			direct:      fail("network unreachable"),
			wantSent:    false,
			wantMethod:  delivery.MethodRecovery,
			wantDirect:  []string{"hello", recoveryText},
			wantPrimary: 1,
		},
		{
			name:        "primary panics",
			primary:     func(context.Context, string) (int, error) { panic("boom") },
			direct:      ok(14),
			wantSent:    true,
			wantMethod:  delivery.MethodDirect,
			wantID:      14,
			wantDirect:  []string{"hello"},
			wantPrimary: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			primary := &fakeSender{fn: tc.primary}
			direct := &fakeSender{fn: tc.direct}
			d := delivery.New(primary, direct, recoveryText, time.Second, nil)

			res := d.Deliver(context.Background(), 555, "hello")

			assert.Equal(t, tc.wantSent, res.Sent)
			assert.Equal(t, tc.wantMethod, res.Method)
			assert.Equal(t, tc.wantID, res.MessageID)
			assert.Len(t, primary.Calls(), tc.wantPrimary)

			var directTexts []string
			for _, c := range direct.Calls() {
				assert.Equal(t, int64(555), c.chatID)
				directTexts = append(directTexts, c.text)
			}
			assert.Equal(t, tc.wantDirect, directTexts)

			if tc.wantSent {
				assert.NoError(t, res.Err)
			} else {
				require.Error(t, res.Err)
				assert.ErrorIs(t, res.Err, delivery.ErrDeliveryExhausted)
				assert.Contains(t, res.Err.Error(), "primary down")
				assert.Contains(t, res.Err.Error(), "network unreachable")
			}
		})
	}
}

func TestDeliverWithoutChat(t *testing.T) {
	t.Parallel()
	primary := &fakeSender{fn: ok(1)}
	direct := &fakeSender{fn: ok(2)}

	res := delivery.New(primary, direct, recoveryText, time.Second, nil).Deliver(context.Background(), 0, "hello")

	assert.False(t, res.Sent)
	assert.Equal(t, delivery.MethodNone, res.Method)
	assert.ErrorIs(t, res.Err, delivery.ErrDeliveryExhausted)
	assert.Empty(t, primary.Calls())
	assert.Empty(t, direct.Calls())
}

func TestDeliverRecoveryOutlivesExpiredContext(t *testing.T) {
	t.Parallel()
	ctxAware := func(ctx context.Context, text string) (int, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 21, nil
	}
	primary := &fakeSender{fn: ctxAware}
	direct := &fakeSender{fn: ctxAware}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := delivery.New(primary, direct, recoveryText, time.Second, nil).Deliver(ctx, 555, "hello")

	assert.True(t, res.Sent)
	assert.Equal(t, delivery.MethodRecovery, res.Method)
	assert.Equal(t, 21, res.MessageID)
}

func TestDeliverAttemptTimeout(t *testing.T) {
	t.Parallel()
	slow := func(ctx context.Context, _ string) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	primary := &fakeSender{fn: slow}
	direct := &fakeSender{fn: slow}

	start := time.Now()
	res := delivery.New(primary, direct, recoveryText, 20*time.Millisecond, nil).Deliver(context.Background(), 555, "hello")

	assert.False(t, res.Sent)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDeliverNilSenders(t *testing.T) {
	t.Parallel()
	res := delivery.New(nil, nil, recoveryText, time.Second, nil).Deliver(context.Background(), 555, "hello")
	assert.False(t, res.Sent)
	assert.Equal(t, delivery.MethodRecovery, res.Method)
}
