// Package delivery sends replies through an ordered fallback chain so one
// transport failure does not leave the sender without an acknowledgement.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edgard/stashbot/internal/logger"
)

// Method names the path a reply was sent through.
type Method string

// Delivery methods, in the order they are attempted.
const (
	MethodPrimary  Method = "Primary"
	MethodDirect   Method = "DirectFallback"
	MethodRecovery Method = "RecoveryFallback"
	MethodNone     Method = "None"
)

// ErrDeliveryExhausted is joined into Result.Err when every attempt failed.
var ErrDeliveryExhausted = errors.New("all delivery attempts failed")

// Sender sends a text message and returns the platform message id.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) (int, error)
}

// Result is the outcome of Deliver. Method is the last path attempted.
type Result struct {
	Sent      bool
	Method    Method
	MessageID int
	Err       error
}

// Deliverer runs the fallback chain: the primary client, then a raw request
// with the same text, then a raw request with a generic acknowledgement.
type Deliverer struct {
	primary        Sender
	direct         Sender
	recoveryText   string
	attemptTimeout time.Duration
	logger         *slog.Logger
}

// New creates a Deliverer. attemptTimeout bounds each attempt separately.
func New(primary, direct Sender, recoveryText string, attemptTimeout time.Duration, log *slog.Logger) *Deliverer {
	if log == nil {
		log = logger.Discard()
	}
	return &Deliverer{
		primary:        primary,
		direct:         direct,
		recoveryText:   recoveryText,
		attemptTimeout: attemptTimeout,
		logger:         log.With("component", "delivery"),
	}
}

// Deliver sends text to chatID. It never panics and never returns an error;
// failures are reported through Result. A zero chatID means the chat is
// unknown and nothing is attempted.
func (d *Deliverer) Deliver(ctx context.Context, chatID int64, text string) Result {
	log := d.logger.With("chat_id", chatID)

	if chatID == 0 {
		log.WarnContext(ctx, "No chat id, skipping delivery")
		return Result{Method: MethodNone, Err: fmt.Errorf("%w: no chat id", ErrDeliveryExhausted)}
	}

	var errs []error

	id, err := d.attempt(ctx, d.primary, chatID, text)
	if err == nil {
		return Result{Sent: true, Method: MethodPrimary, MessageID: id}
	}
	log.WarnContext(ctx, "Primary delivery failed", "error", err)
	errs = append(errs, fmt.Errorf("%s: %w", MethodPrimary, err))

	id, err = d.attempt(ctx, d.direct, chatID, text)
	if err == nil {
		log.InfoContext(ctx, "Delivered through fallback", "method", MethodDirect)
		return Result{Sent: true, Method: MethodDirect, MessageID: id}
	}
	log.WarnContext(ctx, "Direct delivery failed", "error", err)
	errs = append(errs, fmt.Errorf("%s: %w", MethodDirect, err))

	// The request budget may already be spent; the last attempt gets its own.
	id, err = d.attempt(context.WithoutCancel(ctx), d.direct, chatID, d.recoveryText)
	if err == nil {
		log.InfoContext(ctx, "Delivered recovery acknowledgement", "method", MethodRecovery)
		return Result{Sent: true, Method: MethodRecovery, MessageID: id}
	}
	errs = append(errs, fmt.Errorf("%s: %w", MethodRecovery, err))

	joined := errors.Join(append([]error{ErrDeliveryExhausted}, errs...)...)
	log.ErrorContext(ctx, "Delivery exhausted", "error", joined)
	return Result{Method: MethodRecovery, Err: joined}
}

func (d *Deliverer) attempt(ctx context.Context, sender Sender, chatID int64, text string) (id int, err error) {
	if sender == nil {
		return 0, errors.New("sender not configured")
	}
	defer func() {
		if r := recover(); r != nil {
			id, err = 0, fmt.Errorf("panic during send: %v", r)
		}
	}()

	if d.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.attemptTimeout)
		defer cancel()
	}
	return sender.Send(ctx, chatID, text)
}
