// Package notify implements ports.Notifier as an in-process banner.
//
// Only one message is visible at a time. A new message replaces the
// current one and restarts the dismissal timer.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jsamuelsen/quote-manager/internal/ports"
)

// Banner holds the visible notification.
type Banner struct {
	mu      sync.Mutex
	window  time.Duration
	current *ports.Notification
	timer   *time.Timer
	stopped bool
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Banner.
type Option func(*Banner)

// WithClock overrides time.Now for the timestamps reported by Current.
func WithClock(now func() time.Time) Option {
	return func(b *Banner) {
		b.now = now
	}
}

// WithLogger logs each message as it is shown.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Banner) {
		b.logger = logger
	}
}

// NewBanner creates a banner that shows each message for window.
func NewBanner(window time.Duration, opts ...Option) *Banner {
	b := &Banner{
		window: window,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Notify shows msg, replacing any visible message.
func (b *Banner) Notify(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}

	if b.timer != nil {
		b.timer.Stop()
	}

	shown := b.now()
	n := &ports.Notification{
		Message:   msg,
		ShownAt:   shown,
		ExpiresAt: shown.Add(b.window),
	}
	b.current = n

	b.timer = time.AfterFunc(b.window, func() {
		b.dismiss(n)
	})

	if b.logger != nil {
		b.logger.Info("notification shown", slog.String("message", msg))
	}
}

// Current returns the visible message.
func (b *Banner) Current() (ports.Notification, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return ports.Notification{}, false
	}

	return *b.current, true
}

// Stop cancels the pending dismissal and ignores later messages.
func (b *Banner) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	b.current = nil

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// dismiss clears n unless a newer message has replaced it.
func (b *Banner) dismiss(n *ports.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == n {
		b.current = nil
	}
}
