// Package notify delivers toast-style, user-visible notifications.
//
// Every failing operation in the session and profile layers emits exactly
// one notification through this interface; callers never notify on behalf
// of those layers.
package notify

import (
	"log/slog"
	"sync"
)

// Notifier surfaces human-readable messages to the user.
type Notifier interface {
	Success(title, description string)
	Error(title, description string)
}

// Log writes notifications to a slog.Logger. It is the default sink for
// the headless shell; the web frontend reads the same events via Feed.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a slog-backed Notifier.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Success(title, description string) {
	l.logger.Info("notification", "title", title, "description", description)
}

func (l *Log) Error(title, description string) {
	l.logger.Warn("notification", "title", title, "description", description, "variant", "destructive")
}

// Notification is a single recorded toast.
type Notification struct {
	Title       string
	Description string
	Destructive bool
}

// Feed records notifications so the web shell can drain them for display,
// and doubles as the recording stub in tests.
type Feed struct {
	mu      sync.Mutex
	next    Notifier
	pending []Notification
}

// NewFeed creates a Feed. next may be nil; when set, every notification is
// forwarded to it as well.
func NewFeed(next Notifier) *Feed {
	return &Feed{next: next}
}

func (f *Feed) Success(title, description string) {
	f.append(Notification{Title: title, Description: description})
	if f.next != nil {
		f.next.Success(title, description)
	}
}

func (f *Feed) Error(title, description string) {
	f.append(Notification{Title: title, Description: description, Destructive: true})
	if f.next != nil {
		f.next.Error(title, description)
	}
}

// Drain returns all pending notifications and clears the feed.
func (f *Feed) Drain() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pending
	f.pending = nil
	return out
}

// Pending returns a copy of the queued notifications without clearing them.
func (f *Feed) Pending() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Notification, len(f.pending))
	copy(out, f.pending)
	return out
}

func (f *Feed) append(n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, n)
}
