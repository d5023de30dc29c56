// Package notify is the interface to the toast/notification collaborator.
// Rendering is out of scope; the core only guarantees that every forced
// logout surfaces one human-readable notice and that repeated forced logouts
// do not stack duplicates.
package notify

import (
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/meridian-portal/meridian-portal/internal/session"
)

// Notifier receives user-visible notices.
type Notifier interface {
	Notify(kind, message string)
}

// SlogNotifier logs notices; the default collaborator when no UI is wired.
type SlogNotifier struct {
	Logger *slog.Logger
}

// Notify logs the notice.
func (n SlogNotifier) Notify(kind, message string) {
	if n.Logger != nil {
		n.Logger.Info("notice", slog.String("kind", kind), slog.String("message", message))
	}
}

// Deduper wraps a Notifier and suppresses a notice identical to the previous
// one, so a forced logout reported through multiple paths surfaces once.
type Deduper struct {
	next Notifier

	mu   sync.Mutex
	last string
}

// NewDeduper wraps next with duplicate suppression.
func NewDeduper(next Notifier) *Deduper {
	return &Deduper{next: next}
}

// Notify forwards the notice unless it repeats the previous one.
func (d *Deduper) Notify(kind, message string) {
	key := kind + "\x00" + message
	d.mu.Lock()
	dup := key == d.last
	d.last = key
	d.mu.Unlock()
	if dup {
		return
	}
	d.next.Notify(kind, message)
}

// Reset clears the suppression state; called on login so the next session's
// notices start fresh.
func (d *Deduper) Reset() {
	d.mu.Lock()
	d.last = ""
	d.mu.Unlock()
}

var titleCaser = cases.Title(language.English)

// ReasonMessage renders a logout reason as a human-readable notice.
func ReasonMessage(reason session.Reason) string {
	switch reason {
	case session.ReasonInactivity:
		return "You were signed out due to inactivity."
	case session.ReasonSessionExpired:
		return "Your session expired. Please sign in again."
	case session.ReasonRefreshFailed:
		return "Your session could not be renewed. Please sign in again."
	case session.ReasonUnauthorized:
		return "Your credentials are no longer valid. Please sign in again."
	case session.ReasonUserLogout:
		return "You have been signed out."
	default:
		return titleCaser.String(strings.ReplaceAll(string(reason), "_", " ")) + "."
	}
}
