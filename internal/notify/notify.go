// Package notify delivers value-change notices. Every notifier is best
// effort: failures are logged and never reach the refresh cycle.
package notify

import (
	"context"
	"log"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/tinytelemetry/valuewatch/internal/model"
)

const appName = "valuewatch"

// Notifier is the change sink used by the scheduler.
type Notifier interface {
	Notify(name, oldValue, newValue string)
	NotifyChange(ch model.ValueChange)
}

// Desktop shows a desktop notification through the platform's native
// service (D-Bus on Linux, Notification Center on macOS, toasts on
// Windows).
type Desktop struct {
	// send delivers one notification; tests replace it.
	send func(title, body string) error
}

// NewDesktop returns a desktop notifier.
func NewDesktop() *Desktop {
	return &Desktop{send: func(title, body string) error {
		return beeep.Notify(title, body, "")
	}}
}

// Notify sends one notification.
func (d *Desktop) Notify(name, oldValue, newValue string) {
	title := appName + ": " + name
	body := "Value changed from " + oldValue + " to " + newValue
	if err := d.send(title, body); err != nil {
		log.Printf("notify: desktop notification for %s failed: %v", name, err)
	}
}

// NotifyChange sends the notification for ch.
func (d *Desktop) NotifyChange(ch model.ValueChange) {
	d.Notify(ch.Name, ch.OldValue, ch.NewValue)
}

// Log writes each change to a logger.
type Log struct {
	Logger *log.Logger
}

// Notify logs one change.
func (l Log) Notify(name, oldValue, newValue string) {
	logger := l.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("notify: %s changed %q -> %q", name, oldValue, newValue)
}

// NotifyChange logs ch.
func (l Log) NotifyChange(ch model.ValueChange) {
	l.Notify(ch.Name, ch.OldValue, ch.NewValue)
}

// ChangeRecorder persists changes. *duckdb.Store satisfies it.
type ChangeRecorder interface {
	RecordChange(ctx context.Context, ch model.ValueChange) error
}

// History appends every change to the value history.
type History struct {
	Recorder ChangeRecorder
	Timeout  time.Duration
}

// NewHistory returns a History notifier backed by rec.
func NewHistory(rec ChangeRecorder) *History {
	return &History{Recorder: rec, Timeout: 10 * time.Second}
}

// Notify records a change with no item ID.
func (h *History) Notify(name, oldValue, newValue string) {
	h.NotifyChange(model.ValueChange{Name: name, OldValue: oldValue, NewValue: newValue})
}

// NotifyChange records ch, stamping the current time when ch has none.
func (h *History) NotifyChange(ch model.ValueChange) {
	if ch.At.IsZero() {
		ch.At = time.Now()
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.Timeout)
	defer cancel()
	if err := h.Recorder.RecordChange(ctx, ch); err != nil {
		log.Printf("notify: record change for %s: %v", ch.Name, err)
	}
}

// Multi fans out to several notifiers in order.
type Multi []Notifier

// Notify forwards to every notifier.
func (m Multi) Notify(name, oldValue, newValue string) {
	for _, n := range m {
		n.Notify(name, oldValue, newValue)
	}
}

// NotifyChange forwards ch to every notifier.
func (m Multi) NotifyChange(ch model.ValueChange) {
	for _, n := range m {
		n.NotifyChange(ch)
	}
}
