// Package fetch runs value extractions off the caller's goroutine and hands
// their outcomes back through non-blocking polls.
//
// A Task wraps one call to a Fetcher. A Pool holds the tasks of one batch
// (a single preview fetch or a refresh of the whole table) and surfaces
// their outcomes in submission order. Both are polled, never waited on, so
// they can be drained from a UI loop once per frame.
//
// Known limitation: Pool drains strictly front to back. A fast task queued
// behind a slow one is not surfaced until the slow one resolves.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"
	"github.com/tinytelemetry/valuewatch/internal/model"
)

// ErrNoValue is returned when the selector matched nothing, or matched an
// element with no text.
var ErrNoValue = errors.New("fetch: no value at selector")

// Fetcher extracts one value from a page. Implementations may take seconds
// and must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, url, selector string) (string, error)
}

// FetcherFunc adapts a plain function to Fetcher.
type FetcherFunc func(ctx context.Context, url, selector string) (string, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, url, selector string) (string, error) {
	return f(ctx, url, selector)
}

// Error is a failed extraction. It carries the page and selector so a log
// line is useful on its own.
type Error struct {
	URL      string
	Selector string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s [%s]: %v", e.URL, e.Selector, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Outcome is the result of one task. Err is nil on success.
type Outcome struct {
	ID    model.ItemID
	Value string
	Err   error
}

// OK reports whether the fetch produced a value.
func (o Outcome) OK() bool { return o.Err == nil }

// Task is one in-flight fetch.
type Task struct {
	id       model.ItemID
	url      string
	selector string
	done     chan struct{}
	outcome  Outcome
}

// Start launches f.Fetch on a new goroutine and returns immediately.
func Start(ctx context.Context, f Fetcher, id model.ItemID, url, selector string) *Task {
	t := &Task{
		id:       id,
		url:      url,
		selector: selector,
		done:     make(chan struct{}),
	}
	go t.run(ctx, f)
	return t
}

// ID returns the item the task was started for.
func (t *Task) ID() model.ItemID { return t.id }

// Done is closed once the outcome is available.
func (t *Task) Done() <-chan struct{} { return t.done }

// TryResult returns the outcome if the task has resolved. It never blocks.
func (t *Task) TryResult() (Outcome, bool) {
	select {
	case <-t.done:
		return t.outcome, true
	default:
		return Outcome{}, false
	}
}

func (t *Task) run(ctx context.Context, f Fetcher) {
	defer close(t.done)

	value, err := Run(ctx, f, t.url, t.selector)
	t.outcome = Outcome{ID: t.id, Value: value, Err: err}
	if err != nil {
		log.Printf("fetch: item %s: %v", t.id, err)
	}
}

// Run performs one synchronous fetch. A panic inside the fetcher is
// recovered and reported as an error carrying a correlation ID that also
// appears in the log next to the stack trace. Empty values are ErrNoValue.
func Run(ctx context.Context, f Fetcher, url, selector string) (value string, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			log.Printf("fetch: panic in fetcher correlation_id=%s: %v\n%s", correlationID, r, debug.Stack())
			value = ""
			err = &Error{URL: url, Selector: selector, Err: fmt.Errorf("fetcher panic (correlation_id: %s)", correlationID)}
		}
	}()

	if f == nil {
		return "", &Error{URL: url, Selector: selector, Err: errors.New("no fetcher configured")}
	}

	value, err = f.Fetch(ctx, url, selector)
	if err != nil {
		var fe *Error
		if errors.As(err, &fe) {
			return "", err
		}
		return "", &Error{URL: url, Selector: selector, Err: err}
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", &Error{URL: url, Selector: selector, Err: ErrNoValue}
	}
	return value, nil
}
