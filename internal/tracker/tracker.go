// Package tracker owns the table of tracked items and the fetch batches
// that update it.
//
// A Tracker is driven from a single goroutine, the UI loop, which calls
// Tick once per frame. Tick never blocks: it polls the outstanding fetch
// pools and the scheduler's batch channel and applies whatever is ready.
// Because only that goroutine touches the table, no locks are needed; the
// scheduler works on published snapshots.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tinytelemetry/valuewatch/internal/fetch"
	"github.com/tinytelemetry/valuewatch/internal/model"
	"github.com/tinytelemetry/valuewatch/internal/scheduler"
)

var (
	// ErrDuplicateRequest is returned when a fetch of the same kind is
	// already outstanding. Callers treat it as a rejected no-op.
	ErrDuplicateRequest = errors.New("tracker: request already in progress")

	// ErrAlreadyInProgress is returned by StartRefreshAll while a refresh
	// pool is outstanding. It wraps ErrDuplicateRequest.
	ErrAlreadyInProgress = fmt.Errorf("refresh all: %w", ErrDuplicateRequest)

	// ErrNoDraftValue is returned by AddFromDraft before a preview value has
	// been fetched.
	ErrNoDraftValue = errors.New("tracker: draft has no fetched value")

	// ErrInvalidDraft is returned when a draft is missing its URL or selector.
	ErrInvalidDraft = errors.New("tracker: url and selector are required")
)

// Draft is the pending "add row" form.
type Draft struct {
	Name     string
	URL      string
	Selector string
	Value    string
	Err      error // last preview fetch error, nil once a value arrives
}

// TickReport summarises what one Tick did.
type TickReport struct {
	DraftUpdated   bool
	DraftDiscarded bool // preview landed after the draft's link or selector changed
	Applied      int  // results written to rows
	Dropped      int  // results for rows that no longer exist, or failed fetches
	RefreshDone  bool // the refresh-all pool completed on this tick
	CycleApplied bool // a scheduler batch was applied on this tick
}

// Changed reports whether the table was modified.
func (r TickReport) Changed() bool {
	return r.Applied > 0 || r.CycleApplied
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides time.Now for LastUpdated stamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithBatches connects the receiving end of a scheduler's batch channel.
func WithBatches(ch <-chan scheduler.Batch) Option {
	return func(t *Tracker) { t.batches = ch }
}

// WithPublisher registers a callback that receives a snapshot of the table
// after every mutation, typically Scheduler.Publish.
func WithPublisher(fn func([]model.TrackedItem)) Option {
	return func(t *Tracker) { t.publish = fn }
}

// WithContext sets the context that fetch tasks run under.
func WithContext(ctx context.Context) Option {
	return func(t *Tracker) {
		if ctx != nil {
			t.ctx = ctx
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// Tracker is the authoritative table plus its outstanding fetches.
type Tracker struct {
	ctx     context.Context
	fetcher fetch.Fetcher
	now     func() time.Time
	logger  *log.Logger
	publish func([]model.TrackedItem)
	batches <-chan scheduler.Batch

	items []model.TrackedItem
	index map[model.ItemID]int

	draft   Draft
	single  *fetch.Pool // preview fetch for the draft
	target  [2]string   // url and selector the preview was requested for
	refresh *fetch.Pool // refresh-all batch
}

// New creates a tracker with an empty table.
func New(f fetch.Fetcher, opts ...Option) *Tracker {
	t := &Tracker{
		ctx:     context.Background(),
		fetcher: f,
		now:     time.Now,
		logger:  log.Default(),
		index:   make(map[model.ItemID]int),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load replaces the table, typically with rows restored from storage.
// Rows without an ID are given one.
func (t *Tracker) Load(items []model.TrackedItem) {
	t.items = make([]model.TrackedItem, 0, len(items))
	clear(t.index)
	for _, it := range items {
		if it.ID == "" {
			it.ID = model.NewItemID()
		}
		if _, dup := t.index[it.ID]; dup {
			continue
		}
		t.items = append(t.items, it)
		t.index[it.ID] = len(t.items) - 1
	}
	t.reindex()
	t.changed()
}

// Items returns a copy of the table in display order.
func (t *Tracker) Items() []model.TrackedItem {
	return model.Snapshot(t.items)
}

// Item returns the row with the given id.
func (t *Tracker) Item(id model.ItemID) (model.TrackedItem, bool) {
	i, ok := t.index[id]
	if !ok {
		return model.TrackedItem{}, false
	}
	return t.items[i], true
}

// Len returns the number of rows.
func (t *Tracker) Len() int { return len(t.items) }

// FetchInProgress reports whether a draft preview fetch is outstanding.
func (t *Tracker) FetchInProgress() bool { return t.single != nil }

// RefreshInProgress reports whether a refresh-all batch is outstanding.
func (t *Tracker) RefreshInProgress() bool { return t.refresh != nil }

// RefreshProgress returns resolved and submitted counts of the current
// refresh-all batch, or zeros when none is running.
func (t *Tracker) RefreshProgress() (resolved, total int) {
	if t.refresh == nil {
		return 0, 0
	}
	return t.refresh.Resolved(), t.refresh.Submitted()
}

// RequestFetch starts a preview fetch for the draft. The URL and selector
// are recorded on the draft. A second call while one is outstanding is
// rejected with ErrDuplicateRequest.
func (t *Tracker) RequestFetch(url, selector string) error {
	if t.single != nil {
		return ErrDuplicateRequest
	}
	url, selector = strings.TrimSpace(url), strings.TrimSpace(selector)
	if url == "" || selector == "" {
		return ErrInvalidDraft
	}
	t.draft.URL = url
	t.draft.Selector = selector
	t.draft.Value = ""
	t.draft.Err = nil

	pool := fetch.NewPool(t.ctx, t.fetcher)
	if _, err := pool.Submit("", url, selector); err != nil {
		return err
	}
	t.single = pool
	t.target = [2]string{url, selector}
	return nil
}

// Tick drains whatever work has completed since the last call. It must be
// called from the goroutine that owns the tracker and never blocks.
func (t *Tracker) Tick() TickReport {
	var rep TickReport

	if t.single != nil {
		if out, ok := t.single.PollNextReady(); ok {
			t.single = nil
			switch {
			case t.draft.URL != t.target[0] || t.draft.Selector != t.target[1]:
				t.logger.Printf("tracker: preview for %s discarded, draft changed", t.target[0])
				rep.DraftDiscarded = true
			case out.OK():
				t.draft.Value = out.Value
				t.draft.Err = nil
				rep.DraftUpdated = true
			default:
				t.draft.Value = ""
				t.draft.Err = out.Err
				rep.DraftUpdated = true
			}
		}
	}

	if t.refresh != nil {
		if out, ok := t.refresh.PollNextReady(); ok {
			if out.OK() && t.ApplyResult(out.ID, out.Value) {
				rep.Applied++
			} else {
				rep.Dropped++
			}
		}
		if t.refresh.Done() {
			t.logger.Printf("tracker: refresh complete, %d results", t.refresh.Resolved())
			t.refresh = nil
			rep.RefreshDone = true
		}
	}

	if t.batches != nil {
		select {
		case b := <-t.batches:
			applied := t.applyBatch(b)
			rep.CycleApplied = true
			rep.Applied += applied
			rep.Dropped += len(b.Results) - applied
		default:
		}
	}

	return rep
}

func (t *Tracker) applyBatch(b scheduler.Batch) int {
	applied := 0
	for _, r := range b.Results {
		if t.applyResult(r.ID, r.Value) {
			applied++
		}
	}
	t.changed()
	return applied
}

// ApplyResult records a fetched value on the row with the given id. When
// the value differs from the latest one, the latest moves to previous.
// LastUpdated is stamped either way. Applying the value a row already holds
// keeps its previous value, so replaying a result is harmless. A result
// for an id that is no longer in the table is dropped and false is
// returned.
func (t *Tracker) ApplyResult(id model.ItemID, value string) bool {
	ok := t.applyResult(id, value)
	if ok {
		t.changed()
	}
	return ok
}

func (t *Tracker) applyResult(id model.ItemID, value string) bool {
	i, ok := t.index[id]
	if !ok {
		return false
	}
	row := &t.items[i]
	if row.LatestValue != value {
		row.PreviousValue = row.LatestValue
		row.LatestValue = value
	}
	row.LastUpdated = t.now()
	return true
}

// StartRefreshAll launches one fetch per row. It returns
// ErrAlreadyInProgress while a previous refresh is outstanding.
func (t *Tracker) StartRefreshAll() error {
	if t.refresh != nil {
		return ErrAlreadyInProgress
	}
	if len(t.items) == 0 {
		return nil
	}
	pool := fetch.NewPool(t.ctx, t.fetcher)
	for _, it := range t.items {
		if _, err := pool.Submit(it.ID, it.URL, it.Selector); err != nil {
			t.logger.Printf("tracker: refresh %s: %v", it.ID, err)
		}
	}
	t.refresh = pool
	t.logger.Printf("tracker: refresh started for %d items", pool.Submitted())
	return nil
}

// Delete removes the rows with the given ids and returns how many were
// removed. Outstanding fetches for them are left to finish and dropped.
func (t *Tracker) Delete(ids []model.ItemID) int {
	if len(ids) == 0 {
		return 0
	}
	drop := make(map[model.ItemID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := t.items[:0]
	removed := 0
	for _, it := range t.items {
		if _, ok := drop[it.ID]; ok {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	for i := len(kept); i < len(t.items); i++ {
		t.items[i] = model.TrackedItem{}
	}
	t.items = kept
	if removed > 0 {
		t.reindex()
		t.changed()
	}
	return removed
}

// Draft returns the pending add form.
func (t *Tracker) Draft() Draft { return t.draft }

// SetDraft updates the editable draft fields. A change to the URL or
// selector invalidates a previously fetched value and any preview still
// in flight for the old pair.
func (t *Tracker) SetDraft(name, url, selector string) {
	if url != t.draft.URL || selector != t.draft.Selector {
		t.draft.Value = ""
		t.draft.Err = nil
	}
	t.draft.Name = name
	t.draft.URL = url
	t.draft.Selector = selector
}

// ResetDraft clears the add form. An outstanding preview fetch is left to
// finish and its outcome is discarded.
func (t *Tracker) ResetDraft() {
	t.draft = Draft{}
}

// AddFromDraft appends a row built from the draft and clears the draft.
// The draft must carry a fetched value.
func (t *Tracker) AddFromDraft() (model.TrackedItem, error) {
	d := t.draft
	if strings.TrimSpace(d.URL) == "" || strings.TrimSpace(d.Selector) == "" {
		return model.TrackedItem{}, ErrInvalidDraft
	}
	if d.Value == "" {
		return model.TrackedItem{}, ErrNoDraftValue
	}
	name := strings.TrimSpace(d.Name)
	if name == "" {
		name = d.URL
	}
	item := model.TrackedItem{
		ID:            model.NewItemID(),
		Name:          name,
		URL:           strings.TrimSpace(d.URL),
		Selector:      strings.TrimSpace(d.Selector),
		PreviousValue: model.NoPreviousValue,
		LatestValue:   d.Value,
		LastUpdated:   t.now(),
	}
	t.items = append(t.items, item)
	t.index[item.ID] = len(t.items) - 1
	t.draft = Draft{}
	t.changed()
	return item, nil
}

func (t *Tracker) reindex() {
	clear(t.index)
	for i, it := range t.items {
		t.index[it.ID] = i
	}
}

func (t *Tracker) changed() {
	if t.publish != nil {
		t.publish(model.Snapshot(t.items))
	}
}
