package tracker

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tinytelemetry/valuewatch/internal/model"
	"github.com/tinytelemetry/valuewatch/internal/scheduler"
)

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

// gatedFetcher holds every fetch until the test releases its URL.
type gatedFetcher struct {
	mu    sync.Mutex
	gates map[string]chan string
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{gates: make(map[string]chan string)}
}

func (g *gatedFetcher) gate(url string) chan string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[url]
	if !ok {
		ch = make(chan string, 1)
		g.gates[url] = ch
	}
	return ch
}

func (g *gatedFetcher) Fetch(ctx context.Context, url, _ string) (string, error) {
	select {
	case v := <-g.gate(url):
		if v == "" {
			return "", errors.New("selector not found")
		}
		return v, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (g *gatedFetcher) release(url, value string) { g.gate(url) <- value }

func newTestTracker(t *testing.T, f *gatedFetcher, opts ...Option) *Tracker {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(log.New(io.Discard, "", 0)),
		WithContext(ctx),
	}
	return New(f, append(base, opts...)...)
}

// tickUntil ticks until cond holds or the deadline passes.
func tickUntil(t *testing.T, tr *Tracker, cond func(TickReport) bool) TickReport {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rep := tr.Tick()
		if cond(rep) {
			return rep
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
	return TickReport{}
}

func twoRows() []model.TrackedItem {
	return []model.TrackedItem{
		{ID: "1", Name: "one", URL: "u1", Selector: "#p", PreviousValue: "-", LatestValue: "10"},
		{ID: "2", Name: "two", URL: "u2", Selector: "#p", PreviousValue: "18", LatestValue: "20"},
	}
}

func TestApplyResultShiftsPreviousOnChange(t *testing.T) {
	tr := newTestTracker(t, newGatedFetcher())
	tr.Load(twoRows())

	for _, v := range []string{"11", "12", "13"} {
		before, _ := tr.Item("1")
		if !tr.ApplyResult("1", v) {
			t.Fatalf("ApplyResult(1, %s) = false", v)
		}
		after, _ := tr.Item("1")
		if after.LatestValue != v {
			t.Errorf("LatestValue = %q, want %q", after.LatestValue, v)
		}
		if after.PreviousValue != before.LatestValue {
			t.Errorf("PreviousValue = %q, want %q", after.PreviousValue, before.LatestValue)
		}
		if !after.LastUpdated.Equal(fixedNow) {
			t.Errorf("LastUpdated = %v, want %v", after.LastUpdated, fixedNow)
		}
	}
}

func TestApplyResultUnknownIDLeavesTableUnchanged(t *testing.T) {
	tr := newTestTracker(t, newGatedFetcher())
	tr.Load(twoRows())
	before := tr.Items()

	if tr.ApplyResult("gone", "99") {
		t.Fatal("ApplyResult for unknown id returned true")
	}
	if diff := cmp.Diff(before, tr.Items()); diff != "" {
		t.Errorf("table changed (-before +after):\n%s", diff)
	}
}

func TestApplyResultUnchangedValueKeepsPrevious(t *testing.T) {
	tr := newTestTracker(t, newGatedFetcher())
	tr.Load(twoRows())

	if !tr.ApplyResult("2", "20") {
		t.Fatal("ApplyResult dropped a known id")
	}
	got, _ := tr.Item("2")
	if got.LatestValue != "20" || got.PreviousValue != "18" {
		t.Errorf("latest=%q previous=%q, want 20/18", got.LatestValue, got.PreviousValue)
	}
	if !got.LastUpdated.Equal(fixedNow) {
		t.Errorf("LastUpdated = %v, want %v", got.LastUpdated, fixedNow)
	}
}

func TestApplyResultIdempotent(t *testing.T) {
	tr := newTestTracker(t, newGatedFetcher())
	tr.Load(twoRows())

	tr.ApplyResult("1", "15")
	tr.ApplyResult("1", "15")

	got, _ := tr.Item("1")
	if got.LatestValue != "15" || got.PreviousValue != "10" {
		t.Errorf("after replay: latest=%q previous=%q, want 15/10", got.LatestValue, got.PreviousValue)
	}
}

func TestStartRefreshAllTwiceReturnsAlreadyInProgress(t *testing.T) {
	f := newGatedFetcher()
	tr := newTestTracker(t, f)
	tr.Load(twoRows())

	if err := tr.StartRefreshAll(); err != nil {
		t.Fatalf("first StartRefreshAll: %v", err)
	}
	first := tr.refresh

	err := tr.StartRefreshAll()
	if !errors.Is(err, ErrAlreadyInProgress) || !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("second StartRefreshAll err = %v, want ErrAlreadyInProgress", err)
	}
	if tr.refresh != first {
		t.Fatal("second call replaced the outstanding pool")
	}
	if _, total := tr.RefreshProgress(); total != 2 {
		t.Fatalf("pool has %d tasks, want 2", total)
	}

	f.release("u1", "10")
	f.release("u2", "20")
	tickUntil(t, tr, func(r TickReport) bool { return r.RefreshDone })
	if tr.RefreshInProgress() {
		t.Fatal("refresh still in progress after completion")
	}
	if err := tr.StartRefreshAll(); err != nil {
		t.Fatalf("StartRefreshAll after completion: %v", err)
	}
	f.release("u1", "10")
	f.release("u2", "20")
}

func TestRefreshAllAppliesOneResultPerTickInSubmissionOrder(t *testing.T) {
	f := newGatedFetcher()
	tr := newTestTracker(t, f)
	tr.Load(twoRows())

	if err := tr.StartRefreshAll(); err != nil {
		t.Fatalf("StartRefreshAll: %v", err)
	}

	f.release("u2", "25")
	time.Sleep(20 * time.Millisecond)
	if rep := tr.Tick(); rep.Applied != 0 {
		t.Fatalf("applied %d results while head task outstanding", rep.Applied)
	}

	f.release("u1", "11")
	tickUntil(t, tr, func(r TickReport) bool { return r.Applied == 1 })
	one, _ := tr.Item("1")
	two, _ := tr.Item("2")
	if one.LatestValue != "11" || two.LatestValue != "20" {
		t.Fatalf("after first apply: row1=%q row2=%q, want 11/20", one.LatestValue, two.LatestValue)
	}

	rep := tickUntil(t, tr, func(r TickReport) bool { return r.Applied == 1 })
	if !rep.RefreshDone {
		t.Error("RefreshDone not reported with last result")
	}
	two, _ = tr.Item("2")
	if two.LatestValue != "25" || two.PreviousValue != "20" {
		t.Errorf("row2 latest=%q previous=%q, want 25/20", two.LatestValue, two.PreviousValue)
	}
}

func TestDeleteDuringRefreshDropsResultAndCompletes(t *testing.T) {
	f := newGatedFetcher()
	tr := newTestTracker(t, f)
	tr.Load(twoRows())

	if err := tr.StartRefreshAll(); err != nil {
		t.Fatalf("StartRefreshAll: %v", err)
	}
	if n := tr.Delete([]model.ItemID{"1"}); n != 1 {
		t.Fatalf("Delete removed %d rows, want 1", n)
	}

	f.release("u1", "99")
	f.release("u2", "21")

	var applied, dropped int
	tickUntil(t, tr, func(r TickReport) bool {
		applied += r.Applied
		dropped += r.Dropped
		return r.RefreshDone
	})

	if applied != 1 || dropped != 1 {
		t.Errorf("applied=%d dropped=%d, want 1/1", applied, dropped)
	}
	if _, ok := tr.Item("1"); ok {
		t.Error("deleted row reappeared")
	}
	two, _ := tr.Item("2")
	if two.LatestValue != "21" {
		t.Errorf("row2 latest = %q, want 21", two.LatestValue)
	}
	if tr.RefreshInProgress() {
		t.Error("refresh pool not cleared")
	}
}

func TestFailedRefreshLeavesRowUntouched(t *testing.T) {
	f := newGatedFetcher()
	tr := newTestTracker(t, f)
	tr.Load(twoRows())
	before, _ := tr.Item("1")

	_ = tr.StartRefreshAll()
	f.release("u1", "")
	f.release("u2", "20")
	tickUntil(t, tr, func(r TickReport) bool { return r.RefreshDone })

	after, _ := tr.Item("1")
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("failed fetch modified row (-before +after):\n%s", diff)
	}
}

func TestSchedulerBatchApplied(t *testing.T) {
	batches := make(chan scheduler.Batch, 1)
	tr := newTestTracker(t, newGatedFetcher(), WithBatches(batches))
	tr.Load(twoRows())

	batches <- scheduler.Batch{Cycle: 1, Results: []scheduler.Result{{ID: "1", Value: "15"}, {ID: "2", Value: "20"}}}

	rep := tr.Tick()
	if !rep.CycleApplied || rep.Applied != 2 {
		t.Fatalf("Tick = %+v, want cycle applied with 2 results", rep)
	}
	one, _ := tr.Item("1")
	two, _ := tr.Item("2")
	if one.LatestValue != "15" || one.PreviousValue != "10" {
		t.Errorf("row1 latest=%q previous=%q, want 15/10", one.LatestValue, one.PreviousValue)
	}
	if two.PreviousValue != "18" {
		t.Errorf("row2 previous = %q, want untouched 18", two.PreviousValue)
	}
	if rep := tr.Tick(); rep.CycleApplied {
		t.Error("second tick applied a batch from an empty channel")
	}
}

func TestRequestFetchGuardAndDraftFlow(t *testing.T) {
	f := newGatedFetcher()
	tr := newTestTracker(t, f)

	if err := tr.RequestFetch("", "#p"); !errors.Is(err, ErrInvalidDraft) {
		t.Fatalf("blank url err = %v, want ErrInvalidDraft", err)
	}

	tr.SetDraft("Widget", "https://shop.test/w", ".price")
	if _, err := tr.AddFromDraft(); !errors.Is(err, ErrNoDraftValue) {
		t.Fatalf("AddFromDraft before fetch err = %v, want ErrNoDraftValue", err)
	}
	if err := tr.RequestFetch("https://shop.test/w", ".price"); err != nil {
		t.Fatalf("RequestFetch: %v", err)
	}
	if err := tr.RequestFetch("https://shop.test/w", ".price"); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("second RequestFetch err = %v, want ErrDuplicateRequest", err)
	}

	f.release("https://shop.test/w", "1299")
	tickUntil(t, tr, func(r TickReport) bool { return r.DraftUpdated })
	if tr.FetchInProgress() {
		t.Fatal("preview pool not cleared")
	}
	if got := tr.Draft().Value; got != "1299" {
		t.Fatalf("draft value = %q, want 1299", got)
	}

	item, err := tr.AddFromDraft()
	if err != nil {
		t.Fatalf("AddFromDraft: %v", err)
	}
	want := model.TrackedItem{
		ID:            item.ID,
		Name:          "Widget",
		URL:           "https://shop.test/w",
		Selector:      ".price",
		PreviousValue: model.NoPreviousValue,
		LatestValue:   "1299",
		LastUpdated:   fixedNow,
	}
	if diff := cmp.Diff(want, item); diff != "" {
		t.Errorf("added item mismatch (-want +got):\n%s", diff)
	}
	if item.ID == "" || tr.Len() != 1 {
		t.Errorf("id=%q len=%d", item.ID, tr.Len())
	}
	if tr.Draft() != (Draft{}) {
		t.Errorf("draft not cleared: %+v", tr.Draft())
	}
}

func TestPreviewDiscardedWhenLinkEditedWhileFetching(t *testing.T) {
	f := newGatedFetcher()
	tr := newTestTracker(t, f)

	if err := tr.RequestFetch("https://a.example", "#p"); err != nil {
		t.Fatalf("RequestFetch: %v", err)
	}
	tr.SetDraft("item", "https://b.example", "#p")

	f.release("https://a.example", "999")
	rep := tickUntil(t, tr, func(r TickReport) bool { return r.DraftDiscarded })
	if rep.DraftUpdated {
		t.Error("stale preview reported as a draft update")
	}
	if tr.FetchInProgress() {
		t.Error("preview pool not cleared")
	}
	if d := tr.Draft(); d.Value != "" || d.URL != "https://b.example" {
		t.Fatalf("draft = %+v, want b without a value", d)
	}
	if _, err := tr.AddFromDraft(); !errors.Is(err, ErrNoDraftValue) {
		t.Errorf("AddFromDraft err = %v, want ErrNoDraftValue", err)
	}
	if tr.Len() != 0 {
		t.Errorf("row added from another link's value")
	}
}

func TestPreviewDiscardedAfterReset(t *testing.T) {
	f := newGatedFetcher()
	tr := newTestTracker(t, f)

	if err := tr.RequestFetch("https://a.example", "#p"); err != nil {
		t.Fatalf("RequestFetch: %v", err)
	}
	tr.ResetDraft()

	f.release("https://a.example", "999")
	tickUntil(t, tr, func(r TickReport) bool { return r.DraftDiscarded })
	if tr.Draft() != (Draft{}) {
		t.Errorf("draft = %+v, want empty", tr.Draft())
	}
}

func TestPreviewFetchErrorRecordedOnDraft(t *testing.T) {
	f := newGatedFetcher()
	tr := newTestTracker(t, f)

	if err := tr.RequestFetch("u", "#missing"); err != nil {
		t.Fatalf("RequestFetch: %v", err)
	}
	f.release("u", "")
	tickUntil(t, tr, func(r TickReport) bool { return r.DraftUpdated })

	d := tr.Draft()
	if d.Err == nil || d.Value != "" {
		t.Fatalf("draft = %+v, want error and no value", d)
	}
}

func TestPublisherReceivesSnapshots(t *testing.T) {
	var got [][]model.TrackedItem
	tr := newTestTracker(t, newGatedFetcher(), WithPublisher(func(items []model.TrackedItem) {
		got = append(got, items)
	}))
	tr.Load(twoRows())
	tr.Delete([]model.ItemID{"2"})

	if len(got) != 2 {
		t.Fatalf("publish called %d times, want 2", len(got))
	}
	if len(got[1]) != 1 || got[1][0].ID != "1" {
		t.Fatalf("last snapshot = %+v", got[1])
	}

	got[1][0].LatestValue = "mutated"
	if one, _ := tr.Item("1"); one.LatestValue != "10" {
		t.Error("published snapshot aliases the live table")
	}
}

func TestLoadAssignsMissingIDsAndSkipsDuplicates(t *testing.T) {
	tr := newTestTracker(t, newGatedFetcher())
	tr.Load([]model.TrackedItem{
		{Name: "no id", URL: "u"},
		{ID: "x", Name: "first"},
		{ID: "x", Name: "dup"},
	})
	items := tr.Items()
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	if items[0].ID == "" {
		t.Error("missing id not assigned")
	}
	if items[1].Name != "first" {
		t.Errorf("kept %q, want first", items[1].Name)
	}
}

func TestStartRefreshAllEmptyTable(t *testing.T) {
	tr := newTestTracker(t, newGatedFetcher())
	if err := tr.StartRefreshAll(); err != nil {
		t.Fatalf("StartRefreshAll: %v", err)
	}
	if tr.RefreshInProgress() {
		t.Error("empty table started a refresh")
	}
}
