package notify

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tinytelemetry/valuewatch/internal/model"
)

type fakeRecorder struct {
	changes []model.ValueChange
	err     error
}

func (f *fakeRecorder) RecordChange(_ context.Context, ch model.ValueChange) error {
	f.changes = append(f.changes, ch)
	return f.err
}

func TestDesktopSendsChange(t *testing.T) {
	var gotTitle, gotBody string
	d := NewDesktop()
	d.send = func(title, body string) error {
		gotTitle, gotBody = title, body
		return nil
	}

	d.Notify("GPU", "499", "479")

	if gotTitle != "valuewatch: GPU" {
		t.Errorf("title = %q", gotTitle)
	}
	if !strings.Contains(gotBody, "from 499 to 479") {
		t.Errorf("body %q lacks the change details", gotBody)
	}
}

func TestDesktopIgnoresFailures(t *testing.T) {
	calls := 0
	d := NewDesktop()
	d.send = func(string, string) error {
		calls++
		return errors.New("no notification service")
	}
	d.NotifyChange(model.ValueChange{Name: "GPU", OldValue: "1", NewValue: "2"})
	if calls != 1 {
		t.Errorf("send calls = %d, want 1", calls)
	}
}

func TestLogWritesChange(t *testing.T) {
	var buf bytes.Buffer
	Log{Logger: log.New(&buf, "", 0)}.Notify("SSD", "90", "85")
	if got := buf.String(); !strings.Contains(got, `SSD changed "90" -> "85"`) {
		t.Errorf("log output = %q", got)
	}
}

func TestHistoryRecordsChange(t *testing.T) {
	rec := &fakeRecorder{}
	at := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	NewHistory(rec).NotifyChange(model.ValueChange{ItemID: "a", Name: "GPU", OldValue: "1", NewValue: "2", At: at})

	want := []model.ValueChange{{ItemID: "a", Name: "GPU", OldValue: "1", NewValue: "2", At: at}}
	if diff := cmp.Diff(want, rec.changes); diff != "" {
		t.Errorf("recorded mismatch (-want +got):\n%s", diff)
	}
}

func TestHistoryStampsTimeAndSwallowsErrors(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("disk full")}
	NewHistory(rec).Notify("GPU", "1", "2")
	if len(rec.changes) != 1 || rec.changes[0].At.IsZero() {
		t.Errorf("recorded = %+v, want one stamped change", rec.changes)
	}
}

func TestMultiFansOutInOrder(t *testing.T) {
	var buf bytes.Buffer
	first := Log{Logger: log.New(&buf, "first ", 0)}
	second := Log{Logger: log.New(&buf, "second ", 0)}
	rec := &fakeRecorder{}

	Multi{first, second, NewHistory(rec)}.NotifyChange(model.ValueChange{ItemID: "a", Name: "GPU", OldValue: "1", NewValue: "2"})

	out := buf.String()
	if strings.Index(out, "first") > strings.Index(out, "second") || !strings.Contains(out, "second") {
		t.Errorf("unexpected order: %q", out)
	}
	if len(rec.changes) != 1 || rec.changes[0].ItemID != "a" {
		t.Errorf("history got %+v", rec.changes)
	}
}
