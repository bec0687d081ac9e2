package tui

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tinytelemetry/valuewatch/internal/model"
)

// saver orders snapshot writes. Each snapshot is numbered when it is taken
// on the Update goroutine. A write whose number is not newer than the last
// committed one is skipped, so a slow older save never overwrites a newer
// table.
type saver struct {
	store Store
	next  atomic.Uint64

	mu        sync.Mutex
	committed uint64
}

func newSaver(store Store) *saver {
	return &saver{store: store}
}

// take numbers a snapshot.
func (s *saver) take() uint64 {
	return s.next.Add(1)
}

// save writes items for generation gen. It reports skipped=true when a
// newer generation was already committed.
func (s *saver) save(ctx context.Context, gen uint64, items []model.TrackedItem) (skipped bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen <= s.committed {
		return true, nil
	}
	if err := s.store.SaveItems(ctx, items); err != nil {
		return false, err
	}
	s.committed = gen
	return false, nil
}

// Flush writes the current table through the same ordering as the
// background saves. Call it after the program has exited.
func (m *Model) Flush(ctx context.Context) error {
	if m.saves == nil {
		return nil
	}
	_, err := m.saves.save(ctx, m.saves.take(), m.tracker.Items())
	return err
}
