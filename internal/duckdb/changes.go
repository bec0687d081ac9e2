package duckdb

import (
	"context"
	"fmt"
	"time"

	"github.com/tinytelemetry/valuewatch/internal/model"
)

const defaultChangeLimit = 50

// RecordChange appends one observed value change to the history.
func (s *Store) RecordChange(ctx context.Context, ch model.ValueChange) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	at := ch.At
	if at.IsZero() {
		at = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO value_changes (item_id, name, old_value, new_value, changed_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(ch.ItemID), ch.Name, ch.OldValue, ch.NewValue, at.UTC())
	if err != nil {
		return fmt.Errorf("duckdb: record change: %w", err)
	}
	return nil
}

// RecentChanges returns the newest changes across all items, newest first.
func (s *Store) RecentChanges(ctx context.Context, limit int) ([]model.ValueChange, error) {
	return s.queryChanges(ctx, `
		SELECT item_id, name, old_value, new_value, changed_at
		FROM value_changes
		ORDER BY changed_at DESC, id DESC
		LIMIT ?`, clampLimit(limit))
}

// ChangesForItem returns the newest changes of one item, newest first.
func (s *Store) ChangesForItem(ctx context.Context, id model.ItemID, limit int) ([]model.ValueChange, error) {
	return s.queryChanges(ctx, `
		SELECT item_id, name, old_value, new_value, changed_at
		FROM value_changes
		WHERE item_id = ?
		ORDER BY changed_at DESC, id DESC
		LIMIT ?`, string(id), clampLimit(limit))
}

// DeleteChangesBefore removes history entries older than cutoff and returns
// the number of rows deleted.
func (s *Store) DeleteChangesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM value_changes WHERE changed_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("duckdb: delete changes: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) queryChanges(ctx context.Context, query string, args ...any) ([]model.ValueChange, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("duckdb: query changes: %w", err)
	}
	defer rows.Close()

	var out []model.ValueChange
	for rows.Next() {
		var (
			ch model.ValueChange
			id string
		)
		if err := rows.Scan(&id, &ch.Name, &ch.OldValue, &ch.NewValue, &ch.At); err != nil {
			return nil, fmt.Errorf("duckdb: scan change: %w", err)
		}
		ch.ItemID = model.ItemID(id)
		out = append(out, ch)
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultChangeLimit
	}
	return limit
}
