package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tinytelemetry/valuewatch/internal/model"
)

// LoadItems returns the saved table in display order.
func (s *Store) LoadItems(ctx context.Context) ([]model.TrackedItem, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, url, selector, previous_value, latest_value, last_updated
		FROM tracked_items
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("duckdb: load items: %w", err)
	}
	defer rows.Close()

	var items []model.TrackedItem
	for rows.Next() {
		var (
			it      model.TrackedItem
			id      string
			updated sql.NullTime
		)
		if err := rows.Scan(&id, &it.Name, &it.URL, &it.Selector, &it.PreviousValue, &it.LatestValue, &updated); err != nil {
			return nil, fmt.Errorf("duckdb: scan item: %w", err)
		}
		it.ID = model.ItemID(id)
		if updated.Valid {
			it.LastUpdated = updated.Time
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// SaveItems replaces the saved table with items in a single transaction.
func (s *Store) SaveItems(ctx context.Context, items []model.TrackedItem) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("duckdb: begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tracked_items"); err != nil {
		return fmt.Errorf("duckdb: clear items: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tracked_items (id, position, name, url, selector, previous_value, latest_value, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("duckdb: prepare item insert: %w", err)
	}
	defer stmt.Close()

	for i, it := range items {
		if _, err := stmt.ExecContext(ctx, string(it.ID), i, it.Name, it.URL, it.Selector,
			it.PreviousValue, it.LatestValue, nullTime(it.LastUpdated)); err != nil {
			return fmt.Errorf("duckdb: insert item %s: %w", it.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("duckdb: commit save: %w", err)
	}
	return nil
}
