package model

import (
	"time"

	"github.com/google/uuid"
)

// ItemID identifies a tracked item for the lifetime of its row, including
// across restarts. IDs are never reused.
type ItemID string

// NewItemID returns a fresh random ID.
func NewItemID() ItemID {
	return ItemID(uuid.NewString())
}

// TrackedItem is one row of the tracking table.
// It is the canonical type for storage, the HTTP API, and display.
type TrackedItem struct {
	ID            ItemID
	Name          string
	URL           string
	Selector      string // opaque locator handed to the fetcher (CSS selector)
	PreviousValue string
	LatestValue   string
	LastUpdated   time.Time // zero until the first successful fetch
}

// Snapshot returns a by-value copy of items. The copy shares no backing
// array with the input, so it can cross goroutines.
func Snapshot(items []TrackedItem) []TrackedItem {
	if items == nil {
		return nil
	}
	return append([]TrackedItem(nil), items...)
}

// ValueChange is one observed change of an item's value.
type ValueChange struct {
	ItemID   ItemID
	Name     string
	OldValue string
	NewValue string
	At       time.Time
}
