package model

import "time"

// Shared defaults used by the binary, the scheduler and the TUI.
const (
	DefaultRefreshPeriod    = 30 * time.Minute
	DefaultFrameInterval    = 100 * time.Millisecond
	DefaultFetchTimeout     = 45 * time.Second
	DefaultHistoryRetention = 90 // days, 0 = disabled
	DefaultFetcher          = "browser"
)

// NoPreviousValue is shown in the Previous column of a freshly added row.
const NoPreviousValue = "-"
