// Package tui is the terminal front end. Its Update loop is the single
// goroutine that owns the tracker: every frame it calls Tracker.Tick and
// redraws whatever changed.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/tinytelemetry/valuewatch/internal/model"
	"github.com/tinytelemetry/valuewatch/internal/tracker"
)

// Store is the persistence the UI needs. *duckdb.Store satisfies it.
type Store interface {
	SaveItems(ctx context.Context, items []model.TrackedItem) error
	ChangesForItem(ctx context.Context, id model.ItemID, limit int) ([]model.ValueChange, error)
}

// Config tunes the UI loop.
type Config struct {
	FrameInterval time.Duration
	SaveTimeout   time.Duration
	HistoryLimit  int
}

func (c *Config) defaults() {
	if c.FrameInterval <= 0 {
		c.FrameInterval = model.DefaultFrameInterval
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = 10 * time.Second
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 60
	}
}

type mode int

const (
	modeTable mode = iota
	modeAdd
	modeConfirmDelete
	modeHistory
	modeHelp
)

// Field indexes of the add dialog.
const (
	fieldName = iota
	fieldURL
	fieldSelector
	fieldCount
)

// FrameMsg drives one tracker tick and schedules the next frame.
type FrameMsg time.Time

// RedrawMsg asks for an immediate tick, typically after the scheduler
// delivered a batch.
type RedrawMsg struct{}

type itemsSavedMsg struct {
	gen     uint64
	skipped bool
	err     error
}

type historyLoadedMsg struct {
	id      model.ItemID
	changes []model.ValueChange
	err     error
}

// historyState is the chart panel for one row.
type historyState struct {
	id      model.ItemID
	name    string
	changes []model.ValueChange // newest first
	err     error
	loading bool
}

// Model is the root Bubble Tea model.
type Model struct {
	tracker *tracker.Tracker
	store   Store
	saves   *saver
	cfg     Config
	keys    KeyMap

	table    table.Model
	selected map[model.ItemID]bool
	mode     mode

	inputs  []textinput.Model
	focus   int
	spinner spinner.Model
	help    help.Model
	history historyState

	status    string
	statusErr bool
	width     int
	height    int
}

// New builds the UI around t. store may be nil, in which case nothing is
// saved and the history chart is unavailable.
func New(t *tracker.Tracker, store Store, cfg Config) *Model {
	cfg.defaults()

	tbl := table.New(
		table.WithColumns(columns(100)),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(ColorBlue)
	tbl.SetStyles(styles)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusStyle

	m := &Model{
		tracker:  t,
		store:    store,
		cfg:      cfg,
		keys:     DefaultKeyMap(),
		table:    tbl,
		selected: make(map[model.ItemID]bool),
		inputs:   newInputs(),
		spinner:  sp,
		help:     help.New(),
	}
	if store != nil {
		m.saves = newSaver(store)
	}
	m.syncRows()
	return m
}

func newInputs() []textinput.Model {
	placeholders := [fieldCount]string{
		fieldName:     "Name (defaults to the link)",
		fieldURL:      "https://shop.example/item",
		fieldSelector: ".price",
	}
	inputs := make([]textinput.Model, fieldCount)
	for i := range inputs {
		ti := textinput.New()
		ti.Placeholder = placeholders[i]
		ti.CharLimit = 2048
		ti.Prompt = ""
		inputs[i] = ti
	}
	return inputs
}

// Init starts the frame loop.
func (m *Model) Init() tea.Cmd {
	return m.frameTick()
}

func (m *Model) frameTick() tea.Cmd {
	return tea.Tick(m.cfg.FrameInterval, func(t time.Time) tea.Msg {
		return FrameMsg(t)
	})
}

// busy reports whether a fetch the user started is still running.
func (m *Model) busy() bool {
	return m.tracker.FetchInProgress() || m.tracker.RefreshInProgress()
}

func (m *Model) setStatus(s string) {
	m.status, m.statusErr = s, false
}

func (m *Model) setError(s string) {
	m.status, m.statusErr = s, true
}

// saveCmd writes a snapshot of the table to the store off the Update
// goroutine. Snapshots are numbered here, so a save that loses the race to
// a newer one is dropped.
func (m *Model) saveCmd() tea.Cmd {
	if m.saves == nil {
		return nil
	}
	items := m.tracker.Items()
	gen := m.saves.take()
	saves, timeout := m.saves, m.cfg.SaveTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		skipped, err := saves.save(ctx, gen, items)
		return itemsSavedMsg{gen: gen, skipped: skipped, err: err}
	}
}

func (m *Model) loadHistoryCmd(id model.ItemID) tea.Cmd {
	if m.store == nil {
		return nil
	}
	store, timeout, limit := m.store, m.cfg.SaveTimeout, m.cfg.HistoryLimit
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		changes, err := store.ChangesForItem(ctx, id, limit)
		return historyLoadedMsg{id: id, changes: changes, err: err}
	}
}

// cursorItem returns the row under the table cursor.
func (m *Model) cursorItem() (model.TrackedItem, bool) {
	items := m.tracker.Items()
	c := m.table.Cursor()
	if c < 0 || c >= len(items) {
		return model.TrackedItem{}, false
	}
	return items[c], true
}

func (m *Model) selectedIDs() []model.ItemID {
	var ids []model.ItemID
	for _, it := range m.tracker.Items() {
		if m.selected[it.ID] {
			ids = append(ids, it.ID)
		}
	}
	return ids
}
