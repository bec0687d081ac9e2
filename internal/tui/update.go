package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/tinytelemetry/valuewatch/internal/fetch"
	"github.com/tinytelemetry/valuewatch/internal/model"
	"github.com/tinytelemetry/valuewatch/internal/tracker"
)

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case FrameMsg:
		return m, tea.Batch(m.advance(), m.frameTick())

	case RedrawMsg:
		return m, m.advance()

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case itemsSavedMsg:
		if msg.err != nil {
			m.setError("Save failed: " + msg.err.Error())
		}
		return m, nil

	case historyLoadedMsg:
		if msg.id == m.history.id {
			m.history.loading = false
			m.history.changes = msg.changes
			m.history.err = msg.err
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	}
	return m, nil
}

// advance runs one tracker tick and reacts to what it applied.
func (m *Model) advance() tea.Cmd {
	rep := m.tracker.Tick()

	if rep.DraftUpdated {
		d := m.tracker.Draft()
		switch {
		case d.Err != nil && errors.Is(d.Err, fetch.ErrNoValue):
			m.setError("No value found for that selector")
		case d.Err != nil:
			m.setError("Fetch failed: " + d.Err.Error())
		default:
			m.setStatus("Fetched value: " + d.Value)
		}
	}
	if rep.DraftDiscarded {
		m.setStatus("Link or selector changed, fetch again (ctrl+f)")
	}
	if rep.RefreshDone {
		m.setStatus("Refresh complete")
	}
	if rep.CycleApplied {
		m.setStatus("Scheduled refresh applied")
	}

	if !rep.Changed() {
		return nil
	}
	m.syncRows()
	return m.saveCmd()
}

func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeAdd:
		return m.handleAddKey(msg)
	case modeConfirmDelete:
		return m.handleConfirmKey(msg)
	case modeHistory, modeHelp:
		if key.Matches(msg, m.keys.Escape, m.keys.History, m.keys.Help, m.keys.Quit) {
			m.mode = modeTable
			m.help.ShowAll = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.mode = modeHelp
		m.help.ShowAll = true
		return m, nil

	case key.Matches(msg, m.keys.Add):
		return m, m.openAddDialog()

	case key.Matches(msg, m.keys.Select):
		if it, ok := m.cursorItem(); ok {
			if m.selected[it.ID] {
				delete(m.selected, it.ID)
			} else {
				m.selected[it.ID] = true
			}
			m.syncRows()
		}
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		if len(m.selectedIDs()) == 0 {
			m.setError("Nothing selected (space selects a row)")
			return m, nil
		}
		m.mode = modeConfirmDelete
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, m.startRefresh()

	case key.Matches(msg, m.keys.History):
		it, ok := m.cursorItem()
		if !ok {
			return m, nil
		}
		m.mode = modeHistory
		m.history = historyState{id: it.ID, name: it.Name, loading: m.store != nil}
		return m, m.loadHistoryCmd(it.ID)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) startRefresh() tea.Cmd {
	err := m.tracker.StartRefreshAll()
	switch {
	case errors.Is(err, tracker.ErrDuplicateRequest):
		m.setError("A refresh is already running")
		return nil
	case err != nil:
		m.setError("Refresh failed: " + err.Error())
		return nil
	case !m.tracker.RefreshInProgress():
		m.setStatus("Nothing to refresh")
		return nil
	}
	_, total := m.tracker.RefreshProgress()
	m.setStatus(fmt.Sprintf("Refreshing %d items", total))
	return m.spinner.Tick
}

func (m *Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Confirm):
		ids := m.selectedIDs()
		n := m.tracker.Delete(ids)
		for _, id := range ids {
			delete(m.selected, id)
		}
		m.mode = modeTable
		m.syncRows()
		m.setStatus(fmt.Sprintf("Deleted %d rows", n))
		return m, m.saveCmd()
	case key.Matches(msg, m.keys.Escape), msg.String() == "n":
		m.mode = modeTable
		m.setStatus("Delete cancelled")
	}
	return m, nil
}

func (m *Model) openAddDialog() tea.Cmd {
	d := m.tracker.Draft()
	m.inputs[fieldName].SetValue(d.Name)
	m.inputs[fieldURL].SetValue(d.URL)
	m.inputs[fieldSelector].SetValue(d.Selector)
	m.mode = modeAdd
	return m.focusField(fieldName)
}

func (m *Model) focusField(i int) tea.Cmd {
	m.focus = (i + fieldCount) % fieldCount
	var cmd tea.Cmd
	for j := range m.inputs {
		if j == m.focus {
			cmd = m.inputs[j].Focus()
		} else {
			m.inputs[j].Blur()
		}
	}
	return cmd
}

// syncDraft copies the dialog fields into the tracker's draft.
func (m *Model) syncDraft() {
	m.tracker.SetDraft(
		m.inputs[fieldName].Value(),
		strings.TrimSpace(m.inputs[fieldURL].Value()),
		strings.TrimSpace(m.inputs[fieldSelector].Value()),
	)
}

func (m *Model) handleAddKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.syncDraft()
		m.mode = modeTable
		return m, nil

	case key.Matches(msg, m.keys.NextField):
		return m, m.focusField(m.focus + 1)

	case key.Matches(msg, m.keys.PrevField):
		return m, m.focusField(m.focus - 1)

	case key.Matches(msg, m.keys.Fetch):
		m.syncDraft()
		d := m.tracker.Draft()
		err := m.tracker.RequestFetch(d.URL, d.Selector)
		switch {
		case errors.Is(err, tracker.ErrDuplicateRequest):
			m.setError("A fetch is already running")
			return m, nil
		case err != nil:
			m.setError("Link and selector are required")
			return m, nil
		}
		m.setStatus("Fetching " + d.URL)
		return m, m.spinner.Tick

	case key.Matches(msg, m.keys.Reset):
		m.tracker.ResetDraft()
		for i := range m.inputs {
			m.inputs[i].Reset()
		}
		m.setStatus("")
		return m, m.focusField(fieldName)

	case key.Matches(msg, m.keys.Submit):
		m.syncDraft()
		item, err := m.tracker.AddFromDraft()
		switch {
		case errors.Is(err, tracker.ErrNoDraftValue):
			m.setError("Fetch a value first (ctrl+f)")
			return m, nil
		case err != nil:
			m.setError("Link and selector are required")
			return m, nil
		}
		for i := range m.inputs {
			m.inputs[i].Reset()
		}
		m.mode = modeTable
		m.syncRows()
		m.table.GotoBottom()
		m.setStatus("Added " + item.Name)
		return m, m.saveCmd()
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	m.syncDraft()
	return m, cmd
}

// draftValue is the preview shown in the dialog.
func (m *Model) draftValue() string {
	d := m.tracker.Draft()
	switch {
	case m.tracker.FetchInProgress():
		return m.spinner.View() + " fetching"
	case d.Err != nil:
		return errorStyle.Render("error")
	case d.Value == "":
		return model.NoPreviousValue
	default:
		return valueStyle.Render(d.Value)
	}
}
