package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/valuewatch/internal/model"
)

const timeLayout = "2006-01-02 15:04"

// columns sizes the table for a terminal of the given width.
func columns(width int) []table.Column {
	fixed := 2 + 12 + 12 + 16 // marker, previous, latest, updated
	rest := max(width-fixed-14, 30)
	name := rest * 25 / 100
	link := rest * 50 / 100
	sel := rest - name - link
	return []table.Column{
		{Title: " ", Width: 2},
		{Title: "Name", Width: name},
		{Title: "Link", Width: link},
		{Title: "Selector", Width: sel},
		{Title: "Previous", Width: 12},
		{Title: "Latest", Width: 12},
		{Title: "Updated", Width: 16},
	}
}

func (m *Model) resize() {
	m.table.SetColumns(columns(m.width))
	m.table.SetWidth(m.width)
	m.table.SetHeight(max(m.height-5, 3))
	m.help.Width = m.width
}

// syncRows rebuilds the table rows from the tracker.
func (m *Model) syncRows() {
	items := m.tracker.Items()
	rows := make([]table.Row, 0, len(items))
	for _, it := range items {
		rows = append(rows, itemRow(it, m.selected[it.ID]))
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
}

func itemRow(it model.TrackedItem, selected bool) table.Row {
	marker := ""
	if selected {
		marker = "●"
	}
	updated := "never"
	if !it.LastUpdated.IsZero() {
		updated = it.LastUpdated.Local().Format(timeLayout)
	}
	return table.Row{marker, it.Name, it.URL, it.Selector, it.PreviousValue, it.LatestValue, updated}
}

// View renders the UI.
func (m *Model) View() string {
	var body string
	switch m.mode {
	case modeAdd:
		body = m.overlay(m.renderAddDialog())
	case modeConfirmDelete:
		body = m.overlay(m.renderConfirm())
	case modeHistory:
		body = m.overlay(m.renderHistory())
	case modeHelp:
		body = m.overlay(m.help.View(m.keys))
	default:
		body = m.table.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderTitle(),
		body,
		m.renderStatus(),
		m.help.ShortHelpView(m.keys.ShortHelp()),
	)
}

func (m *Model) overlay(content string) string {
	box := modalStyle.Render(content)
	if m.width == 0 || m.height == 0 {
		return box
	}
	return lipgloss.Place(m.width, max(m.height-4, lipgloss.Height(box)), lipgloss.Center, lipgloss.Center, box)
}

func (m *Model) renderTitle() string {
	title := titleStyle.Render("valuewatch")
	info := fmt.Sprintf(" %d items", m.tracker.Len())
	if m.tracker.RefreshInProgress() {
		done, total := m.tracker.RefreshProgress()
		info += fmt.Sprintf("  %s refreshing %d/%d", m.spinner.View(), done, total)
	}
	if n := len(m.selectedIDs()); n > 0 {
		info += fmt.Sprintf("  %d selected", n)
	}
	return title + statusStyle.Render(info)
}

func (m *Model) renderStatus() string {
	if m.status == "" {
		return ""
	}
	if m.statusErr {
		return errorStyle.Render(m.status)
	}
	return statusStyle.Render(m.status)
}

func (m *Model) renderAddDialog() string {
	labels := [fieldCount]string{fieldName: "Name", fieldURL: "Link", fieldSelector: "Selector"}
	width := max(min(m.width-20, 80), 30)

	var b strings.Builder
	b.WriteString(titleStyle.Render("Add item"))
	b.WriteString("\n\n")
	for i, in := range m.inputs {
		in.Width = width
		b.WriteString(labelStyle.Render(labels[i]))
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Value"))
	b.WriteString(m.draftValue())
	b.WriteString("\n\n")
	b.WriteString(m.help.ShortHelpView(dialogKeys(m.keys).ShortHelp()))
	return b.String()
}

func (m *Model) renderConfirm() string {
	ids := m.selectedIDs()
	var names []string
	for _, id := range ids {
		if it, ok := m.tracker.Item(id); ok {
			names = append(names, "  "+it.Name)
		}
	}
	return fmt.Sprintf("Delete %d rows?\n\n%s\n\n%s",
		len(ids), strings.Join(names, "\n"), statusStyle.Render("y/enter: delete   n/esc: cancel"))
}
