package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/valuewatch/internal/model"
)

const maxHistoryLines = 8

// parseNumeric extracts a number from a scraped value such as "$1,499.99"
// or "12.5 kg". Thousands separators are ignored.
func parseNumeric(s string) (float64, bool) {
	var b strings.Builder
	seenDigit := false
scan:
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			seenDigit = true
		case r == '.':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		case r == ',':
		default:
			if seenDigit {
				break scan
			}
			b.Reset()
		}
	}
	if !seenDigit {
		return 0, false
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// historySeries returns the numeric values of changes, oldest first,
// starting with the value before the oldest change.
func historySeries(changes []model.ValueChange) []float64 {
	var out []float64
	for i := len(changes) - 1; i >= 0; i-- {
		ch := changes[i]
		if i == len(changes)-1 {
			if v, ok := parseNumeric(ch.OldValue); ok {
				out = append(out, v)
			}
		}
		if v, ok := parseNumeric(ch.NewValue); ok {
			out = append(out, v)
		}
	}
	return out
}

// renderHistoryChart draws series as bars. Bars are measured from just
// below the smallest value so small movements stay visible.
func renderHistoryChart(series []float64, width, height int) string {
	if len(series) == 0 {
		return statusStyle.Render("No numeric history")
	}
	maxBars := max(width/2, 1)
	if len(series) > maxBars {
		series = series[len(series)-maxBars:]
	}

	lo, hi := series[0], series[0]
	for _, v := range series {
		lo, hi = min(lo, v), max(hi, v)
	}
	base := lo - (hi-lo)*0.2
	if hi == lo {
		base = lo - 1
	}

	bc := barchart.New(width, height,
		barchart.WithBarGap(1),
		barchart.WithBarWidth(1),
		barchart.WithNoAxis(),
	)
	for _, v := range series {
		bc.Push(barchart.BarData{
			Label: "",
			Values: []barchart.BarValue{
				{Name: "value", Value: v - base, Style: barStyle},
			},
		})
	}
	bc.Draw()
	return bc.View()
}

func (m *Model) renderHistory() string {
	h := m.history
	width := max(min(m.width-12, 100), 20)

	var b strings.Builder
	b.WriteString(titleStyle.Render("History: " + h.name))
	b.WriteString("\n\n")

	switch {
	case m.store == nil:
		b.WriteString(statusStyle.Render("History is not being recorded"))
	case h.loading:
		b.WriteString(statusStyle.Render("Loading..."))
	case h.err != nil:
		b.WriteString(errorStyle.Render("Could not load history: " + h.err.Error()))
	case len(h.changes) == 0:
		b.WriteString(statusStyle.Render("No changes recorded yet"))
	default:
		b.WriteString(renderHistoryChart(historySeries(h.changes), width, 8))
		b.WriteString("\n\n")
		for i, ch := range h.changes {
			if i == maxHistoryLines {
				b.WriteString(statusStyle.Render(fmt.Sprintf("... %d more", len(h.changes)-i)))
				break
			}
			b.WriteString(historyLine(ch))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func historyLine(ch model.ValueChange) string {
	arrow := "→"
	style := lipgloss.NewStyle()
	oldV, ok1 := parseNumeric(ch.OldValue)
	newV, ok2 := parseNumeric(ch.NewValue)
	if ok1 && ok2 {
		switch {
		case newV > oldV:
			arrow, style = "▲", upStyle
		case newV < oldV:
			arrow, style = "▼", downStyle
		}
	}
	return fmt.Sprintf("%s  %s %s %s",
		ch.At.Local().Format(timeLayout), ch.OldValue, style.Render(arrow), ch.NewValue)
}
