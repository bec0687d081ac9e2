package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorBlue   = lipgloss.Color("39")
	ColorGreen  = lipgloss.Color("42")
	ColorYellow = lipgloss.Color("214")
	ColorRed    = lipgloss.Color("196")
	ColorGray   = lipgloss.Color("244")
	ColorWhite  = lipgloss.Color("255")
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(ColorWhite).
			Background(ColorBlue).
			Bold(true).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().Foreground(ColorGray).Italic(true)
	errorStyle  = lipgloss.NewStyle().Foreground(ColorRed)
	upStyle     = lipgloss.NewStyle().Foreground(ColorRed)
	downStyle   = lipgloss.NewStyle().Foreground(ColorGreen)
	labelStyle  = lipgloss.NewStyle().Foreground(ColorGray).Width(10)
	valueStyle  = lipgloss.NewStyle().Foreground(ColorYellow).Bold(true)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBlue).
			Padding(1, 2)

	barStyle = lipgloss.NewStyle().Foreground(ColorBlue).Background(ColorBlue)
)
