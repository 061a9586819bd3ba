package ui

import "github.com/charmbracelet/lipgloss"

var (
	mintGreen = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}
	red       = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
	blue      = lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#00AAFF"}
	fuchsia   = lipgloss.AdaptiveColor{Light: "#EE6FF8", Dark: "#EE6FF8"}

	noteFg = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	dimFg  = lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"}

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(fuchsia).
			Padding(0, 1).
			Render

	headerNoteStyle = lipgloss.NewStyle().
			Foreground(noteFg).
			Render

	labelStyle = lipgloss.NewStyle().
			Foreground(dimFg).
			Render

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#DDDDDD"}).
			Render

	separator = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Render(" │ ")

	successStyle = lipgloss.NewStyle().
			Foreground(mintGreen).
			Background(darkGreen).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(red).
			Padding(0, 1)

	loadingStyle = lipgloss.NewStyle().
			Foreground(blue)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(fuchsia)
)
