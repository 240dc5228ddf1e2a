// internal/cli/styles.go

package cli

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	failure   = lipgloss.AdaptiveColor{Light: "#FF0000", Dark: "#FF0000"}
	warning   = lipgloss.AdaptiveColor{Light: "#C08400", Dark: "#F5C518"}

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(highlight)

	DescriptionStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243"))

	SuccessStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(warning).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(failure).
			Bold(true)

	// Tables
	HeaderStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(subtle).
			Bold(true).
			Padding(0, 1)

	CellStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

// maxWidth returns the widest rendered cell of a column.
func maxWidth(items []string) int {
	width := 0
	for _, item := range items {
		if w := lipgloss.Width(item); w > width {
			width = w
		}
	}
	return width
}
