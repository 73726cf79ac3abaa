package ui

import "github.com/charmbracelet/lipgloss"

type Style struct {
	UnselectedMessage lipgloss.Style
	SelectedMessage   lipgloss.Style
	FocusedMessage    lipgloss.Style

	Header      lipgloss.Style
	Role        lipgloss.Style
	ErrorBanner lipgloss.Style
	Citation    lipgloss.Style
	Muted       lipgloss.Style
}

type BorderColors struct {
	Unselected string
	Selected   string
	Focused    string
	Error      string
}

func DefaultStyles() *Style {
	lightModeColors := BorderColors{
		Unselected: "#CCCCCC",
		Selected:   "#8FBC8F", // dark sea green
		Focused:    "#FFFF99", // light yellow
		Error:      "#D7263D",
	}

	darkModeColors := BorderColors{
		Unselected: "#444444",
		Selected:   "#5F875F",
		Focused:    "#DDDD77",
		Error:      "#FF5F5F",
	}

	errorColor := lipgloss.AdaptiveColor{
		Light: lightModeColors.Error,
		Dark:  darkModeColors.Error,
	}

	return &Style{
		UnselectedMessage: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			Padding(0, 1).
			BorderForeground(lipgloss.AdaptiveColor{
				Light: lightModeColors.Unselected,
				Dark:  darkModeColors.Unselected,
			}),
		SelectedMessage: lipgloss.NewStyle().Border(lipgloss.ThickBorder()).
			Padding(0, 1).
			BorderForeground(lipgloss.AdaptiveColor{
				Light: lightModeColors.Selected,
				Dark:  darkModeColors.Selected,
			}),
		FocusedMessage: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			Padding(0, 1).
			BorderForeground(lipgloss.AdaptiveColor{
				Light: lightModeColors.Focused,
				Dark:  darkModeColors.Focused,
			}),
		Header: lipgloss.NewStyle().Bold(true).Padding(0, 1),
		Role:   lipgloss.NewStyle().Bold(true),
		ErrorBanner: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			BorderForeground(errorColor).
			Foreground(errorColor),
		Citation: lipgloss.NewStyle().Faint(true),
		Muted:    lipgloss.NewStyle().Faint(true),
	}
}
