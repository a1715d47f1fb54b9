package progress

import "github.com/charmbracelet/lipgloss"

// Theme defines the colors used by the dashboard.
type Theme struct {
	Primary   lipgloss.Color // title
	Secondary lipgloss.Color // progress bar fill
	Success   lipgloss.Color // passing counts
	Error     lipgloss.Color // failure message
	Text      lipgloss.Color // predicate ids
	TextMuted lipgloss.Color // hints, last response
	Border    lipgloss.Color // separators, empty bar
}

// DarkTheme returns the default theme for dark terminal backgrounds.
func DarkTheme() Theme {
	return Theme{
		Primary:   lipgloss.Color("#fab283"),
		Secondary: lipgloss.Color("#5c9cf5"),
		Success:   lipgloss.Color("#7fd88f"),
		Error:     lipgloss.Color("#e06c75"),
		Text:      lipgloss.Color("#eeeeee"),
		TextMuted: lipgloss.Color("#808080"),
		Border:    lipgloss.Color("#484848"),
	}
}

// LightTheme returns a theme for bright terminal backgrounds.
func LightTheme() Theme {
	return Theme{
		Primary:   lipgloss.Color("#b35c00"),
		Secondary: lipgloss.Color("#0550ae"),
		Success:   lipgloss.Color("#116329"),
		Error:     lipgloss.Color("#cf222e"),
		Text:      lipgloss.Color("#1f2328"),
		TextMuted: lipgloss.Color("#656d76"),
		Border:    lipgloss.Color("#d0d7de"),
	}
}

// ThemeByName returns a theme by name. Defaults to dark.
func ThemeByName(name string) Theme {
	switch name {
	case "light":
		return LightTheme()
	default:
		return DarkTheme()
	}
}

type styles struct {
	title   lipgloss.Style
	id      lipgloss.Style
	pass    lipgloss.Style
	err     lipgloss.Style
	dim     lipgloss.Style
	divider lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		id:      lipgloss.NewStyle().Foreground(t.Text),
		pass:    lipgloss.NewStyle().Foreground(t.Success),
		err:     lipgloss.NewStyle().Foreground(t.Error),
		dim:     lipgloss.NewStyle().Foreground(t.TextMuted),
		divider: lipgloss.NewStyle().Foreground(t.Border),
	}
}
