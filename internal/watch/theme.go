package watch

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/timvw/pane-tracker/internal/model"
)

// Theme defines all colors used by the watch TUI.
type Theme struct {
	Primary        lipgloss.Color // title, cursor
	Secondary      lipgloss.Color // selected row text
	Error          lipgloss.Color // errors, daemon down
	Warning        lipgloss.Color // needs input
	Success        lipgloss.Color // done, daemon up
	Info           lipgloss.Color // working
	Text           lipgloss.Color // primary text
	TextMuted      lipgloss.Color // idle, hints, timestamps
	BackgroundElem lipgloss.Color // highlighted row background
	Border         lipgloss.Color // separators
}

// DarkTheme returns the default dark theme.
func DarkTheme() Theme {
	return Theme{
		Primary:        lipgloss.Color("#fab283"),
		Secondary:      lipgloss.Color("#5c9cf5"),
		Error:          lipgloss.Color("#e06c75"),
		Warning:        lipgloss.Color("#f5a742"),
		Success:        lipgloss.Color("#7fd88f"),
		Info:           lipgloss.Color("#56b6c2"),
		Text:           lipgloss.Color("#eeeeee"),
		TextMuted:      lipgloss.Color("#808080"),
		BackgroundElem: lipgloss.Color("#1e1e1e"),
		Border:         lipgloss.Color("#484848"),
	}
}

// LightTheme returns a light theme for bright terminal backgrounds.
func LightTheme() Theme {
	return Theme{
		Primary:        lipgloss.Color("#b35c00"),
		Secondary:      lipgloss.Color("#0550ae"),
		Error:          lipgloss.Color("#cf222e"),
		Warning:        lipgloss.Color("#bf8700"),
		Success:        lipgloss.Color("#116329"),
		Info:           lipgloss.Color("#0969da"),
		Text:           lipgloss.Color("#1f2328"),
		TextMuted:      lipgloss.Color("#656d76"),
		BackgroundElem: lipgloss.Color("#f6f8fa"),
		Border:         lipgloss.Color("#d0d7de"),
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
	title    lipgloss.Style
	header   lipgloss.Style
	selected lipgloss.Style
	err      lipgloss.Style
	ok       lipgloss.Style
	dim      lipgloss.Style
	text     lipgloss.Style

	states map[model.SessionState]lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		header:   lipgloss.NewStyle().Foreground(t.Border),
		selected: lipgloss.NewStyle().Bold(true).Foreground(t.Secondary).Background(t.BackgroundElem),
		err:      lipgloss.NewStyle().Foreground(t.Error),
		ok:       lipgloss.NewStyle().Foreground(t.Success),
		dim:      lipgloss.NewStyle().Foreground(t.TextMuted),
		text:     lipgloss.NewStyle().Foreground(t.Text),
		states: map[model.SessionState]lipgloss.Style{
			model.Idle:       lipgloss.NewStyle().Foreground(t.TextMuted),
			model.Working:    lipgloss.NewStyle().Foreground(t.Info),
			model.NeedsInput: lipgloss.NewStyle().Bold(true).Foreground(t.Warning),
			model.Done:       lipgloss.NewStyle().Foreground(t.Success),
		},
	}
}

func (s styles) state(st model.SessionState) lipgloss.Style {
	if style, ok := s.states[st]; ok {
		return style
	}
	return s.text
}
