package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// mtlsbridge palette
var (
	Teal      = lipgloss.Color("#2EC4B6")
	DeepTeal  = lipgloss.Color("#138A7F")
	LightTeal = lipgloss.Color("#A8E6E0")
	Amber     = lipgloss.Color("#FFB347")

	White     = lipgloss.Color("#FFFFFF")
	LightGray = lipgloss.Color("#B0B0B0")
	DarkGray  = lipgloss.Color("#404040")
	Black     = lipgloss.Color("#1A1A2E")

	Success = lipgloss.Color("#00FF88")
	Warning = lipgloss.Color("#FFD700")
	Error   = lipgloss.Color("#FF6B6B")
	Info    = lipgloss.Color("#87CEEB")

	TitleStyle = lipgloss.NewStyle().
			Foreground(White).
			Background(DeepTeal).
			Bold(true).
			Padding(0, 2)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(LightTeal).
			Bold(true)

	LogoStyle = lipgloss.NewStyle().
			Foreground(Teal).
			Bold(true)

	BorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(DeepTeal).
			Padding(1, 2)

	ActiveBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(Teal).
				Padding(1, 2)

	LabelStyle = lipgloss.NewStyle().
			Foreground(LightTeal)

	ValueStyle = lipgloss.NewStyle().
			Foreground(White).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	InfoStyle = lipgloss.NewStyle().
			Foreground(Info)

	DimStyle = lipgloss.NewStyle().
			Foreground(LightGray)

	HighlightStyle = lipgloss.NewStyle().
			Foreground(Amber).
			Bold(true)

	StatusBarStyle = lipgloss.NewStyle().
			Foreground(LightGray).
			Background(DarkGray).
			Padding(0, 1)

	HelpStyle = lipgloss.NewStyle().
			Foreground(LightGray)
)

// Logo returns the banner shown by the root command.
func Logo() string {
	logo := `
  ┌┬┐┬  ┬  ┌─┐  ┌┐ ┬─┐┬┌┬┐┌─┐┌─┐
  │││ │  │  └─┐  ├┴┐├┬┘│ │││ ┬├┤
  ┴ ┴ ┴  ┴─┘└─┘  └─┘┴└─┴─┴┘└─┘└─┘`
	return LogoStyle.Render(logo)
}

// MiniLogo returns a smaller logo
func MiniLogo() string {
	return LogoStyle.Render(Lock + " mtlsbridge")
}

// Tagline returns the project tagline
func Tagline() string {
	return DimStyle.Render("Mutual-TLS HTTP bridge")
}

// Divider returns a horizontal divider
func Divider(width int) string {
	return DimStyle.Render(strings.Repeat("─", width))
}

// StatusStyle picks a style for an HTTP status code.
func StatusStyle(code int) lipgloss.Style {
	switch {
	case code >= 200 && code < 300:
		return SuccessStyle
	case code >= 300 && code < 400:
		return InfoStyle
	case code >= 400 && code < 500:
		return WarningStyle
	default:
		return ErrorStyle
	}
}

// RenderStatus renders "200 OK"-style text for code.
func RenderStatus(code int, text string) string {
	return StatusStyle(code).Render(fmt.Sprintf("%d %s", code, text))
}

// HealthMark renders a probe result; nil means no probe is configured.
func HealthMark(healthy *bool) string {
	switch {
	case healthy == nil:
		return DimStyle.Render(Dash)
	case *healthy:
		return SuccessStyle.Render(CheckMark)
	default:
		return ErrorStyle.Render(CrossMark)
	}
}

// Spinner frames for loading animation (ASCII compatible)
var SpinnerFrames = []string{"|", "/", "-", "\\"}

const (
	BulletPoint = "●"
	ArrowRight  = "→"
	CheckMark   = "✓"
	CrossMark   = "✗"
	Dash        = "-"
	Lock        = "⚿"
)
