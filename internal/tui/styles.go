package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/janekbaraniewski/usagebar/internal/core"
)

// ─── Color Palette (Catppuccin Mocha) ───────────────────────────────────────

var (
	colorSurface1 = lipgloss.Color("#45475A")
	colorText     = lipgloss.Color("#CDD6F4")
	colorSubtext  = lipgloss.Color("#A6ADC8")
	colorDim      = lipgloss.Color("#585B70")

	colorLavender = lipgloss.Color("#B4BEFE")
	colorSapphire = lipgloss.Color("#74C7EC")
	colorGreen    = lipgloss.Color("#A6E3A1")
	colorYellow   = lipgloss.Color("#F9E2AF")
	colorRed      = lipgloss.Color("#F38BA8")
	colorPeach    = lipgloss.Color("#FAB387")

	colorOK   = colorGreen
	colorWarn = colorYellow
	colorCrit = colorRed
	colorAuth = colorPeach
)

// ─── Reusable Styles ────────────────────────────────────────────────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorLavender)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorSubtext)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorText)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	gaugeTrackStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	planTagStyle = lipgloss.NewStyle().
			Foreground(colorSapphire)

	badgeOKStyle = lipgloss.NewStyle().
			Foreground(colorOK).
			Bold(true)

	badgeWarnStyle = lipgloss.NewStyle().
			Foreground(colorWarn).
			Bold(true)

	badgeCritStyle = lipgloss.NewStyle().
			Foreground(colorCrit).
			Bold(true)

	badgeAuthStyle = lipgloss.NewStyle().
			Foreground(colorAuth).
			Bold(true)
)

func statusStyle(status core.Status) lipgloss.Style {
	switch status {
	case core.StatusOK:
		return badgeOKStyle
	case core.StatusNearLimit:
		return badgeWarnStyle
	case core.StatusLimited, core.StatusError:
		return badgeCritStyle
	case core.StatusAuth:
		return badgeAuthStyle
	default:
		return dimStyle
	}
}

// StatusBadge renders a colored status label such as "OK" or "AUTH_REQUIRED".
func StatusBadge(status core.Status) string {
	return statusStyle(status).Render(string(status))
}
