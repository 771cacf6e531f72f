package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Thresholds are utilization percentages at which a gauge changes color.
type Thresholds struct {
	Warn float64
	Crit float64
}

var DefaultThresholds = Thresholds{Warn: 80, Crit: 95}

// RenderUsageGauge produces a text gauge that fills left to right as usage
// grows. A negative percent renders a dimmed track with "N/A".
func RenderUsageGauge(usedPercent float64, width int, th Thresholds) string {
	if width < 5 {
		width = 5
	}

	if usedPercent < 0 {
		return gaugeTrackStyle.Render(strings.Repeat("─", width)) + dimStyle.Render("    N/A")
	}
	if usedPercent > 100 {
		usedPercent = 100
	}

	filled := int(usedPercent / 100 * float64(width))
	empty := width - filled
	color := gaugeColor(usedPercent, th)

	filledStyle := lipgloss.NewStyle().Foreground(color)
	trackStyle := lipgloss.NewStyle().Foreground(colorSurface1)

	bar := filledStyle.Render(strings.Repeat("━", filled)) +
		trackStyle.Render(strings.Repeat("━", empty))

	pctStyle := lipgloss.NewStyle().Foreground(color).Bold(true)
	return fmt.Sprintf("%s %s", bar, pctStyle.Render(fmt.Sprintf("%5.1f%%", usedPercent)))
}

// RenderMiniGauge is a compact gauge without the percentage label, used for
// single-line summaries.
func RenderMiniGauge(usedPercent float64, width int) string {
	if width < 3 {
		width = 3
	}
	if usedPercent < 0 {
		return lipgloss.NewStyle().Foreground(colorSurface1).Render(strings.Repeat("━", width))
	}
	if usedPercent > 100 {
		usedPercent = 100
	}

	filled := int(usedPercent / 100 * float64(width))
	empty := width - filled

	filledStyle := lipgloss.NewStyle().Foreground(gaugeColor(usedPercent, DefaultThresholds))
	trackStyle := lipgloss.NewStyle().Foreground(colorSurface1)
	return filledStyle.Render(strings.Repeat("━", filled)) +
		trackStyle.Render(strings.Repeat("━", empty))
}

func gaugeColor(usedPercent float64, th Thresholds) lipgloss.Color {
	switch {
	case usedPercent >= th.Crit:
		return colorCrit
	case usedPercent >= th.Warn:
		return colorWarn
	default:
		return colorOK
	}
}
