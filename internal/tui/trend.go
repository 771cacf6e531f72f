package tui

import (
	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/lipgloss"

	"github.com/janekbaraniewski/usagebar/internal/core"
)

// RenderTrend draws utilization percentages, oldest first, as a one-row
// sparkline. Only the newest width values are kept.
func RenderTrend(values []float64, width int, th Thresholds) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}
	if th == (Thresholds{}) {
		th = DefaultThresholds
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	last := core.ClampPercent(values[len(values)-1])
	sl := sparkline.New(width, 1,
		sparkline.WithMaxValue(100),
		sparkline.WithStyle(lipgloss.NewStyle().Foreground(gaugeColor(last, th))),
	)
	for _, v := range values {
		sl.Push(core.ClampPercent(v))
	}
	sl.Draw()
	return sl.View()
}
