package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/janekbaraniewski/usagebar/internal/core"
)

const (
	maxTrendPoints = 60
	trendWidth     = 24
)

// ProviderResult is one provider's outcome in a poll cycle.
type ProviderResult struct {
	ID       string
	Name     string
	Snapshot core.UsageSnapshot
	Err      error
}

// ResultsMsg delivers a finished poll cycle to the watch model.
type ResultsMsg struct {
	Results []ProviderResult
	At      time.Time
}

type pollTickMsg time.Time

// PollFunc refreshes every provider and returns results in display order.
type PollFunc func(ctx context.Context) []ProviderResult

// WatchModel is the live view behind `usagebar watch`. It polls on a fixed
// interval, keeps a per-provider peak utilization trend for the session and
// re-polls on demand.
type WatchModel struct {
	ctx      context.Context
	poll     PollFunc
	interval time.Duration
	opts     RenderOptions
	now      func() time.Time

	results []ProviderResult
	trends  map[string][]float64
	updated time.Time
	polling bool

	width  int
	height int
}

func NewWatchModel(ctx context.Context, poll PollFunc, interval time.Duration, opts RenderOptions) WatchModel {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return WatchModel{
		ctx:      ctx,
		poll:     poll,
		interval: interval,
		opts:     opts,
		now:      time.Now,
		trends:   map[string][]float64{},
		polling:  true,
	}
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.pollCmd(), m.tickCmd())
}

func (m WatchModel) pollCmd() tea.Cmd {
	return func() tea.Msg {
		results := m.poll(m.ctx)
		return ResultsMsg{Results: results, At: m.now()}
	}
}

func (m WatchModel) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return pollTickMsg(t)
	})
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pollTickMsg:
		if m.polling {
			return m, m.tickCmd()
		}
		m.polling = true
		return m, tea.Batch(m.pollCmd(), m.tickCmd())

	case ResultsMsg:
		m.polling = false
		m.results = msg.Results
		m.updated = msg.At
		m.recordTrends(msg.Results)
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			if m.polling {
				return m, nil
			}
			m.polling = true
			return m, m.pollCmd()
		}
	}
	return m, nil
}

func (m *WatchModel) recordTrends(results []ProviderResult) {
	trends := make(map[string][]float64, len(m.trends))
	for id, points := range m.trends {
		trends[id] = points
	}
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		peak := r.Snapshot.PeakUtilization()
		if peak < 0 {
			continue
		}
		points := append(append([]float64(nil), trends[r.ID]...), peak)
		if len(points) > maxTrendPoints {
			points = points[len(points)-maxTrendPoints:]
		}
		trends[r.ID] = points
	}
	m.trends = trends
}

func (m WatchModel) View() string {
	var sb strings.Builder

	header := titleStyle.Render("usagebar")
	switch {
	case m.updated.IsZero():
		header += "  " + dimStyle.Render("fetching usage…")
	case m.polling:
		header += "  " + dimStyle.Render(fmt.Sprintf("updated %s, refreshing…", m.updated.Local().Format("15:04:05")))
	default:
		header += "  " + dimStyle.Render(fmt.Sprintf("updated %s, every %s", m.updated.Local().Format("15:04:05"), m.interval))
	}
	sb.WriteString(header + "\n\n")

	opts := m.opts
	opts.Now = m.now()
	for _, r := range m.results {
		if r.Err != nil {
			sb.WriteString(RenderError(r.Name, r.Err))
		} else {
			sb.WriteString(RenderSnapshot(r.Name, r.Snapshot, opts))
		}
		if points := m.trends[r.ID]; len(points) > 1 {
			sb.WriteString("  " + labelStyle.Render(fmt.Sprintf("%-14s", "peak trend")) + " " + RenderTrend(points, trendWidth, opts.Thresholds) + "\n")
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(dimStyle.Render("r refresh · q quit"))

	return m.fit(sb.String())
}

// fit truncates each line to the terminal width and drops lines past its
// height, keeping the footer.
func (m WatchModel) fit(s string) string {
	lines := strings.Split(s, "\n")
	if m.height > 0 && len(lines) > m.height {
		footer := lines[len(lines)-1]
		lines = append(lines[:m.height-1], footer)
	}
	if m.width > 0 {
		for i, line := range lines {
			lines[i] = ansi.Truncate(line, m.width, "…")
		}
	}
	return strings.Join(lines, "\n")
}
