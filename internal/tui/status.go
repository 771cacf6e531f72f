package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/janekbaraniewski/usagebar/internal/core"
)

var windowOrder = []string{
	core.WindowFiveHour,
	core.WindowSevenDay,
	core.WindowSevenDayOpus,
	core.WindowSevenDaySonn,
	core.WindowTokens,
	core.WindowTime,
	core.WindowFreeTier,
}

var windowLabels = map[string]string{
	core.WindowFiveHour:     "5h session",
	core.WindowSevenDay:     "7d weekly",
	core.WindowSevenDayOpus: "7d opus",
	core.WindowSevenDaySonn: "7d sonnet",
	core.WindowTokens:       "tokens",
	core.WindowTime:         "monthly calls",
	core.WindowFreeTier:     "free tier",
}

func WindowLabel(key string) string {
	if label, ok := windowLabels[key]; ok {
		return label
	}
	return strings.ReplaceAll(key, "_", " ")
}

// SortedWindowKeys returns known windows in display order followed by any
// others alphabetically.
func SortedWindowKeys(windows map[string]core.Window) []string {
	keys := make([]string, 0, len(windows))
	seen := make(map[string]bool, len(windows))
	for _, k := range windowOrder {
		if _, ok := windows[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range windows {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// FormatReset describes how far away resetsAt is.
func FormatReset(resetsAt *time.Time, now time.Time) string {
	if resetsAt == nil {
		return ""
	}
	d := resetsAt.Sub(now)
	if d <= 0 {
		return "resetting"
	}
	return "resets in " + FormatDuration(d)
}

func FormatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	mins := int(d % time.Hour / time.Minute)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}

type RenderOptions struct {
	GaugeWidth int
	Thresholds Thresholds
	Now        time.Time
}

func (o RenderOptions) withDefaults() RenderOptions {
	if o.GaugeWidth <= 0 {
		o.GaugeWidth = 24
	}
	if o.Thresholds == (Thresholds{}) {
		o.Thresholds = DefaultThresholds
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	return o
}

// RenderSnapshot renders a provider header followed by one gauge line per
// window.
func RenderSnapshot(name string, snap core.UsageSnapshot, opts RenderOptions) string {
	opts = opts.withDefaults()

	var sb strings.Builder
	sb.WriteString(renderHeader(name, snap.Tier, snap.Status()))
	sb.WriteByte('\n')

	keys := SortedWindowKeys(snap.Windows)
	if len(keys) == 0 {
		sb.WriteString("  " + dimStyle.Render("no usage windows reported") + "\n")
	}
	for _, key := range keys {
		w := snap.Windows[key]
		line := fmt.Sprintf("  %s %s",
			labelStyle.Render(fmt.Sprintf("%-14s", WindowLabel(key))),
			RenderUsageGauge(w.UtilizationPercent, opts.GaugeWidth, opts.Thresholds),
		)
		if w.Used != nil && w.Limit != nil {
			line += "  " + valueStyle.Render(fmt.Sprintf("%s/%s", formatNumber(*w.Used), formatNumber(*w.Limit)))
		}
		if reset := FormatReset(w.ResetsAt, opts.Now); reset != "" {
			line += "  " + dimStyle.Render(reset)
		}
		sb.WriteString(line + "\n")
	}

	if snap.Quota != nil && snap.Used != nil {
		extra := fmt.Sprintf("  quota %s, used %s", formatNumber(*snap.Quota), formatNumber(*snap.Used))
		if snap.HourlyReplenishment != nil {
			extra += fmt.Sprintf(", +%s/h", formatNumber(*snap.HourlyReplenishment))
		}
		sb.WriteString(dimStyle.Render(extra) + "\n")
	}
	if snap.Extra != nil && snap.Extra.Enabled {
		extra := "  extra usage enabled"
		if snap.Extra.Used != nil && snap.Extra.MonthlyLimit != nil {
			extra += fmt.Sprintf(" (%s of %s)", formatNumber(*snap.Extra.Used), formatNumber(*snap.Extra.MonthlyLimit))
		}
		sb.WriteString(dimStyle.Render(extra) + "\n")
	}
	return sb.String()
}

// RenderError renders a provider header with the failure and a remediation
// hint.
func RenderError(name string, err error) string {
	status := core.StatusForError(err)
	var sb strings.Builder
	sb.WriteString(renderHeader(name, core.TierInfo{}, status))
	sb.WriteByte('\n')
	sb.WriteString("  " + statusStyle(status).Render(err.Error()) + "\n")
	if hint := Hint(core.KindOf(err)); hint != "" {
		sb.WriteString("  " + dimStyle.Render(hint) + "\n")
	}
	return sb.String()
}

// Hint suggests the user action for an error kind.
func Hint(kind core.ErrorKind) string {
	switch kind {
	case core.KindCredentialMissing:
		return "no credential configured; run `usagebar creds set <provider>`"
	case core.KindAuthentication:
		return "credential rejected; update it with `usagebar creds set <provider>`"
	case core.KindSessionExpired:
		return "session expired; sign in again in the browser and re-import the cookie"
	case core.KindAccessDenied:
		return "account has no access to usage data for this plan"
	case core.KindRateLimited:
		return "rate limited upstream; will retry on the next poll"
	case core.KindServerUnavailable, core.KindNetwork:
		return "upstream unreachable; will retry on the next poll"
	case core.KindMalformedResponse:
		return "upstream response format changed"
	default:
		return ""
	}
}

func renderHeader(name string, t core.TierInfo, status core.Status) string {
	parts := []string{titleStyle.Render(name)}
	if t.PlanName != "" {
		parts = append(parts, planTagStyle.Render("["+t.PlanName.String()+"]"))
	}
	parts = append(parts, StatusBadge(status))
	return strings.Join(parts, " ")
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
