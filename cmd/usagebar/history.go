package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/janekbaraniewski/usagebar/internal/config"
	"github.com/janekbaraniewski/usagebar/internal/history"
	"github.com/janekbaraniewski/usagebar/internal/tui"
)

func newHistoryCommand(cfg config.Config) *cobra.Command {
	var (
		limit   int
		noTrend bool
	)

	cmd := &cobra.Command{
		Use:   "history [provider]",
		Short: "Show recently recorded usage",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			provider := ""
			if len(args) == 1 {
				provider = args[0]
			}
			entries, err := store.Recent(cmd.Context(), provider, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no history recorded yet; run `usagebar status` or `usagebar watch`")
				return nil
			}
			if err := renderHistoryTable(cmd.OutOrStdout(), entries, time.Now()); err != nil {
				return err
			}
			if !noTrend {
				renderHistoryTrends(cmd.OutOrStdout(), entries)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 30, "maximum rows")
	cmd.Flags().BoolVar(&noTrend, "no-trend", false, "omit the per-window trend lines")
	return cmd
}

func renderHistoryTable(w io.Writer, entries []history.Entry, now time.Time) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Settings: tw.Settings{Separators: tw.Separators{BetweenRows: tw.Off}},
		})),
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header([]string{"Recorded", "Provider", "Window", "Used %", "Used/Limit", "Reset", "Plan"})

	for _, e := range entries {
		usedLimit := "-"
		if e.Used != nil && e.Limit != nil {
			usedLimit = fmt.Sprintf("%g/%g", *e.Used, *e.Limit)
		}
		reset := tui.FormatReset(e.ResetsAt, now)
		if reset == "" {
			reset = "-"
		}
		plan := strings.TrimSpace(string(e.PlanName))
		if plan == "" {
			plan = "-"
		}
		if err := table.Append([]string{
			e.RecordedAt.Local().Format("2006-01-02 15:04"),
			e.ProviderID,
			tui.WindowLabel(e.Window),
			fmt.Sprintf("%.1f", e.Utilization),
			usedLimit,
			reset,
			plan,
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

const historyTrendWidth = 30

// renderHistoryTrends prints one sparkline per provider window. entries are
// newest first, as returned by Store.Recent.
func renderHistoryTrends(w io.Writer, entries []history.Entry) {
	groups := lo.GroupBy(entries, func(e history.Entry) string {
		return e.ProviderID + "\x00" + e.Window
	})
	keys := lo.Keys(groups)
	sort.Strings(keys)

	wrote := false
	for _, key := range keys {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		values := make([]float64, len(group))
		for i, e := range group {
			values[len(group)-1-i] = e.Utilization
		}
		if !wrote {
			fmt.Fprintln(w)
			wrote = true
		}
		label := fmt.Sprintf("%-8s %-14s", group[0].ProviderID, tui.WindowLabel(group[0].Window))
		fmt.Fprintf(w, "%s %s %5.1f%%\n", label, tui.RenderTrend(values, historyTrendWidth, tui.DefaultThresholds), group[0].Utilization)
	}
}
