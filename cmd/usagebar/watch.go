package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/term"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/janekbaraniewski/usagebar/internal/config"
	"github.com/janekbaraniewski/usagebar/internal/daemon"
	"github.com/janekbaraniewski/usagebar/internal/tui"
)

func newWatchCommand(cfg config.Config) *cobra.Command {
	var (
		interval time.Duration
		plain    bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll all providers on an interval and show live usage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if interval > 0 {
				cfg.PollIntervalSeconds = int(interval / time.Second)
				if cfg.PollIntervalSeconds <= 0 {
					cfg.PollIntervalSeconds = 1
				}
			}
			if !plain && !term.IsTerminal(os.Stdout.Fd()) {
				plain = true
			}
			return runWatch(cfg, cmd.OutOrStdout(), plain)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (default from poll_interval_seconds)")
	cmd.Flags().BoolVar(&plain, "plain", false, "print each poll cycle instead of the live view")
	return cmd
}

func runWatch(cfg config.Config, w io.Writer, plain bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Providers.Claude.Enabled {
		go func() {
			if err := a.registry.ClaudeFile.Watch(ctx); err != nil {
				log.Printf("usagebar level=warn event=claude_watch_failed path=%s error=%v", a.registry.ClaudeFile.Path(), err)
			}
		}()
	}
	if a.history != nil {
		pruneHistory(ctx, a)
	}

	if plain {
		a.service.Run(ctx, func(results []daemon.Result) {
			now := time.Now()
			fmt.Fprintf(w, "── %s ──\n", now.Format("15:04:05"))
			writeStatusText(w, a, results, now)
			fmt.Fprintln(w)
		})
		return nil
	}

	model := tui.NewWatchModel(ctx, a.pollResults, cfg.PollInterval(), tui.RenderOptions{})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithOutput(w))
	go func() {
		<-ctx.Done()
		program.Quit()
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}

// pollResults refreshes every provider for the live view.
func (a *app) pollResults(ctx context.Context) []tui.ProviderResult {
	results := a.service.RefreshAll(ctx)
	return lo.Map(results, func(r daemon.Result, _ int) tui.ProviderResult {
		return tui.ProviderResult{
			ID:       r.ProviderID,
			Name:     a.displayName(r.ProviderID),
			Snapshot: r.Snapshot,
			Err:      r.Err,
		}
	})
}

func pruneHistory(ctx context.Context, a *app) {
	cutoff := time.Now().AddDate(0, 0, -a.cfg.History.RetentionDays)
	removed, err := a.history.Prune(ctx, cutoff)
	if err != nil {
		log.Printf("usagebar level=warn event=history_prune_failed error=%v", err)
		return
	}
	log.Printf("usagebar level=info event=history_pruned removed=%d cutoff=%s", removed, cutoff.Format(time.RFC3339))
}
