package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/janekbaraniewski/usagebar/internal/config"
	"github.com/janekbaraniewski/usagebar/internal/core"
	"github.com/janekbaraniewski/usagebar/internal/daemon"
	"github.com/janekbaraniewski/usagebar/internal/tui"
)

type statusJSON struct {
	Provider string              `json:"provider"`
	Status   core.Status         `json:"status"`
	Snapshot *core.UsageSnapshot `json:"snapshot,omitempty"`
	Error    string              `json:"error,omitempty"`
	Kind     core.ErrorKind      `json:"error_kind,omitempty"`
}

func newStatusCommand(cfg config.Config) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status [provider...]",
		Short: "Show current usage for each provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cfg, args, false, asJSON, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print snapshots as JSON")
	return cmd
}

func newRefreshCommand(cfg config.Config) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "refresh [provider...]",
		Short: "Drop cached usage and fetch again",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cfg, args, true, asJSON, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print snapshots as JSON")
	return cmd
}

func runStatus(ctx context.Context, cfg config.Config, args []string, refresh, asJSON bool, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ids, err := a.providerArgs(args)
	if err != nil {
		return err
	}

	results := fetchResults(ctx, a.service, ids, refresh)
	if asJSON {
		return writeStatusJSON(w, results)
	}
	writeStatusText(w, a, results, time.Now())
	if lo.EveryBy(results, func(r daemon.Result) bool { return r.Err != nil }) {
		return fmt.Errorf("all providers failed")
	}
	return nil
}

// fetchResults queries ids concurrently; results keep the order of ids.
func fetchResults(ctx context.Context, svc *daemon.Service, ids []string, refresh bool) []daemon.Result {
	results := make([]daemon.Result, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			var (
				snap core.UsageSnapshot
				err  error
			)
			if refresh {
				snap, err = svc.Refresh(ctx, id)
			} else {
				snap, err = svc.GetUsage(ctx, id)
			}
			results[i] = daemon.Result{ProviderID: id, Snapshot: snap, Err: err}
		}(i, id)
	}
	wg.Wait()
	return results
}

func writeStatusText(w io.Writer, a *app, results []daemon.Result, now time.Time) {
	opts := tui.RenderOptions{Now: now}
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		name := a.displayName(r.ProviderID)
		if r.Err != nil {
			fmt.Fprint(w, tui.RenderError(name, r.Err))
			continue
		}
		fmt.Fprint(w, tui.RenderSnapshot(name, r.Snapshot, opts))
	}
}

func writeStatusJSON(w io.Writer, results []daemon.Result) error {
	out := lo.Map(results, func(r daemon.Result, _ int) statusJSON {
		entry := statusJSON{Provider: r.ProviderID, Status: r.Status()}
		if r.Err != nil {
			entry.Error = r.Err.Error()
			entry.Kind = core.KindOf(r.Err)
			return entry
		}
		snap := r.Snapshot
		entry.Snapshot = &snap
		return entry
	})
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func newTierCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "tier [provider...]",
		Short: "Show the inferred subscription plan for each provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ids, err := a.providerArgs(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			out := cmd.OutOrStdout()
			for _, id := range ids {
				t, err := a.service.GetTier(ctx, id)
				if err != nil {
					fmt.Fprintf(out, "%-8s %s (%s)\n", id, tui.StatusBadge(core.StatusForError(err)), err)
					continue
				}
				raw := lo.Ternary(t.RawTier == "", "-", t.RawTier)
				fmt.Fprintf(out, "%-8s %-10s raw=%s\n", id, t.PlanName.String(), raw)
			}
			return nil
		},
	}
}
