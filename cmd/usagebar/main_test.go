package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/janekbaraniewski/usagebar/internal/config"
	"github.com/janekbaraniewski/usagebar/internal/core"
	"github.com/janekbaraniewski/usagebar/internal/daemon"
	"github.com/janekbaraniewski/usagebar/internal/history"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand(config.DefaultConfig())
	want := []string{"status", "refresh", "tier", "watch", "creds", "history", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered (err=%v)", name, err)
		}
	}

	creds, _, _ := root.Find([]string{"creds"})
	for _, name := range []string{"set", "delete", "check", "validate", "import-cookie"} {
		cmd, _, err := creds.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("creds subcommand %q not registered (err=%v)", name, err)
		}
	}

	watch, _, _ := root.Find([]string{"watch"})
	for _, flag := range []string{"interval", "plain"} {
		if watch.Flags().Lookup(flag) == nil {
			t.Errorf("watch flag --%s not registered", flag)
		}
	}
}

func TestWriteStatusJSON(t *testing.T) {
	snap := core.NewUsageSnapshot("claude", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	snap.SetWindow(core.WindowFiveHour, core.Window{UtilizationPercent: 42})
	results := []daemon.Result{
		{ProviderID: "claude", Snapshot: snap},
		{ProviderID: "zai", Err: core.NewError("zai", core.KindAuthentication, "invalid api key")},
	}

	var buf bytes.Buffer
	if err := writeStatusJSON(&buf, results); err != nil {
		t.Fatalf("writeStatusJSON() error: %v", err)
	}

	var decoded []statusJSON
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode output: %v\n%s", err, buf.String())
	}
	if len(decoded) != 2 {
		t.Fatalf("len(decoded) = %d, want 2", len(decoded))
	}
	if decoded[0].Status != core.StatusOK || decoded[0].Snapshot == nil {
		t.Fatalf("decoded[0] = %+v, want OK with snapshot", decoded[0])
	}
	if got := decoded[0].Snapshot.Windows[core.WindowFiveHour].UtilizationPercent; got != 42 {
		t.Fatalf("five_hour = %v, want 42", got)
	}
	if decoded[1].Kind != core.KindAuthentication || decoded[1].Status != core.StatusAuth {
		t.Fatalf("decoded[1] = %+v, want auth failure", decoded[1])
	}
	if decoded[1].Snapshot != nil {
		t.Fatal("failed provider should not carry a snapshot")
	}
}

func TestRenderHistoryTable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reset := now.Add(90 * time.Minute)
	entries := []history.Entry{
		{
			ProviderID:  "claude",
			RecordedAt:  now,
			Window:      core.WindowFiveHour,
			Utilization: 37.5,
			ResetsAt:    &reset,
			PlanName:    core.PlanMax,
		},
		{
			ProviderID:  "zai",
			RecordedAt:  now,
			Window:      core.WindowTime,
			Utilization: 50,
			Used:        core.Float64Ptr(150),
			Limit:       core.Float64Ptr(300),
		},
	}

	var buf bytes.Buffer
	if err := renderHistoryTable(&buf, entries, now); err != nil {
		t.Fatalf("renderHistoryTable() error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Provider", "claude", "5h session", "37.5", "resets in 1h 30m", "Max", "150/300"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestRenderHistoryTrends(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []history.Entry{
		{ProviderID: "claude", RecordedAt: now, Window: core.WindowFiveHour, Utilization: 60},
		{ProviderID: "zai", RecordedAt: now, Window: core.WindowTokens, Utilization: 5},
		{ProviderID: "claude", RecordedAt: now.Add(-time.Minute), Window: core.WindowFiveHour, Utilization: 40},
		{ProviderID: "claude", RecordedAt: now.Add(-2 * time.Minute), Window: core.WindowFiveHour, Utilization: 20},
	}

	var buf bytes.Buffer
	renderHistoryTrends(&buf, entries)
	out := buf.String()
	if !strings.Contains(out, "claude") || !strings.Contains(out, "5h session") || !strings.Contains(out, "60.0%") {
		t.Fatalf("trend output missing claude 5h line:\n%s", out)
	}
	if strings.Contains(out, "zai") {
		t.Fatalf("single-sample window should not get a trend:\n%s", out)
	}

	buf.Reset()
	renderHistoryTrends(&buf, entries[1:2])
	if buf.Len() != 0 {
		t.Fatalf("trend output = %q, want empty", buf.String())
	}
}

func TestReadSecret_TrimsInput(t *testing.T) {
	got, err := readSecret(strings.NewReader("  sk-abc123  \n"), &bytes.Buffer{}, "zai")
	if err != nil {
		t.Fatalf("readSecret() error: %v", err)
	}
	if got != "sk-abc123" {
		t.Fatalf("readSecret() = %q, want sk-abc123", got)
	}

	got, err = readSecret(strings.NewReader("no-newline"), &bytes.Buffer{}, "zai")
	if err != nil {
		t.Fatalf("readSecret() error: %v", err)
	}
	if got != "no-newline" {
		t.Fatalf("readSecret() = %q, want no-newline", got)
	}
}
