package core

import (
	"math"
	"testing"
	"time"
)

func TestClampPercent(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-5, 0},
		{0, 0},
		{42.5, 42.5},
		{100, 100},
		{140, 100},
		{math.NaN(), 0},
		{math.Inf(1), 100},
	}
	for _, tt := range tests {
		if got := ClampPercent(tt.in); got != tt.want {
			t.Errorf("ClampPercent(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestUsedPercent(t *testing.T) {
	if got := UsedPercent(25, 100); got != 25 {
		t.Errorf("UsedPercent(25, 100) = %v, want 25", got)
	}
	if got := UsedPercent(5, 0); got != 0 {
		t.Errorf("UsedPercent(5, 0) = %v, want 0", got)
	}
	if got := UsedPercent(300, 100); got != 100 {
		t.Errorf("UsedPercent(300, 100) = %v, want 100", got)
	}
}

func TestSetWindow_Clamps(t *testing.T) {
	snap := NewUsageSnapshot("claude", time.Now())
	snap.SetWindow(WindowFiveHour, Window{UtilizationPercent: 130})
	snap.SetWindow(WindowSevenDay, Window{UtilizationPercent: -3})

	if got := snap.Windows[WindowFiveHour].UtilizationPercent; got != 100 {
		t.Errorf("five_hour = %v, want 100", got)
	}
	if got := snap.Windows[WindowSevenDay].UtilizationPercent; got != 0 {
		t.Errorf("seven_day = %v, want 0", got)
	}

	var zero UsageSnapshot
	zero.SetWindow(WindowTokens, Window{UtilizationPercent: 5})
	if len(zero.Windows) != 1 {
		t.Errorf("SetWindow on zero snapshot should allocate the map")
	}
}

func TestUsageSnapshotStatus(t *testing.T) {
	tests := []struct {
		name  string
		peaks []float64
		want  Status
	}{
		{"no windows", nil, StatusUnknown},
		{"low", []float64{10, 30}, StatusOK},
		{"near", []float64{10, 85}, StatusNearLimit},
		{"limited", []float64{100, 5}, StatusLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := NewUsageSnapshot("x", time.Now())
			for i, p := range tt.peaks {
				snap.SetWindow(string(rune('a'+i)), Window{UtilizationPercent: p})
			}
			if got := snap.Status(); got != tt.want {
				t.Fatalf("Status() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPlanNameString_EmptyIsUnknown(t *testing.T) {
	var p PlanName
	if p.String() != "Unknown" {
		t.Fatalf("PlanName(\"\").String() = %q, want Unknown", p.String())
	}
	if PlanMax.String() != "Max" {
		t.Fatalf("PlanMax.String() = %q", PlanMax.String())
	}
}
