package core

import (
	"math"
	"time"
)

type Status string

const (
	StatusOK        Status = "OK"
	StatusNearLimit Status = "NEAR_LIMIT"
	StatusLimited   Status = "LIMITED"
	StatusAuth      Status = "AUTH_REQUIRED"
	StatusError     Status = "ERROR"
	StatusUnknown   Status = "UNKNOWN"
)

// Window keys shared across providers.
const (
	WindowFiveHour     = "five_hour"
	WindowSevenDay     = "seven_day"
	WindowSevenDayOpus = "seven_day_opus"
	WindowSevenDaySonn = "seven_day_sonnet"
	WindowTokens       = "tokens"
	WindowTime         = "time"
	WindowFreeTier     = "free_tier"
)

// Window is one tracked usage window. UtilizationPercent is always in [0,100].
type Window struct {
	UtilizationPercent float64    `json:"utilization_percent"`
	ResetsAt           *time.Time `json:"resets_at,omitempty"`
	Used               *float64   `json:"used,omitempty"`
	Limit              *float64   `json:"limit,omitempty"`
}

type ExtraUsage struct {
	Enabled      bool     `json:"enabled"`
	MonthlyLimit *float64 `json:"monthly_limit,omitempty"`
	Used         *float64 `json:"used,omitempty"`
	Utilization  *float64 `json:"utilization,omitempty"`
}

// UsageSnapshot is the normalized result of one provider fetch. Each provider
// populates the subset of fields its upstream reports.
type UsageSnapshot struct {
	ProviderID string            `json:"provider_id"`
	Timestamp  time.Time         `json:"timestamp"`
	Windows    map[string]Window `json:"windows"`

	Quota               *float64 `json:"quota,omitempty"`
	Used                *float64 `json:"used,omitempty"`
	HourlyReplenishment *float64 `json:"hourly_replenishment,omitempty"`
	WindowHours         *float64 `json:"window_hours,omitempty"`

	Extra *ExtraUsage `json:"extra_usage,omitempty"`
	Tier  TierInfo    `json:"tier"`

	Raw map[string]string `json:"raw,omitempty"`
}

func NewUsageSnapshot(providerID string, now time.Time) UsageSnapshot {
	return UsageSnapshot{
		ProviderID: providerID,
		Timestamp:  now.UTC(),
		Windows:    make(map[string]Window),
		Raw:        make(map[string]string),
	}
}

// SetWindow stores w under key, clamping its utilization.
func (s *UsageSnapshot) SetWindow(key string, w Window) {
	if s.Windows == nil {
		s.Windows = make(map[string]Window)
	}
	w.UtilizationPercent = ClampPercent(w.UtilizationPercent)
	s.Windows[key] = w
}

// PeakUtilization returns the highest utilization across all windows, or -1
// when the snapshot has none.
func (s UsageSnapshot) PeakUtilization() float64 {
	peak := -1.0
	for _, w := range s.Windows {
		if w.UtilizationPercent > peak {
			peak = w.UtilizationPercent
		}
	}
	return peak
}

// Status derives a coarse status from the peak utilization.
func (s UsageSnapshot) Status() Status {
	peak := s.PeakUtilization()
	switch {
	case peak < 0:
		return StatusUnknown
	case peak >= 100:
		return StatusLimited
	case peak >= 80:
		return StatusNearLimit
	default:
		return StatusOK
	}
}

// ClampPercent bounds v to [0,100]. NaN maps to 0.
func ClampPercent(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

// UsedPercent computes used/quota as a clamped percentage; quota <= 0 yields 0.
func UsedPercent(used, quota float64) float64 {
	if quota <= 0 {
		return 0
	}
	return ClampPercent(used / quota * 100)
}

func Float64Ptr(v float64) *float64 {
	return &v
}

func TimePtr(t time.Time) *time.Time {
	return &t
}
