package extract

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestParseFreeTierUsageConvertsCents(t *testing.T) {
	doc := `<script>window.__data = {user: {id: 7}, freeTierUsage: { quota: 5000, used: 2500, hourlyReplenishment: 100, windowHours: 1.0 }};</script>`

	got, err := ParseFreeTierUsage(doc)
	if err != nil {
		t.Fatalf("ParseFreeTierUsage error: %v", err)
	}
	if got.Quota != 50 || got.Used != 25 {
		t.Errorf("quota/used = %v/%v, want 50/25", got.Quota, got.Used)
	}
	if got.UsedPercent != 50 {
		t.Errorf("UsedPercent = %v, want 50", got.UsedPercent)
	}
	if got.HourlyReplenishment != 1 {
		t.Errorf("HourlyReplenishment = %v, want 1", got.HourlyReplenishment)
	}
	if got.WindowHours == nil || *got.WindowHours != 1 {
		t.Errorf("WindowHours = %v, want 1", got.WindowHours)
	}
}

func TestParseFreeTierUsageGetterMarker(t *testing.T) {
	doc := `const s = getFreeTierUsage = {"quota": 1000, "used": 1500, "hourlyReplenishment": 50}`
	got, err := ParseFreeTierUsage(doc)
	if err != nil {
		t.Fatalf("ParseFreeTierUsage error: %v", err)
	}
	if got.UsedPercent != 100 {
		t.Errorf("UsedPercent = %v, want clamped 100", got.UsedPercent)
	}
	if got.WindowHours != nil {
		t.Errorf("WindowHours = %v, want nil", *got.WindowHours)
	}
}

func TestParseFreeTierUsageZeroQuota(t *testing.T) {
	got, err := ParseFreeTierUsage(`freeTierUsage:{quota:0,used:300,hourlyReplenishment:0}`)
	if err != nil {
		t.Fatalf("ParseFreeTierUsage error: %v", err)
	}
	if got.UsedPercent != 0 {
		t.Errorf("UsedPercent = %v, want 0", got.UsedPercent)
	}
}

func TestParseFreeTierUsageMissingField(t *testing.T) {
	_, err := ParseFreeTierUsage(`freeTierUsage: { used: 2500, hourlyReplenishment: 100 }`)
	var fe *FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want *FieldError", err)
	}
	if fe.Field != "quota" {
		t.Errorf("FieldError.Field = %q, want quota", fe.Field)
	}
	if !strings.Contains(err.Error(), `"quota"`) {
		t.Errorf("error %q does not name the field", err)
	}
}

func TestParseFreeTierUsageUnmatchedBraces(t *testing.T) {
	_, err := ParseFreeTierUsage(`freeTierUsage: { quota: 5000, used: 1, nested: { a: 1 }`)
	if !errors.Is(err, ErrUnmatchedBraces) {
		t.Fatalf("error = %v, want ErrUnmatchedBraces", err)
	}
}

func TestParseFreeTierUsageNoMarker(t *testing.T) {
	_, err := ParseFreeTierUsage(`<html><body>nothing here</body></html>`)
	if !errors.Is(err, ErrMarkerNotFound) {
		t.Fatalf("error = %v, want ErrMarkerNotFound", err)
	}
}

func TestFindObjectSkipsQuotedMarker(t *testing.T) {
	doc := `<p>"freeTierUsage is cool"</p><p>'freeTierUsage: {'</p><script>x.freeTierUsage = {quota: 200, used: 50, hourlyReplenishment: 10}</script>`

	obj, err := FindObject(doc, Markers...)
	if err != nil {
		t.Fatalf("FindObject error: %v", err)
	}
	if obj != `{quota: 200, used: 50, hourlyReplenishment: 10}` {
		t.Errorf("FindObject = %q", obj)
	}

	got, err := ParseFreeTierUsage(doc)
	if err != nil {
		t.Fatalf("ParseFreeTierUsage error: %v", err)
	}
	if got.Quota != 2 || got.Used != 0.5 {
		t.Errorf("quota/used = %v/%v, want 2/0.5", got.Quota, got.Used)
	}
}

func TestFindObjectSkipsIncidentalText(t *testing.T) {
	doc := `freeTierUsage was updated; myfreeTierUsage: {quota: 1}; freeTierUsage: {quota: 9, used: 1, hourlyReplenishment: 1}`
	obj, err := FindObject(doc, Markers...)
	if err != nil {
		t.Fatalf("FindObject error: %v", err)
	}
	if !strings.HasPrefix(obj, "{quota: 9") {
		t.Errorf("FindObject = %q, want the real assignment", obj)
	}
}

func TestFindObjectQuotedKey(t *testing.T) {
	obj, err := FindObject(`{"freeTierUsage": {"quota": 1, "inner": {"a": 2}}, "other": 3}`, Markers...)
	if err != nil {
		t.Fatalf("FindObject error: %v", err)
	}
	if obj != `{"quota": 1, "inner": {"a": 2}}` {
		t.Errorf("FindObject = %q", obj)
	}
}

func TestNumberFieldBoundaries(t *testing.T) {
	obj := `{unused: 99, used: 12.5, quotaCap: 1, quota: 40}`
	if v, _ := RequiredNumber(obj, "used"); v != 12.5 {
		t.Errorf("used = %v, want 12.5", v)
	}
	if v, _ := RequiredNumber(obj, "quota"); v != 40 {
		t.Errorf("quota = %v, want 40", v)
	}
	if _, ok, err := Number(obj, "windowHours"); ok || err != nil {
		t.Errorf("windowHours ok=%v err=%v, want absent", ok, err)
	}
}

func TestParseFreeTierUsageImplausibleQuotaStillParses(t *testing.T) {
	got, err := ParseFreeTierUsage(`freeTierUsage: {quota: 5000000, used: 0, hourlyReplenishment: 0}`)
	if err != nil {
		t.Fatalf("ParseFreeTierUsage error: %v", err)
	}
	if got.Quota != 50000 {
		t.Errorf("Quota = %v, want 50000", got.Quota)
	}
}

func TestUsedPercentAlwaysClamped(t *testing.T) {
	for _, tc := range []struct{ used, quota float64 }{
		{0, 10}, {5, 10}, {10, 10}, {1e9, 1}, {3, 0}, {3, -5},
	} {
		doc := "freeTierUsage: {quota: " + trimFloat(tc.quota) + ", used: " + trimFloat(tc.used) + ", hourlyReplenishment: 0}"
		got, err := ParseFreeTierUsage(doc)
		if tc.quota < 0 {
			// negative numbers are not matched by the field pattern
			if err == nil {
				t.Errorf("negative quota parsed without error")
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseFreeTierUsage(%q) error: %v", doc, err)
		}
		if got.UsedPercent < 0 || got.UsedPercent > 100 || math.IsNaN(got.UsedPercent) {
			t.Errorf("UsedPercent(%v/%v) = %v out of range", tc.used, tc.quota, got.UsedPercent)
		}
		if tc.quota <= 0 && got.UsedPercent != 0 {
			t.Errorf("UsedPercent with quota %v = %v, want 0", tc.quota, got.UsedPercent)
		}
	}
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func TestEpochAlignedReset(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 34, 56, 0, time.UTC)

	got := EpochAlignedReset(now, 1)
	want := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	if got == nil || !got.Equal(want) {
		t.Fatalf("EpochAlignedReset(1h) = %v, want %v", got, want)
	}

	got = EpochAlignedReset(now, 24)
	want = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if got == nil || !got.Equal(want) {
		t.Fatalf("EpochAlignedReset(24h) = %v, want %v", got, want)
	}

	onBoundary := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	got = EpochAlignedReset(onBoundary, 1)
	want = time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	if got == nil || !got.Equal(want) {
		t.Fatalf("EpochAlignedReset on boundary = %v, want %v", got, want)
	}

	if got := EpochAlignedReset(now, 0); got != nil {
		t.Errorf("EpochAlignedReset(0) = %v, want nil", got)
	}
	if got := EpochAlignedReset(now, 0.0001); got != nil {
		t.Errorf("EpochAlignedReset(sub-second window) = %v, want nil", got)
	}
}
