package parsers

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

func ParseFloat(val string) *float64 {
	val = strings.TrimSpace(val)
	if val == "" {
		return nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return nil
	}
	return &f
}

// ParseResetTime accepts unix seconds, RFC3339 or a Go duration relative to now.
func ParseResetTime(val string) *time.Time {
	val = strings.TrimSpace(val)
	if val == "" {
		return nil
	}

	if ts, err := strconv.ParseFloat(val, 64); err == nil && ts > 1_000_000_000 {
		t := time.Unix(int64(ts), 0)
		return &t
	}

	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return &t
	}

	if d, err := time.ParseDuration(val); err == nil {
		t := time.Now().Add(d)
		return &t
	}

	return nil
}

// AnyFloat converts a loosely typed JSON value. Numeric strings are accepted.
func AnyFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, !math.IsNaN(value)
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case json.Number:
		parsed, err := value.Float64()
		return parsed, err == nil
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func AnyString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(value)
	case json.Number:
		return value.String()
	case float64:
		if math.Mod(value, 1) == 0 {
			return strconv.FormatInt(int64(value), 10)
		}
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

// FirstNumber returns the first key in row holding a numeric value.
func FirstNumber(row map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		raw, ok := row[key]
		if !ok {
			continue
		}
		if parsed, ok := AnyFloat(raw); ok {
			return parsed, true
		}
	}
	return 0, false
}

func FirstString(row map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := AnyString(row[key]); s != "" {
			return s
		}
	}
	return ""
}

// ParseTimeValue reads epoch seconds, epoch milliseconds (values above 1e12)
// or an RFC3339 string.
func ParseTimeValue(raw any) (time.Time, bool) {
	if raw == nil {
		return time.Time{}, false
	}

	if n, ok := AnyFloat(raw); ok {
		if n <= 0 {
			return time.Time{}, false
		}
		if n > 1e12 {
			return time.UnixMilli(int64(n)).UTC(), true
		}
		return time.Unix(int64(n), 0).UTC(), true
	}

	value := AnyString(raw)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

func RedactHeaders(headers http.Header, sensitiveKeys ...string) map[string]string {
	sensitive := map[string]bool{
		"authorization": true,
		"x-api-key":     true,
		"cookie":        true,
		"set-cookie":    true,
	}
	for _, k := range sensitiveKeys {
		sensitive[strings.ToLower(k)] = true
	}

	out := make(map[string]string)
	for k, vals := range headers {
		key := strings.ToLower(k)
		val := strings.Join(vals, ", ")
		if sensitive[key] {
			val = RedactSecret(val)
		}
		out[k] = val
	}
	return out
}

// RedactSecret keeps only enough of a secret to tell two apart in logs.
func RedactSecret(val string) string {
	if len(val) > 8 {
		return val[:4] + "..." + val[len(val)-4:]
	}
	return "****"
}
