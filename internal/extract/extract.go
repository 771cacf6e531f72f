// Package extract pulls usage figures out of JavaScript object literals
// embedded in HTML pages.
package extract

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/janekbaraniewski/usagebar/internal/core"
)

// Markers identify the free tier usage object, in lookup order.
var Markers = []string{"freeTierUsage", "getFreeTierUsage"}

// ImplausibleQuota is the converted quota above which the cents assumption
// is probably wrong. Exceeding it only logs a warning.
const ImplausibleQuota = 10000

var (
	ErrMarkerNotFound  = errors.New("usage object not found in page")
	ErrUnmatchedBraces = errors.New("malformed usage object (unmatched braces)")
)

// FieldError reports a required field that is missing or not a number.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("field %q not found in usage object", e.Field)
}

func (e *FieldError) Unwrap() error { return e.Err }

// FreeTierUsage holds values already converted from cents.
type FreeTierUsage struct {
	Quota               float64
	Used                float64
	UsedPercent         float64
	HourlyReplenishment float64
	WindowHours         *float64
}

// FindObject returns the first object literal assigned to one of markers.
// Occurrences inside string literals, or not followed by ':' or '=' and then
// '{', are skipped.
func FindObject(doc string, markers ...string) (string, error) {
	for _, marker := range markers {
		offset := 0
		for {
			idx := strings.Index(doc[offset:], marker)
			if idx < 0 {
				break
			}
			pos := offset + idx
			offset = pos + len(marker)

			open, ok := objectStart(doc, pos, len(marker))
			if !ok {
				continue
			}
			end, err := matchBrace(doc, open)
			if err != nil {
				return "", err
			}
			return doc[open : end+1], nil
		}
	}
	return "", ErrMarkerNotFound
}

// objectStart checks the occurrence at pos and returns the index of its
// opening brace.
func objectStart(doc string, pos, length int) (int, bool) {
	i := pos + length

	if pos > 0 {
		prev := doc[pos-1]
		if isIdentByte(prev) {
			return 0, false
		}
		if isQuote(prev) {
			// A quoted key closes right after the identifier; anything else
			// means the marker sits inside a string.
			if i >= len(doc) || doc[i] != prev {
				return 0, false
			}
			i++
		}
	}
	if i < len(doc) && isIdentByte(doc[i]) {
		return 0, false
	}

	i = skipSpace(doc, i)
	if i >= len(doc) || (doc[i] != ':' && doc[i] != '=') {
		return 0, false
	}
	i = skipSpace(doc, i+1)
	if i >= len(doc) || doc[i] != '{' {
		return 0, false
	}
	return i, true
}

// matchBrace returns the index of the '}' that closes the '{' at open.
func matchBrace(doc string, open int) (int, error) {
	depth := 0
	for i := open; i < len(doc); i++ {
		switch doc[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
			if depth < 0 {
				return 0, ErrUnmatchedBraces
			}
		}
	}
	return 0, ErrUnmatchedBraces
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

func isQuote(b byte) bool {
	return b == '"' || b == '\'' || b == '`'
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '$' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

var fieldPatterns = map[string]*regexp.Regexp{}

func init() {
	for _, f := range []string{"quota", "used", "hourlyReplenishment", "windowHours"} {
		fieldPatterns[f] = compileField(f)
	}
}

func compileField(field string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|[^A-Za-z0-9_$])["']?` + regexp.QuoteMeta(field) + `["']?\s*:\s*([0-9]+(?:\.[0-9]+)?)`)
}

func fieldPattern(field string) *regexp.Regexp {
	if re, ok := fieldPatterns[field]; ok {
		return re
	}
	return compileField(field)
}

// Number extracts a numeric field. ok is false when the field is absent.
func Number(obj, field string) (value float64, ok bool, err error) {
	m := fieldPattern(field).FindStringSubmatch(obj)
	if m == nil {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, true, &FieldError{Field: field, Err: err}
	}
	return v, true, nil
}

// RequiredNumber is Number with absence reported as a *FieldError.
func RequiredNumber(obj, field string) (float64, error) {
	v, ok, err := Number(obj, field)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &FieldError{Field: field}
	}
	return v, nil
}

// ParseFreeTierUsage locates the free tier object in doc and converts its
// cent values. windowHours is passed through unconverted.
func ParseFreeTierUsage(doc string) (FreeTierUsage, error) {
	obj, err := FindObject(doc, Markers...)
	if err != nil {
		return FreeTierUsage{}, err
	}

	var raw [3]float64
	for i, field := range []string{"quota", "used", "hourlyReplenishment"} {
		v, err := RequiredNumber(obj, field)
		if err != nil {
			return FreeTierUsage{}, err
		}
		raw[i] = v
	}
	windowHours, hasWindow, err := Number(obj, "windowHours")
	if err != nil {
		return FreeTierUsage{}, err
	}

	out := FreeTierUsage{
		Quota:               raw[0] / 100,
		Used:                raw[1] / 100,
		HourlyReplenishment: raw[2] / 100,
	}
	if hasWindow {
		out.WindowHours = core.Float64Ptr(windowHours)
	}
	if out.Quota > ImplausibleQuota {
		log.Printf("extract level=warn event=implausible_quota quota=%.2f raw=%.0f", out.Quota, raw[0])
	}
	out.UsedPercent = core.UsedPercent(out.Used, out.Quota)
	return out, nil
}

// EpochAlignedReset returns the end of the window containing now, assuming
// windows of windowHours are aligned to the Unix epoch. It returns nil when
// the window length rounds to zero seconds.
func EpochAlignedReset(now time.Time, windowHours float64) *time.Time {
	window := int64(windowHours * 3600)
	if window <= 0 {
		return nil
	}
	secs := now.Unix()
	start := secs - secs%window
	reset := time.Unix(start+window, 0).UTC()
	return &reset
}
