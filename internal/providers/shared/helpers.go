// Package shared holds the HTTP plumbing and status taxonomy common to all
// provider clients.
package shared

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/janekbaraniewski/usagebar/internal/core"
	"github.com/janekbaraniewski/usagebar/internal/parsers"
)

const (
	DefaultTimeout = 15 * time.Second
	UserAgent      = "usagebar/1.0"

	maxBodyBytes = 4 << 20
)

// NewHTTPClient returns the client a provider keeps for its lifetime.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// NewNoRedirectClient returns a client that hands 3xx responses back to the
// caller instead of following them.
func NewNoRedirectClient(timeout time.Duration) *http.Client {
	c := NewHTTPClient(timeout)
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}

func CreateStandardRequest(ctx context.Context, method, rawURL string, body io.Reader, headers map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

// ReadBody reads at most 4 MiB of the response body.
func ReadBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

// ClassifyStatus maps the non-auth part of the status taxonomy shared by all
// providers. It returns nil for 2xx. Callers handle 401 (and for some
// providers 403) before calling it.
func ClassifyStatus(provider string, status int) *core.ProviderError {
	var pe *core.ProviderError
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		pe = core.NewError(provider, core.KindRateLimited, "rate limited, please wait")
	case status >= 500:
		pe = core.NewError(provider, core.KindServerUnavailable, "server error, try again later")
	case status == http.StatusForbidden:
		pe = core.NewError(provider, core.KindAccessDenied, "access denied")
	case status == http.StatusUnauthorized:
		pe = core.NewError(provider, core.KindAuthentication, "not authorized")
	default:
		pe = core.NewError(provider, core.KindRequestFailed, "failed to fetch usage data")
	}
	pe.Status = status
	return pe
}

// ClassifyNetworkError wraps a transport error as KindNetwork with a message
// that tells timeouts and connection failures apart.
func ClassifyNetworkError(provider string, err error) *core.ProviderError {
	switch {
	case IsTimeout(err):
		return core.WrapError(provider, core.KindNetwork, fmt.Errorf("connection timed out, check your network: %w", err))
	case IsConnectError(err):
		return core.WrapError(provider, core.KindNetwork, fmt.Errorf("could not connect, check your network: %w", err))
	default:
		return core.WrapError(provider, core.KindNetwork, fmt.Errorf("network error: %w", err))
	}
}

func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func IsConnectError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// JoinURL appends path to base, tolerating a trailing slash on base.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

// RetryAfter reads a Retry-After header given either as seconds or as an
// absolute reset time.
func RetryAfter(h http.Header, now time.Time) *time.Time {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if secs := parsers.ParseFloat(v); secs != nil && *secs >= 0 && *secs < 1_000_000_000 {
		t := now.Add(time.Duration(*secs * float64(time.Second)))
		return &t
	}
	return parsers.ParseResetTime(v)
}

// LogFailure records a non-2xx exchange. Credential headers are redacted.
func LogFailure(provider string, resp *http.Response) {
	if resp == nil || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return
	}
	retry := "-"
	if t := RetryAfter(resp.Header, time.Now()); t != nil {
		retry = t.UTC().Format(time.RFC3339)
	}
	log.Printf("%s level=warn event=http_status status=%d retry_after=%s headers=%v",
		provider, resp.StatusCode, retry, parsers.RedactHeaders(resp.Header))
}
