package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/janekbaraniewski/usagebar/internal/core"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   core.ErrorKind
	}{
		{200, ""},
		{204, ""},
		{401, core.KindAuthentication},
		{403, core.KindAccessDenied},
		{404, core.KindRequestFailed},
		{418, core.KindRequestFailed},
		{429, core.KindRateLimited},
		{500, core.KindServerUnavailable},
		{503, core.KindServerUnavailable},
	}
	for _, tt := range tests {
		pe := ClassifyStatus("zai", tt.status)
		if tt.want == "" {
			if pe != nil {
				t.Errorf("ClassifyStatus(%d) = %v, want nil", tt.status, pe)
			}
			continue
		}
		if pe == nil {
			t.Fatalf("ClassifyStatus(%d) = nil, want %s", tt.status, tt.want)
		}
		if pe.Kind != tt.want || pe.Status != tt.status {
			t.Errorf("ClassifyStatus(%d) = %s/%d, want %s", tt.status, pe.Kind, pe.Status, tt.want)
		}
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyNetworkError(t *testing.T) {
	timeout := ClassifyNetworkError("amp", fmt.Errorf("get: %w", timeoutErr{}))
	if timeout.Kind != core.KindNetwork || !IsTimeout(timeout) {
		t.Errorf("timeout classified as %s (%v)", timeout.Kind, timeout)
	}

	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	connect := ClassifyNetworkError("amp", dial)
	if connect.Kind != core.KindNetwork || !IsConnectError(connect) {
		t.Errorf("dial error classified as %s (%v)", connect.Kind, connect)
	}

	other := ClassifyNetworkError("amp", errors.New("tls: bad record"))
	if other.Kind != core.KindNetwork || IsTimeout(other) || IsConnectError(other) {
		t.Errorf("other error classified as %v", other)
	}
}

func TestNoRedirectClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/settings" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := NewNoRedirectClient(time.Second).Get(srv.URL + "/settings")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/login" {
		t.Errorf("Location = %q, want /login", loc)
	}
}

func TestHTTPClientTimeout(t *testing.T) {
	if got := NewHTTPClient(0).Timeout; got != DefaultTimeout {
		t.Errorf("default timeout = %v, want %v", got, DefaultTimeout)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(20 * time.Millisecond).Get(srv.URL)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsTimeout(err) {
		t.Errorf("IsTimeout(%v) = false", err)
	}
}

func TestCreateStandardRequest(t *testing.T) {
	req, err := CreateStandardRequest(context.Background(), http.MethodGet, JoinURL("https://api.z.ai/", "/api/x"), nil,
		map[string]string{"Authorization": "raw-key"})
	if err != nil {
		t.Fatal(err)
	}
	if req.URL.String() != "https://api.z.ai/api/x" {
		t.Errorf("URL = %s", req.URL)
	}
	if req.Header.Get("Authorization") != "raw-key" || req.Header.Get("User-Agent") != UserAgent {
		t.Errorf("headers = %v", req.Header)
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	h := http.Header{}
	h.Set("Retry-After", "120")
	got := RetryAfter(h, now)
	if got == nil || !got.Equal(now.Add(2*time.Minute)) {
		t.Fatalf("RetryAfter(120) = %v, want %v", got, now.Add(2*time.Minute))
	}

	h.Set("Retry-After", "2026-03-01T13:00:00Z")
	got = RetryAfter(h, now)
	if got == nil || !got.Equal(now.Add(time.Hour)) {
		t.Fatalf("RetryAfter(rfc3339) = %v, want %v", got, now.Add(time.Hour))
	}

	if got := RetryAfter(http.Header{}, now); got != nil {
		t.Fatalf("RetryAfter(missing) = %v, want nil", got)
	}
}
