// Package amp scrapes free tier usage from the Amp settings page using the
// browser session cookie.
package amp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/janekbaraniewski/usagebar/internal/core"
	"github.com/janekbaraniewski/usagebar/internal/credentials"
	"github.com/janekbaraniewski/usagebar/internal/extract"
	"github.com/janekbaraniewski/usagebar/internal/providers/providerbase"
	"github.com/janekbaraniewski/usagebar/internal/providers/shared"
)

const (
	ProviderID = "amp"

	SettingsPath       = "/settings"
	DefaultSettingsURL = "https://ampcode.com" + SettingsPath
	CookieDomain       = "ampcode.com"
	CookieName         = "session"
)

// Redirect targets and page phrases that mean the session is no longer valid.
var (
	loginLocationMarkers = []string{"login", "signin", "auth"}
	loginPageMarkers     = []string{"sign in to your account", "log in to your account"}
)

type Client struct {
	providerbase.Base

	creds       *credentials.Cache
	http        *http.Client
	settingsURL string
	now         func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		cp := *hc
		cp.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
		c.http = &cp
	}
}

func WithSettingsURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.settingsURL = u
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(creds *credentials.Cache, opts ...Option) *Client {
	c := &Client{
		Base: providerbase.New(core.ProviderSpec{
			ID: ProviderID,
			Info: core.ProviderInfo{
				Name:         "Amp",
				Capabilities: []string{"html_scrape", "free_tier_quota", "hourly_replenishment"},
				DocURL:       "https://ampcode.com/settings",
			},
			Auth: core.ProviderAuthSpec{Type: core.ProviderAuthTypeCookie},
			Setup: core.ProviderSetupSpec{
				Quickstart: []string{
					"Log in at ampcode.com, then run `usagebar creds import-cookie amp` to copy the session cookie from your browser.",
					"Or paste the value of the `session` cookie with `usagebar creds set amp`.",
				},
			},
		}),
		creds:       creds,
		http:        shared.NewNoRedirectClient(shared.DefaultTimeout),
		settingsURL: DefaultSettingsURL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) HasCredential() bool {
	return c.creds.Has(c.CredentialKey())
}

func (c *Client) SaveCredential(value string) error {
	return c.creds.Set(c.CredentialKey(), NormalizeCookie(value))
}

func (c *Client) DeleteCredential() error {
	return c.creds.Delete(c.CredentialKey())
}

// NormalizeCookie accepts either the bare cookie value or a pasted
// "session=..." pair.
func NormalizeCookie(value string) string {
	value = strings.TrimSpace(value)
	if len(value) > len(CookieName)+1 && strings.EqualFold(value[:len(CookieName)+1], CookieName+"=") {
		value = value[len(CookieName)+1:]
	}
	if i := strings.IndexByte(value, ';'); i >= 0 {
		value = value[:i]
	}
	return strings.TrimSpace(value)
}

func (c *Client) FetchUsage(ctx context.Context) (core.UsageSnapshot, error) {
	cookie, err := c.creds.Get(c.CredentialKey())
	if err != nil {
		return core.UsageSnapshot{}, core.WrapError(ProviderID, core.KindCredentialMissing, fmt.Errorf("no session cookie configured: %w", err))
	}

	body, err := c.fetchSettings(ctx, cookie)
	if err != nil {
		return core.UsageSnapshot{}, err
	}

	usage, err := extract.ParseFreeTierUsage(body)
	if err != nil {
		log.Printf("amp level=warn event=extract_failed bytes=%d error=%q", len(body), err)
		return core.UsageSnapshot{}, core.WrapError(ProviderID, core.KindMalformedResponse, err)
	}
	return c.snapshot(usage), nil
}

// ValidateCredential runs the same request and classification as
// FetchUsage with candidate instead of the stored cookie. It does not
// require the usage object to be present.
func (c *Client) ValidateCredential(ctx context.Context, candidate string) error {
	candidate = NormalizeCookie(candidate)
	if candidate == "" {
		return core.NewError(ProviderID, core.KindCredentialMissing, "session cookie cannot be empty")
	}
	resolved, err := credentials.ResolveEnvReference(candidate)
	if err != nil {
		return core.WrapError(ProviderID, core.KindCredentialMissing, err)
	}
	_, err = c.fetchSettings(ctx, resolved)
	return err
}

func (c *Client) fetchSettings(ctx context.Context, cookie string) (string, error) {
	req, err := shared.CreateStandardRequest(ctx, http.MethodGet, c.settingsURL, nil, map[string]string{
		"Cookie":          CookieName + "=" + cookie,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
		"Referer":         "https://ampcode.com",
	})
	if err != nil {
		return "", core.WrapError(ProviderID, core.KindUnclassified, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", shared.ClassifyNetworkError(ProviderID, err)
	}
	defer resp.Body.Close()

	var body []byte
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, err = shared.ReadBody(resp)
		if err != nil {
			return "", shared.ClassifyNetworkError(ProviderID, err)
		}
	}
	if err := classifyResponse(resp.StatusCode, resp.Header.Get("Location"), string(body)); err != nil {
		log.Printf("amp level=warn event=session_check_failed status=%d kind=%s", resp.StatusCode, core.KindOf(err))
		return "", err
	}
	return string(body), nil
}

// classifyResponse holds every heuristic used to decide whether a settings
// page response is usable. Checks run in order; nil means extraction may run.
func classifyResponse(status int, location, body string) error {
	switch {
	case status >= 300 && status < 400:
		loc := strings.ToLower(location)
		for _, marker := range loginLocationMarkers {
			if strings.Contains(loc, marker) {
				return &core.ProviderError{
					Provider: ProviderID, Kind: core.KindSessionExpired, Status: status,
					Err: errors.New("session expired, please update your session cookie"),
				}
			}
		}
		return &core.ProviderError{
			Provider: ProviderID, Kind: core.KindUnexpectedRedirect, Status: status,
			Err: fmt.Errorf("unexpected redirect to %q", location),
		}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &core.ProviderError{
			Provider: ProviderID, Kind: core.KindSessionExpired, Status: status,
			Err: errors.New("session invalid, please update your session cookie"),
		}
	case status < 200 || status >= 300:
		return &core.ProviderError{
			Provider: ProviderID, Kind: core.KindRequestFailed, Status: status,
			Err: errors.New("failed to fetch settings"),
		}
	}

	lower := strings.ToLower(body)
	for _, marker := range loginPageMarkers {
		if strings.Contains(lower, marker) {
			return core.NewError(ProviderID, core.KindSessionExpired, "session expired, login page returned")
		}
	}
	return nil
}

func (c *Client) snapshot(u extract.FreeTierUsage) core.UsageSnapshot {
	now := c.now()
	snap := core.NewUsageSnapshot(ProviderID, now)
	snap.Quota = core.Float64Ptr(u.Quota)
	snap.Used = core.Float64Ptr(u.Used)
	snap.HourlyReplenishment = core.Float64Ptr(u.HourlyReplenishment)
	snap.WindowHours = u.WindowHours

	w := core.Window{
		UtilizationPercent: u.UsedPercent,
		Used:               core.Float64Ptr(u.Used),
		Limit:              core.Float64Ptr(u.Quota),
	}
	if u.WindowHours != nil {
		w.ResetsAt = extract.EpochAlignedReset(now, *u.WindowHours)
	}
	snap.SetWindow(core.WindowFreeTier, w)
	snap.Tier = core.TierInfo{PlanName: core.PlanFree, RawTier: "free_tier"}
	return snap
}
