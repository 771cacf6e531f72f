// Package claude reads subscription usage from Anthropic's OAuth usage
// endpoint using the credentials Claude Code keeps on disk.
package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/janekbaraniewski/usagebar/internal/core"
	"github.com/janekbaraniewski/usagebar/internal/credentials"
	"github.com/janekbaraniewski/usagebar/internal/parsers"
	"github.com/janekbaraniewski/usagebar/internal/providers/providerbase"
	"github.com/janekbaraniewski/usagebar/internal/providers/shared"
	"github.com/janekbaraniewski/usagebar/internal/tier"
)

const (
	ProviderID = "claude"

	UsagePath       = "/api/oauth/usage"
	DefaultUsageURL = "https://api.anthropic.com" + UsagePath
	DefaultTokenURL = "https://console.anthropic.com/v1/oauth/token"

	OAuthClientID = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"
	betaHeader    = "oauth-2025-04-20"

	// ExpiryBuffer is how long before expiresAt a token is refreshed.
	ExpiryBuffer = 60 * time.Second
)

type TokenState int

const (
	TokenValid TokenState = iota
	TokenExpiringSoon
	TokenExpired
)

func (s TokenState) String() string {
	switch s {
	case TokenValid:
		return "valid"
	case TokenExpiringSoon:
		return "expiring_soon"
	default:
		return "expired"
	}
}

// ClassifyToken applies the refresh buffer: a token is due for refresh once
// now+ExpiryBuffer reaches expiresAt. A token without an expiry is treated
// as expired.
func ClassifyToken(expiresAtMs *int64, now time.Time) TokenState {
	if expiresAtMs == nil {
		return TokenExpired
	}
	nowMs := now.UnixMilli()
	switch {
	case nowMs >= *expiresAtMs:
		return TokenExpired
	case nowMs+ExpiryBuffer.Milliseconds() >= *expiresAtMs:
		return TokenExpiringSoon
	default:
		return TokenValid
	}
}

// NeedsRefresh reports whether the 60 second buffer rule treats the token
// as expired.
func NeedsRefresh(expiresAtMs *int64, now time.Time) bool {
	return ClassifyToken(expiresAtMs, now) != TokenValid
}

type usageBucket struct {
	Utilization float64 `json:"utilization"`
	ResetsAt    *string `json:"resets_at"`
}

type extraUsage struct {
	IsEnabled    bool     `json:"is_enabled"`
	MonthlyLimit *float64 `json:"monthly_limit"`
	UsedCredits  *float64 `json:"used_credits"`
	Utilization  *float64 `json:"utilization"`
}

type usageResponse struct {
	FiveHour       *usageBucket `json:"five_hour"`
	SevenDay       *usageBucket `json:"seven_day"`
	SevenDayOpus   *usageBucket `json:"seven_day_opus"`
	SevenDaySonnet *usageBucket `json:"seven_day_sonnet"`
	ExtraUsage     *extraUsage  `json:"extra_usage"`
	RateLimitTier  string       `json:"rate_limit_tier"`
	BillingType    string       `json:"billing_type"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type Client struct {
	providerbase.Base

	creds    *credentials.ClaudeFile
	http     *http.Client
	usageURL string
	tokenURL string
	now      func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithEndpoints overrides the usage and token URLs. Empty values keep the defaults.
func WithEndpoints(usageURL, tokenURL string) Option {
	return func(c *Client) {
		if usageURL != "" {
			c.usageURL = usageURL
		}
		if tokenURL != "" {
			c.tokenURL = tokenURL
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(creds *credentials.ClaudeFile, opts ...Option) *Client {
	c := &Client{
		Base: providerbase.New(core.ProviderSpec{
			ID: ProviderID,
			Info: core.ProviderInfo{
				Name:         "Claude",
				Capabilities: []string{"oauth_refresh", "five_hour_window", "seven_day_window", "extra_usage"},
				DocURL:       "https://docs.anthropic.com/en/docs/claude-code",
			},
			Auth: core.ProviderAuthSpec{Type: core.ProviderAuthTypeOAuth},
			Setup: core.ProviderSetupSpec{
				Quickstart: []string{
					"Log in with Claude Code (`claude login`); usagebar reads ~/.claude/.credentials.json.",
					"Or set " + credentials.ClaudeTokenEnv + " to a long-lived OAuth token.",
				},
			},
		}),
		creds:    creds,
		http:     shared.NewHTTPClient(shared.DefaultTimeout),
		usageURL: DefaultUsageURL,
		tokenURL: DefaultTokenURL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) HasCredential() bool {
	return c.creds.Exists()
}

// FetchUsage refreshes the token when it is close to expiry, then reads
// usage and tier from one usage request. A 401 triggers exactly one
// refresh and retry.
func (c *Client) FetchUsage(ctx context.Context) (core.UsageSnapshot, error) {
	tok, err := c.creds.Load()
	if err != nil {
		return core.UsageSnapshot{}, credentialError(err)
	}

	if !tok.TokenOnly {
		if state := ClassifyToken(tok.ExpiresAt, c.now()); state != TokenValid {
			log.Printf("claude level=info event=token_refresh reason=%s", state)
			tok, err = c.refresh(ctx, tok)
			if err != nil {
				return core.UsageSnapshot{}, err
			}
		}
	}

	status, body, err := c.getUsage(ctx, tok.AccessToken)
	if err != nil {
		return core.UsageSnapshot{}, err
	}

	if status == http.StatusUnauthorized {
		if tok.TokenOnly {
			return core.UsageSnapshot{}, &core.ProviderError{
				Provider: ProviderID, Kind: core.KindAuthentication, Status: status,
				Err: fmt.Errorf("token from %s was rejected", credentials.ClaudeTokenEnv),
			}
		}
		log.Printf("claude level=info event=unauthorized_retry")
		tok, err = c.refresh(ctx, tok)
		if err != nil {
			return core.UsageSnapshot{}, err
		}
		status, body, err = c.getUsage(ctx, tok.AccessToken)
		if err != nil {
			return core.UsageSnapshot{}, err
		}
		if status == http.StatusUnauthorized {
			return core.UsageSnapshot{}, &core.ProviderError{
				Provider: ProviderID, Kind: core.KindAuthentication, Status: status,
				Err: errors.New("token rejected after refresh, please log in again"),
			}
		}
	}

	if pe := shared.ClassifyStatus(ProviderID, status); pe != nil {
		return core.UsageSnapshot{}, pe
	}
	return c.parseUsage(body, tok)
}

// ValidateCredential checks that candidate (an OAuth access token) is
// accepted by the usage endpoint. An empty candidate validates the stored
// credentials instead.
func (c *Client) ValidateCredential(ctx context.Context, candidate string) error {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		_, err := c.FetchUsage(ctx)
		return err
	}
	resolved, err := credentials.ResolveEnvReference(candidate)
	if err != nil {
		return core.WrapError(ProviderID, core.KindCredentialMissing, err)
	}

	status, _, err := c.getUsage(ctx, resolved)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		return &core.ProviderError{Provider: ProviderID, Kind: core.KindAuthentication, Status: status, Err: errors.New("invalid token")}
	}
	if pe := shared.ClassifyStatus(ProviderID, status); pe != nil {
		return pe
	}
	return nil
}

func (c *Client) getUsage(ctx context.Context, accessToken string) (int, []byte, error) {
	req, err := shared.CreateStandardRequest(ctx, http.MethodGet, c.usageURL, nil, map[string]string{
		"Authorization":  "Bearer " + accessToken,
		"anthropic-beta": betaHeader,
		"Accept":         "application/json",
	})
	if err != nil {
		return 0, nil, core.WrapError(ProviderID, core.KindUnclassified, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, shared.ClassifyNetworkError(ProviderID, err)
	}
	defer resp.Body.Close()
	shared.LogFailure(ProviderID, resp)

	body, err := shared.ReadBody(resp)
	if err != nil {
		return resp.StatusCode, nil, shared.ClassifyNetworkError(ProviderID, err)
	}
	return resp.StatusCode, body, nil
}

// refresh exchanges the refresh token and persists the result before
// returning it. Any failure is terminal for the current fetch.
func (c *Client) refresh(ctx context.Context, tok credentials.OAuthToken) (credentials.OAuthToken, error) {
	if tok.RefreshToken == "" {
		return tok, core.NewError(ProviderID, core.KindAuthentication, "no refresh token available, please log in again")
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tok.RefreshToken},
		"client_id":     {OAuthClientID},
	}
	req, err := shared.CreateStandardRequest(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()), map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
		"Accept":       "application/json",
	})
	if err != nil {
		return tok, core.WrapError(ProviderID, core.KindUnclassified, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return tok, core.WrapError(ProviderID, core.KindAuthentication, fmt.Errorf("token refresh failed: %w", shared.ClassifyNetworkError(ProviderID, err).Err))
	}
	defer resp.Body.Close()

	body, err := shared.ReadBody(resp)
	if err != nil {
		return tok, core.WrapError(ProviderID, core.KindAuthentication, fmt.Errorf("token refresh failed: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("claude level=warn event=token_refresh_failed status=%d", resp.StatusCode)
		return tok, &core.ProviderError{
			Provider: ProviderID, Kind: core.KindAuthentication, Status: resp.StatusCode,
			Err: errors.New("token refresh failed, please log in again"),
		}
	}

	var rr refreshResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return tok, core.WrapError(ProviderID, core.KindAuthentication, fmt.Errorf("parsing token refresh response: %w", err))
	}
	if rr.AccessToken == "" {
		return tok, core.NewError(ProviderID, core.KindAuthentication, "token refresh response has no access_token")
	}
	if rr.RefreshToken == "" {
		rr.RefreshToken = tok.RefreshToken
	}

	expiresAt := c.now().UnixMilli() + rr.ExpiresIn*1000
	if err := c.creds.SaveToken(rr.AccessToken, rr.RefreshToken, expiresAt); err != nil {
		return tok, core.WrapError(ProviderID, core.KindUnclassified, fmt.Errorf("saving refreshed token: %w", err))
	}
	log.Printf("claude level=info event=token_refreshed expires_in=%ds", rr.ExpiresIn)

	tok.AccessToken = rr.AccessToken
	tok.RefreshToken = rr.RefreshToken
	tok.ExpiresAt = &expiresAt
	return tok, nil
}

func (c *Client) parseUsage(body []byte, tok credentials.OAuthToken) (core.UsageSnapshot, error) {
	var ur usageResponse
	if err := json.Unmarshal(body, &ur); err != nil {
		return core.UsageSnapshot{}, core.WrapError(ProviderID, core.KindMalformedResponse, fmt.Errorf("parsing usage response: %w", err))
	}

	snap := core.NewUsageSnapshot(ProviderID, c.now())
	snap.SetWindow(core.WindowFiveHour, bucketWindow(ur.FiveHour))
	snap.SetWindow(core.WindowSevenDay, bucketWindow(ur.SevenDay))
	if ur.SevenDayOpus != nil {
		snap.SetWindow(core.WindowSevenDayOpus, bucketWindow(ur.SevenDayOpus))
	}
	if ur.SevenDaySonnet != nil {
		snap.SetWindow(core.WindowSevenDaySonn, bucketWindow(ur.SevenDaySonnet))
	}

	snap.Extra = &core.ExtraUsage{}
	if ur.ExtraUsage != nil {
		snap.Extra = &core.ExtraUsage{
			Enabled:      ur.ExtraUsage.IsEnabled,
			MonthlyLimit: ur.ExtraUsage.MonthlyLimit,
			Used:         ur.ExtraUsage.UsedCredits,
		}
		if u := ur.ExtraUsage.Utilization; u != nil {
			snap.Extra.Utilization = core.Float64Ptr(core.ClampPercent(*u))
		}
	}

	snap.Tier = tier.Claude(tok.SubscriptionType, tok.RateLimitTier, ur.RateLimitTier, ur.BillingType)
	if ur.RateLimitTier != "" {
		snap.Raw["rate_limit_tier"] = ur.RateLimitTier
	}
	if ur.BillingType != "" {
		snap.Raw["billing_type"] = ur.BillingType
	}
	if tok.SubscriptionType != "" {
		snap.Raw["subscription_type"] = tok.SubscriptionType
	}
	return snap, nil
}

func bucketWindow(b *usageBucket) core.Window {
	if b == nil {
		return core.Window{}
	}
	w := core.Window{UtilizationPercent: b.Utilization}
	if b.ResetsAt != nil {
		if t, ok := parsers.ParseTimeValue(*b.ResetsAt); ok {
			w.ResetsAt = &t
		}
	}
	return w
}

func credentialError(err error) error {
	if errors.Is(err, credentials.ErrNotFound) {
		return core.WrapError(ProviderID, core.KindCredentialMissing, err)
	}
	return core.WrapError(ProviderID, core.KindCredentialMissing, fmt.Errorf("reading credentials: %w", err))
}
