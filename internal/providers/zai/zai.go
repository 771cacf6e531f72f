// Package zai reads the coding plan quota from the Z.ai monitor API.
package zai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
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
	ProviderID = "zai"

	DefaultBaseURL = "https://api.z.ai"
	quotaLimitPath = "/api/monitor/usage/quota/limit"

	minKeyLength = 10

	limitTokens = "TOKENS_LIMIT"
	limitTime   = "TIME_LIMIT"
)

type monitorEnvelope struct {
	Code    any             `json:"code"`
	Msg     string          `json:"msg"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

type apiError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

type Client struct {
	providerbase.Base

	creds      *credentials.Cache
	http       *http.Client
	quotaURL   string
	thresholds tier.ZaiThresholds
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.quotaURL = shared.JoinURL(base, quotaLimitPath)
		}
	}
}

func WithThresholds(th tier.ZaiThresholds) Option {
	return func(c *Client) { c.thresholds = th }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(creds *credentials.Cache, opts ...Option) *Client {
	c := &Client{
		Base: providerbase.New(core.ProviderSpec{
			ID: ProviderID,
			Info: core.ProviderInfo{
				Name:         "Z.AI",
				Capabilities: []string{"quota_limit", "token_window", "mcp_time_limit"},
				DocURL:       "https://docs.z.ai/devpack/overview",
			},
			Auth: core.ProviderAuthSpec{
				Type:      core.ProviderAuthTypeAPIKey,
				MinLength: minKeyLength,
			},
			Setup: core.ProviderSetupSpec{
				Quickstart: []string{
					"Run `usagebar creds set zai` and paste your Z.AI API key.",
					"The key may also be stored as {env:ZAI_API_KEY} to read it from the environment.",
				},
			},
		}),
		creds:      creds,
		http:       shared.NewHTTPClient(shared.DefaultTimeout),
		quotaURL:   shared.JoinURL(DefaultBaseURL, quotaLimitPath),
		thresholds: tier.DefaultZaiThresholds,
		now:        time.Now,
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
	return c.creds.Set(c.CredentialKey(), strings.TrimSpace(value))
}

func (c *Client) DeleteCredential() error {
	return c.creds.Delete(c.CredentialKey())
}

// FetchUsage issues one quota request with the stored key. There is no
// retry: a rejected key needs the user to reconfigure it.
func (c *Client) FetchUsage(ctx context.Context) (core.UsageSnapshot, error) {
	apiKey, err := c.creds.Get(c.CredentialKey())
	if err != nil {
		return core.UsageSnapshot{}, core.WrapError(ProviderID, core.KindCredentialMissing, fmt.Errorf("no API key configured: %w", err))
	}

	status, body, err := c.requestQuota(ctx, apiKey)
	if err != nil {
		return core.UsageSnapshot{}, err
	}
	if status == http.StatusUnauthorized {
		return core.UsageSnapshot{}, &core.ProviderError{
			Provider: ProviderID, Kind: core.KindAuthentication, Status: status,
			Err: errors.New("invalid API key, please reconfigure"),
		}
	}
	if pe := shared.ClassifyStatus(ProviderID, status); pe != nil {
		return core.UsageSnapshot{}, pe
	}
	return c.parseQuota(body)
}

// ValidateCredential checks candidate before it is saved.
func (c *Client) ValidateCredential(ctx context.Context, candidate string) error {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return core.NewError(ProviderID, core.KindCredentialMissing, "API key cannot be empty")
	}
	apiKey, err := credentials.ResolveEnvReference(candidate)
	if err != nil {
		return core.WrapError(ProviderID, core.KindCredentialMissing, err)
	}
	if len(apiKey) < minKeyLength {
		return core.NewError(ProviderID, core.KindAuthentication, "API key is too short")
	}

	status, body, err := c.requestQuota(ctx, apiKey)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusUnauthorized:
		return &core.ProviderError{Provider: ProviderID, Kind: core.KindAuthentication, Status: status, Err: errors.New("invalid API key")}
	case http.StatusForbidden:
		return &core.ProviderError{Provider: ProviderID, Kind: core.KindAccessDenied, Status: status, Err: errors.New("access denied, key may lack permissions")}
	}
	if pe := shared.ClassifyStatus(ProviderID, status); pe != nil {
		return pe
	}
	return classifyValidationBody(string(body))
}

// classifyValidationBody holds the marker checks applied to a 2xx
// validation response.
func classifyValidationBody(body string) error {
	if strings.Contains(body, `"error"`) {
		return core.NewError(ProviderID, core.KindAuthentication, "invalid API key")
	}
	if !strings.Contains(body, `"limits"`) && !strings.Contains(body, `"data"`) {
		return core.NewError(ProviderID, core.KindMalformedResponse, "unexpected response, key may be invalid")
	}
	return nil
}

func (c *Client) requestQuota(ctx context.Context, apiKey string) (int, []byte, error) {
	req, err := shared.CreateStandardRequest(ctx, http.MethodGet, c.quotaURL, nil, map[string]string{
		"Authorization":   apiKey,
		"Accept-Language": "en-US,en",
		"Content-Type":    "application/json",
	})
	if err != nil {
		return 0, nil, core.WrapError(ProviderID, core.KindUnclassified, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("zai level=warn event=request_failed error=%q", err)
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

func (c *Client) parseQuota(body []byte) (core.UsageSnapshot, error) {
	var envelope monitorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return core.UsageSnapshot{}, core.WrapError(ProviderID, core.KindMalformedResponse, fmt.Errorf("parsing quota response: %w", err))
	}

	code := parsers.AnyString(envelope.Code)
	msg := envelope.Msg
	if envelope.Error != nil {
		code = firstNonEmpty(code, parsers.AnyString(envelope.Error.Code))
		msg = firstNonEmpty(msg, strings.TrimSpace(envelope.Error.Message))
	}
	if isNoPackageCode(code, msg) {
		return core.UsageSnapshot{}, core.NewError(ProviderID, core.KindAccessDenied, "insufficient balance or no active coding package")
	}

	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return core.UsageSnapshot{}, core.NewError(ProviderID, core.KindMalformedResponse, "missing field %q", "data")
	}
	var payload any
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return core.UsageSnapshot{}, core.WrapError(ProviderID, core.KindMalformedResponse, fmt.Errorf("parsing field %q: %w", "data", err))
	}
	rows, ok := limitRows(payload)
	if !ok {
		return core.UsageSnapshot{}, core.NewError(ProviderID, core.KindMalformedResponse, "missing field %q", "data.limits")
	}

	snap := core.NewUsageSnapshot(ProviderID, c.now())
	snap.Tier = core.TierInfo{PlanName: core.PlanUnknown}
	applyLimits(rows, &snap, c.thresholds)
	return snap, nil
}

// applyLimits maps the known limit kinds onto windows. Unknown kinds are ignored.
func applyLimits(rows []map[string]any, snap *core.UsageSnapshot, th tier.ZaiThresholds) {
	for _, row := range rows {
		kind := strings.ToUpper(parsers.FirstString(row, "type", "limitType"))
		percentage, _ := parsers.FirstNumber(row, "percentage")

		switch kind {
		case limitTokens:
			w := core.Window{UtilizationPercent: percentage}
			if reset, ok := parsers.ParseTimeValue(row["nextResetTime"]); ok {
				w.ResetsAt = &reset
			}
			snap.SetWindow(core.WindowTokens, w)

		case limitTime:
			w := core.Window{UtilizationPercent: percentage}
			used, _ := parsers.FirstNumber(row, "currentValue")
			w.Used = core.Float64Ptr(used)
			total, hasTotal := parsers.FirstNumber(row, "usage")
			if hasTotal {
				w.Limit = core.Float64Ptr(total)
				snap.Tier = core.TierInfo{
					PlanName: th.Infer(total),
					RawTier:  parsers.AnyString(row["usage"]),
				}
			}
			if reset, ok := parsers.ParseTimeValue(row["nextResetTime"]); ok {
				w.ResetsAt = &reset
			}
			snap.SetWindow(core.WindowTime, w)

		default:
			log.Printf("zai level=debug event=limit_ignored type=%q", kind)
		}
	}
}

// limitRows finds data.limits, accepting a bare array as well.
func limitRows(v any) ([]map[string]any, bool) {
	switch value := v.(type) {
	case []any:
		return mapsFromArray(value), true
	case map[string]any:
		for _, key := range []string{"limits", "items"} {
			if nested, ok := value[key]; ok {
				if arr, ok := nested.([]any); ok {
					return mapsFromArray(arr), true
				}
			}
		}
	}
	return nil, false
}

func mapsFromArray(values []any) []map[string]any {
	rows := make([]map[string]any, 0, len(values))
	for _, item := range values {
		if row, ok := item.(map[string]any); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

func isNoPackageCode(code, msg string) bool {
	if strings.TrimSpace(code) == "1113" {
		return true
	}
	lowerMsg := strings.ToLower(strings.TrimSpace(msg))
	return strings.Contains(lowerMsg, "insufficient balance") ||
		strings.Contains(lowerMsg, "no resource package") ||
		strings.Contains(lowerMsg, "no active coding package")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
