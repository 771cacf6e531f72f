// Package tier maps upstream plan hints onto core.PlanName. The upstreams do
// not document their tier identifiers, so the mappings are ordered rule
// tables that can be replaced without touching the provider clients.
package tier

import (
	"strings"

	"github.com/janekbaraniewski/usagebar/internal/core"
)

// Rule matches a lower-cased upstream hint.
type Rule struct {
	Plan  core.PlanName
	Match func(rateTier, billing string) bool
}

// Rules is evaluated in order; the first matching rule wins.
type Rules []Rule

func (rs Rules) Infer(rateTier, billing string, fallback core.PlanName) core.PlanName {
	rateTier = strings.ToLower(strings.TrimSpace(rateTier))
	billing = strings.ToLower(strings.TrimSpace(billing))
	for _, r := range rs {
		if r.Match(rateTier, billing) {
			return r.Plan
		}
	}
	return fallback
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// SubscriptionRules matches Claude's subscriptionType. Priority matters:
// "max" must win over "pro" for values that mention both.
var SubscriptionRules = Rules{
	{Plan: core.PlanMax, Match: func(s, _ string) bool { return strings.Contains(s, "max") }},
	{Plan: core.PlanPro, Match: func(s, _ string) bool { return strings.Contains(s, "pro") }},
	{Plan: core.PlanTeam, Match: func(s, _ string) bool { return strings.Contains(s, "team") }},
	{Plan: core.PlanEnterprise, Match: func(s, _ string) bool { return strings.Contains(s, "enterprise") }},
}

// RateLimitRules matches the rate_limit_tier and billing_type reported by the
// usage endpoint. These identifiers are observed, not documented.
var RateLimitRules = Rules{
	{Plan: core.PlanMax, Match: func(t, _ string) bool {
		return containsAny(t, "max", "tier_2_5x", "tier_3_5x")
	}},
	{Plan: core.PlanTeam, Match: func(t, _ string) bool {
		return containsAny(t, "team", "tier_4", "tier_5")
	}},
	{Plan: core.PlanPro, Match: func(t, _ string) bool {
		return (strings.Contains(t, "tier_2") && !containsAny(t, "_1", "_3")) || strings.Contains(t, "tier_3")
	}},
	{Plan: core.PlanPro, Match: func(_, b string) bool { return strings.Contains(b, "stripe") }},
}

// ClaudeFromSubscription infers the plan from the credential's
// subscriptionType. Unrecognized or empty values are Free.
func ClaudeFromSubscription(subscription string) core.PlanName {
	return SubscriptionRules.Infer(subscription, "", core.PlanFree)
}

// ClaudeFromRateLimit infers the plan from the usage response fields.
func ClaudeFromRateLimit(rateTier, billing string) core.PlanName {
	return RateLimitRules.Infer(rateTier, billing, core.PlanFree)
}

// Claude combines both sources: a subscriptionType on the credential is
// authoritative, otherwise the response fields are used. RawTier is the
// credential's rateLimitTier, falling back to the response's.
func Claude(subscription, credentialRateTier, responseRateTier, billing string) core.TierInfo {
	raw := credentialRateTier
	if raw == "" {
		raw = responseRateTier
	}
	if strings.TrimSpace(subscription) != "" {
		return core.TierInfo{PlanName: ClaudeFromSubscription(subscription), RawTier: raw}
	}
	return core.TierInfo{PlanName: ClaudeFromRateLimit(responseRateTier, billing), RawTier: raw}
}

// ZaiThresholds are the monthly call volumes at which a Z.ai account is
// assumed to be on a given plan.
type ZaiThresholds struct {
	Max float64 `json:"max"`
	Pro float64 `json:"pro"`
}

var DefaultZaiThresholds = ZaiThresholds{Max: 1400, Pro: 300}

// ZaiFromVolume infers the plan from the TIME_LIMIT usage total using the
// default thresholds.
func ZaiFromVolume(total float64) core.PlanName {
	return DefaultZaiThresholds.Infer(total)
}

func (th ZaiThresholds) Infer(total float64) core.PlanName {
	if th.Max <= 0 {
		th.Max = DefaultZaiThresholds.Max
	}
	if th.Pro <= 0 {
		th.Pro = DefaultZaiThresholds.Pro
	}
	switch {
	case total >= th.Max:
		return core.PlanMax
	case total >= th.Pro:
		return core.PlanPro
	case total > 0:
		return core.PlanLite
	default:
		return core.PlanUnknown
	}
}
