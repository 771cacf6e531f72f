package core

type PlanName string

const (
	PlanFree       PlanName = "Free"
	PlanPro        PlanName = "Pro"
	PlanTeam       PlanName = "Team"
	PlanEnterprise PlanName = "Enterprise"
	PlanMax        PlanName = "Max"
	PlanLite       PlanName = "Lite"
	PlanUnknown    PlanName = "Unknown"
)

// TierInfo carries the inferred plan plus the verbatim upstream token, kept
// for diagnostics even when inference is inconclusive.
type TierInfo struct {
	PlanName PlanName `json:"plan_name"`
	RawTier  string   `json:"raw_tier_identifier"`
}

func (p PlanName) String() string {
	if p == "" {
		return string(PlanUnknown)
	}
	return string(p)
}
