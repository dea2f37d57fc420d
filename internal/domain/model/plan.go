package model

import "strings"

// Well-known plan names. Plans are open-ended; only the premium ones get
// special treatment when deriving the access level.
const (
	PlanPremium        = "premium"
	PlanPremiumUpgrade = "premium-upgrade"
)

// DeriveAccessLevel maps a purchased plan onto the tier it grants.
func DeriveAccessLevel(plan string) AccessLevel {
	switch plan {
	case PlanPremium, PlanPremiumUpgrade:
		return AccessLevelPremium
	default:
		return AccessLevelUnlimited
	}
}

// PlanTag builds the recovery-code prefix for a plan: the first four
// alphanumeric characters, upper-cased. Empty plans get a generic tag.
func PlanTag(plan string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(plan) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == 4 {
				break
			}
		}
	}
	if b.Len() == 0 {
		return "PASS"
	}
	return b.String()
}
