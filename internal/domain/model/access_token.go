package model

import (
	"strings"
	"time"
	"unicode"
)

// AccessLevel is the tier a token grants. Anything that is not premium
// falls back to unlimited.
type AccessLevel string

const (
	AccessLevelUnlimited AccessLevel = "unlimited"
	AccessLevelPremium   AccessLevel = "premium"
	// AccessLevelFree is never stored; it is the tier reported when no
	// token grants access.
	AccessLevelFree AccessLevel = "free"
)

// Reason explains why a token failed validation. Empty means usable.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonInactive      Reason = "inactive"
	ReasonExpired       Reason = "expired"
	ReasonUsageExceeded Reason = "usage_exceeded"
)

// AccessToken is a single entry in a token store. JSON tags match the
// on-disk store documents so existing files load unchanged.
type AccessToken struct {
	Code            string      `json:"code"`
	Email           string      `json:"email,omitempty"`
	Description     string      `json:"description,omitempty"`
	AccessLevel     AccessLevel `json:"accessLevel,omitempty"`
	ExpiresAt       *time.Time  `json:"expiresAt,omitempty"` // nil = never expires
	MaxUses         int         `json:"maxUses,omitempty"`   // 0 = unlimited
	UsedCount       int         `json:"usedCount"`
	IsActive        bool        `json:"isActive"`
	CreatedBy       string      `json:"createdBy,omitempty"`
	Features        []string    `json:"features,omitempty"`
	StripeSessionID string      `json:"stripeSessionId,omitempty"`
	PurchaseDate    time.Time   `json:"purchaseDate,omitempty"`
	Plan            string      `json:"plan,omitempty"`
}

// Tier returns the access level, defaulting to unlimited when the record
// carries none.
func (t *AccessToken) Tier() AccessLevel {
	if t.AccessLevel == "" {
		return AccessLevelUnlimited
	}
	return t.AccessLevel
}

// Check applies the usability rules in order: active flag, expiry,
// usage ceiling. Returns the first failing reason.
func (t *AccessToken) Check(now time.Time) Reason {
	if !t.IsActive {
		return ReasonInactive
	}
	if t.ExpiresAt != nil && t.ExpiresAt.Before(now) {
		return ReasonExpired
	}
	if t.MaxUses > 0 && t.UsedCount >= t.MaxUses {
		return ReasonUsageExceeded
	}
	return ReasonNone
}

// Usable reports whether the token currently grants access.
func (t *AccessToken) Usable(now time.Time) bool {
	return t.Check(now) == ReasonNone
}

// RemainingUses returns how many redemptions are left, or -1 for unlimited.
func (t *AccessToken) RemainingUses() int {
	if t.MaxUses <= 0 {
		return -1
	}
	n := t.MaxUses - t.UsedCount
	if n < 0 {
		return 0
	}
	return n
}

// NormalizeCode folds a user-supplied code to its canonical store key.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// LooksLikeCode reports whether a string has the shape of a recovery code:
// it contains a hyphen and is entirely letters, digits and hyphens. Email
// inputs that match this shape are tried as codes first.
func LooksLikeCode(s string) bool {
	if !strings.Contains(s, "-") {
		return false
	}
	for _, r := range s {
		if r == '-' {
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
