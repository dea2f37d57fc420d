package model

// Source identifies which lookup produced a verdict.
type Source string

const (
	SourceManual Source = "manual" // admin-curated store
	SourceAuto   Source = "auto"   // issuer-written store
	SourceStripe Source = "stripe" // provider session history
	SourceNone   Source = "none"   // no match anywhere
	SourceError  Source = "error"  // lookup failed; treated as no access
)

// Verdict is the outcome of a validation. Failed validations are normal
// outcomes, never errors: a caller can always gate on Valid alone.
type Verdict struct {
	Valid  bool
	Tier   AccessLevel
	Source Source
	Reason Reason
	Token  *AccessToken
}

// EmailVerdict is the provider-backed validation result: no local token,
// just evidence of a paid checkout session for the email.
type EmailVerdict struct {
	Valid        bool        `json:"valid"`
	Tier         AccessLevel `json:"tier"`
	Email        string      `json:"email"`
	SessionCount int         `json:"sessionCount"`
	SessionID    string      `json:"sessionId,omitempty"`
}

// FreeVerdict is what every failure path degrades to.
func FreeVerdict(source Source) Verdict {
	return Verdict{Valid: false, Tier: AccessLevelFree, Source: source}
}
