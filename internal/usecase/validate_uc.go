package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"membership-gateway/internal/domain"
	"membership-gateway/internal/domain/model"
	"membership-gateway/internal/domain/ports/adapter"
	"membership-gateway/internal/domain/ports/repository"
	"membership-gateway/internal/infra/logging"
)

// Compile-time check
var _ ValidationUseCase = (*validationUC)(nil)

// maxSessionScan bounds how many provider session records the email
// validator will page through for a single lookup.
const maxSessionScan = 500

// EmailVerdictCache remembers provider-backed verdicts between polls.
// A nil cache disables caching.
type EmailVerdictCache interface {
	GetVerdict(ctx context.Context, email string) (*model.EmailVerdict, error)
	PutVerdict(ctx context.Context, email string, v *model.EmailVerdict) error
	Invalidate(ctx context.Context, email string) error
}

type ValidationUseCase interface {
	// Validate resolves a {code?, email?} pair to a verdict. It never
	// returns an error: lookup failures degrade to a free verdict with
	// source "error".
	Validate(ctx context.Context, code, email string) model.Verdict
	// ValidateCode checks a single code against the manual store, falling
	// back to the automatic store.
	ValidateCode(ctx context.Context, code string) model.Verdict
	// Redeem consumes one use of a token: an atomic conditional increment
	// in whichever store holds the code.
	Redeem(ctx context.Context, code string) (*model.AccessToken, error)
	// ValidateByEmail consults the payment provider's session history,
	// bypassing local storage.
	ValidateByEmail(ctx context.Context, email string) model.EmailVerdict
}

type validationUC struct {
	manual  repository.TokenRepository
	auto    repository.TokenRepository
	gateway adapter.CheckoutGateway
	cache   EmailVerdictCache
	log     *zerolog.Logger
	dev     bool // dev mode logs identifiers unredacted
	now     func() time.Time
}

func NewValidationUseCase(manual, auto repository.TokenRepository, gateway adapter.CheckoutGateway, cache EmailVerdictCache, logger *zerolog.Logger, dev bool) *validationUC {
	return &validationUC{
		manual:  manual,
		auto:    auto,
		gateway: gateway,
		cache:   cache,
		log:     logger,
		dev:     dev,
		now:     time.Now,
	}
}

// Validate applies the lookup precedence, first success wins:
//  1. an email shaped like a recovery code is tried as a code,
//  2. a supplied code is looked up in the manual store, then the
//     automatic store,
//  3. an email containing '@' is matched against the automatic store,
//  4. otherwise the verdict is free/none.
func (u *validationUC) Validate(ctx context.Context, code, email string) model.Verdict {
	defer logging.TraceDuration(u.log, "ValidationUC.Validate")()

	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)

	if email != "" && model.LooksLikeCode(email) {
		if v, ok := u.lookupCode(ctx, email); ok {
			return v
		}
	}
	if code != "" {
		if v, ok := u.lookupCode(ctx, code); ok {
			return v
		}
	}
	if strings.Contains(email, "@") {
		if v, ok := u.lookupEmail(ctx, email); ok {
			return v
		}
	}
	return model.FreeVerdict(model.SourceNone)
}

func (u *validationUC) ValidateCode(ctx context.Context, code string) model.Verdict {
	if v, ok := u.lookupCode(ctx, code); ok {
		return v
	}
	return model.FreeVerdict(model.SourceNone)
}

// lookupCode tries manual then auto. ok is false only when neither store
// holds the code; a held-but-unusable token is still a definitive verdict.
func (u *validationUC) lookupCode(ctx context.Context, code string) (model.Verdict, bool) {
	norm := model.NormalizeCode(code)

	tok, err := u.manual.Get(ctx, norm)
	source := model.SourceManual
	if errors.Is(err, domain.ErrNotFound) {
		tok, err = u.auto.Get(ctx, norm)
		source = model.SourceAuto
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return model.Verdict{}, false
		}
		u.log.Error().Err(err).Str("code", logging.Redact(norm, u.dev)).Msg("token lookup failed")
		return model.FreeVerdict(model.SourceError), true
	}
	return u.judge(tok, source), true
}

// lookupEmail scans the automatic store for a usable token owned by the
// email. Only active, unexpired records count as a match.
func (u *validationUC) lookupEmail(ctx context.Context, email string) (model.Verdict, bool) {
	toks, err := u.auto.FindByEmail(ctx, email)
	if err != nil {
		u.log.Error().Err(err).Str("email", logging.Redact(email, u.dev)).Msg("email lookup failed")
		return model.FreeVerdict(model.SourceError), true
	}
	now := u.now()
	for _, tok := range toks {
		if tok.IsActive && (tok.ExpiresAt == nil || tok.ExpiresAt.After(now)) {
			return u.judge(tok, model.SourceStripe), true
		}
	}
	return model.Verdict{}, false
}

// judge applies the per-record checks regardless of which store matched.
func (u *validationUC) judge(tok *model.AccessToken, source model.Source) model.Verdict {
	if reason := tok.Check(u.now()); reason != model.ReasonNone {
		v := model.FreeVerdict(source)
		v.Reason = reason
		v.Token = tok
		return v
	}
	return model.Verdict{
		Valid:  true,
		Tier:   tok.Tier(),
		Source: source,
		Token:  tok,
	}
}

func (u *validationUC) Redeem(ctx context.Context, code string) (*model.AccessToken, error) {
	norm := model.NormalizeCode(code)
	tok, err := u.manual.Redeem(ctx, norm)
	if errors.Is(err, domain.ErrNotFound) {
		tok, err = u.auto.Redeem(ctx, norm)
	}
	return tok, err
}

// ValidateByEmail asks the provider which checkout sessions exist for the
// email and whether any reached a paid state. The scan is bounded and the
// result cached; any failure degrades to an invalid free verdict.
func (u *validationUC) ValidateByEmail(ctx context.Context, email string) model.EmailVerdict {
	defer logging.TraceDuration(u.log, "ValidationUC.ValidateByEmail")()

	email = strings.TrimSpace(email)
	free := model.EmailVerdict{Valid: false, Tier: model.AccessLevelFree, Email: email}
	if !strings.Contains(email, "@") {
		return free
	}

	if u.cache != nil {
		if cached, err := u.cache.GetVerdict(ctx, email); err == nil && cached != nil {
			return *cached
		}
	}

	sessions, err := u.gateway.ListSessionsByEmail(ctx, email, maxSessionScan)
	if err != nil {
		u.log.Error().Err(err).Str("email", logging.Redact(email, u.dev)).Msg("provider session lookup failed")
		return free
	}

	verdict := free
	verdict.SessionCount = len(sessions)
	// Sessions arrive newest first; the most recent paid one wins.
	for _, s := range sessions {
		if !s.Paid {
			continue
		}
		verdict.Valid = true
		verdict.Tier = model.DeriveAccessLevel(s.Plan)
		verdict.SessionID = s.ID
		break
	}

	if u.cache != nil {
		if err := u.cache.PutVerdict(ctx, email, &verdict); err != nil {
			u.log.Warn().Err(err).Msg("verdict cache write failed")
		}
	}
	return verdict
}
