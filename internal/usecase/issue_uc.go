package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"membership-gateway/internal/domain"
	"membership-gateway/internal/domain/model"
	"membership-gateway/internal/domain/ports/adapter"
	"membership-gateway/internal/domain/ports/repository"
	"membership-gateway/internal/infra/logging"
)

// Compile-time check
var _ IssueUseCase = (*issueUC)(nil)

// Issuance triggers, recorded for metrics and provenance.
const (
	TriggerWebhook = "webhook"
	TriggerPoll    = "poll"
	TriggerAuto    = "auto"
)

type IssueUseCase interface {
	// IssueForSession mints and persists a token for a confirmed-paid
	// session. Idempotent per session: a token already issued for the
	// same session is returned as-is.
	IssueForSession(ctx context.Context, sess *adapter.CheckoutSession, trigger string) (*model.AccessToken, error)
	// IssueFromSessionID fetches the session from the provider first.
	// The session is returned alongside the token so callers can report
	// payment status even when no token was created.
	IssueFromSessionID(ctx context.Context, sessionID, trigger string) (*model.AccessToken, *adapter.CheckoutSession, error)
}

type issueUC struct {
	auto    repository.TokenRepository
	gateway adapter.CheckoutGateway
	cache   EmailVerdictCache
	log     *zerolog.Logger
	dev     bool // dev mode logs identifiers unredacted
	now     func() time.Time
}

func NewIssueUseCase(auto repository.TokenRepository, gateway adapter.CheckoutGateway, cache EmailVerdictCache, logger *zerolog.Logger, dev bool) *issueUC {
	return &issueUC{auto: auto, gateway: gateway, cache: cache, log: logger, dev: dev, now: time.Now}
}

// newRecoveryCode builds the human-shareable store key: a short plan tag
// plus the random tail of a ULID (Crockford base32, no ambiguous chars).
func newRecoveryCode(plan string) string {
	id := ulid.Make()
	return model.PlanTag(plan) + "-" + id.String()[18:]
}

func (u *issueUC) IssueForSession(ctx context.Context, sess *adapter.CheckoutSession, trigger string) (*model.AccessToken, error) {
	if sess == nil || sess.ID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if !sess.Paid {
		return nil, domain.ErrSessionUnpaid
	}
	email := strings.TrimSpace(sess.Email)
	plan := strings.TrimSpace(sess.Plan)
	if email == "" || plan == "" {
		return nil, domain.ErrInvalidArgument
	}

	// One purchase, one token: webhook and polling may both land here
	// for the same session.
	if existing, err := u.auto.FindBySessionID(ctx, sess.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	level := model.DeriveAccessLevel(plan)
	features := []string{"member-area"}
	if level == model.AccessLevelPremium {
		features = append(features, "premium-content")
	}

	purchased := sess.Created
	if purchased.IsZero() {
		purchased = u.now()
	}
	tok := &model.AccessToken{
		Code:            newRecoveryCode(plan),
		Email:           email,
		Description:     "Issued for checkout session " + sess.ID,
		AccessLevel:     level,
		MaxUses:         0,
		UsedCount:       0,
		IsActive:        true,
		CreatedBy:       "stripe-checkout",
		Features:        features,
		StripeSessionID: sess.ID,
		PurchaseDate:    purchased,
		Plan:            plan,
	}
	if err := u.auto.Put(ctx, tok); err != nil {
		return nil, err
	}

	if u.cache != nil {
		if err := u.cache.Invalidate(ctx, email); err != nil {
			u.log.Warn().Err(err).Msg("verdict cache invalidation failed")
		}
	}

	u.log.Info().
		Str("session_id", sess.ID).
		Str("plan", plan).
		Str("trigger", trigger).
		Str("email", logging.Redact(email, u.dev)).
		Msg("access token issued")
	return tok, nil
}

func (u *issueUC) IssueFromSessionID(ctx context.Context, sessionID, trigger string) (*model.AccessToken, *adapter.CheckoutSession, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, nil, domain.ErrInvalidArgument
	}
	sess, err := u.gateway.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if !sess.Paid {
		return nil, sess, domain.ErrSessionUnpaid
	}
	tok, err := u.IssueForSession(ctx, sess, trigger)
	if err != nil {
		return nil, sess, err
	}
	return tok, sess, nil
}
