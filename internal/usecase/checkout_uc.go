package usecase

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"membership-gateway/internal/config"
	"membership-gateway/internal/domain"
	"membership-gateway/internal/domain/model"
	"membership-gateway/internal/domain/ports/adapter"
	"membership-gateway/internal/domain/ports/repository"
)

// Compile-time check
var _ CheckoutUseCase = (*checkoutUC)(nil)

type CheckoutUseCase interface {
	// StartCheckout opens a hosted checkout session for a plan and
	// returns the redirect URL and session id. Unknown plans are
	// rejected before the provider is contacted.
	StartCheckout(ctx context.Context, plan, email string) (*adapter.CheckoutSession, error)
	// SessionDetails retrieves a session by id from the provider.
	SessionDetails(ctx context.Context, sessionID string) (*adapter.CheckoutSession, error)
	// LatestPurchase returns the most recently issued token for a plan.
	LatestPurchase(ctx context.Context, plan string) (*model.AccessToken, error)
}

type checkoutUC struct {
	gateway adapter.CheckoutGateway
	auto    repository.TokenRepository
	stripe  config.StripeConfig
	siteURL string
	log     *zerolog.Logger
}

func NewCheckoutUseCase(gateway adapter.CheckoutGateway, auto repository.TokenRepository, stripe config.StripeConfig, siteURL string, logger *zerolog.Logger) *checkoutUC {
	return &checkoutUC{
		gateway: gateway,
		auto:    auto,
		stripe:  stripe,
		siteURL: strings.TrimRight(siteURL, "/"),
		log:     logger,
	}
}

// lineItemFor maps a plan onto what the session sells. The upgrade plan
// has no pre-configured price; it is sold as an ad-hoc item at the
// configured price delta.
func (u *checkoutUC) lineItemFor(plan string) (adapter.LineItem, error) {
	if priceID, ok := u.stripe.Prices[plan]; ok && priceID != "" {
		return adapter.LineItem{PriceID: priceID}, nil
	}
	if plan == model.PlanPremiumUpgrade {
		return adapter.LineItem{
			Name:        "Premium upgrade",
			AmountCents: u.stripe.UpgradeAmountCents,
			Currency:    u.stripe.Currency,
		}, nil
	}
	return adapter.LineItem{}, domain.ErrUnknownPlan
}

func (u *checkoutUC) StartCheckout(ctx context.Context, plan, email string) (*adapter.CheckoutSession, error) {
	plan = strings.TrimSpace(plan)
	if plan == "" {
		return nil, domain.ErrInvalidArgument
	}
	item, err := u.lineItemFor(plan)
	if err != nil {
		return nil, err
	}

	q := url.Values{"plan": {plan}}
	successURL := fmt.Sprintf("%s/checkout/success?%s&session_id={CHECKOUT_SESSION_ID}", u.siteURL, q.Encode())
	cancelURL := fmt.Sprintf("%s/checkout/cancel?%s", u.siteURL, q.Encode())

	sess, err := u.gateway.CreateSession(ctx, item, plan, email, successURL, cancelURL)
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("plan", plan).Str("session_id", sess.ID).Msg("checkout session created")
	return sess, nil
}

func (u *checkoutUC) SessionDetails(ctx context.Context, sessionID string) (*adapter.CheckoutSession, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.gateway.GetSession(ctx, sessionID)
}

func (u *checkoutUC) LatestPurchase(ctx context.Context, plan string) (*model.AccessToken, error) {
	if strings.TrimSpace(plan) == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.auto.FindLatestByPlan(ctx, plan)
}
