package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"membership-gateway/internal/domain/ports/adapter"
)

var (
	_ adapter.CheckoutGateway = (*StripeGateway)(nil)
	_ adapter.WebhookVerifier = (*StripeGateway)(nil)
)

// StripeGateway implements the checkout port against Stripe's hosted
// Checkout: session create/get/list plus webhook signature verification.
type StripeGateway struct {
	sc            *client.API
	webhookSecret string
}

func NewStripeGateway(secretKey, webhookSecret string) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key empty")
	}
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeGateway{sc: sc, webhookSecret: webhookSecret}, nil
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) CreateSession(ctx context.Context, item adapter.LineItem, plan, email, successURL, cancelURL string) (*adapter.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	params.Context = ctx
	params.AddMetadata("plan", plan)
	if email != "" {
		params.CustomerEmail = stripe.String(email)
	}

	li := &stripe.CheckoutSessionLineItemParams{Quantity: stripe.Int64(1)}
	if item.PriceID != "" {
		li.Price = stripe.String(item.PriceID)
	} else {
		li.PriceData = &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(item.Currency),
			UnitAmount: stripe.Int64(item.AmountCents),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(item.Name),
			},
		}
	}
	params.LineItems = []*stripe.CheckoutSessionLineItemParams{li}

	s, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create session: %w", err)
	}
	return fromStripeSession(s), nil
}

func (g *StripeGateway) GetSession(ctx context.Context, id string) (*adapter.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := g.sc.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get session: %w", err)
	}
	return fromStripeSession(s), nil
}

// ListSessionsByEmail pages through the provider's session history for a
// buyer, newest first, bounded by maxResults so a busy customer cannot
// trigger unbounded iteration.
func (g *StripeGateway) ListSessionsByEmail(ctx context.Context, email string, maxResults int) ([]*adapter.CheckoutSession, error) {
	if maxResults <= 0 {
		maxResults = 100
	}
	params := &stripe.CheckoutSessionListParams{
		CustomerDetails: &stripe.CheckoutSessionListCustomerDetailsParams{
			Email: stripe.String(email),
		},
	}
	params.Context = ctx
	params.Limit = stripe.Int64(100)

	var out []*adapter.CheckoutSession
	iter := g.sc.CheckoutSessions.List(params)
	for iter.Next() {
		out = append(out, fromStripeSession(iter.CheckoutSession()))
		if len(out) >= maxResults {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe list sessions: %w", err)
	}
	return out, nil
}

// ParseEvent authenticates a webhook payload. An unconfigured secret is an
// authentication failure: the endpoint must reject rather than trust.
func (g *StripeGateway) ParseEvent(payload []byte, signature string) (*adapter.WebhookEvent, error) {
	if g.webhookSecret == "" {
		return nil, errors.New("stripe webhook secret not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("verify stripe signature: %w", err)
	}

	out := &adapter.WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if event.Type == "checkout.session.completed" {
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("decode checkout.session: %w", err)
		}
		out.Session = fromStripeSession(&s)
	}
	return out, nil
}

func fromStripeSession(s *stripe.CheckoutSession) *adapter.CheckoutSession {
	email := s.CustomerEmail
	if email == "" && s.CustomerDetails != nil {
		email = s.CustomerDetails.Email
	}
	paid := s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
		s.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
	return &adapter.CheckoutSession{
		ID:            s.ID,
		URL:           s.URL,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		Paid:          paid,
		Email:         email,
		Plan:          s.Metadata["plan"],
		AmountTotal:   s.AmountTotal,
		Created:       time.Unix(s.Created, 0),
	}
}
