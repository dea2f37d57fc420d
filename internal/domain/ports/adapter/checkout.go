package adapter

import (
	"context"
	"time"
)

// CheckoutSession is the provider-agnostic view of a hosted checkout
// session. Plan and Email come from session metadata / customer details.
type CheckoutSession struct {
	ID            string
	URL           string
	Status        string // open | complete | expired
	PaymentStatus string // paid | unpaid | no_payment_required
	Paid          bool
	Email         string
	Plan          string
	AmountTotal   int64 // minor units
	Created       time.Time
}

// LineItem describes what a checkout session sells: either a
// pre-configured provider price or an ad-hoc item at a fixed amount.
type LineItem struct {
	PriceID     string
	Name        string
	AmountCents int64
	Currency    string
}

// CheckoutGateway is the hex port for the hosted payment provider.
type CheckoutGateway interface {
	Name() string

	// CreateSession opens a hosted checkout session and returns its
	// redirect URL and identifier.
	CreateSession(ctx context.Context, item LineItem, plan, email, successURL, cancelURL string) (*CheckoutSession, error)
	// GetSession retrieves a session by identifier.
	GetSession(ctx context.Context, id string) (*CheckoutSession, error)
	// ListSessionsByEmail returns sessions for a buyer email, newest
	// first, scanning at most maxResults provider records.
	ListSessionsByEmail(ctx context.Context, email string, maxResults int) ([]*CheckoutSession, error)
}

// WebhookEvent is a verified provider notification. Session is populated
// for checkout-completed events and nil otherwise.
type WebhookEvent struct {
	ID      string
	Type    string
	Session *CheckoutSession
}

// WebhookVerifier authenticates an inbound notification against the
// provider's signature scheme before any of its payload is trusted.
type WebhookVerifier interface {
	ParseEvent(payload []byte, signature string) (*WebhookEvent, error)
}
