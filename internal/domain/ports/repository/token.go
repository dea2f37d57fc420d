package repository

import (
	"context"

	"membership-gateway/internal/domain/model"
)

// TokenRepository is the port for a single token store. Two instances
// exist at runtime: the admin-curated manual store and the issuer-written
// automatic store. Implementations must treat code keys as already
// normalized (model.NormalizeCode).
type TokenRepository interface {
	// Get returns the token stored under code, or domain.ErrNotFound.
	Get(ctx context.Context, code string) (*model.AccessToken, error)
	// Put creates or replaces the token stored under its code.
	Put(ctx context.Context, tok *model.AccessToken) error
	// FindByEmail returns all tokens whose email matches, case-insensitively.
	FindByEmail(ctx context.Context, email string) ([]*model.AccessToken, error)
	// FindBySessionID returns the token issued for a checkout session,
	// or domain.ErrNotFound. Used to keep issuance idempotent.
	FindBySessionID(ctx context.Context, sessionID string) (*model.AccessToken, error)
	// FindLatestByPlan returns the most recently purchased token for a
	// plan, or domain.ErrNotFound.
	FindLatestByPlan(ctx context.Context, plan string) (*model.AccessToken, error)
	// Redeem atomically increments the usage count of a usable token and
	// returns the updated record. Fails with domain.ErrTokenInactive,
	// domain.ErrTokenExpired or domain.ErrUsageExceeded without mutating.
	Redeem(ctx context.Context, code string) (*model.AccessToken, error)
}
