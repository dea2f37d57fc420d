package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"membership-gateway/internal/domain"
	"membership-gateway/internal/domain/model"
	"membership-gateway/internal/domain/ports/repository"
)

// Ensure interface compliance
var _ repository.TokenRepository = (*PostgresStore)(nil)

// PostgresStore keeps both logical stores in one access_tokens table,
// discriminated by the store column. Redeem is a single conditional
// UPDATE, so two concurrent redeems cannot exceed the usage ceiling.
type PostgresStore struct {
	pool  *pgxpool.Pool
	store string // "manual" | "auto"
}

func NewPostgresStore(pool *pgxpool.Pool, store string) *PostgresStore {
	return &PostgresStore{pool: pool, store: store}
}

// NewPgxPool opens a connection pool for the token store backend.
func NewPgxPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the access_tokens table when it does not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const sql = `
CREATE TABLE IF NOT EXISTS access_tokens (
    store             TEXT        NOT NULL,
    code              TEXT        NOT NULL,
    email             TEXT        NOT NULL DEFAULT '',
    description       TEXT        NOT NULL DEFAULT '',
    access_level      TEXT        NOT NULL DEFAULT 'unlimited',
    expires_at        TIMESTAMPTZ,
    max_uses          INT         NOT NULL DEFAULT 0,
    used_count        INT         NOT NULL DEFAULT 0,
    is_active         BOOLEAN     NOT NULL DEFAULT TRUE,
    created_by        TEXT        NOT NULL DEFAULT '',
    features          TEXT[]      NOT NULL DEFAULT '{}',
    stripe_session_id TEXT        NOT NULL DEFAULT '',
    purchase_date     TIMESTAMPTZ NOT NULL DEFAULT now(),
    plan              TEXT        NOT NULL DEFAULT '',
    PRIMARY KEY (store, code)
);
CREATE INDEX IF NOT EXISTS access_tokens_email_idx
    ON access_tokens (store, lower(email));
CREATE INDEX IF NOT EXISTS access_tokens_session_idx
    ON access_tokens (store, stripe_session_id);
`
	if _, err := pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("ensure access_tokens schema: %w", err)
	}
	return nil
}

const tokenColumns = `code, email, description, access_level, expires_at, max_uses,
       used_count, is_active, created_by, features, stripe_session_id,
       purchase_date, plan`

func scanToken(row pgx.Row) (*model.AccessToken, error) {
	var t model.AccessToken
	var level *string
	err := row.Scan(
		&t.Code, &t.Email, &t.Description, &level, &t.ExpiresAt, &t.MaxUses,
		&t.UsedCount, &t.IsActive, &t.CreatedBy, &t.Features, &t.StripeSessionID,
		&t.PurchaseDate, &t.Plan,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan token: %w", err)
	}
	if level != nil {
		t.AccessLevel = model.AccessLevel(*level)
	}
	return &t, nil
}

func (r *PostgresStore) Get(ctx context.Context, code string) (*model.AccessToken, error) {
	const sql = `
SELECT ` + tokenColumns + `
  FROM access_tokens
 WHERE store = $1 AND code = $2;
`
	return scanToken(r.pool.QueryRow(ctx, sql, r.store, model.NormalizeCode(code)))
}

func (r *PostgresStore) Put(ctx context.Context, tok *model.AccessToken) error {
	if tok.Code == "" {
		return domain.ErrInvalidArgument
	}
	const sql = `
INSERT INTO access_tokens
       (store, code, email, description, access_level, expires_at, max_uses,
        used_count, is_active, created_by, features, stripe_session_id,
        purchase_date, plan)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (store, code) DO UPDATE
  SET email             = EXCLUDED.email,
      description       = EXCLUDED.description,
      access_level      = EXCLUDED.access_level,
      expires_at        = EXCLUDED.expires_at,
      max_uses          = EXCLUDED.max_uses,
      used_count        = EXCLUDED.used_count,
      is_active         = EXCLUDED.is_active,
      created_by        = EXCLUDED.created_by,
      features          = EXCLUDED.features,
      stripe_session_id = EXCLUDED.stripe_session_id,
      purchase_date     = EXCLUDED.purchase_date,
      plan              = EXCLUDED.plan;
`
	_, err := r.pool.Exec(ctx, sql,
		r.store, model.NormalizeCode(tok.Code), tok.Email, tok.Description,
		string(tok.Tier()), tok.ExpiresAt, tok.MaxUses, tok.UsedCount,
		tok.IsActive, tok.CreatedBy, tok.Features, tok.StripeSessionID,
		tok.PurchaseDate, tok.Plan,
	)
	if err != nil {
		return fmt.Errorf("Put token: %w", err)
	}
	return nil
}

func (r *PostgresStore) FindByEmail(ctx context.Context, email string) ([]*model.AccessToken, error) {
	const sql = `
SELECT ` + tokenColumns + `
  FROM access_tokens
 WHERE store = $1 AND lower(email) = lower($2)
 ORDER BY purchase_date DESC;
`
	rows, err := r.pool.Query(ctx, sql, r.store, email)
	if err != nil {
		return nil, fmt.Errorf("FindByEmail tokens: %w", err)
	}
	defer rows.Close()
	var out []*model.AccessToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresStore) FindBySessionID(ctx context.Context, sessionID string) (*model.AccessToken, error) {
	if sessionID == "" {
		return nil, domain.ErrNotFound
	}
	const sql = `
SELECT ` + tokenColumns + `
  FROM access_tokens
 WHERE store = $1 AND stripe_session_id = $2
 LIMIT 1;
`
	return scanToken(r.pool.QueryRow(ctx, sql, r.store, sessionID))
}

func (r *PostgresStore) FindLatestByPlan(ctx context.Context, plan string) (*model.AccessToken, error) {
	const sql = `
SELECT ` + tokenColumns + `
  FROM access_tokens
 WHERE store = $1 AND plan = $2
 ORDER BY purchase_date DESC
 LIMIT 1;
`
	return scanToken(r.pool.QueryRow(ctx, sql, r.store, plan))
}

func (r *PostgresStore) Redeem(ctx context.Context, code string) (*model.AccessToken, error) {
	const sql = `
UPDATE access_tokens
   SET used_count = used_count + 1
 WHERE store = $1 AND code = $2
   AND is_active
   AND (expires_at IS NULL OR expires_at > $3)
   AND (max_uses = 0 OR used_count < max_uses)
RETURNING ` + tokenColumns + `;
`
	tok, err := scanToken(r.pool.QueryRow(ctx, sql, r.store, model.NormalizeCode(code), time.Now()))
	if err == nil {
		return tok, nil
	}
	if err != domain.ErrNotFound {
		return nil, err
	}
	// The conditional update matched nothing; re-read to report why.
	existing, getErr := r.Get(ctx, code)
	if getErr != nil {
		return nil, getErr
	}
	switch existing.Check(time.Now()) {
	case model.ReasonInactive:
		return nil, domain.ErrTokenInactive
	case model.ReasonExpired:
		return nil, domain.ErrTokenExpired
	case model.ReasonUsageExceeded:
		return nil, domain.ErrUsageExceeded
	}
	// Raced with a concurrent mutation; surface as exceeded.
	return nil, domain.ErrUsageExceeded
}
