package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"membership-gateway/internal/domain/model"
)

// VerdictCache stores provider-backed email verdicts so repeated polling
// does not hammer the provider API. Entries expire after the configured
// TTL; issuance invalidates them eagerly.
type VerdictCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewVerdictCache(client RedisClient, ttl time.Duration) *VerdictCache {
	return &VerdictCache{client: client, ttl: ttl}
}

func verdictKey(email string) string {
	return "verdict:email:" + strings.ToLower(strings.TrimSpace(email))
}

// GetVerdict returns the cached verdict for an email, or (nil, nil) on a miss.
func (c *VerdictCache) GetVerdict(ctx context.Context, email string) (*model.EmailVerdict, error) {
	raw, err := c.client.Get(ctx, verdictKey(email))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	var v model.EmailVerdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		// A corrupt entry is treated as a miss; it will be overwritten.
		return nil, nil
	}
	return &v, nil
}

func (c *VerdictCache) PutVerdict(ctx context.Context, email string, v *model.EmailVerdict) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, verdictKey(email), string(b), c.ttl)
}

// Invalidate drops the cached verdict, e.g. after a token is issued for
// the email.
func (c *VerdictCache) Invalidate(ctx context.Context, email string) error {
	return c.client.Del(ctx, verdictKey(email))
}
