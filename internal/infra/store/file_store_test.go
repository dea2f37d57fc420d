//go:build !integration

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"membership-gateway/internal/domain"
	"membership-gateway/internal/domain/model"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	l := zerolog.Nop()
	return NewFileStore(filepath.Join(t.TempDir(), "tokens.json"), &l)
}

func TestFileStorePersistence(t *testing.T) {
	ctx := context.Background()

	t.Run("put then get across instances", func(t *testing.T) {
		l := zerolog.Nop()
		path := filepath.Join(t.TempDir(), "tokens.json")
		first := NewFileStore(path, &l)

		tok := &model.AccessToken{Code: "abc-123", Email: "buyer@example.com", IsActive: true, MaxUses: 5}
		if err := first.Put(ctx, tok); err != nil {
			t.Fatalf("put failed: %v", err)
		}

		// A fresh instance reads the same document.
		second := NewFileStore(path, &l)
		got, err := second.Get(ctx, "ABC-123")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got.Code != "ABC-123" {
			t.Errorf("expected normalized code ABC-123, got %s", got.Code)
		}
		if got.Email != "buyer@example.com" || got.MaxUses != 5 {
			t.Errorf("round trip lost fields: %+v", got)
		}
	})

	t.Run("missing file is an empty store", func(t *testing.T) {
		s := newTestStore(t)
		if _, err := s.Get(ctx, "ABC-123"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("corrupt document is an empty store", func(t *testing.T) {
		l := zerolog.Nop()
		path := filepath.Join(t.TempDir(), "tokens.json")
		if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
			t.Fatal(err)
		}
		s := NewFileStore(path, &l)
		if _, err := s.Get(ctx, "ABC-123"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("put rejects empty code", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.Put(ctx, &model.AccessToken{}); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestFileStoreLookups(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	seed := []*model.AccessToken{
		{Code: "PREM-AAA1", Email: "Buyer@Example.com", Plan: "premium", StripeSessionID: "cs_1", PurchaseDate: time.Now().Add(-time.Hour), IsActive: true},
		{Code: "PREM-BBB2", Email: "buyer@example.com", Plan: "premium", StripeSessionID: "cs_2", PurchaseDate: time.Now(), IsActive: true},
		{Code: "STAN-CCC3", Email: "other@example.com", Plan: "standard", IsActive: true},
	}
	for _, tok := range seed {
		if err := s.Put(ctx, tok); err != nil {
			t.Fatalf("seed put failed: %v", err)
		}
	}

	t.Run("find by email is case-insensitive", func(t *testing.T) {
		toks, err := s.FindByEmail(ctx, "BUYER@example.COM")
		if err != nil {
			t.Fatalf("find failed: %v", err)
		}
		if len(toks) != 2 {
			t.Errorf("expected 2 tokens, got %d", len(toks))
		}
	})

	t.Run("find by session id", func(t *testing.T) {
		tok, err := s.FindBySessionID(ctx, "cs_2")
		if err != nil {
			t.Fatalf("find failed: %v", err)
		}
		if tok.Code != "PREM-BBB2" {
			t.Errorf("expected PREM-BBB2, got %s", tok.Code)
		}
		if _, err := s.FindBySessionID(ctx, "cs_none"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := s.FindBySessionID(ctx, ""); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound for empty id, got %v", err)
		}
	})

	t.Run("latest by plan", func(t *testing.T) {
		tok, err := s.FindLatestByPlan(ctx, "premium")
		if err != nil {
			t.Fatalf("find failed: %v", err)
		}
		if tok.Code != "PREM-BBB2" {
			t.Errorf("expected the newer purchase, got %s", tok.Code)
		}
		if _, err := s.FindLatestByPlan(ctx, "gold"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestFileStoreRedeem(t *testing.T) {
	ctx := context.Background()

	t.Run("increments and persists", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.Put(ctx, &model.AccessToken{Code: "ABC-123", IsActive: true, MaxUses: 2}); err != nil {
			t.Fatal(err)
		}

		tok, err := s.Redeem(ctx, "abc-123")
		if err != nil {
			t.Fatalf("redeem failed: %v", err)
		}
		if tok.UsedCount != 1 {
			t.Errorf("expected used count 1, got %d", tok.UsedCount)
		}
		got, _ := s.Get(ctx, "ABC-123")
		if got.UsedCount != 1 {
			t.Errorf("expected persisted used count 1, got %d", got.UsedCount)
		}
	})

	t.Run("stops at the ceiling", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.Put(ctx, &model.AccessToken{Code: "ABC-123", IsActive: true, MaxUses: 1}); err != nil {
			t.Fatal(err)
		}

		if _, err := s.Redeem(ctx, "ABC-123"); err != nil {
			t.Fatalf("first redeem failed: %v", err)
		}
		if _, err := s.Redeem(ctx, "ABC-123"); !errors.Is(err, domain.ErrUsageExceeded) {
			t.Fatalf("expected ErrUsageExceeded, got %v", err)
		}
		got, _ := s.Get(ctx, "ABC-123")
		if got.UsedCount != 1 {
			t.Errorf("expected used count to stay at 1, got %d", got.UsedCount)
		}
	})

	t.Run("inactive and expired are rejected", func(t *testing.T) {
		s := newTestStore(t)
		past := time.Now().Add(-time.Hour)
		if err := s.Put(ctx, &model.AccessToken{Code: "OFF-111", IsActive: false}); err != nil {
			t.Fatal(err)
		}
		if err := s.Put(ctx, &model.AccessToken{Code: "OLD-222", IsActive: true, ExpiresAt: &past}); err != nil {
			t.Fatal(err)
		}

		if _, err := s.Redeem(ctx, "OFF-111"); !errors.Is(err, domain.ErrTokenInactive) {
			t.Errorf("expected ErrTokenInactive, got %v", err)
		}
		if _, err := s.Redeem(ctx, "OLD-222"); !errors.Is(err, domain.ErrTokenExpired) {
			t.Errorf("expected ErrTokenExpired, got %v", err)
		}
	})

	t.Run("concurrent redeems never exceed the ceiling", func(t *testing.T) {
		s := newTestStore(t)
		const ceiling = 5
		if err := s.Put(ctx, &model.AccessToken{Code: "ABC-123", IsActive: true, MaxUses: ceiling}); err != nil {
			t.Fatal(err)
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		okCount := 0
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.Redeem(ctx, "ABC-123"); err == nil {
					mu.Lock()
					okCount++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if okCount != ceiling {
			t.Errorf("expected exactly %d successful redeems, got %d", ceiling, okCount)
		}
		got, _ := s.Get(ctx, "ABC-123")
		if got.UsedCount != ceiling {
			t.Errorf("expected used count %d, got %d", ceiling, got.UsedCount)
		}
	})
}
