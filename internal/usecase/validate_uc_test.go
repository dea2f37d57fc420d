//go:build !integration

package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"membership-gateway/internal/domain"
	"membership-gateway/internal/domain/model"
	"membership-gateway/internal/domain/ports/adapter"
)

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

func newValidateFixture() (*validationUC, *memTokenRepo, *memTokenRepo, *mockGateway, *memVerdictCache) {
	manual := newMemTokenRepo()
	auto := newMemTokenRepo()
	gw := &mockGateway{}
	cache := newMemVerdictCache()
	uc := NewValidationUseCase(manual, auto, gw, cache, newLogger(), false)
	return uc, manual, auto, gw, cache
}

func TestValidate_CodePrecedence(t *testing.T) {
	ctx := context.Background()

	t.Run("manual store wins over auto store", func(t *testing.T) {
		uc, manual, auto, _, _ := newValidateFixture()
		manual.seed(&model.AccessToken{Code: "ABC-123", AccessLevel: model.AccessLevelPremium, IsActive: true})
		auto.seed(&model.AccessToken{Code: "ABC-123", AccessLevel: model.AccessLevelUnlimited, IsActive: true})

		v := uc.Validate(ctx, "ABC-123", "")
		if !v.Valid {
			t.Fatal("expected a valid verdict")
		}
		if v.Source != model.SourceManual {
			t.Errorf("expected source manual, got %s", v.Source)
		}
		if v.Tier != model.AccessLevelPremium {
			t.Errorf("expected tier premium, got %s", v.Tier)
		}
	})

	t.Run("falls back to auto store", func(t *testing.T) {
		uc, _, auto, _, _ := newValidateFixture()
		auto.seed(&model.AccessToken{Code: "PREM-XYZ9", AccessLevel: model.AccessLevelPremium, IsActive: true})

		v := uc.Validate(ctx, "PREM-XYZ9", "")
		if !v.Valid || v.Source != model.SourceAuto {
			t.Errorf("expected valid auto verdict, got valid=%v source=%s", v.Valid, v.Source)
		}
	})

	t.Run("codes match case-insensitively", func(t *testing.T) {
		uc, manual, _, _, _ := newValidateFixture()
		manual.seed(&model.AccessToken{Code: "ABC-123", AccessLevel: model.AccessLevelPremium, IsActive: true})

		for _, input := range []string{"abc-123", "Abc-123", "  ABC-123  "} {
			v := uc.Validate(ctx, input, "")
			if !v.Valid {
				t.Errorf("expected %q to validate", input)
			}
		}
	})

	t.Run("code-shaped email is tried as a code first", func(t *testing.T) {
		uc, manual, _, _, _ := newValidateFixture()
		manual.seed(&model.AccessToken{Code: "ABC-123", AccessLevel: model.AccessLevelPremium, IsActive: true})

		v := uc.Validate(ctx, "", "ABC-123")
		if !v.Valid || v.Source != model.SourceManual {
			t.Errorf("expected manual verdict for code-shaped email, got valid=%v source=%s", v.Valid, v.Source)
		}
	})

	t.Run("no match yields free none", func(t *testing.T) {
		uc, _, _, _, _ := newValidateFixture()
		v := uc.Validate(ctx, "NOPE-0000", "")
		if v.Valid {
			t.Error("expected invalid verdict")
		}
		if v.Tier != model.AccessLevelFree || v.Source != model.SourceNone {
			t.Errorf("expected free/none, got %s/%s", v.Tier, v.Source)
		}
	})

	t.Run("empty inputs yield free none", func(t *testing.T) {
		uc, _, _, _, _ := newValidateFixture()
		v := uc.Validate(ctx, "", "")
		if v.Valid || v.Source != model.SourceNone {
			t.Errorf("expected free/none, got valid=%v source=%s", v.Valid, v.Source)
		}
	})
}

func TestValidate_RecordChecks(t *testing.T) {
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	cases := []struct {
		name   string
		tok    model.AccessToken
		reason model.Reason
	}{
		{
			name:   "inactive token is rejected",
			tok:    model.AccessToken{Code: "OFF-111", IsActive: false},
			reason: model.ReasonInactive,
		},
		{
			name:   "expired token is rejected",
			tok:    model.AccessToken{Code: "OLD-222", IsActive: true, ExpiresAt: &past},
			reason: model.ReasonExpired,
		},
		{
			name:   "exhausted token is rejected",
			tok:    model.AccessToken{Code: "USED-333", IsActive: true, MaxUses: 3, UsedCount: 3},
			reason: model.ReasonUsageExceeded,
		},
		{
			name:   "future expiry still passes",
			tok:    model.AccessToken{Code: "OK-444", IsActive: true, ExpiresAt: &future},
			reason: model.ReasonNone,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc, manual, _, _, _ := newValidateFixture()
			manual.seed(&tc.tok)

			v := uc.Validate(ctx, tc.tok.Code, "")
			if tc.reason == model.ReasonNone {
				if !v.Valid {
					t.Fatalf("expected valid verdict, got reason %s", v.Reason)
				}
				return
			}
			if v.Valid {
				t.Fatal("expected invalid verdict")
			}
			if v.Reason != tc.reason {
				t.Errorf("expected reason %s, got %s", tc.reason, v.Reason)
			}
			if v.Tier != model.AccessLevelFree {
				t.Errorf("expected tier free, got %s", v.Tier)
			}
			// The failing verdict still names the store that matched.
			if v.Source != model.SourceManual {
				t.Errorf("expected source manual, got %s", v.Source)
			}
		})
	}
}

func TestValidate_EmailAgainstAutoStore(t *testing.T) {
	ctx := context.Background()

	t.Run("active auto token matches by email", func(t *testing.T) {
		uc, _, auto, _, _ := newValidateFixture()
		auto.seed(&model.AccessToken{Code: "PREM-AAA1", Email: "buyer@example.com", AccessLevel: model.AccessLevelPremium, IsActive: true})

		v := uc.Validate(ctx, "", "buyer@example.com")
		if !v.Valid {
			t.Fatal("expected valid verdict")
		}
		if v.Source != model.SourceStripe {
			t.Errorf("expected source stripe, got %s", v.Source)
		}
	})

	t.Run("inactive auto tokens do not match", func(t *testing.T) {
		uc, _, auto, _, _ := newValidateFixture()
		auto.seed(&model.AccessToken{Code: "PREM-BBB2", Email: "buyer@example.com", IsActive: false})

		v := uc.Validate(ctx, "", "buyer@example.com")
		if v.Valid {
			t.Error("expected invalid verdict")
		}
		if v.Source != model.SourceNone {
			t.Errorf("expected source none, got %s", v.Source)
		}
	})
}

func TestValidate_StoreFailureFailsClosed(t *testing.T) {
	uc, manual, _, _, _ := newValidateFixture()
	manual.getErr = errors.New("disk on fire")

	v := uc.Validate(context.Background(), "ABC-123", "")
	if v.Valid {
		t.Error("expected invalid verdict on store failure")
	}
	if v.Tier != model.AccessLevelFree {
		t.Errorf("expected tier free, got %s", v.Tier)
	}
	if v.Source != model.SourceError {
		t.Errorf("expected source error, got %s", v.Source)
	}
}

func TestLookupFailureLogRedaction(t *testing.T) {
	ctx := context.Background()
	newUC := func(dev bool) (*validationUC, *bytes.Buffer) {
		var buf bytes.Buffer
		l := zerolog.New(&buf)
		manual := newMemTokenRepo()
		auto := newMemTokenRepo()
		auto.getErr = errors.New("store down")
		return NewValidationUseCase(manual, auto, &mockGateway{}, nil, &l, dev), &buf
	}

	t.Run("dev mode logs the full email", func(t *testing.T) {
		uc, buf := newUC(true)
		uc.Validate(ctx, "", "buyer@example.com")
		if !strings.Contains(buf.String(), "buyer@example.com") {
			t.Errorf("expected unredacted email in dev logs, got %s", buf.String())
		}
	})

	t.Run("prod mode redacts the email", func(t *testing.T) {
		uc, buf := newUC(false)
		uc.Validate(ctx, "", "buyer@example.com")
		if strings.Contains(buf.String(), "buyer@example.com") {
			t.Errorf("expected redacted email in prod logs, got %s", buf.String())
		}
	})
}

func TestRedeem(t *testing.T) {
	ctx := context.Background()

	t.Run("consumes one use and reports the new count", func(t *testing.T) {
		uc, manual, _, _, _ := newValidateFixture()
		manual.seed(&model.AccessToken{Code: "ABC-123", IsActive: true, MaxUses: 2})

		tok, err := uc.Redeem(ctx, "abc-123")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if tok.UsedCount != 1 {
			t.Errorf("expected used count 1, got %d", tok.UsedCount)
		}
		if tok.RemainingUses() != 1 {
			t.Errorf("expected 1 remaining use, got %d", tok.RemainingUses())
		}
	})

	t.Run("falls back to the auto store", func(t *testing.T) {
		uc, _, auto, _, _ := newValidateFixture()
		auto.seed(&model.AccessToken{Code: "PREM-CCC3", IsActive: true})

		if _, err := uc.Redeem(ctx, "PREM-CCC3"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("exhausted token is not incremented further", func(t *testing.T) {
		uc, manual, _, _, _ := newValidateFixture()
		manual.seed(&model.AccessToken{Code: "ABC-123", IsActive: true, MaxUses: 1, UsedCount: 1})

		_, err := uc.Redeem(ctx, "ABC-123")
		if !errors.Is(err, domain.ErrUsageExceeded) {
			t.Fatalf("expected ErrUsageExceeded, got %v", err)
		}
		tok, _ := manual.Get(ctx, "ABC-123")
		if tok.UsedCount != 1 {
			t.Errorf("expected used count to stay at 1, got %d", tok.UsedCount)
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		uc, _, _, _, _ := newValidateFixture()
		if _, err := uc.Redeem(ctx, "NOPE-0000"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestValidateByEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("most recent paid session wins", func(t *testing.T) {
		uc, _, _, gw, _ := newValidateFixture()
		gw.ListSessionsByEmailFunc = func(ctx context.Context, email string, maxResults int) ([]*adapter.CheckoutSession, error) {
			return []*adapter.CheckoutSession{
				{ID: "cs_new", Paid: false, Plan: model.PlanPremium},
				{ID: "cs_paid", Paid: true, Plan: model.PlanPremium},
				{ID: "cs_old", Paid: true, Plan: "standard"},
			}, nil
		}

		v := uc.ValidateByEmail(ctx, "buyer@example.com")
		if !v.Valid {
			t.Fatal("expected valid verdict")
		}
		if v.SessionID != "cs_paid" {
			t.Errorf("expected session cs_paid, got %s", v.SessionID)
		}
		if v.Tier != model.AccessLevelPremium {
			t.Errorf("expected tier premium, got %s", v.Tier)
		}
		if v.SessionCount != 3 {
			t.Errorf("expected session count 3, got %d", v.SessionCount)
		}
	})

	t.Run("no paid sessions", func(t *testing.T) {
		uc, _, _, gw, _ := newValidateFixture()
		gw.ListSessionsByEmailFunc = func(ctx context.Context, email string, maxResults int) ([]*adapter.CheckoutSession, error) {
			return []*adapter.CheckoutSession{{ID: "cs_open", Paid: false}}, nil
		}

		v := uc.ValidateByEmail(ctx, "buyer@example.com")
		if v.Valid {
			t.Error("expected invalid verdict")
		}
		if v.Tier != model.AccessLevelFree {
			t.Errorf("expected tier free, got %s", v.Tier)
		}
	})

	t.Run("provider failure degrades to free", func(t *testing.T) {
		uc, _, _, gw, _ := newValidateFixture()
		gw.ListSessionsByEmailFunc = func(ctx context.Context, email string, maxResults int) ([]*adapter.CheckoutSession, error) {
			return nil, errors.New("provider down")
		}

		v := uc.ValidateByEmail(ctx, "buyer@example.com")
		if v.Valid || v.Tier != model.AccessLevelFree {
			t.Errorf("expected free verdict, got valid=%v tier=%s", v.Valid, v.Tier)
		}
	})

	t.Run("input without @ never reaches the provider", func(t *testing.T) {
		uc, _, _, gw, _ := newValidateFixture()
		v := uc.ValidateByEmail(ctx, "not-an-email")
		if v.Valid {
			t.Error("expected invalid verdict")
		}
		if gw.listCalls != 0 {
			t.Errorf("expected no provider calls, got %d", gw.listCalls)
		}
	})

	t.Run("session scan is bounded", func(t *testing.T) {
		uc, _, _, gw, _ := newValidateFixture()
		gotMax := 0
		gw.ListSessionsByEmailFunc = func(ctx context.Context, email string, maxResults int) ([]*adapter.CheckoutSession, error) {
			gotMax = maxResults
			// The gateway honors the cap and returns no more than that.
			out := make([]*adapter.CheckoutSession, maxResults)
			for i := range out {
				out[i] = &adapter.CheckoutSession{ID: fmt.Sprintf("cs_%d", i)}
			}
			return out, nil
		}

		v := uc.ValidateByEmail(ctx, "busy@example.com")
		if gotMax != maxSessionScan {
			t.Errorf("expected the scan cap %d to reach the gateway, got %d", maxSessionScan, gotMax)
		}
		if v.SessionCount != maxSessionScan {
			t.Errorf("expected session count %d, got %d", maxSessionScan, v.SessionCount)
		}
		if v.Valid {
			t.Error("expected invalid verdict with no paid sessions")
		}
	})

	t.Run("second lookup is served from cache", func(t *testing.T) {
		uc, _, _, gw, _ := newValidateFixture()
		gw.ListSessionsByEmailFunc = func(ctx context.Context, email string, maxResults int) ([]*adapter.CheckoutSession, error) {
			return []*adapter.CheckoutSession{{ID: "cs_paid", Paid: true, Plan: model.PlanPremium}}, nil
		}

		first := uc.ValidateByEmail(ctx, "buyer@example.com")
		second := uc.ValidateByEmail(ctx, "buyer@example.com")
		if !second.Valid || second.SessionID != first.SessionID {
			t.Errorf("expected cached verdict to match, got %+v vs %+v", second, first)
		}
		if gw.listCalls != 1 {
			t.Errorf("expected exactly one provider call, got %d", gw.listCalls)
		}
	})
}
