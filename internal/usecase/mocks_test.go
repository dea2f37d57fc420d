//go:build !integration

package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"membership-gateway/internal/domain"
	"membership-gateway/internal/domain/model"
	"membership-gateway/internal/domain/ports/adapter"
)

// memTokenRepo is a small in-memory token store used by unit tests.
type memTokenRepo struct {
	mu     sync.RWMutex
	store  map[string]*model.AccessToken // keyed by normalized code
	getErr error                         // used by tests to simulate lookup failures
	putErr error
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{store: make(map[string]*model.AccessToken)}
}

func (m *memTokenRepo) seed(toks ...*model.AccessToken) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range toks {
		cp := *t
		m.store[model.NormalizeCode(t.Code)] = &cp
	}
}

func (m *memTokenRepo) Get(ctx context.Context, code string) (*model.AccessToken, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.store[model.NormalizeCode(code)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTokenRepo) Put(ctx context.Context, tok *model.AccessToken) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tok
	m.store[model.NormalizeCode(tok.Code)] = &cp
	return nil
}

func (m *memTokenRepo) FindByEmail(ctx context.Context, email string) ([]*model.AccessToken, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.AccessToken
	for _, t := range m.store {
		if strings.EqualFold(t.Email, email) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTokenRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.AccessToken, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.store {
		if t.StripeSessionID == sessionID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memTokenRepo) FindLatestByPlan(ctx context.Context, plan string) (*model.AccessToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matches []*model.AccessToken
	for _, t := range m.store {
		if t.Plan == plan {
			matches = append(matches, t)
		}
	}
	if len(matches) == 0 {
		return nil, domain.ErrNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].PurchaseDate.After(matches[j].PurchaseDate)
	})
	cp := *matches[0]
	return &cp, nil
}

func (m *memTokenRepo) Redeem(ctx context.Context, code string) (*model.AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.store[model.NormalizeCode(code)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	switch t.Check(time.Now()) {
	case model.ReasonInactive:
		return nil, domain.ErrTokenInactive
	case model.ReasonExpired:
		return nil, domain.ErrTokenExpired
	case model.ReasonUsageExceeded:
		return nil, domain.ErrUsageExceeded
	}
	t.UsedCount++
	cp := *t
	return &cp, nil
}

func (m *memTokenRepo) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}

// mockGateway lets each test override exactly the calls it cares about.
type mockGateway struct {
	mu          sync.Mutex
	createCalls int
	listCalls   int

	CreateSessionFunc       func(ctx context.Context, item adapter.LineItem, plan, email, successURL, cancelURL string) (*adapter.CheckoutSession, error)
	GetSessionFunc          func(ctx context.Context, id string) (*adapter.CheckoutSession, error)
	ListSessionsByEmailFunc func(ctx context.Context, email string, maxResults int) ([]*adapter.CheckoutSession, error)
}

func (m *mockGateway) Name() string { return "mock" }

func (m *mockGateway) CreateSession(ctx context.Context, item adapter.LineItem, plan, email, successURL, cancelURL string) (*adapter.CheckoutSession, error) {
	m.mu.Lock()
	m.createCalls++
	m.mu.Unlock()
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, item, plan, email, successURL, cancelURL)
	}
	return &adapter.CheckoutSession{ID: "cs_test_1", URL: "https://pay.example/cs_test_1", Plan: plan, Email: email}, nil
}

func (m *mockGateway) GetSession(ctx context.Context, id string) (*adapter.CheckoutSession, error) {
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockGateway) ListSessionsByEmail(ctx context.Context, email string, maxResults int) ([]*adapter.CheckoutSession, error) {
	m.mu.Lock()
	m.listCalls++
	m.mu.Unlock()
	if m.ListSessionsByEmailFunc != nil {
		return m.ListSessionsByEmailFunc(ctx, email, maxResults)
	}
	return nil, nil
}

// memVerdictCache records puts and invalidations for assertions.
type memVerdictCache struct {
	mu          sync.Mutex
	store       map[string]*model.EmailVerdict
	invalidated []string
}

func newMemVerdictCache() *memVerdictCache {
	return &memVerdictCache{store: make(map[string]*model.EmailVerdict)}
}

func (m *memVerdictCache) GetVerdict(ctx context.Context, email string) (*model.EmailVerdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.store[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *memVerdictCache) PutVerdict(ctx context.Context, email string, v *model.EmailVerdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	m.store[email] = &cp
	return nil
}

func (m *memVerdictCache) Invalidate(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, email)
	m.invalidated = append(m.invalidated, email)
	return nil
}
