package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"membership-gateway/internal/domain"
	"membership-gateway/internal/domain/model"
	"membership-gateway/internal/domain/ports/repository"
)

var _ repository.TokenRepository = (*FileStore)(nil)

// FileStore keeps one token store as a single JSON document: a mapping
// from code to token record. All mutations rewrite the whole document via
// a temp file and rename, serialized behind a mutex, so concurrent
// writers in one process cannot lose updates.
type FileStore struct {
	path string
	now  func() time.Time
	log  *zerolog.Logger

	mu sync.Mutex
}

func NewFileStore(path string, logger *zerolog.Logger) *FileStore {
	return &FileStore{path: path, now: time.Now, log: logger}
}

// load reads the whole document. A missing file or a corrupt document is
// an empty store: validation must fail closed, never crash.
func (s *FileStore) load() map[string]*model.AccessToken {
	tokens := make(map[string]*model.AccessToken)
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("token store read failed; treating as empty")
		}
		return tokens
	}
	if err := json.Unmarshal(b, &tokens); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("token store document corrupt; treating as empty")
		return make(map[string]*model.AccessToken)
	}
	return tokens
}

func (s *FileStore) save(tokens map[string]*model.AccessToken) error {
	b, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token store: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tokens-*.json")
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace token store: %w", err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, code string) (*model.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.load()[model.NormalizeCode(code)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (s *FileStore) Put(ctx context.Context, tok *model.AccessToken) error {
	if tok.Code == "" {
		return domain.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens := s.load()
	cp := *tok
	cp.Code = model.NormalizeCode(cp.Code)
	tokens[cp.Code] = &cp
	return s.save(tokens)
}

func (s *FileStore) FindByEmail(ctx context.Context, email string) ([]*model.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.AccessToken
	for _, tok := range s.load() {
		if strings.EqualFold(tok.Email, email) {
			cp := *tok
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *FileStore) FindBySessionID(ctx context.Context, sessionID string) (*model.AccessToken, error) {
	if sessionID == "" {
		return nil, domain.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range s.load() {
		if tok.StripeSessionID == sessionID {
			cp := *tok
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *FileStore) FindLatestByPlan(ctx context.Context, plan string) (*model.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *model.AccessToken
	for _, tok := range s.load() {
		if tok.Plan != plan {
			continue
		}
		if latest == nil || tok.PurchaseDate.After(latest.PurchaseDate) {
			latest = tok
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

// Redeem performs the conditional increment under the store lock: the
// whole check-and-bump is atomic with respect to other store operations.
func (s *FileStore) Redeem(ctx context.Context, code string) (*model.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens := s.load()
	tok, ok := tokens[model.NormalizeCode(code)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	switch tok.Check(s.now()) {
	case model.ReasonInactive:
		return nil, domain.ErrTokenInactive
	case model.ReasonExpired:
		return nil, domain.ErrTokenExpired
	case model.ReasonUsageExceeded:
		return nil, domain.ErrUsageExceeded
	}
	tok.UsedCount++
	if err := s.save(tokens); err != nil {
		return nil, err
	}
	cp := *tok
	return &cp, nil
}
