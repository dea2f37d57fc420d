package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"membership-gateway/internal/domain/ports/adapter"
	"membership-gateway/internal/infra/security"
	"membership-gateway/internal/usecase"
)

// Server wires the gate's HTTP surface: validation, checkout, the
// payment webhook and the post-checkout pages.
type Server struct {
	validateUC usecase.ValidationUseCase
	issueUC    usecase.IssueUseCase
	checkoutUC usecase.CheckoutUseCase
	verifier   adapter.WebhookVerifier
	passes     *security.AccessPassIssuer // nil disables access passes
	log        *zerolog.Logger
	dedupe     *eventDeduper
}

func NewServer(
	validateUC usecase.ValidationUseCase,
	issueUC usecase.IssueUseCase,
	checkoutUC usecase.CheckoutUseCase,
	verifier adapter.WebhookVerifier,
	passes *security.AccessPassIssuer,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		validateUC: validateUC,
		issueUC:    issueUC,
		checkoutUC: checkoutUC,
		verifier:   verifier,
		passes:     passes,
		log:        logger,
		dedupe:     newEventDeduper(24 * time.Hour),
	}
}

// Routes builds the router. The rate limit guard covers only the
// endpoints a visitor can use to guess codes.
func (s *Server) Routes(limiter Limiter, perMinute int) *chi.Mux {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log), CORS())
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
	})

	guarded := r.With(RateLimit(limiter, perMinute, s.log))
	guarded.Post("/api/v1/membership/validate", s.handleValidate)
	guarded.Post("/api/v1/membership/validate-email", s.handleValidateEmail)
	guarded.Post("/api/v1/tokens/validate", s.handleManualValidate)

	r.Post("/api/v1/checkout/session", s.handleCheckoutSession)
	r.Post("/api/v1/session/token", s.handleSessionToken)
	r.Post("/api/v1/session/check", s.handleSessionCheck)
	r.Post("/api/v1/purchase/latest", s.handleLatestPurchase)
	r.Post("/webhook/stripe", s.handleStripeWebhook)

	r.Get("/checkout/success", s.handleCheckoutResult(true))
	r.Get("/checkout/cancel", s.handleCheckoutResult(false))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// eventDeduper remembers handled webhook event ids so provider
// redelivery cannot double-process an event within the retention window.
type eventDeduper struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	retention time.Duration
}

func newEventDeduper(retention time.Duration) *eventDeduper {
	return &eventDeduper{seen: make(map[string]time.Time), retention: retention}
}

// Seen reports whether an event id was already handled within the
// retention window. It never records the id.
func (d *eventDeduper) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.seen[id]
	return ok && time.Since(t) < d.retention
}

// Mark records an event id once it has been handled. Failed deliveries
// are never marked, so a provider retry of the same event can still
// succeed.
func (d *eventDeduper) Mark(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-d.retention)
	for k, t := range d.seen {
		if t.Before(cutoff) {
			delete(d.seen, k)
		}
	}
	d.seen[id] = now
}
