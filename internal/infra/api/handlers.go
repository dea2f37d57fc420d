package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"membership-gateway/internal/domain"
	"membership-gateway/internal/domain/model"
	"membership-gateway/internal/infra/metrics"
	"membership-gateway/internal/usecase"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// decodeBody parses a JSON request body. A body that does not parse is a
// generic 500, matching the gate's established contract.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("invalid request"))
		return false
	}
	return true
}

type validateRequest struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

type validateResponse struct {
	Valid      bool               `json:"valid"`
	Tier       model.AccessLevel  `json:"tier"`
	Source     model.Source       `json:"source"`
	Reason     model.Reason       `json:"reason,omitempty"`
	TokenData  *model.AccessToken `json:"tokenData,omitempty"`
	AccessPass string             `json:"accessPass,omitempty"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Token == "" && req.Email == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("token or email is required"))
		return
	}

	start := time.Now()
	v := s.validateUC.Validate(r.Context(), req.Token, req.Email)
	metrics.ObserveValidation(v.Valid, string(v.Source), time.Since(start).Seconds())

	resp := validateResponse{
		Valid:  v.Valid,
		Tier:   v.Tier,
		Source: v.Source,
		Reason: v.Reason,
	}
	if v.Valid {
		resp.TokenData = v.Token
		if s.passes != nil {
			subject := req.Email
			if v.Token != nil {
				subject = v.Token.Code
			}
			if pass, err := s.passes.Mint(subject, string(v.Tier)); err == nil {
				resp.AccessPass = pass
			} else {
				s.log.Warn().Err(err).Msg("access pass mint failed")
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type validateEmailRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleValidateEmail(w http.ResponseWriter, r *http.Request) {
	var req validateEmailRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("email is required"))
		return
	}

	start := time.Now()
	v := s.validateUC.ValidateByEmail(r.Context(), req.Email)
	metrics.ObserveValidation(v.Valid, string(model.SourceStripe), time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, v)
}

type manualValidateRequest struct {
	Code   string `json:"code"`
	Action string `json:"action"`
}

type manualValidateResponse struct {
	IsValid       bool               `json:"isValid"`
	Valid         bool               `json:"valid"`
	AccessLevel   model.AccessLevel  `json:"accessLevel"`
	Reason        model.Reason       `json:"reason,omitempty"`
	Token         *model.AccessToken `json:"token,omitempty"`
	RemainingUses *int               `json:"remainingUses,omitempty"`
}

func (s *Server) handleManualValidate(w http.ResponseWriter, r *http.Request) {
	var req manualValidateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("code is required"))
		return
	}

	if req.Action == "use" {
		s.redeem(w, r, req.Code)
		return
	}

	v := s.validateUC.ValidateCode(r.Context(), req.Code)
	resp := manualValidateResponse{
		IsValid:     v.Valid,
		Valid:       v.Valid,
		AccessLevel: v.Tier,
		Reason:      v.Reason,
	}
	if v.Valid {
		resp.Token = v.Token
		resp.RemainingUses = remainingUses(v.Token)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) redeem(w http.ResponseWriter, r *http.Request, code string) {
	tok, err := s.validateUC.Redeem(r.Context(), code)
	if err != nil {
		resp := manualValidateResponse{AccessLevel: model.AccessLevelFree}
		switch {
		case errors.Is(err, domain.ErrNotFound):
			metrics.IncRedeem("not_found")
		case errors.Is(err, domain.ErrTokenInactive):
			metrics.IncRedeem("inactive")
			resp.Reason = model.ReasonInactive
		case errors.Is(err, domain.ErrTokenExpired):
			metrics.IncRedeem("expired")
			resp.Reason = model.ReasonExpired
		case errors.Is(err, domain.ErrUsageExceeded):
			metrics.IncRedeem("usage_exceeded")
			resp.Reason = model.ReasonUsageExceeded
		default:
			metrics.IncRedeem("error")
			writeJSON(w, http.StatusInternalServerError, errorBody("redeem failed"))
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	metrics.IncRedeem("ok")
	writeJSON(w, http.StatusOK, manualValidateResponse{
		IsValid:       true,
		Valid:         true,
		AccessLevel:   tok.Tier(),
		Token:         tok,
		RemainingUses: remainingUses(tok),
	})
}

func remainingUses(tok *model.AccessToken) *int {
	if tok == nil {
		return nil
	}
	if n := tok.RemainingUses(); n >= 0 {
		return &n
	}
	return nil
}

type checkoutRequest struct {
	Plan      string `json:"plan"`
	Email     string `json:"email"`
	Action    string `json:"action"`
	SessionID string `json:"sessionId"`
}

func (s *Server) handleCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.Action == "get-session-details" {
		if req.SessionID == "" {
			writeJSON(w, http.StatusBadRequest, errorBody("sessionId is required"))
			return
		}
		sess, err := s.checkoutUC.SessionDetails(r.Context(), req.SessionID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody("failed to load session"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"sessionId":     sess.ID,
			"status":        sess.Status,
			"paymentStatus": sess.PaymentStatus,
			"paid":          sess.Paid,
			"plan":          sess.Plan,
			"email":         sess.Email,
			"amountTotal":   sess.AmountTotal,
		})
		return
	}

	if req.Plan == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("plan is required"))
		return
	}
	sess, err := s.checkoutUC.StartCheckout(r.Context(), req.Plan, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownPlan) || errors.Is(err, domain.ErrInvalidArgument) {
			metrics.IncCheckoutSession(req.Plan, "rejected")
			writeJSON(w, http.StatusBadRequest, errorBody("unknown plan: "+req.Plan))
			return
		}
		metrics.IncCheckoutSession(req.Plan, "error")
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to create checkout session"))
		return
	}
	metrics.IncCheckoutSession(req.Plan, "created")
	writeJSON(w, http.StatusOK, map[string]string{
		"url":       sess.URL,
		"sessionId": sess.ID,
	})
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleSessionToken(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("sessionId is required"))
		return
	}

	tok, sess, err := s.issueUC.IssueFromSessionID(r.Context(), req.SessionID, usecase.TriggerAuto)
	if err != nil {
		if errors.Is(err, domain.ErrSessionUnpaid) {
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "paid": false})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to process session"))
		return
	}
	metrics.IncTokenIssued(tok.Plan, usecase.TriggerAuto)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"paid":    sess.Paid,
		"token":   tok.Code,
		"email":   tok.Email,
		"plan":    tok.Plan,
	})
}

func (s *Server) handleSessionCheck(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("sessionId is required"))
		return
	}

	tok, sess, err := s.issueUC.IssueFromSessionID(r.Context(), req.SessionID, usecase.TriggerPoll)
	if err != nil {
		if errors.Is(err, domain.ErrSessionUnpaid) {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"paid":    false,
				"status":  sess.PaymentStatus,
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to check session"))
		return
	}
	metrics.IncTokenIssued(tok.Plan, usecase.TriggerPoll)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"paid":    true,
		"token":   tok.Code,
		"status":  sess.PaymentStatus,
	})
}

type latestPurchaseRequest struct {
	Plan string `json:"plan"`
}

func (s *Server) handleLatestPurchase(w http.ResponseWriter, r *http.Request) {
	var req latestPurchaseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Plan == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("plan is required"))
		return
	}

	tok, err := s.checkoutUC.LatestPurchase(r.Context(), req.Plan)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": false,
				"message": "no purchase found for plan " + req.Plan,
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to look up purchases"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"token":   tok.Code,
	})
}

// webhookBodyLimit caps how much of a webhook payload is read.
const webhookBodyLimit = 1 << 20 // 1 MiB

func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}

	event, err := s.verifier.ParseEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		metrics.IncWebhookEvent("unknown", "bad_signature")
		writeJSON(w, http.StatusBadRequest, errorBody("invalid signature"))
		return
	}

	if s.dedupe.Seen(event.ID) {
		metrics.IncWebhookEvent(event.Type, "duplicate")
		writeJSON(w, http.StatusOK, map[string]interface{}{"received": true})
		return
	}

	if event.Type != "checkout.session.completed" || event.Session == nil {
		metrics.IncWebhookEvent(event.Type, "ignored")
		s.dedupe.Mark(event.ID)
		writeJSON(w, http.StatusOK, map[string]interface{}{"received": true})
		return
	}

	sess := event.Session
	if sess.Email == "" || sess.Plan == "" {
		// Nothing to issue a token from; acknowledge so the provider
		// stops retrying.
		s.log.Warn().Str("session_id", sess.ID).Msg("checkout completed without email or plan metadata")
		metrics.IncWebhookEvent(event.Type, "ignored")
		s.dedupe.Mark(event.ID)
		writeJSON(w, http.StatusOK, map[string]interface{}{"received": true})
		return
	}

	tok, err := s.issueUC.IssueForSession(r.Context(), sess, usecase.TriggerWebhook)
	if err != nil {
		// Not marked as handled: the 500 makes the provider redeliver
		// and the retry must be allowed to reach issuance again.
		s.log.Error().Err(err).Str("session_id", sess.ID).Msg("webhook token issuance failed")
		metrics.IncWebhookEvent(event.Type, "error")
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to process event"))
		return
	}
	metrics.IncTokenIssued(tok.Plan, usecase.TriggerWebhook)

	metrics.IncWebhookEvent(event.Type, "processed")
	s.dedupe.Mark(event.ID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"received": true})
}
