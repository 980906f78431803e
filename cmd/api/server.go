package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"coverflow/escrow"
	"coverflow/policy"
	"coverflow/registry"
	"coverflow/relay"
	"coverflow/settlement"
	"coverflow/telemetry"
)

type settlementService interface {
	Initialize(ctx context.Context, policyID uint64, caller string, attached int64) error
	TriggerClaim(ctx context.Context, policyID uint64, caller string, proof escrow.TriggerProof, idempotencyKey string) error
	HandleExpiry(ctx context.Context, policyID uint64, caller string) error
	FreezeDispute(ctx context.Context, policyID uint64, caller string) error
	ResolveDispute(ctx context.Context, policyID uint64, caller string, outcome escrow.Outcome) error
	EmergencyWithdraw(ctx context.Context, policyID uint64, caller string) error
	Snapshot(ctx context.Context, policyID uint64) (*escrow.Escrow, error)
	TimeRemaining(ctx context.Context, policyID uint64) (time.Duration, error)
	Preview(ctx context.Context, policyID uint64) (escrow.Amounts, error)
	Timeline(ctx context.Context, policyID uint64) ([]settlement.TimelineEvent, error)
}

type policyService interface {
	Quote(ctx context.Context, product escrow.ProductType, assetID string, coverage int64, term time.Duration) (policy.QuoteResult, error)
	Create(ctx context.Context, params policy.CreateParams) (policy.Policy, error)
	Get(ctx context.Context, id uint64) (policy.Policy, error)
	ListByOwner(ctx context.Context, owner string, limit int) ([]policy.Policy, error)
}

type relayService interface {
	Register(ctx context.Context, req relay.RegisterRequest) (*relay.Sponsor, error)
	Login(ctx context.Context, req relay.LoginRequest) (relay.LoginResult, error)
	VerifyToken(token string) (string, error)
	Fund(ctx context.Context, sponsorID string, req relay.FundRequest) (relay.Funding, error)
	ListFundings(ctx context.Context, sponsorID string, limit int) ([]relay.Funding, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the HTTP surface. Handlers take the on-chain caller address
// from the X-Caller-Address header, which the wallet gateway sets after
// verifying the request signature; role checks stay inside the escrow
// machine itself.
type Server struct {
	settlements settlementService
	policies    policyService
	sponsors    relayService
	db          pinger
	metrics     *telemetry.Metrics
	log         zerolog.Logger
}

type contextKey string

const ctxKeySponsorID contextKey = "sponsor_id"

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/quotes", s.handleQuote)
	mux.HandleFunc("/api/policies", s.handlePolicies)
	mux.HandleFunc("/api/policies/", s.handlePolicyDetail)
	mux.HandleFunc("/api/escrows/", s.handleEscrowDetail)
	mux.HandleFunc("/api/relay/register", s.handleRelayRegister)
	mux.HandleFunc("/api/relay/login", s.handleRelayLogin)
	mux.HandleFunc("/api/relay/fundings", s.requireSponsor(s.handleRelayFundings))
	mux.HandleFunc("/healthz", s.handleHealthz)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return s.withLogging(mux)
}

// withLogging wraps the mux with a per-request access log.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// requireSponsor authenticates the relay session token and stores the
// sponsor id in the request context.
func (s *Server) requireSponsor(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		sponsorID, err := s.sponsors.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid session token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeySponsorID, sponsorID)
		next(w, r.WithContext(ctx))
	}
}

func sponsorIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeySponsorID).(string)
	return id
}

// callerAddress returns the gateway-verified wallet address of the caller,
// empty when the request arrived without one.
func callerAddress(r *http.Request) string {
	return r.Header.Get("X-Caller-Address")
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps domain sentinels onto HTTP statuses. Unexpected
// errors are logged and reported as a bare 500 so internals stay out of
// responses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, settlement.ErrNotFound),
		errors.Is(err, policy.ErrNotFound),
		errors.Is(err, registry.ErrUnknownAsset):
		return http.StatusNotFound
	case errors.Is(err, escrow.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, escrow.ErrInvalidState),
		errors.Is(err, escrow.ErrAlreadyInitialized),
		errors.Is(err, escrow.ErrNotExpired),
		errors.Is(err, relay.ErrDuplicateSponsor),
		errors.Is(err, relay.ErrDuplicateNonce):
		return http.StatusConflict
	case errors.Is(err, escrow.ErrInvalidTriggerProof):
		return http.StatusUnprocessableEntity
	case errors.Is(err, escrow.ErrInvalidConfiguration),
		errors.Is(err, escrow.ErrInsufficientCollateral),
		errors.Is(err, policy.ErrUnknownProduct),
		errors.Is(err, policy.ErrCoverageOutOfRange),
		errors.Is(err, policy.ErrTermOutOfRange),
		errors.Is(err, relay.ErrWeakSecret),
		errors.Is(err, relay.ErrInvalidFunding):
		return http.StatusBadRequest
	case errors.Is(err, relay.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, relay.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, relay.ErrBudgetExceeded):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid json body")
	}
	return nil
}
