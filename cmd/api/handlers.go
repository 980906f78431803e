package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"coverflow/escrow"
	"coverflow/policy"
	"coverflow/settlement"
)

type quoteRequest struct {
	ProductType    string `json:"productType"`
	AssetID        string `json:"assetId"`
	CoverageAmount int64  `json:"coverageAmount"`
	TermDays       int    `json:"termDays"`
}

type quoteResponse struct {
	ProductType      string `json:"productType"`
	AssetID          string `json:"assetId"`
	CoverageAmount   int64  `json:"coverageAmount"`
	TermDays         int    `json:"termDays"`
	Premium          int64  `json:"premium"`
	RateBps          uint16 `json:"rateBps"`
	TriggerThreshold uint32 `json:"triggerThreshold"`
	TriggerDuration  int64  `json:"triggerDurationSeconds"`
}

type policyResponse struct {
	ID             uint64 `json:"id"`
	Owner          string `json:"owner"`
	ProductType    string `json:"productType"`
	AssetID        string `json:"assetId"`
	ChildAddress   string `json:"childAddress"`
	CoverageAmount int64  `json:"coverageAmount"`
	Premium        int64  `json:"premium"`
	CreatedAt      string `json:"createdAt"`
	ExpiresAt      string `json:"expiresAt"`
}

type escrowResponse struct {
	PolicyID         uint64 `json:"policyId"`
	PolicyOwner      string `json:"policyOwner"`
	Status           string `json:"status"`
	ProductType      string `json:"productType"`
	AssetID          string `json:"assetId"`
	CoverageAmount   int64  `json:"coverageAmount"`
	CollateralAmount int64  `json:"collateralAmount"`
	TriggerThreshold uint32 `json:"triggerThreshold"`
	TriggerDuration  int64  `json:"triggerDurationSeconds"`
	CreatedAt        string `json:"createdAt"`
	ExpiresAt        string `json:"expiresAt"`
	DisputedAt       string `json:"disputedAt,omitempty"`
}

type distributionResponse struct {
	User             int64 `json:"user"`
	LPRewards        int64 `json:"lpRewards"`
	StakerRewards    int64 `json:"stakerRewards"`
	ProtocolTreasury int64 `json:"protocolTreasury"`
	ArbiterRewards   int64 `json:"arbiterRewards"`
	BuilderRewards   int64 `json:"builderRewards"`
	AdminFee         int64 `json:"adminFee"`
	GasRefund        int64 `json:"gasRefund"`
	Total            int64 `json:"total"`
}

type timelineEventResponse struct {
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Caller    string          `json:"caller"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt string          `json:"createdAt"`
}

type initializeRequest struct {
	AttachedAmount int64 `json:"attachedAmount"`
}

type triggerRequest struct {
	IdempotencyKey   string `json:"idempotencyKey"`
	Timestamp        string `json:"timestamp"`
	ProductType      string `json:"productType"`
	AssetID          string `json:"assetId"`
	TriggerThreshold uint32 `json:"triggerThreshold"`
}

type resolveRequest struct {
	Outcome string `json:"outcome"`
}

func toPolicyResponse(p policy.Policy) policyResponse {
	return policyResponse{
		ID:             p.ID,
		Owner:          p.Owner,
		ProductType:    string(p.ProductType),
		AssetID:        p.AssetID,
		ChildAddress:   p.ChildAddress,
		CoverageAmount: p.CoverageAmount,
		Premium:        p.Premium,
		CreatedAt:      p.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt:      p.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

func toEscrowResponse(e *escrow.Escrow) escrowResponse {
	resp := escrowResponse{
		PolicyID:         e.PolicyID,
		PolicyOwner:      e.PolicyOwner,
		Status:           string(e.Status),
		ProductType:      string(e.ProductType),
		AssetID:          e.AssetID,
		CoverageAmount:   e.CoverageAmount,
		CollateralAmount: e.CollateralAmount,
		TriggerThreshold: e.TriggerThreshold,
		TriggerDuration:  int64(e.TriggerDuration / time.Second),
		CreatedAt:        e.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt:        e.ExpiryTimestamp.UTC().Format(time.RFC3339),
	}
	if e.DisputedAt != nil {
		resp.DisputedAt = e.DisputedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func toDistributionResponse(a escrow.Amounts) distributionResponse {
	return distributionResponse{
		User:             a.User,
		LPRewards:        a.LPRewards,
		StakerRewards:    a.StakerRewards,
		ProtocolTreasury: a.ProtocolTreasury,
		ArbiterRewards:   a.ArbiterRewards,
		BuilderRewards:   a.BuilderRewards,
		AdminFee:         a.AdminFee,
		GasRefund:        a.GasRefund,
		Total:            a.Total(),
	}
}

func toTimelineEventResponse(ev settlement.TimelineEvent) timelineEventResponse {
	return timelineEventResponse{
		Seq:       ev.Seq,
		Type:      ev.Type,
		Caller:    ev.Caller,
		Payload:   json.RawMessage(ev.Payload),
		CreatedAt: ev.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req quoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	term := time.Duration(req.TermDays) * 24 * time.Hour
	quote, err := s.policies.Quote(r.Context(), escrow.ProductType(req.ProductType), req.AssetID, req.CoverageAmount, term)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{
		ProductType:      string(quote.ProductType),
		AssetID:          quote.AssetID,
		CoverageAmount:   quote.CoverageAmount,
		TermDays:         req.TermDays,
		Premium:          quote.Premium,
		RateBps:          quote.RateBps,
		TriggerThreshold: quote.TriggerThreshold,
		TriggerDuration:  int64(quote.TriggerDuration / time.Second),
	})
}

func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreatePolicy(w, r)
	case http.MethodGet:
		s.handleListPolicies(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	owner := callerAddress(r)
	if owner == "" {
		writeError(w, http.StatusBadRequest, "missing X-Caller-Address header")
		return
	}
	var req quoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := s.policies.Create(r.Context(), policy.CreateParams{
		Owner:          owner,
		ProductType:    escrow.ProductType(req.ProductType),
		AssetID:        req.AssetID,
		CoverageAmount: req.CoverageAmount,
		Term:           time.Duration(req.TermDays) * 24 * time.Hour,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPolicyResponse(created))
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		owner = callerAddress(r)
	}
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := s.policies.ListByOwner(r.Context(), owner, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]policyResponse, 0, len(items))
	for _, p := range items {
		out = append(out, toPolicyResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "total": len(out)})
}

func (s *Server) handlePolicyDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/policies/")
	if rest == "" || strings.Contains(rest, "/") {
		writeError(w, http.StatusBadRequest, "missing policy id")
		return
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid policy id")
		return
	}
	found, err := s.policies.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyResponse(found))
}

func (s *Server) handleEscrowDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/escrows/")
	if rest == "" || rest == r.URL.Path {
		writeError(w, http.StatusBadRequest, "missing policy id")
		return
	}
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	policyID, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil || policyID == 0 {
		writeError(w, http.StatusBadRequest, "invalid policy id")
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleEscrowSnapshot(w, r, policyID)
	case len(parts) == 2:
		switch parts[1] {
		case "preview", "time-remaining", "timeline":
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			s.handleEscrowRead(w, r, policyID, parts[1])
		case "initialize", "trigger", "expire", "dispute", "resolve", "emergency-withdraw":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			s.handleEscrowOperation(w, r, policyID, parts[1])
		default:
			writeError(w, http.StatusNotFound, "unknown resource")
		}
	default:
		writeError(w, http.StatusNotFound, "unknown resource")
	}
}

func (s *Server) handleEscrowSnapshot(w http.ResponseWriter, r *http.Request, policyID uint64) {
	esc, err := s.settlements.Snapshot(r.Context(), policyID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEscrowResponse(esc))
}

func (s *Server) handleEscrowRead(w http.ResponseWriter, r *http.Request, policyID uint64, resource string) {
	switch resource {
	case "preview":
		amounts, err := s.settlements.Preview(r.Context(), policyID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDistributionResponse(amounts))
	case "time-remaining":
		remaining, err := s.settlements.TimeRemaining(r.Context(), policyID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"seconds": int64(remaining / time.Second)})
	case "timeline":
		events, err := s.settlements.Timeline(r.Context(), policyID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		out := make([]timelineEventResponse, 0, len(events))
		for _, ev := range events {
			out = append(out, toTimelineEventResponse(ev))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": out, "total": len(out)})
	}
}

func (s *Server) handleEscrowOperation(w http.ResponseWriter, r *http.Request, policyID uint64, op string) {
	caller := callerAddress(r)
	if caller == "" {
		// Expiry is open to anyone, so an anonymous keeper may report it.
		if op != "expire" {
			writeError(w, http.StatusBadRequest, "missing X-Caller-Address header")
			return
		}
		caller = "anonymous"
	}

	var err error
	switch op {
	case "initialize":
		var req initializeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		err = s.settlements.Initialize(r.Context(), policyID, caller, req.AttachedAmount)
	case "trigger":
		var req triggerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.IdempotencyKey == "" {
			writeError(w, http.StatusBadRequest, "idempotencyKey is required")
			return
		}
		observedAt := time.Now().UTC()
		if req.Timestamp != "" {
			observedAt, err = time.Parse(time.RFC3339, req.Timestamp)
			if err != nil {
				writeError(w, http.StatusBadRequest, "timestamp must be RFC3339")
				return
			}
		}
		proof := escrow.TriggerProof{
			PolicyID:         policyID,
			Timestamp:        observedAt,
			ProductType:      escrow.ProductType(req.ProductType),
			AssetID:          req.AssetID,
			TriggerThreshold: req.TriggerThreshold,
		}
		err = s.settlements.TriggerClaim(r.Context(), policyID, caller, proof, req.IdempotencyKey)
	case "expire":
		err = s.settlements.HandleExpiry(r.Context(), policyID, caller)
	case "dispute":
		err = s.settlements.FreezeDispute(r.Context(), policyID, caller)
	case "resolve":
		var req resolveRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		outcome, ok := parseOutcome(req.Outcome)
		if !ok {
			writeError(w, http.StatusBadRequest, "outcome must be refund_vault, pay_user or split")
			return
		}
		err = s.settlements.ResolveDispute(r.Context(), policyID, caller, outcome)
	case "emergency-withdraw":
		err = s.settlements.EmergencyWithdraw(r.Context(), policyID, caller)
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	esc, err := s.settlements.Snapshot(r.Context(), policyID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEscrowResponse(esc))
}

func parseOutcome(v string) (escrow.Outcome, bool) {
	switch outcome := escrow.Outcome(v); outcome {
	case escrow.OutcomeRefundVault, escrow.OutcomePayUser, escrow.OutcomeSplit:
		return outcome, true
	}
	return "", false
}
