package main

import (
	"net/http"
	"strconv"
	"time"

	"coverflow/relay"
)

type sponsorResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Wallet    string `json:"wallet"`
	NextNonce uint64 `json:"nextNonce"`
	CreatedAt string `json:"createdAt"`
}

type loginResponse struct {
	Token   string          `json:"token"`
	Sponsor sponsorResponse `json:"sponsor"`
}

type fundingResponse struct {
	ID        string `json:"id"`
	SponsorID string `json:"sponsorId"`
	Nonce     uint64 `json:"nonce"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
	CreatedAt string `json:"createdAt"`
}

func toSponsorResponse(sp relay.Sponsor) sponsorResponse {
	return sponsorResponse{
		ID:        sp.ID,
		Name:      sp.Name,
		Wallet:    sp.Wallet,
		NextNonce: sp.NextNonce,
		CreatedAt: sp.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toFundingResponse(f relay.Funding) fundingResponse {
	return fundingResponse{
		ID:        f.ID,
		SponsorID: f.SponsorID,
		Nonce:     f.Nonce,
		Recipient: f.Recipient,
		Amount:    f.Amount,
		CreatedAt: f.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleRelayRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req relay.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sponsor, err := s.sponsors.Register(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSponsorResponse(*sponsor))
}

func (s *Server) handleRelayLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req relay.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.sponsors.Login(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:   result.Token,
		Sponsor: toSponsorResponse(result.Sponsor),
	})
}

func (s *Server) handleRelayFundings(w http.ResponseWriter, r *http.Request) {
	sponsorID := sponsorIDFrom(r.Context())
	switch r.Method {
	case http.MethodPost:
		var req relay.FundRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		funding, err := s.sponsors.Fund(r.Context(), sponsorID, req)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toFundingResponse(funding))
	case http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		items, err := s.sponsors.ListFundings(r.Context(), sponsorID, limit)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		out := make([]fundingResponse, 0, len(items))
		for _, f := range items {
			out = append(out, toFundingResponse(f))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": out, "total": len(out)})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
