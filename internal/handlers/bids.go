package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type bidRequest struct {
	ProjectID    string `json:"projectId"`
	ContractorID string `json:"contractorId"`
	Amount       int64  `json:"amount"`
	Proposal     string `json:"proposal"`
}

// CreateBidHandler обрабатывает POST /api/bids/new запрос
func (h *Handler) CreateBidHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1048576)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req bidRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	if err := validateBidRequest(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	bid, err := h.Core.SubmitBid(r.Context(), req.ProjectID, req.ContractorID, req.Amount, req.Proposal)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bid)
}

func validateBidRequest(b *bidRequest) error {
	if b.ProjectID == "" {
		return errors.New("projectId is required")
	}
	if b.ContractorID == "" {
		return errors.New("contractorId is required")
	}
	if b.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	if b.Proposal == "" || len(b.Proposal) > 2000 {
		return errors.New("proposal is required and max length 2000")
	}
	return nil
}

// GetUserBidsHandler возвращает предложения подрядчика
func (h *Handler) GetUserBidsHandler(w http.ResponseWriter, r *http.Request) {
	params := parsePaginationParams(r)

	contractorID := r.URL.Query().Get("contractorId")
	if contractorID == "" {
		http.Error(w, "Missing contractorId parameter", http.StatusBadRequest)
		return
	}

	bids, err := h.Store.GetContractorBids(r.Context(), contractorID, params.Limit, params.Offset)
	if err != nil {
		http.Error(w, "Failed to get user bids", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, bids)
}

// GetProjectBidsHandler возвращает предложения по проекту
func (h *Handler) GetProjectBidsHandler(w http.ResponseWriter, r *http.Request) {
	params := parsePaginationParams(r)

	projectID := chi.URLParam(r, "projectId")
	if projectID == "" {
		http.Error(w, "Missing projectId", http.StatusBadRequest)
		return
	}

	bids, err := h.Store.GetProjectBids(r.Context(), projectID, params.Limit, params.Offset)
	if err != nil {
		http.Error(w, "Failed to get bids for project", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, bids)
}

// ApproveBidHandler — PUT /api/bids/{bidId}/approve
func (h *Handler) ApproveBidHandler(w http.ResponseWriter, r *http.Request) {
	bidID := chi.URLParam(r, "bidId")
	actor := actorID(r)
	if bidID == "" || actor == "" {
		http.Error(w, "Missing required parameters", http.StatusBadRequest)
		return
	}

	bid, err := h.Core.ApproveBid(r.Context(), bidID, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bid)
}
