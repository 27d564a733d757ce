package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// AwardContractHandler — POST /api/projects/{projectId}/contracts/new.
// Оформление договора организацией.
func (h *Handler) AwardContractHandler(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")
	actor := actorID(r)
	if projectID == "" || actor == "" {
		http.Error(w, "Missing required parameters", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Cannot read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var input struct {
		ContractorID string `json:"contractorId"`
	}
	if err := json.Unmarshal(body, &input); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if input.ContractorID == "" {
		http.Error(w, "contractorId is required", http.StatusBadRequest)
		return
	}

	contract, err := h.Core.AwardContract(r.Context(), projectID, input.ContractorID, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

// RespondContractHandler — PUT /api/contracts/{contractId}/respond.
// Подписание или отказ подрядчика; отказ навсегда исключает его из отбора
// по проекту.
func (h *Handler) RespondContractHandler(w http.ResponseWriter, r *http.Request) {
	contractID := chi.URLParam(r, "contractId")
	actor := actorID(r)
	decision := r.URL.Query().Get("decision")

	if contractID == "" || actor == "" {
		http.Error(w, "Missing required parameters", http.StatusBadRequest)
		return
	}
	if decision != "sign" && decision != "decline" {
		http.Error(w, "Invalid decision value", http.StatusBadRequest)
		return
	}

	contract, err := h.Core.RespondContract(r.Context(), contractID, actor, decision == "sign")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

// GetUserNotificationsHandler — GET /api/notifications/my
func (h *Handler) GetUserNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	params := parsePaginationParams(r)

	userID := actorID(r)
	if userID == "" {
		http.Error(w, "Missing userId parameter", http.StatusBadRequest)
		return
	}

	items, err := h.Store.GetUserNotifications(r.Context(), userID, params.Limit, params.Offset)
	if err != nil {
		http.Error(w, "Failed to get notifications", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}
