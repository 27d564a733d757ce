package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"procurement/internal/lifecycle"
)

// CreateInvitationHandler — POST /api/projects/{projectId}/invite.
// Эксклюзивное предложение приоритетному подрядчику от имени организации.
func (h *Handler) CreateInvitationHandler(w http.ResponseWriter, r *http.Request) {
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
		TTLHours     int    `json:"ttlHours"`
	}
	if err := json.Unmarshal(body, &input); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if input.ContractorID == "" {
		http.Error(w, "contractorId is required", http.StatusBadRequest)
		return
	}

	ttl := time.Duration(input.TTLHours) * time.Hour
	inv, err := h.Core.CreateInvitation(r.Context(), projectID, input.ContractorID, actor, ttl)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// RespondInvitationHandler — POST /api/projects/{projectId}/invitation/respond.
// Ответ подрядчика на приоритетное приглашение.
func (h *Handler) RespondInvitationHandler(w http.ResponseWriter, r *http.Request) {
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
		Response lifecycle.Response `json:"response"`
		Notes    string             `json:"notes"`
	}
	if err := json.Unmarshal(body, &input); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if input.Response != lifecycle.ResponseAccepted && input.Response != lifecycle.ResponseDeclined {
		http.Error(w, "response must be accepted or declined", http.StatusBadRequest)
		return
	}

	outcome, err := h.Core.RespondInvitation(r.Context(), projectID, actor, input.Response, input.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}
