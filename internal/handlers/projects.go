package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"procurement/internal/lifecycle"
)

// CreateProjectHandler обрабатывает POST /api/projects/new запрос
func (h *Handler) CreateProjectHandler(w http.ResponseWriter, r *http.Request) {
	// Ограничение размера тела, чтобы избежать DoS
	r.Body = http.MaxBytesReader(w, r.Body, 1048576)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var in lifecycle.CreateProjectInput
	if err := json.Unmarshal(body, &in); err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	if err := validateProjectRequest(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	actor := actorID(r)
	if actor == "" {
		http.Error(w, "Missing userId parameter", http.StatusBadRequest)
		return
	}

	project, err := h.Core.CreateProject(r.Context(), in, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// validateProjectRequest проверяет необходимые поля запроса создания
func validateProjectRequest(in *lifecycle.CreateProjectInput) error {
	if in.Title == "" || len(in.Title) > 200 {
		return errors.New("title is required and max length 200")
	}
	if in.OrgID == "" {
		return errors.New("orgId is required")
	}
	if in.RequiredContractors < 1 {
		return errors.New("requiredContractors must be at least 1")
	}
	return nil
}

// GetProjectsHandler возвращает список проектов с фильтром по статусу
func (h *Handler) GetProjectsHandler(w http.ResponseWriter, r *http.Request) {
	params := parsePaginationParams(r)

	var statuses []string
	for _, s := range r.URL.Query()["status"] {
		if lifecycle.ValidStatus(lifecycle.Status(s)) {
			statuses = append(statuses, s)
		}
	}

	projects, err := h.Store.GetProjects(r.Context(), statuses, params.Limit, params.Offset)
	if err != nil {
		http.Error(w, "Failed to get projects", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// GetOrgProjectsHandler возвращает проекты организации
func (h *Handler) GetOrgProjectsHandler(w http.ResponseWriter, r *http.Request) {
	params := parsePaginationParams(r)

	orgID := r.URL.Query().Get("orgId")
	if orgID == "" {
		http.Error(w, "Missing orgId parameter", http.StatusBadRequest)
		return
	}

	projects, err := h.Store.GetOrgProjects(r.Context(), orgID, params.Limit, params.Offset)
	if err != nil {
		http.Error(w, "Failed to get org projects", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// GetProjectHandler возвращает один проект
func (h *Handler) GetProjectHandler(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")
	project, err := h.Store.GetProject(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// ApproveProjectHandler — решение согласующего: POST /api/projects/{projectId}/approve
func (h *Handler) ApproveProjectHandler(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")
	actor := actorID(r)
	decision := lifecycle.Decision(r.URL.Query().Get("decision"))

	if projectID == "" || actor == "" {
		http.Error(w, "Missing required parameters", http.StatusBadRequest)
		return
	}
	if !lifecycle.ValidDecision(decision) {
		http.Error(w, "Invalid decision value", http.StatusBadRequest)
		return
	}

	var input struct {
		Comment string `json:"comment"`
	}
	if body, err := io.ReadAll(r.Body); err == nil && len(body) > 0 {
		if err := json.Unmarshal(body, &input); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
	}
	defer r.Body.Close()

	outcome, err := h.Core.Approve(r.Context(), projectID, actor, decision, input.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// SubmitForApprovalHandler переводит черновик на согласование
func (h *Handler) SubmitForApprovalHandler(w http.ResponseWriter, r *http.Request) {
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
		ApproverIDs []string `json:"approverIds"`
	}
	if err := json.Unmarshal(body, &input); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if len(input.ApproverIDs) == 0 {
		http.Error(w, "approverIds must not be empty", http.StatusBadRequest)
		return
	}

	project, err := h.Core.SubmitForApproval(r.Context(), projectID, actor, input.ApproverIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// ChangeProjectStatusHandler — PUT /api/projects/{projectId}/status.
// Допустимые целевые статусы: in_progress, completed, cancelled.
func (h *Handler) ChangeProjectStatusHandler(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")
	actor := actorID(r)
	status := lifecycle.Status(r.URL.Query().Get("status"))

	if projectID == "" || actor == "" || status == "" {
		http.Error(w, "Missing required parameters", http.StatusBadRequest)
		return
	}

	var (
		applied lifecycle.Status
		err     error
	)
	switch status {
	case lifecycle.StatusInProgress:
		applied, err = h.Core.Start(r.Context(), projectID, actor)
	case lifecycle.StatusCompleted:
		applied, err = h.Core.Complete(r.Context(), projectID, actor)
	case lifecycle.StatusCancelled:
		applied, err = h.Core.Cancel(r.Context(), projectID, actor)
	default:
		http.Error(w, "Invalid status value", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]lifecycle.Status{"status": applied})
}
