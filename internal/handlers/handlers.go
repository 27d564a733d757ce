package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"procurement/internal/lifecycle"
)

// Handler связывает HTTP-слой с ядром жизненного цикла и хранилищем чтения.
type Handler struct {
	Store StorageInterface
	Core  CoreInterface
}

// NewHandler создает новый Handler
func NewHandler(store StorageInterface, core CoreInterface) *Handler {
	return &Handler{Store: store, Core: core}
}

// PingHandler отвечает "ok" для проверки сервера
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type PaginationParams struct {
	Limit  int
	Offset int
}

// parsePaginationParams парсит limit и offset из query, с дефолтами и ограничениями
func parsePaginationParams(r *http.Request) PaginationParams {
	params := PaginationParams{Limit: 20, Offset: 0}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			params.Limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			params.Offset = o
		}
	}
	return params
}

type errorBody struct {
	Kind     lifecycle.Kind `json:"kind"`
	Message  string         `json:"message"`
	Required int            `json:"required,omitempty"`
	Approved int            `json:"approved,omitempty"`
}

// writeError переводит вид ошибки ядра в HTTP-статус со структурированным
// телом; каждое отклонение различимо, молчаливых no-op нет.
func writeError(w http.ResponseWriter, err error) {
	kind := lifecycle.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case lifecycle.KindNotFound:
		status = http.StatusNotFound
	case lifecycle.KindUnauthorized:
		status = http.StatusForbidden
	case lifecycle.KindInvalidState, lifecycle.KindDeadlinePassed, lifecycle.KindDuplicateBid,
		lifecycle.KindPermanentlyExcluded, lifecycle.KindCapacityReached, lifecycle.KindExpired,
		lifecycle.KindAlreadyResolved, lifecycle.KindNotOpenForBidding:
		status = http.StatusConflict
	}

	body := errorBody{Kind: kind, Message: err.Error()}
	if le, ok := err.(*lifecycle.Error); ok && kind == lifecycle.KindCapacityReached {
		body.Required = le.Required
		body.Approved = le.Approved
	}
	if kind == "" || kind == lifecycle.KindSchemaDegraded {
		body.Kind = "Internal"
		body.Message = "internal error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// actorID достает идентификатор действующего пользователя из query.
func actorID(r *http.Request) string {
	return r.URL.Query().Get("userId")
}
