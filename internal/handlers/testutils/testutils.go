// Package testutils — вспомогательные функции для тестов HTTP-слоя.
package testutils

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// WithChiURLParams кладет параметры пути chi в контекст запроса: хендлеры
// читают их через chi.URLParam, маршрутизатор в тестах не поднимается.
func WithChiURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
