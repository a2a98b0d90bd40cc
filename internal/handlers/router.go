package handlers

import (
	"net/http"

	"github.com/deepgram/parley/internal/middleware"
	"github.com/deepgram/parley/pkg/httpext"
	"github.com/gorilla/mux"
)

func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.CORS)

	r.Handle("/api/chat", middleware.RateLimit("chat")(http.HandlerFunc(h.HandleChat))).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/health", h.HandleHealth).Methods(http.MethodGet, http.MethodOptions)
	r.Handle("/ws/chat", middleware.RateLimit("ws_connect")(http.HandlerFunc(h.HandleWebSocket))).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpext.JsonError(w, "Not found", http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpext.JsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
	return r
}
