package api

import (
	"net/http"

	"colabcanvas/internal/middleware"

	"github.com/gorilla/mux"
)

func SetupRoutes(h *Handler) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	// Learning: Middleware runs in order - tracing first, then recovery, then CORS
	r.Use(middleware.TracingMiddleware)       // Add tracing spans to all requests
	r.Use(middleware.ErrorRecoveryMiddleware) // Catch panics
	r.Use(middleware.CORSMiddleware)          // Handle CORS

	// API routes
	api := r.PathPrefix("/api").Subrouter()

	// Room endpoints
	api.HandleFunc("/rooms", h.ListRooms).Methods("GET")

	// Object endpoints
	api.HandleFunc("/rooms/{room}/objects", h.ListObjects).Methods("GET")
	api.HandleFunc("/rooms/{room}/objects", h.CreateObject).Methods("POST")
	api.HandleFunc("/rooms/{room}/objects/batch", h.PatchObjectsBatch).Methods("PATCH")
	api.HandleFunc("/rooms/{room}/objects/{id}", h.GetObject).Methods("GET")
	api.HandleFunc("/rooms/{room}/objects/{id}", h.PatchObject).Methods("PATCH")
	api.HandleFunc("/rooms/{room}/objects/{id}", h.DeleteObject).Methods("DELETE")

	// Assistant endpoint
	api.HandleFunc("/rooms/{room}/assistant", h.AssistantCreate).Methods("POST")

	// Health check endpoint
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// WebSocket routes
	r.HandleFunc("/ws/room/{room}", h.HandleRoomWebSocket)

	return r
}
