package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"colabcanvas/internal/engine"
	"colabcanvas/internal/models"
	"colabcanvas/internal/services/collaboration"

	"github.com/gorilla/mux"
)

// Handler handles HTTP requests
// Learning: Uses INTERFACES defined in this package (consumer-driven)
type Handler struct {
	objects   ObjectStore                     // Interface defined in this package!
	assistant Assistant                       // Optional; nil disables the endpoint
	wsHandler *collaboration.WebSocketHandler // WebSocket for real-time collab
}

func NewHandler(
	objects ObjectStore, // Accept interface
	assistant Assistant,
	wsHandler *collaboration.WebSocketHandler,
) *Handler {
	return &Handler{
		objects:   objects,
		assistant: assistant,
		wsHandler: wsHandler,
	}
}

// Room handlers

func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.objects.ListRooms(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"rooms": rooms,
		"count": len(rooms),
	})
}

// Object handlers

func (h *Handler) ListObjects(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	roomID := vars["room"]

	objects, err := h.objects.ListObjects(r.Context(), roomID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Already in render order: z_order ascending, ties by (updated_at, id)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"room_id": roomID,
		"objects": objects,
		"count":   len(objects),
	})
}

func (h *Handler) CreateObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	roomID := vars["room"]

	var obj models.CanvasObject
	if err := json.NewDecoder(r.Body).Decode(&obj); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !models.ValidKind(obj.Kind) {
		http.Error(w, "unknown object kind", http.StatusBadRequest)
		return
	}

	obj.RoomID = roomID
	obj.Props = models.FilterProps(obj.Kind, obj.Props)

	if err := h.objects.Insert(r.Context(), &obj); err != nil {
		// A duplicate id means the object already made it in on an earlier
		// attempt; report conflict rather than failure.
		if strings.Contains(err.Error(), "duplicate key") {
			http.Error(w, "object already exists", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(&obj)
}

func (h *Handler) GetObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	obj, err := h.objects.Get(r.Context(), vars["room"], vars["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(obj)
}

// PatchObject merges a partial field write. Fields not named keep their
// stored values, so concurrent edits to different fields never clobber each
// other. The "zOrder" key addresses the stacking position.
func (h *Handler) PatchObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(fields) == 0 {
		http.Error(w, "no fields to update", http.StatusBadRequest)
		return
	}

	if err := h.objects.SetFields(r.Context(), vars["room"], vars["id"], fields); err != nil {
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PatchObjectsBatch applies several field writes in one transaction: all of
// them land or none do. Multi-object drags and reorders use this.
func (h *Handler) PatchObjectsBatch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	roomID := vars["room"]

	var req struct {
		Writes []engine.FieldWrite `json:"writes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Writes) == 0 {
		http.Error(w, "no writes in batch", http.StatusBadRequest)
		return
	}

	if err := h.objects.SetFieldsBatch(r.Context(), roomID, req.Writes); err != nil {
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"applied": len(req.Writes),
	})
}

func (h *Handler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := h.objects.Delete(r.Context(), vars["room"], vars["id"]); err != nil {
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Assistant handlers

func (h *Handler) AssistantCreate(w http.ResponseWriter, r *http.Request) {
	if h.assistant == nil {
		http.Error(w, "assistant is not configured", http.StatusServiceUnavailable)
		return
	}

	vars := mux.Vars(r)
	roomID := vars["room"]

	var req struct {
		UserID string `json:"user_id"`
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		req.UserID = "assistant"
	}

	created, err := h.assistant.CreateFromPrompt(r.Context(), roomID, req.UserID, req.Prompt)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"objects": created,
		"count":   len(created),
	})
}
