package stream

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	liveservice "github.com/zhouzirui/z-inbox/backend/internal/service/live"
	"github.com/zhouzirui/z-inbox/backend/pkg/utils"
)

const keepAliveInterval = 25 * time.Second

// Handler streams the live feed via Server-Sent Events
type Handler struct {
	hub       *liveservice.Hub
	keepAlive time.Duration
}

// New creates a new stream handler
func New(hub *liveservice.Hub) *Handler {
	return &Handler{hub: hub, keepAlive: keepAliveInterval}
}

// RegisterRoutes mounts the SSE endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.handleEvents)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	id, frames := h.hub.Subscribe()
	defer h.hub.Unsubscribe(id)

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	utils.SendSSEEvent(w, flusher, liveservice.FrameConnected, liveservice.Frame{
		Type:      liveservice.FrameConnected,
		Data:      map[string]string{"subscriberId": id},
		Timestamp: time.Now().Unix(),
	})
	log.Printf("[sse] client %s connected", id)

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Printf("[sse] client %s disconnected", id)
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			utils.SendSSEEvent(w, flusher, frame.Type, frame)
		case <-ticker.C:
			utils.SendSSEComment(w, flusher, "keep-alive")
		}
	}
}
