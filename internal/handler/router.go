package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-inbox/backend/internal/handler/chat"
	"github.com/zhouzirui/z-inbox/backend/internal/handler/live"
	"github.com/zhouzirui/z-inbox/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/z-inbox/backend/internal/middleware"
	"github.com/zhouzirui/z-inbox/backend/internal/service/conversation"
	"github.com/zhouzirui/z-inbox/backend/internal/service/countdown"
	"github.com/zhouzirui/z-inbox/backend/internal/service/dialog"
	"github.com/zhouzirui/z-inbox/backend/internal/service/events"
	liveservice "github.com/zhouzirui/z-inbox/backend/internal/service/live"
	"github.com/zhouzirui/z-inbox/backend/pkg/utils"
)

// Services bundles what the HTTP layer drives.
type Services struct {
	Router    *conversation.Router
	Bus       *events.Bus
	Sequencer *dialog.Sequencer
	Countdown *countdown.Timer
	Hub       *liveservice.Hub
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chat.New(svc.Router, svc.Bus, svc.Sequencer, svc.Countdown)
	streamHandler := stream.New(svc.Hub)
	wsHandler := live.NewWebSocketHandler(svc.Hub, svc.Router)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r
}
