package chat

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-inbox/backend/internal/service/conversation"
	"github.com/zhouzirui/z-inbox/backend/internal/service/countdown"
	"github.com/zhouzirui/z-inbox/backend/internal/service/dialog"
	"github.com/zhouzirui/z-inbox/backend/internal/service/events"
	"github.com/zhouzirui/z-inbox/backend/internal/service/transcript"
	"github.com/zhouzirui/z-inbox/backend/pkg/utils"
)

// Sequencer exposes the interpreter state.
type Sequencer interface {
	Status() dialog.Status
}

// Countdown exposes the session timer.
type Countdown interface {
	Snapshot() countdown.Status
}

// Handler 聊天界面的HTTP处理器
type Handler struct {
	router    *conversation.Router
	bus       *events.Bus
	sequencer Sequencer
	countdown Countdown
	exporter  *transcript.Exporter
}

// New 创建聊天处理器，timer 可以为 nil
func New(router *conversation.Router, bus *events.Bus, sequencer Sequencer, timer Countdown) *Handler {
	return &Handler{
		router:    router,
		bus:       bus,
		sequencer: sequencer,
		countdown: timer,
		exporter:  transcript.NewExporter(),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/contacts", h.handleListContacts)
	r.Route("/contacts/{name}", func(r chi.Router) {
		r.Post("/open", h.handleOpenContact)
		r.Get("/messages", h.handleListMessages)
		r.Get("/transcript", h.handleTranscript)
	})
	r.Get("/options", h.handlePendingOptions)
	r.Post("/options/{index}", h.handleSelectOption)
	r.Post("/dialogs", h.handleStartDialog)
	r.Get("/status", h.handleStatus)
}

type optionsResponse struct {
	Pending  bool     `json:"pending"`
	Contact  string   `json:"contact,omitempty"`
	Captions []string `json:"captions"`
}

type statusResponse struct {
	Active    string            `json:"active,omitempty"`
	Dialog    dialog.Status     `json:"dialog"`
	Countdown *countdown.Status `json:"countdown,omitempty"`
}

func (h *Handler) handleListContacts(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.router.Contacts())
}

func (h *Handler) handleOpenContact(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.router.SwitchActive(name); err != nil {
		respondRouterError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"active": name})
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	history, err := h.router.History(chi.URLParam(r, "name"))
	if err != nil {
		respondRouterError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, history)
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	history, err := h.router.History(name)
	if err != nil {
		respondRouterError(w, err)
		return
	}

	messages, err := h.exporter.Export(r.Context(), name, history)
	if err != nil {
		log.Printf("[chat] export transcript for %s: %v", name, err)
		utils.RespondError(w, http.StatusInternalServerError, "transcript export failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, messages)
}

func (h *Handler) handlePendingOptions(w http.ResponseWriter, r *http.Request) {
	contact, captions, ok := h.router.PendingOptions()
	if captions == nil {
		captions = []string{}
	}

	utils.RespondJSON(w, http.StatusOK, optionsResponse{Pending: ok, Contact: contact, Captions: captions})
}

func (h *Handler) handleSelectOption(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "index must be an integer")
		return
	}

	if err := h.router.Select(index); err != nil {
		respondRouterError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusAccepted, map[string]any{"status": "selected", "index": index})
}

// handleStartDialog publishes a dialog start, the same way scripted hand-offs do.
func (h *Handler) handleStartDialog(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		NodeID  int    `json:"nodeId"`
		Contact string `json:"contact"`
	}

	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.NodeID <= 0 {
		utils.RespondError(w, http.StatusBadRequest, "nodeId must be positive")
		return
	}

	h.bus.Publish(events.Event{Topic: events.TopicDialogStart, NodeID: payload.NodeID, Contact: payload.Contact})

	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Active: h.router.Active(),
		Dialog: h.sequencer.Status(),
	}
	if h.countdown != nil {
		snapshot := h.countdown.Snapshot()
		resp.Countdown = &snapshot
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}

func respondRouterError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrContactNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, conversation.ErrOptionPending), errors.Is(err, conversation.ErrNoPendingOptions):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, conversation.ErrOptionOutOfRange):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
