// Package live serves the presentation feed over websocket.
package live

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	liveservice "github.com/zhouzirui/z-inbox/backend/internal/service/live"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Actions are the player inputs accepted over the socket.
type Actions interface {
	SwitchActive(name string) error
	Select(index int) error
}

// WebSocketHandler streams hub frames to a client and accepts its actions.
type WebSocketHandler struct {
	hub      *liveservice.Hub
	actions  Actions
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates the websocket handler.
func NewWebSocketHandler(hub *liveservice.Hub, actions Actions) *WebSocketHandler {
	return &WebSocketHandler{
		hub:     hub,
		actions: actions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type openMessage struct {
	Contact string `json:"contact"`
}

type selectMessage struct {
	Index *int `json:"index"`
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	id, frames := h.hub.Subscribe()
	defer h.hub.Unsubscribe(id)
	log.Printf("[websocket] new connection: %s", id)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	replies := make(chan liveservice.Frame, 8)
	go h.readLoop(ctx, cancel, conn, replies)

	h.writeLoop(ctx, conn, id, frames, replies)
}

// writeLoop is the only writer on conn.
func (h *WebSocketHandler) writeLoop(ctx context.Context, conn *websocket.Conn, id string, frames <-chan liveservice.Frame, replies <-chan liveservice.Frame) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if !h.write(conn, liveservice.Frame{
		Type:      liveservice.FrameConnected,
		Data:      map[string]string{"subscriberId": id},
		Timestamp: time.Now().Unix(),
	}) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if !h.write(conn, frame) {
				return
			}
		case frame := <-replies:
			if !h.write(conn, frame) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) write(conn *websocket.Conn, frame liveservice.Frame) bool {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame); err != nil {
		log.Printf("[websocket] write %s failed: %v", frame.Type, err)
		return false
	}
	return true
}

func (h *WebSocketHandler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, replies chan<- liveservice.Frame) {
	defer cancel()

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		reply := h.handleMessage(&msg)
		if reply == nil {
			continue
		}
		select {
		case replies <- *reply:
		case <-ctx.Done():
			return
		}
	}
}

// handleMessage applies a player action. Successful actions are visible
// through the feed itself, so only failures produce a reply.
func (h *WebSocketHandler) handleMessage(msg *inboundMessage) *liveservice.Frame {
	switch msg.Type {
	case "open":
		var payload openMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.Contact == "" {
			return errorFrame("invalid open payload")
		}
		if err := h.actions.SwitchActive(payload.Contact); err != nil {
			return errorFrame(err.Error())
		}
	case "select":
		var payload selectMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.Index == nil {
			return errorFrame("invalid select payload")
		}
		if err := h.actions.Select(*payload.Index); err != nil {
			return errorFrame(err.Error())
		}
	default:
		return errorFrame("unsupported message type: " + msg.Type)
	}
	return nil
}

func errorFrame(message string) *liveservice.Frame {
	return &liveservice.Frame{
		Type:      liveservice.FrameError,
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
}
