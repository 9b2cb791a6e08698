package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/DGApex/CRT-INV/internal/websocket"
	"github.com/DGApex/CRT-INV/pkg/jwt"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	manager   *websocket.Manager
	service   InventoryService
	jwtSecret string
	upgrader  ws.Upgrader
	logger    *slog.Logger
}

func NewWebSocketHandler(manager *websocket.Manager, service InventoryService, jwtSecret string, readBuffer, writeBuffer int, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		manager:   manager,
		service:   service,
		jwtSecret: jwtSecret,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBuffer,
			WriteBufferSize: writeBuffer,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get("Authorization")
		if len(token) > 7 && token[:7] == "Bearer " {
			token = token[7:]
		}
	}

	if token == "" {
		http.Error(w, "missing authorization token", http.StatusUnauthorized)
		return
	}

	claims, err := jwt.ValidateToken(token, h.jwtSecret)
	if err != nil {
		h.logger.Warn("websocket token rejected", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := websocket.NewClient(uuid.New().String(), claims.ClientID, conn, h.manager)

	// The current snapshot goes out first so the client never starts empty.
	if msg, err := websocket.NewMessage(websocket.TypeSnapshot, h.service.Snapshot()); err == nil {
		if data, err := json.Marshal(msg); err == nil {
			client.Send <- data
		}
	}

	select {
	case h.manager.Register <- client:
	case <-h.manager.Done():
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

type WebSocketMessageHandler struct {
	manager *websocket.Manager
	service InventoryService
	ctx     context.Context
	logger  *slog.Logger
}

// NewWebSocketMessageHandler answers client messages. Syncs it starts are
// bound to ctx.
func NewWebSocketMessageHandler(ctx context.Context, manager *websocket.Manager, service InventoryService, logger *slog.Logger) *WebSocketMessageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketMessageHandler{
		manager: manager,
		service: service,
		ctx:     ctx,
		logger:  logger,
	}
}

func (h *WebSocketMessageHandler) HandleWebSocketMessage(client *websocket.Client, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypeSyncRequest:
		// a sync can take as long as the remote does; keep the hub loop free
		go h.handleSyncRequest(client.ID)
		return nil

	case websocket.TypePing:
		pong, err := websocket.NewMessage(websocket.TypePong, nil)
		if err != nil {
			return err
		}
		return h.manager.SendToClient(client.ID, pong)

	default:
		h.logger.Debug("unknown websocket message type", "type", msg.Type, "client_id", client.ID)
	}

	return nil
}

func (h *WebSocketMessageHandler) handleSyncRequest(clientID string) {
	report, err := h.service.Sync(h.ctx)

	var reply *websocket.Message
	if err != nil {
		reply, _ = websocket.NewMessage(websocket.TypeError, websocket.ErrorPayload{Message: report.Summary})
	} else {
		reply, _ = websocket.NewMessage(websocket.TypeSyncResult, websocket.SyncResultPayload{
			Summary: report.Summary,
			Version: report.Version,
		})
	}

	if err := h.manager.SendToClient(clientID, reply); err != nil {
		h.logger.Warn("failed to answer sync request", "client_id", clientID, "error", err)
	}
}
