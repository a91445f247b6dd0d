package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/ContractLand/terra-bridge-contracts/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

// WebSocketHandler streams committed bridge events to relayers.
type WebSocketHandler struct {
	hub      *events.Hub
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *events.Hub) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// clientMessage is the only thing clients send: an application level ping.
type clientMessage struct {
	Action string `json:"action"`
}

// HandleEvents GET /ws/events?chains=home,foreign&events=TransferInitiated
func (h *WebSocketHandler) HandleEvents(c *gin.Context) {
	filter := events.ParseFilter(c.Query("chains"), c.Query("events"))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	client := events.NewClient(uuid.New().String(), filter)
	if err := h.hub.Register(client); err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(wsWriteWait))
		return
	}
	defer h.hub.Unregister(client)

	log.Printf("📡 WebSocket client connected: %s (chains=%v events=%v)", client.ID, filter.Chains, filter.Names)

	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(gin.H{
		"type":      "connected",
		"client_id": client.ID,
		"timestamp": time.Now().UTC(),
	}); err != nil {
		return
	}

	pongs := make(chan struct{}, 4)
	readDone := make(chan struct{})
	go h.readLoop(conn, client.ID, pongs, readDone)
	h.writeLoop(conn, client, pongs, readDone)
}

func (h *WebSocketHandler) readLoop(conn *websocket.Conn, clientID string, pongs chan<- struct{}, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("⚠️ [WebSocket] Read error for client %s: %v", clientID, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var msg clientMessage
		if json.Unmarshal(data, &msg) == nil && msg.Action == "ping" {
			select {
			case pongs <- struct{}{}:
			default:
			}
		}
	}
}

// writeLoop owns all writes to conn.
func (h *WebSocketHandler) writeLoop(conn *websocket.Conn, client *events.Client, pongs <-chan struct{}, readDone <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-client.Send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("❌ [WebSocket] Write failed for client %s: %v", client.ID, err)
				return
			}

		case <-pongs:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(gin.H{"type": "pong", "timestamp": time.Now().UTC()}); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-readDone:
			log.Printf("🔌 [WebSocket] Client disconnected: %s", client.ID)
			return
		}
	}
}
