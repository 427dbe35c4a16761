package handlers

import (
	"log"
	"net/http"
	"strings"

	ws "github.com/TheGojiOG/tw404-manager/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// StatusStreamHandler upgrades dashboards onto the status room
type StatusStreamHandler struct {
	hub            *ws.Hub
	allowedOrigins []string
}

// NewStatusStreamHandler creates the status stream handler
func NewStatusStreamHandler(hub *ws.Hub, allowedOrigins []string) *StatusStreamHandler {
	return &StatusStreamHandler{hub: hub, allowedOrigins: allowedOrigins}
}

// HandleStatusWebSocket streams roster status updates
func (h *StatusStreamHandler) HandleStatusWebSocket(c *gin.Context) {
	upgrader := buildUpgrader(h.allowedOrigins)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[API] Failed to upgrade status WebSocket: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}

	client := ws.NewClient(h.hub, conn, ws.StatusRoom, c.ClientIP())
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r.Header.Get("Origin"), allowedOrigins)
		},
	}
}

func isOriginAllowed(origin string, allowedOrigins []string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range allowedOrigins {
		normalized := strings.TrimSpace(allowed)
		if normalized == "*" || normalized == origin {
			return true
		}
	}
	return false
}
