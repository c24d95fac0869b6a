package realtime

import (
	"CampusNotify/internal/auth"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type WSHandler struct {
	hub    *Hub
	logger *zap.Logger
}

func NewWSHandler(hub *Hub, logger *zap.Logger) *WSHandler {
	return &WSHandler{hub: hub, logger: logger}
}

// Serve authenticates the token query parameter, upgrades the connection and
// registers it with the hub for the lifetime of the socket.
func (h *WSHandler) Serve(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Missing Token"})
	}
	claims, err := auth.ValidateJWT(token)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid Token"})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return err
	}

	client := NewClient(claims.UserID, claims.Role, conn)
	h.hub.Register(client)
	h.logger.Info("websocket connected",
		zap.String("user", claims.UserID),
		zap.String("role", claims.Role),
		zap.String("conn", client.ID()))

	go client.WritePump()
	client.ReadPump(h.hub)
	return nil
}
