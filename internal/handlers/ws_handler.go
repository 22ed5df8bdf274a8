package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"crawler-api/internal/notify"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin clients authenticate with a token, not cookies.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSHandler struct {
	hub *notify.Hub
}

func NewWSHandler(hub *notify.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// Connect upgrades the request and binds the connection to the
// authenticated user's notification stream.
func (h *WSHandler) Connect(c *gin.Context) {
	userID := c.GetString("user_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("websocket upgrade failed")
		return
	}
	h.hub.Register(userID, conn)
}
