package realtime

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"gebeta-delivery/internal/middleware"
	"gebeta-delivery/internal/models"
	"gebeta-delivery/pkg/logger"
)

// WSHandler upgrades authenticated clients onto the hub. The token travels as
// a query parameter because browser websocket clients cannot set headers.
type WSHandler struct {
	hub       *Hub
	jwtSecret string
	upgrader  websocket.Upgrader
	log       logger.ILogger
}

func NewWSHandler(hub *Hub, jwtSecret, clientOrigin string, log logger.ILogger) *WSHandler {
	return &WSHandler{
		hub:       hub,
		jwtSecret: jwtSecret,
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if clientOrigin == "" || clientOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == clientOrigin
			},
		},
	}
}

func (h *WSHandler) Serve(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: "missing token"})
	}
	if _, err := middleware.ParseToken(token, h.jwtSecret); err != nil {
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: "invalid token"})
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Error("realtime: upgrade failed", logger.Error(err))
		return err
	}

	cl := &client{
		hub:   h.hub,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		rooms: make(map[string]struct{}),
	}
	h.hub.add(cl)

	go cl.writePump()
	go cl.readPump()
	return nil
}
