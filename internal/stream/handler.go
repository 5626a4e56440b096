package stream

import (
	"net/http"

	applogger "BasisPulse/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Handler upgrades HTTP requests to stream connections.
type Handler struct {
	hub        *Hub
	indicators IndicatorSource
	supported  []string
	logger     *applogger.Logger
	upgrader   websocket.Upgrader
}

// NewHandler creates the WebSocket endpoint handler.
func NewHandler(hub *Hub, indicators IndicatorSource, supported []string, log *applogger.Logger) *Handler {
	return &Handler{
		hub:        hub,
		indicators: indicators,
		supported:  supported,
		logger:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// RegisterRoutes mounts the stream endpoint on the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Serve)
}

// Serve upgrades the request and runs the connection until it closes.
func (h *Handler) Serve(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", applogger.Error(err))
		return err
	}
	conn := NewConn(ws, h.hub, h.indicators, h.supported, h.logger)
	go conn.Run()
	return nil
}
