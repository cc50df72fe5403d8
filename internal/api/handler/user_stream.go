package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

// UserStreamHandler pushes every current-user transition of the bound
// session over a websocket.
type UserStreamHandler struct {
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewUserStreamHandler accepts upgrades from allowedOrigin only; an empty
// origin accepts any.
func NewUserStreamHandler(allowedOrigin string, log zerolog.Logger) *UserStreamHandler {
	return &UserStreamHandler{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || origin == "" || origin == allowedOrigin
			},
		},
		log: log,
	}
}

// Stream
//
// @Summary      Current user stream
// @Description  Websocket. Each message is a state object as returned by GET /auth/me.
// @Tags         auth
// @Router       /auth/me/stream [get]
func (h *UserStreamHandler) Stream(c echo.Context) error {
	r, err := ctxResolver(c)
	if err != nil {
		return err
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return nil
	}
	defer conn.Close()

	states, stop := r.Watch()
	defer stop()

	// the client sends nothing; reading only detects close and pongs
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.log.Debug().Err(err).Msg("user stream read failed")
				}
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return nil
		case st, ok := <-states:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return nil
			}
			if err := conn.WriteJSON(toMeResponse(st)); err != nil {
				return nil
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}
