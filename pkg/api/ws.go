package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/aviroy619/critical-css-service/pkg/pool"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// statsPushInterval is how often pool stats are pushed to subscribers
const statsPushInterval = 2 * time.Second

// PoolEvent is one stats sample streamed over the websocket
type PoolEvent struct {
	Timestamp time.Time  `json:"timestamp"`
	Stats     pool.Stats `json:"stats"`
}

// PoolEvents upgrades the connection and streams pool stats snapshots
// until the client disconnects.
func (h *Handler) PoolEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WarnWithErr("websocket upgrade failed", err)
		return
	}
	defer conn.Close()

	log := h.log.With("remote", conn.RemoteAddr().String())
	log.Info("pool events subscriber connected")

	// Drain reads so close frames and pings are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(statsPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			log.Info("pool events subscriber disconnected")
			return
		case <-ticker.C:
			event := PoolEvent{
				Timestamp: time.Now().UTC(),
				Stats:     h.pool.Stats(),
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.WarnWithErr("websocket write failed", err)
				}
				return
			}
		}
	}
}
