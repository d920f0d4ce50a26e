package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/yoockh/fitcoach/internal/utils"
	"github.com/yoockh/fitcoach/internal/workers"
)

type WSHandler struct {
	redis    redis.UniversalClient
	upgrader websocket.Upgrader
}

// NewWSHandler: allowedOrigins empty accepts any origin.
func NewWSHandler(rdb redis.UniversalClient, allowedOrigins []string) *WSHandler {
	allow := map[string]struct{}{}
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allow[o] = struct{}{}
		}
	}
	return &WSHandler{
		redis: rdb,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(allow) == 0 {
					return true
				}
				_, ok := allow[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) write(typ int, b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteMessage(typ, b)
}

// Programs streams the caller's program job statuses until the client
// disconnects.
func (h *WSHandler) Programs(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	if h.redis == nil {
		writeError(c, utils.E(utils.CodeUnavailable, "WSHandler.Programs", "background jobs are not configured", nil))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	pubsub := h.redis.Subscribe(ctx, workers.StatusChannel(userID))
	defer pubsub.Close()

	// reader: only keeps the read deadline alive and notices close
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	msgs := pubsub.Channel()
	_ = wc.write(websocket.TextMessage, []byte(`{"type":"ready"}`))

	for {
		select {
		case <-readDone:
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := wc.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case m, ok := <-msgs:
			if !ok {
				return
			}
			// forward as-is (payload is a JobStatus JSON)
			if err := wc.write(websocket.TextMessage, []byte(m.Payload)); err != nil {
				return
			}
		}
	}
}
