// ABOUTME: WebSocket transport: connection upgrade, read loop, serialized writes
// ABOUTME: Each connection becomes one session; read errors close and remove it

package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Clients authenticate in-band after connecting.
		return true
	},
}

// wsConn adapts a gorilla connection to session.Sender. Writes are
// serialized; gorilla connections do not support concurrent writers.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// handleWS upgrades the connection, registers a session, sends the welcome
// message, then reads messages until the transport fails. Messages from one
// session are dispatched in arrival order.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	sess := g.sessions.Add(&wsConn{conn: conn})
	g.sendWelcome(sess)

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			g.logger.Info("session transport closed", "session_id", sess.ID, "error", err)
			g.sessions.Remove(sess.ID)
			return
		}
		sess.Touch(time.Now())
		g.handleMessage(ctx, sess, data)
	}
}
