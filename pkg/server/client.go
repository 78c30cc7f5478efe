package server

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/flowscope/flowscope/pkg/tracker"
)

const (
	// writeWait is the deadline for one outbound write.
	writeWait = 10 * time.Second
	// pongWait is how long to wait for a pong before dropping the client.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// clientSendBuffer sizes the per-client outbound queue.
	clientSendBuffer = 256
	// maxInboundMessageSize bounds control messages from clients.
	maxInboundMessageSize = 512
)

// Client is one WebSocket consumer of the event stream.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	filter *tracker.EventFilter
	log    zerolog.Logger
}

// newClient wires a connection into the hub and starts its pumps.
func newClient(hub *Hub, conn *websocket.Conn, filter *tracker.EventFilter, log zerolog.Logger) *Client {
	c := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, clientSendBuffer),
		filter: filter,
		log:    log,
	}
	hub.register(c)

	go c.writePump()
	go c.readPump()
	return c
}

// readPump discards inbound frames and enforces the pong deadline. The
// stream is one-way; reads exist only to notice disconnects promptly.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
	}
}

// writePump sends queued events and periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
