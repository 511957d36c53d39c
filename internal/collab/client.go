package collab

import (
	"context"
	"sync"
	"time"

	"github.com/collabdocs/collabdocs/internal/access"
	"github.com/collabdocs/collabdocs/pkg/logger"
	"github.com/collabdocs/collabdocs/pkg/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const writeWait = 10 * time.Second

// Client is one websocket connection. Its events are handled in order by
// readPump; writePump is the only writer of conn.
type Client struct {
	id      string
	who     access.Identity
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter

	room string // guarded by hub.mu
}

func newClient(h *Hub, conn *websocket.Conn, who access.Identity, limiter *rate.Limiter) *Client {
	return &Client{
		id:      uuid.NewString(),
		who:     who,
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, h.cfg.SendQueue),
		done:    make(chan struct{}),
		limiter: limiter,
	}
}

// ID is unique per connection.
func (c *Client) ID() string { return c.id }

// Identity is the authenticated caller behind the connection.
func (c *Client) Identity() access.Identity { return c.who }

// enqueue never blocks. A full queue drops the frame.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		metrics.CollabDroppedFrames.Inc()
		logger.Warnw("send queue full, frame dropped", "conn", c.id, "user", c.who.UserID)
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// readPump decodes frames and hands them to the hub until the connection
// fails, then unregisters the client.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.disconnect(c)
		c.close()
	}()
	if c.hub.cfg.MaxMessage > 0 {
		c.conn.SetReadLimit(c.hub.cfg.MaxMessage)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Debugw("websocket read failed", "conn", c.id, "err", err)
			}
			return
		}
		if c.limiter != nil && !c.limiter.Allow() {
			c.enqueue(errorFrame(MsgRateLimited))
			continue
		}
		c.hub.Handle(ctx, c, data)
	}
}

// writePump drains the send queue and pings the peer. It closes the
// connection when it returns.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is already queued.
func (c *Client) flush() {
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
