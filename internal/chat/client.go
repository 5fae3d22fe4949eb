package chat

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// ConnLike is the part of a websocket connection a Client needs.
type ConnLike interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
	Close() error
}

// Client is one user's websocket. Writes are serialized; the connection allows a single writer.
type Client struct {
	UserID int64
	Conn   ConnLike

	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func NewClient(userID int64, conn ConnLike, writeTimeout time.Duration) *Client {
	return &Client{UserID: userID, Conn: conn, writeTimeout: writeTimeout}
}

func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if c.writeTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.Conn.Close()
}

func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ReadPump handles inbound frames until the socket fails or stays silent for longer than timeout,
// then closes it and disconnects the user. Bad frames are logged and skipped.
func (c *Client) ReadPump(ctx context.Context, h *Hub, timeout time.Duration) {
	logger := h.logger.With("user_id", c.UserID)
	for {
		if timeout > 0 {
			_ = c.Conn.SetReadDeadline(time.Now().Add(timeout))
		}
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				logger.Warn("no ping received, closing websocket", "timeout", timeout.String())
			} else {
				logger.Info("websocket closed", "error", err.Error())
			}
			_ = c.Close()
			h.DisconnectClient(ctx, c.UserID, c)
			return
		}
		if err := h.HandleFrame(ctx, c, data); err != nil {
			logger.Warn("inbound frame dropped", "error", err.Error())
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
