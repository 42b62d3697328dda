package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const closeWriteTimeout = time.Second

// Transport is the subset of *websocket.Conn the session needs.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

type Dialer func(ctx context.Context, url string) (Transport, error)

// WebsocketDialer dials with gorilla. A nil dialer uses websocket.DefaultDialer.
func WebsocketDialer(d *websocket.Dialer) Dialer {
	if d == nil {
		d = websocket.DefaultDialer
	}
	return func(ctx context.Context, url string) (Transport, error) {
		conn, _, err := d.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// connection wraps one dialed transport. gorilla allows a single concurrent
// writer, so every write goes through sendMu.
type connection struct {
	t      Transport
	sendMu sync.Mutex

	closeOnce sync.Once
	closed    atomic.Bool
	// localCode is the code we closed with, if we closed first.
	localCode atomic.Int32
}

func newConnection(t Transport) *connection {
	return &connection{t: t}
}

func (c *connection) send(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed.Load() {
		return ErrNotConnected
	}
	return c.t.WriteMessage(websocket.TextMessage, data)
}

// close sends a close frame with code, then closes the transport.
func (c *connection) close(code int) error {
	return c.shutdown(code, true)
}

// drop closes the transport without a close frame, for when the peer has
// already closed.
func (c *connection) drop() error {
	return c.shutdown(0, false)
}

func (c *connection) shutdown(code int, notify bool) (err error) {
	c.closeOnce.Do(func() {
		if notify {
			c.localCode.Store(int32(code))
		}
		c.closed.Store(true)
		if notify {
			c.sendMu.Lock()
			werr := c.t.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), time.Now().Add(closeWriteTimeout))
			c.sendMu.Unlock()
			if werr != nil && werr != websocket.ErrCloseSent {
				err = werr
			}
		}
		if cerr := c.t.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}

func (c *connection) isClosed() bool {
	return c.closed.Load()
}
