package transport

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tinode/go-client/logs"
	"github.com/tinode/go-client/types"
)

const (
	// Time allowed to write a message to the server.
	writeWait = 10 * time.Second

	// Time allowed for the websocket handshake to complete.
	handshakeTimeout = 8 * time.Second
)

// wsConn is a websocket channel.
type wsConn struct {
	baseConn
	sock *websocket.Conn
	// replacing is set while a forced reconnect is dialing a new socket;
	// the read loop of the old socket must then exit without raising
	// lifecycle events.
	replacing bool
}

func newWSConn(opts Options, boff BackoffSettings, ev Events) *wsConn {
	return &wsConn{baseConn: baseConn{opts: opts, boff: boff, ev: ev}}
}

func (c *wsConn) Connect(ctx context.Context, host string, force bool) error {
	c.mu.Lock()
	c.closed = false
	if c.sock != nil {
		if !force {
			c.mu.Unlock()
			return nil
		}
		c.replacing = true
		c.sock.Close()
		c.sock = nil
	}
	if host != "" {
		c.opts.Host = host
	}
	scheme := "ws"
	if c.opts.Secure {
		scheme = "wss"
	}
	url := makeBaseURL(c.opts.Host, scheme, c.opts.APIKey)
	c.mu.Unlock()

	logs.Info.Println("ws: connecting to", url)
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	sock, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		c.mu.Lock()
		c.replacing = false
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.opts.AutoReconnect {
		c.stopBackoff()
	}
	c.replacing = false
	c.sock = sock
	c.mu.Unlock()

	if c.ev.OnOpen != nil {
		c.ev.OnOpen()
	}
	go c.readLoop(sock)
	return nil
}

func (c *wsConn) readLoop(sock *websocket.Conn) {
	for {
		_, raw, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logs.Err.Println("ws: readLoop", err)
			}
			break
		}
		if c.ev.OnMessage != nil {
			c.ev.OnMessage(raw)
		}
	}

	c.mu.Lock()
	if c.sock == sock {
		c.sock = nil
	}
	stale := c.replacing || c.sock != nil
	closed := c.closed
	c.mu.Unlock()

	if stale {
		// A forced reconnect replaced this socket; the new channel owns
		// the lifecycle events now.
		return
	}

	var nerr *types.NetworkError
	if closed {
		nerr = types.NewUserDisconnect()
	} else {
		nerr = types.NewNetworkError()
	}
	if c.ev.OnDisconnect != nil {
		c.ev.OnDisconnect(nerr)
	}

	if !closed && c.opts.AutoReconnect {
		c.scheduleReconnect(func() error {
			return c.Connect(context.Background(), "", false)
		})
	}
}

func (c *wsConn) Disconnect() {
	c.mu.Lock()
	c.closed = true
	c.stopBackoff()
	sock := c.sock
	c.sock = nil
	c.mu.Unlock()

	if sock != nil {
		// The read loop terminates and raises the disconnect event with the
		// client-initiated code.
		sock.Close()
	}
}

func (c *wsConn) SendText(msg string) error {
	c.mu.Lock()
	sock := c.sock
	c.mu.Unlock()

	if sock == nil {
		return types.ErrNotConnected
	}
	sock.SetWriteDeadline(time.Now().Add(writeWait))
	return sock.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (c *wsConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock != nil
}
