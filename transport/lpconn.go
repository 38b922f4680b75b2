package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/tinode/go-client/logs"
	"github.com/tinode/go-client/types"
)

// lpConn is a long polling channel: a GET request held open by the server
// for receiving, paired with short POST requests for sending. The server
// assigns a session id on the first request; the id ties the poller and the
// sender together.
type lpConn struct {
	baseConn
	client *http.Client

	// lpURL is the endpoint with the session id attached. Empty when the
	// channel is down.
	lpURL      string
	pollCancel context.CancelFunc
}

func newLPConn(opts Options, boff BackoffSettings, ev Events) *lpConn {
	return &lpConn{
		baseConn: baseConn{opts: opts, boff: boff, ev: ev},
		client:   &http.Client{},
	}
}

func (c *lpConn) Connect(ctx context.Context, host string, force bool) error {
	c.mu.Lock()
	c.closed = false
	if c.lpURL != "" {
		if !force {
			c.mu.Unlock()
			return nil
		}
		c.teardown()
	}
	if host != "" {
		c.opts.Host = host
	}
	scheme := "http"
	if c.opts.Secure {
		scheme = "https"
	}
	url := makeBaseURL(c.opts.Host, scheme, c.opts.APIKey)
	c.mu.Unlock()

	logs.Info.Println("lp: connecting to", url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusCreated {
		return &types.NetworkError{Code: resp.StatusCode, Text: string(body)}
	}

	// The first response must carry the session id before the channel is
	// considered ready.
	var pkt struct {
		Ctrl struct {
			Params struct {
				Sid string `json:"sid"`
			} `json:"params"`
		} `json:"ctrl"`
	}
	if err = json.Unmarshal(body, &pkt); err != nil {
		return err
	}
	if pkt.Ctrl.Params.Sid == "" {
		return errors.New("lp: server did not assign a session id")
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.lpURL = url + "&sid=" + pkt.Ctrl.Params.Sid
	c.pollCancel = cancel
	if c.opts.AutoReconnect {
		c.stopBackoff()
	}
	lpURL := c.lpURL
	c.mu.Unlock()

	if c.ev.OnOpen != nil {
		c.ev.OnOpen()
	}
	go c.pollLoop(pollCtx, lpURL)
	return nil
}

// pollLoop repeatedly issues GET requests, each held open by the server
// until a message or a keep-alive timeout. An empty response body is an
// idle ping passed through to the owner.
func (c *lpConn) pollLoop(ctx context.Context, url string) {
	var nerr *types.NetworkError

	for nerr == nil {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			nerr = types.NewNetworkError()
			break
		}
		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				// Cancelled by Disconnect which raises its own event.
				return
			}
			nerr = types.NewNetworkError()
			break
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			nerr = types.NewNetworkError()
			break
		}

		if resp.StatusCode < http.StatusBadRequest {
			if c.ev.OnMessage != nil {
				c.ev.OnMessage(body)
			}
			continue
		}

		// Server errors carry a ctrl message in the body worth forwarding.
		if len(body) > 0 && c.ev.OnMessage != nil {
			c.ev.OnMessage(body)
		}
		nerr = &types.NetworkError{Code: resp.StatusCode, Text: http.StatusText(resp.StatusCode)}
	}

	logs.Warn.Println("lp: polling stopped:", nerr)
	c.mu.Lock()
	c.lpURL = ""
	c.pollCancel = nil
	closed := c.closed
	c.mu.Unlock()

	if closed {
		nerr = types.NewUserDisconnect()
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

// teardown cancels the poll loop and forgets the session. Callers must
// hold mu.
func (c *lpConn) teardown() {
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}
	c.lpURL = ""
}

func (c *lpConn) Disconnect() {
	c.mu.Lock()
	c.closed = true
	c.stopBackoff()
	wasLive := c.lpURL != ""
	c.teardown()
	c.mu.Unlock()

	if wasLive && c.ev.OnDisconnect != nil {
		c.ev.OnDisconnect(types.NewUserDisconnect())
	}
}

func (c *lpConn) SendText(msg string) error {
	c.mu.Lock()
	url := c.lpURL
	c.mu.Unlock()

	if url == "" {
		return types.ErrNotConnected
	}

	resp, err := c.client.Post(url, "application/json", strings.NewReader(msg))
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return &types.NetworkError{Code: resp.StatusCode, Text: http.StatusText(resp.StatusCode)}
	}
	return nil
}

func (c *lpConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lpURL != ""
}
