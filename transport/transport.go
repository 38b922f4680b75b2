/******************************************************************************
 *
 *  Description :
 *
 *    Duplex channel to the server with automatic reconnection. Two wire
 *    implementations: websocket (see wsconn.go) and HTTP long polling
 *    (see lpconn.go).
 *
 *****************************************************************************/

// Package transport implements the byte-string channel between the client
// and the server.
package transport

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/tinode/go-client/types"
)

// ProtocolVersion is the version of the wire protocol endpoint.
const ProtocolVersion = "0"

// Conn is a single duplex channel to the server.
type Conn interface {
	// Connect opens the channel. It returns once the channel is confirmed
	// ready by the protocol-specific readiness signal. If host is empty the
	// previously configured host is used. Connecting an already live channel
	// is a no-op unless force is true.
	Connect(ctx context.Context, host string, force bool) error
	// Disconnect closes the channel and cancels any scheduled reconnection.
	// The connection will not be re-established automatically.
	Disconnect()
	// SendText writes a string to the channel. It fails if the channel is
	// not in a ready state.
	SendText(msg string) error
	// IsConnected checks if the channel is live.
	IsConnected() bool
	// ResetBackoff zeroes the reconnection backoff counter. Called by the
	// owner after a fully successful protocol handshake.
	ResetBackoff()
}

// Options is the channel configuration.
type Options struct {
	// Host name and optional port of the server.
	Host string
	// APIKey is sent with every connection attempt.
	APIKey string
	// Secure selects wss/https over ws/http.
	Secure bool
	// AutoReconnect enables reconnection with exponential backoff after a
	// network failure.
	AutoReconnect bool
	// Transport is either "ws" for websocket or "lp" for long polling.
	Transport string
}

// BackoffSettings control the exponential backoff between reconnects.
type BackoffSettings struct {
	// BaseDelay is the delay before the first reconnect attempt.
	BaseDelay time.Duration
	// MaxIterations caps the exponent growth.
	MaxIterations int
	// Jitter is the random delay fraction added to each attempt.
	Jitter float64
}

// DefaultBackoff returns the stock backoff schedule: 2s base, 10 doublings,
// 30% jitter.
func DefaultBackoff() BackoffSettings {
	return BackoffSettings{
		BaseDelay:     2000 * time.Millisecond,
		MaxIterations: 10,
		Jitter:        0.3,
	}
}

// Events are channel lifecycle callbacks. All callbacks are optional.
// They are invoked from the channel's own goroutines.
type Events struct {
	// OnOpen is called when the channel becomes ready.
	OnOpen func()
	// OnMessage is called for every payload received, including empty
	// keep-alive payloads.
	OnMessage func(data []byte)
	// OnDisconnect is called when the channel is lost or closed.
	OnDisconnect func(err *types.NetworkError)
	// OnAutoReconnect is called twice per scheduled reconnection: first with
	// the computed delay before the wait starts, then either with zero when
	// the attempt begins or with a negative value when the schedule was
	// cancelled by a disconnect.
	OnAutoReconnect func(delay time.Duration)
}

// New creates a channel of the configured kind.
func New(opts Options, boff BackoffSettings, ev Events) (Conn, error) {
	switch opts.Transport {
	case "ws":
		return newWSConn(opts, boff, ev), nil
	case "lp":
		return newLPConn(opts, boff, ev), nil
	}
	return nil, errors.New("invalid transport '" + opts.Transport + "', must be 'ws' or 'lp'")
}

// baseConn holds the state shared by both channel kinds: configuration and
// the reconnection backoff machine.
type baseConn struct {
	mu   sync.Mutex
	opts Options
	boff BackoffSettings
	ev   Events

	boffTimer *time.Timer
	boffIter  int
	// closed is set by an explicit user-initiated disconnect and suppresses
	// auto-reconnect.
	closed bool
}

// nextDelay computes the delay before the next reconnect attempt and
// advances the iteration counter up to the cap. Callers must hold mu.
func (b *baseConn) nextDelay() time.Duration {
	delay := float64(b.boff.BaseDelay) * math.Pow(2, float64(b.boffIter)) *
		(1.0 + b.boff.Jitter*rand.Float64())
	if b.boffIter < b.boff.MaxIterations {
		b.boffIter++
	}
	return time.Duration(delay)
}

// scheduleReconnect arms a timer which re-runs connect after the backoff
// delay, unless the channel gets explicitly closed in the meantime. A failed
// attempt schedules the next one.
func (b *baseConn) scheduleReconnect(connect func() error) {
	b.mu.Lock()
	if b.boffTimer != nil {
		b.boffTimer.Stop()
	}
	delay := b.nextDelay()
	b.mu.Unlock()

	if b.ev.OnAutoReconnect != nil {
		b.ev.OnAutoReconnect(delay)
	}

	b.mu.Lock()
	b.boffTimer = time.AfterFunc(delay, func() {
		b.mu.Lock()
		closed := b.closed
		b.mu.Unlock()

		if closed {
			if b.ev.OnAutoReconnect != nil {
				b.ev.OnAutoReconnect(-1)
			}
			return
		}
		if b.ev.OnAutoReconnect != nil {
			b.ev.OnAutoReconnect(0)
		}
		if connect() != nil {
			b.scheduleReconnect(connect)
		}
	})
	b.mu.Unlock()
}

// stopBackoff cancels a scheduled reconnection. Callers must hold mu.
func (b *baseConn) stopBackoff() {
	if b.boffTimer != nil {
		b.boffTimer.Stop()
		b.boffTimer = nil
	}
}

// ResetBackoff restores the iteration counter to zero.
func (b *baseConn) ResetBackoff() {
	b.mu.Lock()
	b.boffIter = 0
	b.mu.Unlock()
}

// makeBaseURL builds the channel endpoint:
// scheme://host/v{ver}/channels[/lp]?apikey={key}. The /lp suffix is
// appended for the http/https schemes.
func makeBaseURL(host, scheme, apikey string) string {
	url := scheme + "://" + strings.TrimSuffix(host, "/") + "/v" + ProtocolVersion + "/channels"
	if scheme == "http" || scheme == "https" {
		url += "/lp"
	}
	return url + "?apikey=" + apikey
}
