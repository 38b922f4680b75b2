package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tinode/go-client/types"
)

func waitMsg(t *testing.T, ch chan []byte) []byte {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func waitErr(t *testing.T, ch chan *types.NetworkError) *types.NetworkError {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("no disconnect event")
		return nil
	}
}

func TestWebsockEcho(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sock, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer sock.Close()
		for {
			mt, msg, err := sock.ReadMessage()
			if err != nil {
				return
			}
			if err = sock.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	received := make(chan []byte, 8)
	lost := make(chan *types.NetworkError, 1)
	conn, err := New(
		Options{
			Host:      strings.TrimPrefix(srv.URL, "http://"),
			APIKey:    "KEY",
			Transport: "ws",
		},
		DefaultBackoff(),
		Events{
			OnMessage:    func(data []byte) { received <- data },
			OnDisconnect: func(err *types.NetworkError) { lost <- err },
		})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = conn.Connect(ctx, "", false); err != nil {
		t.Fatal("connect:", err)
	}
	if !conn.IsConnected() {
		t.Fatal("not connected after Connect")
	}

	if err = conn.SendText(`{"hi":{}}`); err != nil {
		t.Fatal("send:", err)
	}
	if got := string(waitMsg(t, received)); got != `{"hi":{}}` {
		t.Errorf("echoed %q", got)
	}

	conn.Disconnect()
	if nerr := waitErr(t, lost); !nerr.IsUserDisconnect() {
		t.Errorf("disconnect code = %d, want %d", nerr.Code, types.CodeUserDisconnect)
	}
	if conn.IsConnected() {
		t.Error("still connected after Disconnect")
	}
}

func TestWebsockSendWhileDown(t *testing.T) {
	conn, err := New(Options{Host: "localhost:1", Transport: "ws"}, DefaultBackoff(), Events{})
	if err != nil {
		t.Fatal(err)
	}
	if err = conn.SendText("{}"); err != types.ErrNotConnected {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestLongPollHandshake(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Write([]byte(`{"ctrl":{"code":200,"ts":"2026-01-01T00:00:00Z"}}`))
			return
		}
		if r.URL.Query().Get("sid") == "" {
			// First GET assigns the session id.
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"ctrl":{"code":201,"params":{"sid":"abc123"},"ts":"2026-01-01T00:00:00Z"}}`))
			return
		}
		if atomic.AddInt32(&polls, 1) == 1 {
			w.Write([]byte(`{"data":{"topic":"grpTest","seq":1,"ts":"2026-01-01T00:00:00Z"}}`))
			return
		}
		// Hold the poll open until the client goes away.
		<-r.Context().Done()
	}))
	defer srv.Close()

	received := make(chan []byte, 8)
	lost := make(chan *types.NetworkError, 1)
	conn, err := New(
		Options{
			Host:      strings.TrimPrefix(srv.URL, "http://"),
			APIKey:    "KEY",
			Transport: "lp",
		},
		DefaultBackoff(),
		Events{
			OnMessage:    func(data []byte) { received <- data },
			OnDisconnect: func(err *types.NetworkError) { lost <- err },
		})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = conn.Connect(ctx, "", false); err != nil {
		t.Fatal("connect:", err)
	}
	if !conn.IsConnected() {
		t.Fatal("not connected after handshake")
	}

	if got := string(waitMsg(t, received)); !strings.Contains(got, `"seq":1`) {
		t.Errorf("polled %q", got)
	}
	if err = conn.SendText(`{"note":{"topic":"grpTest","what":"kp"}}`); err != nil {
		t.Fatal("send:", err)
	}

	conn.Disconnect()
	if nerr := waitErr(t, lost); !nerr.IsUserDisconnect() {
		t.Errorf("disconnect code = %d, want %d", nerr.Code, types.CodeUserDisconnect)
	}
	if conn.SendText("{}") != types.ErrNotConnected {
		t.Error("send succeeded on a closed channel")
	}
}

func TestLongPollRejectsBadHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 200 instead of 201: no session was created.
		w.Write([]byte(`{"ctrl":{"code":200,"ts":"2026-01-01T00:00:00Z"}}`))
	}))
	defer srv.Close()

	conn, err := New(
		Options{Host: strings.TrimPrefix(srv.URL, "http://"), Transport: "lp"},
		DefaultBackoff(), Events{})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = conn.Connect(ctx, "", false); err == nil {
		t.Fatal("handshake without a session id did not fail")
	}
	if conn.IsConnected() {
		t.Error("connected after failed handshake")
	}
}
