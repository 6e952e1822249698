// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"bandtap/internal/bands"
)

func newTestServer(t *testing.T, pub *bands.Publisher) (*WebSocketTransport, *httptest.Server) {
	t.Helper()
	wst := NewWebSocketTransport("", pub)
	srv := httptest.NewServer(wst.Handler())
	t.Cleanup(func() {
		wst.Close()
		srv.Close()
	})
	return wst, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%s): %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readBands(t *testing.T, conn *websocket.Conn) bands.FrequencyBands {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var b bands.FrequencyBands
	if err := conn.ReadJSON(&b); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return b
}

func TestWebSocketSendsCurrentThenBroadcasts(t *testing.T) {
	pub := bands.NewPublisher()
	pub.Publish(bands.FrequencyBands{Bass: 1, Mid: 2, Treble: 3})
	wst, srv := newTestServer(t, pub)

	first, second := dial(t, srv), dial(t, srv)
	for _, conn := range []*websocket.Conn{first, second} {
		if got := readBands(t, conn); got != pub.Load() {
			t.Errorf("initial frame = %+v, want %+v", got, pub.Load())
		}
	}
	if wst.Clients() != 2 {
		t.Fatalf("Clients() = %d, want 2", wst.Clients())
	}

	updates := []bands.FrequencyBands{{Bass: 4}, {Mid: 5}, {Treble: 6}}
	for _, b := range updates {
		if err := wst.Send(b); err != nil {
			t.Fatalf("Send() = %v", err)
		}
	}
	for _, conn := range []*websocket.Conn{first, second} {
		for _, want := range updates {
			if got := readBands(t, conn); got != want {
				t.Errorf("broadcast frame = %+v, want %+v", got, want)
			}
		}
	}
}

func TestWebSocketClientDisconnect(t *testing.T) {
	wst, srv := newTestServer(t, bands.NewPublisher())
	conn := dial(t, srv)
	readBands(t, conn)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for wst.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("disconnected client was not removed")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestBandsEndpoint(t *testing.T) {
	pub := bands.NewPublisher()
	_, srv := newTestServer(t, pub)

	get := func() (bands.FrequencyBands, string) {
		resp, err := http.Get(srv.URL + "/bands")
		if err != nil {
			t.Fatalf("GET /bands: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		var b bands.FrequencyBands
		if err := json.Unmarshal(body, &b); err != nil {
			t.Fatalf("decode %q: %v", body, err)
		}
		return b, resp.Header.Get("Content-Type")
	}

	if b, ct := get(); !b.IsZero() || ct != "application/json" {
		t.Errorf("initial GET = %+v (%s)", b, ct)
	}
	want := bands.FrequencyBands{Bass: 0.5, Mid: 1.5, Treble: 2.5}
	pub.Publish(want)
	if b, _ := get(); b != want {
		t.Errorf("GET /bands = %+v, want %+v", b, want)
	}

	resp, err := http.Post(srv.URL+"/bands", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /bands status = %d, want 405", resp.StatusCode)
	}
}

func TestWebSocketStartAndClose(t *testing.T) {
	wst := NewWebSocketTransport("127.0.0.1:0", bands.NewPublisher())
	if err := wst.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if err := wst.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if err := wst.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if err := wst.Send(bands.FrequencyBands{}); err == nil {
		t.Error("Send after Close should fail")
	}
}

func TestWebSocketStartBindError(t *testing.T) {
	wst := NewWebSocketTransport("127.0.0.1:-1", bands.NewPublisher())
	defer wst.Close()
	if err := wst.Start(); err == nil {
		t.Error("expected a bind error")
	}
}
