// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bandtap/internal/bands"
	applog "bandtap/internal/log"
)

const (
	broadcastBuffer = 256
	writeTimeout    = time.Second
)

// WebSocketTransport streams snapshots as JSON text frames to every client
// connected on /ws and serves the latest snapshot on GET /bands.
type WebSocketTransport struct {
	addr     string
	src      Source
	upgrader websocket.Upgrader
	log      *applog.Logger

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]struct{}

	broadcast chan bands.FrequencyBands
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	server *http.Server
}

// NewWebSocketTransport creates a transport for addr reading the current
// snapshot from src. Call Start to listen, or mount Handler elsewhere.
func NewWebSocketTransport(addr string, src Source) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr: addr,
		src:  src,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log:       applog.Named("websocket"),
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan bands.FrequencyBands, broadcastBuffer),
		done:      make(chan struct{}),
	}

	wst.wg.Add(1)
	go wst.handleBroadcasts()
	return wst
}

// Handler returns the transport's routes.
func (wst *WebSocketTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wst.handleWebSocket)
	mux.HandleFunc("GET /bands", wst.handleBands)
	return mux
}

// Start binds the listen address and serves in the background. Bind
// failures are returned; later server errors are logged.
func (wst *WebSocketTransport) Start() error {
	ln, err := net.Listen("tcp", wst.addr)
	if err != nil {
		return err
	}
	wst.server = &http.Server{
		Handler:           wst.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		wst.log.Infof("serving on %s", ln.Addr())
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			wst.log.Errorf("server error: %v", err)
		}
	}()
	return nil
}

func (wst *WebSocketTransport) handleBands(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(wst.src.Load().JSON()))
}

// handleWebSocket upgrades the connection, sends the current snapshot and
// registers the client for broadcasts.
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wst.log.Warnf("upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	select {
	case <-wst.done:
		wst.clientsMu.Unlock()
		conn.Close()
		return
	default:
	}
	if err := wst.write(conn, wst.src.Load()); err != nil {
		wst.clientsMu.Unlock()
		conn.Close()
		return
	}
	wst.clients[conn] = struct{}{}
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	wst.log.Infof("client connected, total: %d", total)

	// Clients only listen; a read error means they went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.drop(conn)
				return
			}
		}
	}()
}

func (wst *WebSocketTransport) write(conn *websocket.Conn, b bands.FrequencyBands) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, []byte(b.JSON()))
}

func (wst *WebSocketTransport) drop(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()

	conn.Close()
	if ok {
		wst.log.Infof("client disconnected, total: %d", total)
	}
}

// handleBroadcasts sends each queued snapshot to all connected clients.
func (wst *WebSocketTransport) handleBroadcasts() {
	defer wst.wg.Done()
	for {
		select {
		case <-wst.done:
			return
		case b := <-wst.broadcast:
			wst.clientsMu.Lock()
			for client := range wst.clients {
				if err := wst.write(client, b); err != nil {
					wst.log.Warnf("error sending to client: %v", err)
					client.Close()
					delete(wst.clients, client)
				}
			}
			wst.clientsMu.Unlock()
		}
	}
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// Send queues b for broadcast. When the queue is full the snapshot is
// dropped; clients catch up with the next one.
func (wst *WebSocketTransport) Send(b bands.FrequencyBands) error {
	select {
	case <-wst.done:
		return net.ErrClosed
	default:
	}

	select {
	case wst.broadcast <- b:
	default:
		wst.log.Debugf("broadcast queue full, dropping snapshot")
	}
	return nil
}

// Close disconnects every client and shuts the server down.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		wst.log.Infof("closing server")

		wst.clientsMu.Lock()
		close(wst.done)
		for client := range wst.clients {
			client.Close()
		}
		clear(wst.clients)
		wst.clientsMu.Unlock()
		wst.wg.Wait()

		if wst.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err = wst.server.Shutdown(ctx)
		}
	})
	return err
}

var _ Transport = (*WebSocketTransport)(nil)
