package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"traderwatch/logger"
)

// FillHandler is invoked for every fill frame the WS delivers, one call per
// fill (already split out of the batched WsFillsData wrapper).
type FillHandler func(user string, fill WsFill)

// WSClient owns the subscription socket: one reader task plus a supervisor
// that restarts it on disconnect (§9 design note — long-lived WS with
// reconnection kept under a single owner to avoid resubscribe/incoming
// message races).
type WSClient struct {
	url            string
	reconnectDelay time.Duration

	mu          sync.Mutex
	users       map[string]bool
	fillFunc    FillHandler
	onReconnect func()

	conn *websocket.Conn
}

func NewWSClient(url string, reconnectDelay time.Duration, onFill FillHandler) *WSClient {
	return &WSClient{
		url:            url,
		reconnectDelay: reconnectDelay,
		users:          make(map[string]bool),
		fillFunc:       onFill,
	}
}

// Subscribe registers a user for the userFills channel. If already
// connected, sends the subscribe frame immediately; membership also
// survives reconnect via the users set.
func (w *WSClient) Subscribe(user string) {
	w.mu.Lock()
	already := w.users[user]
	w.users[user] = true
	conn := w.conn
	w.mu.Unlock()
	if !already && conn != nil {
		w.send(conn, subscribeFrame(user))
	}
}

func (w *WSClient) Unsubscribe(user string) {
	w.mu.Lock()
	delete(w.users, user)
	conn := w.conn
	w.mu.Unlock()
	if conn != nil {
		w.send(conn, unsubscribeFrame(user))
	}
}

func subscribeFrame(user string) map[string]interface{} {
	return map[string]interface{}{"method": "subscribe", "subscription": map[string]interface{}{"type": "userFills", "user": user}}
}

func unsubscribeFrame(user string) map[string]interface{} {
	return map[string]interface{}{"method": "unsubscribe", "subscription": map[string]interface{}{"type": "userFills", "user": user}}
}

func (w *WSClient) send(conn *websocket.Conn, frame interface{}) {
	if err := conn.WriteJSON(frame); err != nil {
		logger.Warnf("exchange ws: write failed: %v", err)
	}
}

// Run blocks, connecting and reconnecting until ctx is cancelled.
func (w *WSClient) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := w.runOnce(ctx); err != nil {
			logger.Warnf("exchange ws: disconnected: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.reconnectDelay):
		}
	}
}

func (w *WSClient) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	w.mu.Lock()
	w.conn = conn
	users := make([]string, 0, len(w.users))
	for u := range w.users {
		users = append(users, u)
	}
	w.mu.Unlock()

	// Resubscribe the current address set on (re)connect; the caller is
	// responsible for dropping any in-memory dedup cache on reconnect to
	// avoid false positives from replayed fills.
	for _, u := range users {
		w.send(conn, subscribeFrame(u))
	}
	w.mu.Lock()
	reconnectFn := w.onReconnect
	w.mu.Unlock()
	if reconnectFn != nil {
		reconnectFn()
	}

	pingDone := make(chan struct{})
	go w.pingLoop(ctx, conn, pingDone)
	defer close(pingDone)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		w.handleFrame(data)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (w *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.send(conn, map[string]interface{}{"method": "ping"})
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *WSClient) handleFrame(data []byte) {
	var env WsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}
	if env.Channel != "userFills" {
		return
	}
	var fd WsFillsData
	if err := json.Unmarshal(env.Data, &fd); err != nil {
		logger.Errorf("exchange ws: malformed userFills frame: %v", err)
		return
	}
	for _, f := range fd.Fills {
		w.fillFunc(fd.User, f)
	}
}

// OnReconnect registers a callback fired each time a new connection is
// established, after resubscribe frames are sent. Consumers use this to
// drop their in-memory dedup cache (§4.1 — avoids false positives from
// replayed fills).
func (w *WSClient) OnReconnect(fn func()) {
	w.mu.Lock()
	w.onReconnect = fn
	w.mu.Unlock()
}

func (w *WSClient) CurrentUsers() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.users))
	for u := range w.users {
		out = append(out, u)
	}
	return out
}
