package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Callbacks receives transport-level events. Bound once by the Manager
// before the first Connect.
type Callbacks struct {
	OnConnect    func()
	OnMessage    func(Envelope)
	OnDisconnect func(err error, serverClosed bool)
}

// Transport is the bidirectional event channel the Manager multiplexes
// subscriptions over. Implementations must be safe to Connect again after
// a disconnect.
type Transport interface {
	Bind(cb Callbacks)
	Connect(ctx context.Context) error
	Send(ctx context.Context, env Envelope) error
	Close() error
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

// WebsocketTransport is the production Transport over a gorilla websocket.
type WebsocketTransport struct {
	url    string
	logger *zap.Logger
	cb     Callbacks

	mu        sync.Mutex
	conn      *websocket.Conn
	send      chan Envelope
	stop      chan struct{}
	connected bool
}

// NewWebsocketTransport creates a transport for the given ws:// or wss:// URL.
func NewWebsocketTransport(url string, logger *zap.Logger) *WebsocketTransport {
	return &WebsocketTransport{url: url, logger: logger}
}

func (t *WebsocketTransport) Bind(cb Callbacks) {
	t.cb = cb
}

// Connect dials the server and starts the read and write pumps. It returns
// an error if the transport is already connected.
func (t *WebsocketTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return fmt.Errorf("transport already connected")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, nil)
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("failed to dial %s: %w", t.url, err)
	}

	t.conn = conn
	t.send = make(chan Envelope, sendBuffer)
	t.stop = make(chan struct{})
	t.connected = true
	send, stop := t.send, t.stop
	t.mu.Unlock()

	go t.readPump(conn)
	go t.writePump(conn, send, stop)

	if t.cb.OnConnect != nil {
		t.cb.OnConnect()
	}
	return nil
}

// Send queues an envelope for delivery.
func (t *WebsocketTransport) Send(ctx context.Context, env Envelope) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return fmt.Errorf("transport not connected")
	}
	send, stop := t.send, t.stop
	t.mu.Unlock()

	select {
	case send <- env:
		return nil
	case <-stop:
		return fmt.Errorf("transport closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears the connection down. The read pump's exit reports the
// disconnect to the bound callbacks.
func (t *WebsocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil
	}
	close(t.stop)
	err := t.conn.Close()
	t.connected = false
	return err
}

func (t *WebsocketTransport) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	var readErr error
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			readErr = err
			break
		}
		if t.cb.OnMessage != nil {
			t.cb.OnMessage(env)
		}
	}

	serverClosed := websocket.IsCloseError(readErr,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseServiceRestart,
		websocket.CloseTryAgainLater)

	// Only tear down state that still belongs to this connection; a quick
	// reconnect may already have swapped in a fresh conn and stop channel.
	t.mu.Lock()
	wasConnected := t.connected && t.conn == conn
	if wasConnected {
		t.connected = false
		close(t.stop)
		t.conn.Close()
	}
	t.mu.Unlock()

	if wasConnected {
		if !serverClosed {
			t.logger.Warn("websocket read failed", zap.Error(readErr))
		}
		if t.cb.OnDisconnect != nil {
			t.cb.OnDisconnect(readErr, serverClosed)
		}
	}
}

func (t *WebsocketTransport) writePump(conn *websocket.Conn, send chan Envelope, stop chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case env := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				t.logger.Warn("websocket write failed", zap.Error(err))
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		case <-stop:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// marshalPayload is a small helper for building envelopes.
func marshalPayload(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return b, nil
}
