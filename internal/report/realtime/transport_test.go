package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"training-portal/reporting-engine/internal/report"
)

// newWSServer runs a websocket endpoint that reads and discards frames until
// the peer goes away.
func newWSServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server, "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestManualDisconnectOverWebsocket(t *testing.T) {
	_, url := newWSServer(t)

	transport := NewWebsocketTransport(url, zap.NewNop())
	m := NewManager(transport, zap.NewNop())
	t.Cleanup(m.Destroy)

	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, StatusConnected, m.Status())

	errs := make(chan error, 1)
	go func() {
		_, err := m.Subscribe(context.Background(), report.SubscribeRequest{Type: report.SubscriptionReport})
		errs <- err
	}()
	require.Eventually(t, func() bool { return m.PendingRequests() == 1 },
		time.Second, 10*time.Millisecond)

	m.Disconnect()

	assert.ErrorIs(t, <-errs, ErrConnectionClosed)
	assert.Equal(t, StatusDisconnected, m.Status())
	assert.Zero(t, m.PendingRequests())

	require.NoError(t, m.Reconnect(context.Background()))
	assert.Equal(t, StatusConnected, m.Status())
}

func TestTransportSendRequiresConnection(t *testing.T) {
	transport := NewWebsocketTransport("ws://127.0.0.1:0", zap.NewNop())
	err := transport.Send(context.Background(), Envelope{Event: "subscribe"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestTransportConnectTwiceRejected(t *testing.T) {
	_, url := newWSServer(t)

	transport := NewWebsocketTransport(url, zap.NewNop())
	require.NoError(t, transport.Connect(context.Background()))
	t.Cleanup(func() { transport.Close() })

	err := transport.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already connected")
}
