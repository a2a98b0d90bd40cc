package connections

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dialPair returns the server side of a fresh connection and the client side.
func dialPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	serverConns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case conn := <-serverConns:
		t.Cleanup(func() { conn.Close() })
		return conn, client
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
		return nil, nil
	}
}

func TestManager(t *testing.T) {
	t.Run("add and remove", func(t *testing.T) {
		manager := NewManager(DefaultTimeouts)
		conn := &websocket.Conn{}

		p := manager.Add(conn, "10.0.0.1:1234")
		assert.True(t, manager.Has(conn))
		assert.Equal(t, "10.0.0.1:1234", p.RemoteAddr())
		assert.False(t, p.ConnectedAt().IsZero())
		assert.Equal(t, 1, manager.Count())

		manager.Remove(p)
		assert.False(t, manager.Has(conn))
		assert.Equal(t, 0, manager.Count())
	})

	t.Run("concurrent add", func(t *testing.T) {
		manager := NewManager(DefaultTimeouts)
		const n = 100

		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				manager.Add(&websocket.Conn{}, "")
			}()
		}
		wg.Wait()

		assert.Equal(t, n, manager.Count())
	})

	t.Run("timeouts apply to new peers", func(t *testing.T) {
		manager := NewManager(DefaultTimeouts)
		custom := TimeoutConfig{PongWait: time.Minute, PingPeriod: 54 * time.Second, WriteWait: 20 * time.Second}

		manager.SetTimeouts(custom)
		assert.Equal(t, custom, manager.Timeouts())
		assert.Equal(t, custom, manager.Add(&websocket.Conn{}, "").timeouts)
	})
}

func TestPeerWriteJSON(t *testing.T) {
	server, client := dialPair(t)
	manager := NewManager(DefaultTimeouts)
	p := manager.Add(server, "test")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.WriteJSON(map[string]string{"type": "token"}))
		}()
	}
	wg.Wait()

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	for i := 0; i < 10; i++ {
		var frame map[string]string
		require.NoError(t, client.ReadJSON(&frame))
		assert.Equal(t, "token", frame["type"])
	}
}

func TestCloseAll(t *testing.T) {
	server, client := dialPair(t)
	manager := NewManager(DefaultTimeouts)
	manager.Add(server, "test")

	assert.Equal(t, 1, manager.CloseAll("server shutting down"))
	assert.Equal(t, 0, manager.Count())

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
