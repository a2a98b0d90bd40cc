package connections

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TimeoutConfig holds the various timeout settings for WebSocket connections
type TimeoutConfig struct {
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
}

// DefaultTimeouts provides sensible default timeout values
var DefaultTimeouts = TimeoutConfig{
	PongWait:   30 * time.Second,
	PingPeriod: 27 * time.Second, // (PongWait * 9) / 10
	WriteWait:  10 * time.Second,
}

// Peer is one accepted WebSocket connection. gorilla allows a single
// concurrent writer, so every data frame goes through WriteJSON.
type Peer struct {
	conn        *websocket.Conn
	remoteAddr  string
	connectedAt time.Time
	timeouts    TimeoutConfig

	writeMu sync.Mutex
}

func (p *Peer) Conn() *websocket.Conn { return p.conn }

func (p *Peer) RemoteAddr() string { return p.remoteAddr }

func (p *Peer) ConnectedAt() time.Time { return p.connectedAt }

// WriteJSON sends v as a text frame under the write deadline.
func (p *Peer) WriteJSON(v any) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if err := p.conn.SetWriteDeadline(time.Now().Add(p.timeouts.WriteWait)); err != nil {
		return err
	}
	return p.conn.WriteJSON(v)
}

// Ping sends a ping control frame. WriteControl may run alongside WriteJSON.
func (p *Peer) Ping() error {
	return p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(p.timeouts.WriteWait))
}

// CloseWith sends a close frame with code and text, then closes the socket.
func (p *Peer) CloseWith(code int, text string) error {
	msg := websocket.FormatCloseMessage(code, text)
	_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(p.timeouts.WriteWait))
	return p.conn.Close()
}

// Manager handles WebSocket connection lifecycle
type Manager struct {
	connections sync.Map
	mu          sync.RWMutex
	timeouts    TimeoutConfig
}

// NewManager creates a new connection manager with the specified timeouts
func NewManager(timeouts TimeoutConfig) *Manager {
	return &Manager{
		timeouts: timeouts,
	}
}

// Add registers conn and returns its peer handle.
func (m *Manager) Add(conn *websocket.Conn, remoteAddr string) *Peer {
	p := &Peer{
		conn:        conn,
		remoteAddr:  remoteAddr,
		connectedAt: time.Now(),
		timeouts:    m.Timeouts(),
	}
	m.connections.Store(conn, p)
	return p
}

func (m *Manager) Remove(p *Peer) {
	m.connections.Delete(p.conn)
}

// Count returns the current number of active connections
func (m *Manager) Count() int {
	count := 0
	m.connections.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

func (m *Manager) Has(conn *websocket.Conn) bool {
	_, exists := m.connections.Load(conn)
	return exists
}

// CloseAll sends a going-away close frame to every peer and forgets them.
// Hijacked connections are not closed by http.Server.Shutdown.
func (m *Manager) CloseAll(text string) int {
	closed := 0
	m.connections.Range(func(key, value interface{}) bool {
		p := value.(*Peer)
		_ = p.CloseWith(websocket.CloseGoingAway, text)
		m.connections.Delete(key)
		closed++
		return true
	})
	return closed
}

func (m *Manager) Timeouts() TimeoutConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timeouts
}

// SetTimeouts applies to peers added afterwards.
func (m *Manager) SetTimeouts(timeouts TimeoutConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts = timeouts
}
