package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/deepgram/parley/internal/connections"
	"github.com/deepgram/parley/internal/domain/chat/models"
	"github.com/deepgram/parley/internal/logger"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Config holds the dial and reconnect settings for the duplex transport.
type Config struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	HandshakeTimeout  time.Duration
	// ResyncTimeout bounds how long a send waits for the rest of a failed
	// reply before the connection is replaced.
	ResyncTimeout     time.Duration
	Timeouts          connections.TimeoutConfig
}

type pendingSend struct {
	sessionID string
	payload   []byte
}

// Client is the persistent duplex transport. It owns the connection state
// machine, queues sends until the connection is open, and hands decoded
// inbound frames to exactly one Subscription. It has no conversation
// semantics of its own.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer

	state   atomic.Int32
	onState func(models.ConnectionState)

	mu         sync.Mutex
	conn       *websocket.Conn
	stopPing   chan struct{}
	pending    []pendingSend
	sub        *Subscription
	cancelDial context.CancelFunc
	dialID     uint64

	// non-nil between an error frame and the done that closes its reply;
	// events in between are discarded
	resynced chan struct{}
}

func NewClient(cfg Config) *Client {
	if cfg.Timeouts == (connections.TimeoutConfig{}) {
		cfg.Timeouts = connections.DefaultTimeouts
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.ResyncTimeout <= 0 {
		cfg.ResyncTimeout = time.Second
	}
	if cfg.ReconnectAttempts < 0 {
		cfg.ReconnectAttempts = 0
	}

	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// OnStateChange registers fn to observe state transitions. fn runs while the
// client is locked: it may call State but must not call Send, Subscribe or Close.
func (c *Client) OnStateChange(fn func(models.ConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

func (c *Client) State() models.ConnectionState {
	return models.ConnectionState(c.state.Load())
}

// PendingLen reports how many sends are waiting for the connection to open.
func (c *Client) PendingLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Subscribe makes the returned Subscription the only consumer of inbound
// events. A previous subscription is ended.
func (c *Client) Subscribe() *Subscription {
	sub := newSubscription()

	c.mu.Lock()
	previous := c.sub
	c.sub = sub
	c.mu.Unlock()

	if previous != nil {
		previous.end("superseded by a newer subscription", nil)
	}
	return sub
}

// Unsubscribe detaches sub if it is still the current consumer.
func (c *Client) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	if c.sub == sub {
		c.sub = nil
	}
	c.mu.Unlock()
	sub.end(models.ReasonConnectionClosed, nil)
}

// Send transmits immediately when connected. Otherwise the payload is queued
// and, from DISCONNECTED, a connection attempt is started in the background.
// After a reply failed, Send first waits up to ResyncTimeout for that reply's
// done frame; if it never comes the connection is replaced.
func (c *Client) Send(sessionID, text string) error {
	payload, err := models.EncodeFrame(sessionID, text)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}

	c.awaitResync()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == models.Connected {
		if err := c.writeLocked(c.conn, payload); err != nil {
			cerr := &ConnectionError{Op: "write", Err: err}
			c.dropLocked(c.conn, cerr)
			return cerr
		}
		return nil
	}

	c.pending = append(c.pending, pendingSend{sessionID: sessionID, payload: payload})
	if c.State() == models.Disconnected {
		c.startConnectLocked()
	}

	log.Debug().
		Str("component", logger.STREAM).
		Str("session_id", sessionID).
		Int("pending", len(c.pending)).
		Msg("Queued send until connected")
	return nil
}

// awaitResync blocks while the connection still carries frames of a failed
// reply. The subscriber is left alone when the connection is replaced.
func (c *Client) awaitResync() {
	c.mu.Lock()
	conn, resynced := c.conn, c.resynced
	c.mu.Unlock()
	if resynced == nil {
		return
	}

	timer := time.NewTimer(c.cfg.ResyncTimeout)
	defer timer.Stop()
	select {
	case <-resynced:
		return
	case <-timer.C:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn || c.resynced != resynced {
		return
	}
	log.Warn().
		Str("component", logger.STREAM).
		Dur("waited", c.cfg.ResyncTimeout).
		Msg("Failed reply never finished, replacing connection")
	c.releaseLocked()
	c.setStateLocked(models.Disconnected)
}

// Connect starts a connection attempt if the client is disconnected.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() == models.Disconnected {
		c.startConnectLocked()
	}
}

// Close tears down the connection or the dial in progress, drops queued sends
// and ends the subscriber with ERROR("connection closed"). It is idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	c.dialID++
	c.pending = nil

	if conn := c.conn; conn != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.cfg.Timeouts.WriteWait),
		)
		c.releaseLocked()
		log.Info().Str("component", logger.STREAM).Msg("Connection closed")
	}

	c.endSubscriberLocked(models.ReasonConnectionClosed, nil)
	c.setStateLocked(models.Disconnected)
}

// caller holds c.mu
func (c *Client) startConnectLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelDial = cancel
	c.dialID++
	c.setStateLocked(models.Connecting)

	go c.connect(ctx, c.dialID)
}

func (c *Client) connect(ctx context.Context, id uint64) {
	var (
		conn     *websocket.Conn
		attempts int
	)

	operation := func() error {
		attempts++
		dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()

		dialed, _, err := c.dialer.DialContext(dialCtx, c.cfg.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			log.Warn().
				Str("component", logger.STREAM).
				Err(err).
				Int("attempt", attempts).
				Str("url", c.cfg.URL).
				Msg("Dial failed")
			return err
		}
		conn = dialed
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.ReconnectDelay), uint64(c.cfg.ReconnectAttempts)),
		ctx,
	)
	err := backoff.Retry(operation, policy)

	c.mu.Lock()
	defer c.mu.Unlock()

	if id != c.dialID {
		// closed or superseded while dialing
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	c.cancelDial = nil

	if err != nil {
		cerr := &ConnectionError{Op: "dial", Attempts: attempts, Err: err}
		log.Error().
			Str("component", logger.STREAM).
			Err(err).
			Int("attempts", attempts).
			Int("dropped", len(c.pending)).
			Msg("Giving up on connection")
		c.pending = nil
		c.endSubscriberLocked(cerr.Error(), cerr)
		c.setStateLocked(models.Disconnected)
		return
	}

	c.openLocked(conn)
}

// caller holds c.mu
func (c *Client) openLocked(conn *websocket.Conn) {
	timeouts := c.cfg.Timeouts
	_ = conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	})

	c.conn = conn
	c.stopPing = make(chan struct{})
	c.setStateLocked(models.Connected)
	log.Info().Str("component", logger.STREAM).Str("url", c.cfg.URL).Msg("Connected")

	queued := c.pending
	c.pending = nil
	for i, p := range queued {
		if err := c.writeLocked(conn, p.payload); err != nil {
			cerr := &ConnectionError{Op: "write", Err: err}
			log.Error().Str("component", logger.STREAM).Err(err).Int("dropped", len(queued)-i).Msg("Flush failed")
			c.dropLocked(conn, cerr)
			return
		}
	}
	if len(queued) > 0 {
		log.Debug().Str("component", logger.STREAM).Int("count", len(queued)).Msg("Flushed queued sends")
	}

	go c.readLoop(conn)
	go c.pingLoop(conn, c.stopPing)
}

// caller holds c.mu
func (c *Client) writeLocked(conn *websocket.Conn, payload []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.Timeouts.WriteWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.lost(conn, &ConnectionError{Op: "read", Err: err})
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.Timeouts.PongWait))

		event := models.DecodeFrame(data)
		if event.Type == models.EventError && event.Reason == models.ReasonInvalidFormat {
			log.Warn().Str("component", logger.STREAM).Int("size", len(data)).Msg("Undecodable frame")
		}
		c.deliver(conn, event)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.Timeouts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.Timeouts.WriteWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.lost(conn, &ConnectionError{Op: "ping", Err: err})
				return
			}
		}
	}
}

// deliver hands event from conn to the subscriber. An error event ends the
// reply for its consumer, so the frames that follow it up to the next done
// belong to nobody and are discarded.
func (c *Client) deliver(conn *websocket.Conn, event models.StreamEvent) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	if c.resynced != nil {
		if event.Type == models.EventDone {
			close(c.resynced)
			c.resynced = nil
		}
		c.mu.Unlock()
		log.Debug().Str("component", logger.STREAM).Str("type", string(event.Type)).Msg("Discarding event of a failed reply")
		return
	}
	if event.Type == models.EventError {
		c.resynced = make(chan struct{})
	}
	sub := c.sub
	c.mu.Unlock()

	if sub == nil || !sub.deliver(event) {
		log.Debug().Str("component", logger.STREAM).Str("type", string(event.Type)).Msg("Dropping event without subscriber")
	}
}

// lost handles a read or ping failure on conn. Failures on a connection that
// was already released are expected and ignored.
func (c *Client) lost(conn *websocket.Conn, cerr *ConnectionError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != conn {
		return
	}
	if websocket.IsCloseError(cerr.Err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Info().Str("component", logger.STREAM).Msg("Server closed the connection")
	} else {
		log.Error().Str("component", logger.STREAM).Err(cerr).Msg("Connection lost")
	}
	c.dropLocked(conn, cerr)
}

// caller holds c.mu
func (c *Client) dropLocked(conn *websocket.Conn, cerr *ConnectionError) {
	if c.conn == conn {
		c.releaseLocked()
	} else {
		_ = conn.Close()
	}
	c.endSubscriberLocked(cerr.Error(), cerr)
	c.setStateLocked(models.Disconnected)
}

// caller holds c.mu
func (c *Client) releaseLocked() {
	close(c.stopPing)
	_ = c.conn.Close()
	c.conn = nil
	c.stopPing = nil
	if c.resynced != nil {
		close(c.resynced)
		c.resynced = nil
	}
}

// caller holds c.mu
func (c *Client) endSubscriberLocked(reason string, err error) {
	if c.sub == nil {
		return
	}
	c.sub.end(reason, err)
	c.sub = nil
}

// caller holds c.mu
func (c *Client) setStateLocked(state models.ConnectionState) {
	if models.ConnectionState(c.state.Swap(int32(state))) == state {
		return
	}
	log.Debug().Str("component", logger.STREAM).Str("state", state.String()).Msg("State changed")
	if c.onState != nil {
		c.onState(state)
	}
}

// IsConnectionError reports whether err is, or wraps, a ConnectionError.
func IsConnectionError(err error) bool {
	var cerr *ConnectionError
	return errors.As(err, &cerr)
}
