// Package realtime owns the websocket connection to the chat server: the
// token handshake, linear-backoff reconnects and dispatch of typed inbound
// events to one handler per kind.
package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/teamchat/internal/bus"
	"github.com/matheus3301/teamchat/internal/logging"
	"github.com/matheus3301/teamchat/internal/metrics"
	"github.com/matheus3301/teamchat/internal/models"
	"github.com/matheus3301/teamchat/internal/status"
	"go.uber.org/zap"
)

// ErrEmptyToken is returned by Connect when no token is given.
var ErrEmptyToken = errors.New("realtime: empty token")

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second
)

// Handler receives decoded events on the connection's reader goroutine.
// Handlers run one at a time in arrival order.
type Handler func(Event)

// Bus payloads.
type (
	ConnectedInfo struct {
		ConnID string
		URL    string
	}
	DisconnectedInfo struct {
		ConnID string
		Reason string
	}
	ReconnectAttempt struct {
		Attempt int
		Max     int
		Delay   time.Duration
	}
	ExhaustedInfo struct {
		Attempts int
	}
)

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	URL               string
	Dialer            Dialer
	MaxAttempts       int
	BaseDelay         time.Duration
	HeartbeatInterval time.Duration
	Status            *status.Machine
	Bus               *bus.Bus
	Metrics           *metrics.Metrics
	Logger            *zap.Logger
}

// Manager keeps at most one live connection. A new Connect supersedes the
// previous session; Disconnect ends it.
type Manager struct {
	url         string
	dialer      Dialer
	maxAttempts int
	baseDelay   time.Duration
	heartbeat   time.Duration
	status      *status.Machine
	bus         *bus.Bus
	metrics     *metrics.Metrics
	log         *zap.Logger

	mu       sync.Mutex
	conn     Conn
	connID   string
	token    string
	attempts int
	gen      uint64
	cancel   context.CancelFunc

	writeMu sync.Mutex
	wg      sync.WaitGroup

	handlersMu sync.RWMutex
	handlers   map[Kind]Handler

	lastPong atomic.Int64
}

// New creates a disconnected Manager.
func New(opts Options) *Manager {
	m := &Manager{
		url:         opts.URL,
		dialer:      opts.Dialer,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		heartbeat:   opts.HeartbeatInterval,
		status:      opts.Status,
		bus:         opts.Bus,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		handlers:    make(map[Kind]Handler),
	}
	if m.dialer == nil {
		m.dialer = WebsocketDialer{}
	}
	if m.maxAttempts <= 0 {
		m.maxAttempts = DefaultMaxAttempts
	}
	if m.baseDelay <= 0 {
		m.baseDelay = DefaultBaseDelay
	}
	if m.status == nil {
		m.status = status.NewMachine(m.bus)
	}
	m.log = logging.OrNop(m.log).Named("realtime")
	return m
}

// Connect dials the server with token as connection metadata. It returns
// once the handshake completes. On failure the error is returned and the
// reconnect procedure continues in the background.
func (m *Manager) Connect(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}

	m.mu.Lock()
	m.teardownLocked("superseded")
	switch m.status.Current() {
	case status.Connecting, status.Connected, status.Reconnecting:
		m.setStatus(status.Disconnected)
	}
	m.gen++
	gen := m.gen
	sessCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.token = token
	m.attempts = 0
	m.setStatus(status.Connecting)
	m.mu.Unlock()

	conn, err := m.dial(ctx, sessCtx, token)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		if conn != nil {
			_ = conn.Close()
		}
		if err == nil {
			err = &ConnectionError{URL: redact(m.url), Err: context.Canceled}
		}
		return err
	}
	if err != nil {
		m.log.Warn("connect failed", zap.Error(err))
		m.setStatus(status.Reconnecting)
		m.startLocked(sessCtx, gen, nil)
		return err
	}
	m.attachLocked(conn)
	m.startLocked(sessCtx, gen, conn)
	return nil
}

// Disconnect ends the session: the reader, the heartbeat and any pending
// reconnect timer stop, and the transport is closed. Safe to call repeatedly.
func (m *Manager) Disconnect() {
	m.end(status.Disconnected, "client disconnect")
}

// RequireAuth ends the session because the server rejected the token.
func (m *Manager) RequireAuth() {
	m.end(status.AuthRequired, "token rejected")
}

func (m *Manager) end(to status.State, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked(reason)
	m.gen++
	m.token = ""
	m.attempts = 0
	m.setStatus(to)
}

// Close disconnects and waits for the session goroutines to exit.
func (m *Manager) Close(ctx context.Context) error {
	m.Disconnect()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe installs h for kind, replacing any previous handler.
func (m *Manager) Subscribe(kind Kind, h Handler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.handlers[kind] = h
}

// Unsubscribe removes the handler for kind. No-op when none is installed.
func (m *Manager) Unsubscribe(kind Kind) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	delete(m.handlers, kind)
}

// Send writes o once. It reports false without writing when no connection
// is live or the write fails. There is no retry and no acknowledgement.
func (m *Manager) Send(o Outbound) bool {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		m.metrics.ObserveDroppedSend()
		m.log.Debug("drop outbound frame, not connected", zap.String("type", o.frameType()))
		return false
	}

	data, err := EncodeOutbound(o)
	if err != nil {
		m.log.Warn("encode outbound frame", zap.String("type", o.frameType()), zap.Error(err))
		return false
	}

	m.writeMu.Lock()
	err = conn.WriteMessage(data)
	m.writeMu.Unlock()
	if err != nil {
		m.log.Warn("write outbound frame", zap.String("type", o.frameType()), zap.Error(err))
		return false
	}
	return true
}

func (m *Manager) JoinChannel(id models.ChannelID) bool  { return m.Send(JoinChannel{ChannelID: id}) }
func (m *Manager) LeaveChannel(id models.ChannelID) bool { return m.Send(LeaveChannel{ChannelID: id}) }
func (m *Manager) Ping() bool                            { return m.Send(Ping{}) }

// SendTyping tells the channel the user started or stopped typing.
func (m *Manager) SendTyping(id models.ChannelID, typing bool) bool {
	return m.Send(TypingUpdate{ChannelID: id, Typing: typing})
}

// Connected reports whether a transport is live.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Attempts returns the reconnect attempts made since the last success.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// ConnID identifies the live transport, empty when disconnected.
func (m *Manager) ConnID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connID
}

// Status returns the connection state.
func (m *Manager) Status() status.State {
	return m.status.Current()
}

// LastPong returns when the last pong arrived, zero if none has.
func (m *Manager) LastPong() time.Time {
	ns := m.lastPong.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (m *Manager) setStatus(to status.State) {
	if err := m.status.Transition(to); err != nil {
		m.log.Debug("status transition skipped", zap.Error(err))
	}
}

func (m *Manager) teardownLocked(reason string) {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.conn == nil {
		return
	}
	_ = m.conn.Close()
	m.bus.Emit(bus.KindDisconnected, DisconnectedInfo{ConnID: m.connID, Reason: reason})
	m.log.Info("connection closed", zap.String("conn_id", m.connID), zap.String("reason", reason))
	m.conn = nil
	m.connID = ""
	m.metrics.SetConnected(false)
}

func (m *Manager) attachLocked(conn Conn) {
	m.conn = conn
	m.connID = uuid.NewString()
	m.attempts = 0
	m.metrics.SetConnected(true)
	m.setStatus(status.Connected)
	m.bus.Emit(bus.KindConnected, ConnectedInfo{ConnID: m.connID, URL: redact(m.url)})
	m.log.Info("connected", zap.String("conn_id", m.connID), zap.String("url", redact(m.url)))
}

func (m *Manager) startLocked(sessCtx context.Context, gen uint64, conn Conn) {
	m.wg.Add(1)
	go m.run(sessCtx, gen, conn)
	if m.heartbeat > 0 {
		m.wg.Add(1)
		go m.heartbeatLoop(sessCtx)
	}
}

// dial cancels when either ctx or the session ends.
func (m *Manager) dial(ctx, sessCtx context.Context, token string) (Conn, error) {
	target, err := withToken(m.url, token)
	if err != nil {
		return nil, &ConnectionError{URL: redact(m.url), Err: err}
	}
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sessCtx, cancel)
	defer stop()

	conn, err := m.dialer.Dial(dctx, target)
	m.metrics.ObserveDial(err == nil)
	if err != nil {
		ce := &ConnectionError{URL: redact(m.url), Err: err}
		var sc statusCoder
		if errors.As(err, &sc) {
			ce.StatusCode = sc.HandshakeStatus()
		}
		return nil, ce
	}
	return conn, nil
}

// run is the single session goroutine: it reads until the transport drops,
// then redials with backoff until it succeeds, exhausts, or the session ends.
func (m *Manager) run(sessCtx context.Context, gen uint64, conn Conn) {
	defer m.wg.Done()
	for {
		if conn != nil {
			err := m.readLoop(conn)
			if sessCtx.Err() != nil || !m.dropped(gen, conn, err) {
				return
			}
		}
		if conn = m.redial(sessCtx, gen); conn == nil {
			return
		}
	}
}

func (m *Manager) readLoop(conn Conn) error {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		m.handleFrame(data)
	}
}

func (m *Manager) handleFrame(data []byte) {
	evt, err := DecodeEvent(data)
	if err != nil {
		m.log.Warn("skip inbound frame", zap.Error(err))
		return
	}
	m.metrics.ObserveEvent(string(evt.Kind()))
	if _, ok := evt.(Pong); ok {
		m.lastPong.Store(time.Now().UnixNano())
	}

	m.handlersMu.RLock()
	h := m.handlers[evt.Kind()]
	m.handlersMu.RUnlock()
	if h != nil {
		h(evt)
	}
}

// dropped records an unexpected transport loss. It reports false when the
// session was superseded meanwhile.
func (m *Manager) dropped(gen uint64, conn Conn, cause error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.conn != conn {
		return false
	}
	reason := "connection lost"
	if cause != nil {
		reason = cause.Error()
	}
	m.log.Warn("connection lost", zap.String("conn_id", m.connID), zap.Error(cause))
	_ = conn.Close()
	m.bus.Emit(bus.KindDisconnected, DisconnectedInfo{ConnID: m.connID, Reason: reason})
	m.conn = nil
	m.connID = ""
	m.metrics.SetConnected(false)
	m.setStatus(status.Reconnecting)
	return true
}

// redial waits base×attempt before each try; it gives up for good after
// maxAttempts consecutive failures.
func (m *Manager) redial(sessCtx context.Context, gen uint64) Conn {
	for {
		m.mu.Lock()
		if m.gen != gen {
			m.mu.Unlock()
			return nil
		}
		if m.attempts >= m.maxAttempts {
			attempts := m.attempts
			m.setStatus(status.Exhausted)
			if m.cancel != nil {
				m.cancel()
				m.cancel = nil
			}
			m.mu.Unlock()
			m.bus.Emit(bus.KindExhausted, ExhaustedInfo{Attempts: attempts})
			m.log.Error("reconnect attempts exhausted", zap.Int("attempts", attempts))
			return nil
		}
		m.attempts++
		attempt, token := m.attempts, m.token
		m.mu.Unlock()

		delay := m.baseDelay * time.Duration(attempt)
		m.metrics.ObserveReconnect()
		m.bus.Emit(bus.KindReconnecting, ReconnectAttempt{Attempt: attempt, Max: m.maxAttempts, Delay: delay})
		m.log.Info("reconnecting",
			zap.Int("attempt", attempt),
			zap.Int("max", m.maxAttempts),
			zap.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-sessCtx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		conn, err := m.dial(sessCtx, sessCtx, token)
		if err != nil {
			m.log.Warn("reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		m.mu.Lock()
		if m.gen != gen {
			m.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		m.attachLocked(conn)
		m.mu.Unlock()
		return conn
	}
}

func (m *Manager) heartbeatLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.Connected() {
				m.Ping()
			}
		}
	}
}
