package rabbitmq

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ConnectionStateListener receives connection state change notifications.
// Callbacks run on their own goroutine.
type ConnectionStateListener interface {
	OnConnected()
	OnDisconnected(err error)
	OnReconnecting(attempt int)
}

// ConnectionManager owns the broker connection and re-dials it when the
// broker drops it
type ConnectionManager struct {
	url            string
	conn           *amqp.Connection
	mu             sync.RWMutex
	dialTimeout    time.Duration
	reconnectDelay time.Duration
	maxDelay       time.Duration
	maxRetries     int
	heartbeat      time.Duration
	logger         *slog.Logger
	connected      bool
	closed         bool
	done           chan struct{}
	listeners      []ConnectionStateListener
	listenersMu    sync.RWMutex
	dial           func(url string, cfg amqp.Config) (*amqp.Connection, error)
}

// ConnectionOption configures the ConnectionManager
type ConnectionOption func(*ConnectionManager)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ConnectionOption {
	return func(cm *ConnectionManager) {
		if logger != nil {
			cm.logger = logger
		}
	}
}

// WithReconnectDelay sets the base delay between reconnection attempts
func WithReconnectDelay(delay time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.reconnectDelay = delay
	}
}

// WithMaxReconnectDelay caps the backoff between attempts
func WithMaxReconnectDelay(delay time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.maxDelay = delay
	}
}

// WithMaxRetries limits reconnection attempts. Negative means forever.
func WithMaxRetries(retries int) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.maxRetries = retries
	}
}

// WithDialTimeout bounds a single dial
func WithDialTimeout(timeout time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.dialTimeout = timeout
	}
}

// WithHeartbeat sets the AMQP heartbeat interval
func WithHeartbeat(interval time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.heartbeat = interval
	}
}

// NewConnectionManager creates a connection manager. Nothing is dialed
// until Connect.
func NewConnectionManager(url string, options ...ConnectionOption) *ConnectionManager {
	cm := &ConnectionManager{
		url:            url,
		dialTimeout:    10 * time.Second,
		reconnectDelay: time.Second,
		maxDelay:       time.Minute,
		maxRetries:     -1,
		heartbeat:      10 * time.Second,
		logger:         slog.Default(),
		done:           make(chan struct{}),
		dial:           amqp.DialConfig,
	}

	for _, opt := range options {
		opt(cm)
	}

	return cm
}

// Connect dials the broker. It is a no-op when already connected.
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		return ErrConnectionClosed
	}
	if cm.connected {
		return nil
	}

	conn, err := cm.dialContext(ctx)
	if err != nil {
		return &ConnectionError{
			Op:        "connect",
			URL:       SanitizeURL(cm.url),
			Err:       err,
			Timestamp: time.Now(),
			Attempts:  1,
		}
	}

	cm.attach(conn)
	cm.logger.Info("connected to broker", "url", SanitizeURL(cm.url))
	cm.notifyConnected()
	return nil
}

// attach installs conn and starts watching it. Callers hold mu.
func (cm *ConnectionManager) attach(conn *amqp.Connection) {
	cm.conn = conn
	cm.connected = true
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go cm.watch(closed)
}

func (cm *ConnectionManager) dialContext(ctx context.Context) (*amqp.Connection, error) {
	ctx, cancel := context.WithTimeout(ctx, cm.dialTimeout)
	defer cancel()

	type result struct {
		conn *amqp.Connection
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := cm.dial(cm.url, amqp.Config{
			Heartbeat: cm.heartbeat,
			Dial:      amqp.DefaultDial(cm.dialTimeout),
			Properties: amqp.Table{
				"connection_name": "nativebridge",
			},
		})
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			// the dial may still succeed after we gave up on it
			if r := <-ch; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrConnectionTimeout
		}
		return nil, ctx.Err()
	}
}

// Channel opens a fresh channel on the current connection
func (cm *ConnectionManager) Channel() (*amqp.Channel, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.connected || cm.conn == nil {
		return nil, ErrConnectionNotReady
	}
	if cm.conn.IsClosed() {
		return nil, ErrConnectionClosed
	}

	ch, err := cm.conn.Channel()
	if err != nil {
		return nil, &ChannelError{Op: "open", Err: err}
	}
	return ch, nil
}

// IsConnected returns the connection status
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.connected
}

// Done is closed once the manager is closed
func (cm *ConnectionManager) Done() <-chan struct{} {
	return cm.done
}

// Close closes the connection and stops reconnecting
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		return nil
	}
	cm.closed = true
	cm.connected = false
	close(cm.done)

	if cm.conn != nil {
		err := cm.conn.Close()
		cm.conn = nil
		if err != nil && err != amqp.ErrClosed {
			return err
		}
	}
	return nil
}

func (cm *ConnectionManager) watch(closed <-chan *amqp.Error) {
	select {
	case amqpErr, ok := <-closed:
		if !ok || amqpErr == nil {
			// graceful close
			return
		}
		cm.logger.Error("broker connection lost", "error", amqpErr)

		cm.mu.Lock()
		if cm.closed {
			cm.mu.Unlock()
			return
		}
		cm.connected = false
		cm.conn = nil
		cm.mu.Unlock()

		cm.notifyDisconnected(amqpErr)
		cm.reconnect()

	case <-cm.done:
	}
}

func (cm *ConnectionManager) reconnect() {
	started := time.Now()

	for attempt := 1; ; attempt++ {
		if cm.maxRetries >= 0 && attempt > cm.maxRetries {
			err := &ConnectionError{
				Op:        "reconnect",
				URL:       SanitizeURL(cm.url),
				Err:       ErrMaxRetriesExceeded,
				Timestamp: time.Now(),
				Attempts:  attempt - 1,
			}
			cm.logger.Error("giving up on broker", "attempts", attempt-1, "duration", time.Since(started))
			cm.notifyDisconnected(err)
			return
		}

		delay := cm.backoff(attempt)
		cm.notifyReconnecting(attempt)
		cm.logger.Info("reconnecting to broker", "attempt", attempt, "in", delay)

		select {
		case <-time.After(delay):
		case <-cm.done:
			return
		}

		conn, err := cm.dialContext(context.Background())
		if err != nil {
			cm.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
			continue
		}

		cm.mu.Lock()
		if cm.closed {
			cm.mu.Unlock()
			_ = conn.Close()
			return
		}
		cm.attach(conn)
		cm.mu.Unlock()

		cm.logger.Info("reconnected to broker", "attempts", attempt, "duration", time.Since(started))
		cm.notifyConnected()
		return
	}
}

// backoff doubles the base delay per attempt up to the cap, with up to
// 25% jitter subtracted
func (cm *ConnectionManager) backoff(attempt int) time.Duration {
	delay := cm.reconnectDelay
	if delay <= 0 {
		delay = time.Second
	}
	for i := 1; i < attempt && delay < cm.maxDelay; i++ {
		delay *= 2
	}
	if cm.maxDelay > 0 && delay > cm.maxDelay {
		delay = cm.maxDelay
	}
	if jitter := int64(delay) / 4; jitter > 0 {
		delay -= time.Duration(rand.Int64N(jitter))
	}
	return delay
}

// AddStateListener adds a connection state listener
func (cm *ConnectionManager) AddStateListener(listener ConnectionStateListener) {
	cm.listenersMu.Lock()
	defer cm.listenersMu.Unlock()
	cm.listeners = append(cm.listeners, listener)
}

// RemoveStateListener removes a connection state listener
func (cm *ConnectionManager) RemoveStateListener(listener ConnectionStateListener) {
	cm.listenersMu.Lock()
	defer cm.listenersMu.Unlock()

	for i, l := range cm.listeners {
		if l == listener {
			cm.listeners = append(cm.listeners[:i], cm.listeners[i+1:]...)
			return
		}
	}
}

func (cm *ConnectionManager) snapshotListeners() []ConnectionStateListener {
	cm.listenersMu.RLock()
	defer cm.listenersMu.RUnlock()
	return append([]ConnectionStateListener(nil), cm.listeners...)
}

func (cm *ConnectionManager) notifyConnected() {
	for _, l := range cm.snapshotListeners() {
		go l.OnConnected()
	}
}

func (cm *ConnectionManager) notifyDisconnected(err error) {
	for _, l := range cm.snapshotListeners() {
		go l.OnDisconnected(err)
	}
}

func (cm *ConnectionManager) notifyReconnecting(attempt int) {
	for _, l := range cm.snapshotListeners() {
		go l.OnReconnecting(attempt)
	}
}
