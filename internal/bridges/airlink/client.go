package airlink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts and intervals for modem communication.
const (
	// defaultConnectTimeout is the maximum time to open the modem socket.
	defaultConnectTimeout = 10 * time.Second

	// defaultReadTimeout bounds a single read so shutdown is noticed.
	defaultReadTimeout = 30 * time.Second

	// defaultWriteTimeout is the timeout for write operations.
	defaultWriteTimeout = 5 * time.Second

	// defaultReconnectInterval is the initial delay between reconnection attempts.
	defaultReconnectInterval = 5 * time.Second

	// maxReconnectInterval is the maximum delay between reconnection attempts.
	maxReconnectInterval = 2 * time.Minute

	// reconnectBackoffFactor multiplies the delay after each failed attempt.
	reconnectBackoffFactor = 1.5

	// callbackQueueSize is the buffer size for the inbound SMS queue.
	callbackQueueSize = 100
)

// ClientConfig holds modem connection configuration.
type ClientConfig struct {
	// Transport is "udp" (default) or "tcp".
	Transport string

	// Host and Port address the modem's SMS service.
	Host string
	Port int

	// BindAddr and ListenPort are the local UDP endpoint for inbound SMS.
	// Unused for tcp.
	BindAddr   string
	ListenPort int

	// ConnectTimeout is the maximum time to open the socket.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// ReadTimeout is the read deadline per receive-loop iteration.
	// Default: 30 seconds.
	ReadTimeout time.Duration

	// WriteTimeout caps a single send.
	// Default: 5 seconds.
	WriteTimeout time.Duration

	// ReconnectInterval is the initial delay between reconnection attempts.
	// Default: 5 seconds.
	ReconnectInterval time.Duration
}

// ClientStats holds operational statistics.
type ClientStats struct {
	MessagesReceived uint64
	MessagesSent     uint64
	MessagesDropped  uint64 // Dropped: queue full or no callback installed
	DecodeErrors     uint64
	ErrorsTotal      uint64
	ReconnectsTotal  uint64 // Successful reconnections
	LastActivity     time.Time
	Connected        bool
	Reconnecting     bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Connector is the modem side of the bridge.
// This allows mocking the modem client in tests.
type Connector interface {
	Send(ctx context.Context, m Message) error
	SetOnMessage(callback func(Message))
	IsConnected() bool
	Stats() ClientStats
	Address() string
	Close() error
}

// Ensure Client implements Connector.
var _ Connector = (*Client)(nil)

// Client owns the socket to the AirLink modem.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Inbound SMS are delivered to the callback by a single worker, in order.
//
// Auto-Reconnection:
//   - A fatal read error closes the socket and re-opens it (TCP redial or UDP rebind).
//   - Backoff starts at ReconnectInterval and grows by 1.5x up to 2 minutes.
//   - Reconnection stops only when Close() is called.
type Client struct {
	cfg ClientConfig

	// Connection state
	conn      transport
	connMu    sync.RWMutex
	connected bool
	writeMu   sync.Mutex

	// Reconnection state
	reconnecting   atomic.Bool
	reconnectCount atomic.Int32

	// Inbound SMS callback
	onMessage  func(Message)
	callbackMu sync.RWMutex

	callbackQueue chan Message

	// Shutdown coordination
	done *closeOnce
	wg   sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	// Statistics
	messagesRx      atomic.Uint64
	messagesTx      atomic.Uint64
	messagesDropped atomic.Uint64
	decodeErrors    atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64 // Unix nanoseconds
}

// Connect opens the modem socket and starts the receive loop.
//
// For udp this binds BindAddr:ListenPort; for tcp it dials Host:Port.
//
// Parameters:
//   - ctx: Context for cancellation (used for the initial open)
//   - cfg: Connection configuration
//   - logger: Optional logger (may be nil)
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrConnectionFailed if the socket cannot be opened
func Connect(ctx context.Context, cfg ClientConfig, logger Logger) (*Client, error) {
	cfg = applyClientDefaults(cfg)

	if ctx == nil {
		ctx = context.Background()
	}
	openCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	conn, err := openTransport(openCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		cfg:           cfg,
		conn:          conn,
		connected:     true,
		done:          newCloseOnce(),
		callbackQueue: make(chan Message, callbackQueueSize),
		logger:        logger,
	}
	c.touch()

	// A single worker keeps inbound SMS in arrival order.
	c.wg.Add(2)
	go c.callbackWorker()
	go c.receiveLoop()

	c.logInfo("connected to modem", "transport", cfg.Transport, "address", c.Address())
	return c, nil
}

func applyClientDefaults(cfg ClientConfig) ClientConfig {
	if cfg.Transport == "" {
		cfg.Transport = TransportUDP
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	return cfg
}

// receiveLoop reads frames until Close. On connection loss it reconnects
// with exponential backoff.
func (c *Client) receiveLoop() {
	defer c.wg.Done()

	for {
		if c.isClosed() {
			return
		}

		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()

		if conn == nil {
			if !c.reconnect() {
				return
			}
			continue
		}

		frame, err := conn.readFrame(time.Now().Add(c.cfg.ReadTimeout))
		if err != nil {
			if c.handleReadError(err) {
				if c.isClosed() {
					return
				}
				if !c.reconnect() {
					return
				}
			}
			continue
		}

		c.handleFrame(frame)
	}
}

// handleReadError processes a read error and returns true if the socket
// must be re-opened.
func (c *Client) handleReadError(err error) bool {
	if c.isClosed() {
		return true
	}

	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return false
	case errors.Is(err, errForeignSource):
		c.logDebug("ignoring datagram", "error", err)
		return false
	case errors.Is(err, ErrFrameTooLarge):
		c.errorsTotal.Add(1)
		c.logError("dropping oversized datagram", err)
		return false
	case errors.Is(err, ErrProtocolDesync):
		c.errorsTotal.Add(1)
		c.logError("protocol desync detected, closing socket", err)
		c.handleDisconnect()
		return true
	}

	c.errorsTotal.Add(1)
	c.logError("read failed", err)
	c.handleDisconnect()
	return true
}

// handleFrame decodes a frame and queues it for the callback worker.
func (c *Client) handleFrame(frame []byte) {
	if len(frame) == 0 {
		return
	}

	msg, err := DecodeFrame(frame)
	if err != nil {
		c.decodeErrors.Add(1)
		c.errorsTotal.Add(1)
		c.logError("decode frame failed", err)
		return
	}
	msg.ReceivedAt = time.Now()

	c.messagesRx.Add(1)
	c.touch()

	c.callbackMu.RLock()
	hasCallback := c.onMessage != nil
	c.callbackMu.RUnlock()
	if !hasCallback {
		// Nothing to hand it to yet (bridge not started) or any more.
		c.messagesDropped.Add(1)
		c.logWarn("no message handler installed, dropping SMS", "phone_number", msg.PhoneNumber)
		return
	}

	select {
	case c.callbackQueue <- msg:
	default:
		c.messagesDropped.Add(1)
		c.errorsTotal.Add(1)
		c.logError("callback queue full, dropping SMS",
			fmt.Errorf("queue size %d", callbackQueueSize))
	}
}

// callbackWorker delivers queued SMS to the callback.
func (c *Client) callbackWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			c.drainCallbackQueue()
			return
		case msg := <-c.callbackQueue:
			c.callbackMu.RLock()
			callback := c.onMessage
			c.callbackMu.RUnlock()

			if callback == nil {
				c.messagesDropped.Add(1)
				c.logWarn("message handler removed, dropping SMS", "phone_number", msg.PhoneNumber)
				continue
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						c.logError("message callback panic", fmt.Errorf("%v", r))
					}
				}()
				callback(msg)
			}()
		}
	}
}

// handleDisconnect closes the socket and marks the client disconnected.
func (c *Client) handleDisconnect() {
	c.connMu.Lock()
	wasConnected := c.connected
	c.connected = false
	if c.conn != nil {
		c.conn.close()
		c.conn = nil
	}
	c.connMu.Unlock()

	if wasConnected {
		c.logInfo("connection lost, will attempt reconnection")
	}
}

// reconnect re-opens the socket with exponential backoff.
// Returns true on success, false if Close was called.
func (c *Client) reconnect() bool {
	c.reconnecting.Store(true)
	defer c.reconnecting.Store(false)

	backoff := c.cfg.ReconnectInterval

	for {
		if c.isClosed() {
			return false
		}

		attempt := c.reconnectCount.Add(1)
		c.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		conn, err := openTransport(ctx, c.cfg)
		cancel()
		if err != nil {
			c.logError("reconnect failed", err)
			c.errorsTotal.Add(1)

			select {
			case <-c.done.Done():
				return false
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
			continue
		}

		c.connMu.Lock()
		if c.isClosed() {
			c.connMu.Unlock()
			conn.close()
			return false
		}
		c.conn = conn
		c.connected = true
		c.connMu.Unlock()

		c.reconnectCount.Store(0)
		c.reconnectsTotal.Add(1)
		c.touch()
		c.logInfo("reconnection successful", "total_reconnects", c.reconnectsTotal.Load())
		return true
	}
}

// nextBackoff grows d by the backoff factor, capped at maxReconnectInterval.
func nextBackoff(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * reconnectBackoffFactor)
	if next > maxReconnectInterval {
		next = maxReconnectInterval
	}
	return next
}

// drainCallbackQueue discards queued SMS during shutdown.
func (c *Client) drainCallbackQueue() {
	for {
		select {
		case <-c.callbackQueue:
		default:
			return
		}
	}
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

func (c *Client) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// Close stops the receive loop and closes the socket.
// Safe to call multiple times.
func (c *Client) Close() error {
	c.done.Close()

	c.connMu.Lock()
	c.connected = false
	if c.conn != nil {
		c.conn.close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.logInfo("connection closed")
	return nil
}

// Send delivers one SMS to the modem.
//
// Returns:
//   - ErrInvalidPhoneNumber, ErrEmptyMessage: the message cannot be encoded
//   - ErrNotConnected: the socket is down (reconnecting or closed)
//   - ErrSendFailed: the write failed or ctx was cancelled
func (c *Client) Send(ctx context.Context, m Message) error {
	frame, err := EncodeFrame(m)
	if err != nil {
		return err
	}

	c.connMu.RLock()
	conn := c.conn
	connected := c.connected
	c.connMu.RUnlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrSendFailed, ctx.Err())
	default:
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	err = conn.writeFrame(frame, deadline)
	c.writeMu.Unlock()
	if err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: write: %w", ErrSendFailed, err)
	}

	c.messagesTx.Add(1)
	c.touch()
	return nil
}

// SetOnMessage sets the callback for inbound SMS. nil stops delivery.
//
// Panics in the callback are recovered and logged.
func (c *Client) SetOnMessage(callback func(Message)) {
	c.callbackMu.Lock()
	c.onMessage = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// IsConnected returns true while the modem socket is open.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Address returns the modem address as transport://host:port.
func (c *Client) Address() string {
	return c.cfg.Transport + "://" + net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

// Stats returns current operational statistics.
func (c *Client) Stats() ClientStats {
	return ClientStats{
		MessagesReceived: c.messagesRx.Load(),
		MessagesSent:     c.messagesTx.Load(),
		MessagesDropped:  c.messagesDropped.Load(),
		DecodeErrors:     c.decodeErrors.Load(),
		ErrorsTotal:      c.errorsTotal.Load(),
		ReconnectsTotal:  c.reconnectsTotal.Load(),
		LastActivity:     time.Unix(0, c.lastActivity.Load()),
		Connected:        c.IsConnected(),
		Reconnecting:     c.reconnecting.Load(),
	}
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (c *Client) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
