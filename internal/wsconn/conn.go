// Package wsconn manages individual WebSocket connections, handling read/write
// pumps, rate limiting, and lifecycle control for each socket.
package wsconn

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimit defines the parameters for per-connection message rate limiting.
// Burst frames are allowed per RefillInterval.
type RateLimit struct {
	Burst          int
	RefillInterval time.Duration
}

// Options tune a connection.
type Options struct {
	MaxMessageSize int64
	RateLimit      RateLimit
	SendBuffer     int
	PongWait       time.Duration
	PingPeriod     time.Duration
	WriteWait      time.Duration
	// OnRateLimited is called for every inbound frame discarded by the limiter.
	OnRateLimited func()
}

func (o Options) withDefaults() Options {
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 4096
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	return o
}

// Handler receives the frames and the close event of a connection. Both
// callbacks run on the connection's read goroutine.
type Handler interface {
	HandleFrame(c *Conn, data []byte)
	HandleClose(c *Conn)
}

// Conn is a WebSocket connection with a buffered outbound queue. Send never
// blocks; Close is idempotent and makes the write pump emit a close frame.
type Conn struct {
	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	addr    string
	opts    Options
	limiter *rate.Limiter
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// New wraps ws. The connection does nothing until Serve is called.
func New(ws *websocket.Conn, addr string, opts Options, log *zap.Logger) *Conn {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	if ws != nil {
		ws.SetReadLimit(opts.MaxMessageSize)
	}
	return &Conn{
		ws:      ws,
		send:    make(chan []byte, opts.SendBuffer),
		done:    make(chan struct{}),
		addr:    addr,
		opts:    opts,
		limiter: newLimiter(opts.RateLimit),
		log:     log.With(zap.String("remote", addr)),
	}
}

func newLimiter(rl RateLimit) *rate.Limiter {
	if rl.Burst <= 0 {
		return nil
	}
	interval := rl.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}
	return rate.NewLimiter(rate.Limit(float64(rl.Burst)/interval.Seconds()), rl.Burst)
}

// Addr returns the remote address recorded at creation.
func (c *Conn) Addr() string {
	return c.addr
}

// IsOpen reports whether the connection still accepts outbound frames.
func (c *Conn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// Send queues payload for delivery. It returns false when the connection is
// closed. A connection whose queue is full is closed.
func (c *Conn) Send(payload []byte) bool {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return false
	}
	select {
	case c.send <- payload:
		c.mu.RUnlock()
		return true
	default:
	}
	c.mu.RUnlock()

	c.log.Warn("closing connection due to full send buffer")
	c.Close()
	return false
}

// Close marks the connection closed. The write pump then sends a close frame
// and shuts the socket, which ends the read pump.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// Done is closed once Close has been called.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Serve runs the read pump on the calling goroutine and the write pump on a
// new one. It returns after both have stopped and h.HandleClose has run.
func (c *Conn) Serve(h Handler) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump()
	}()

	c.readPump(h)
	c.Close()
	h.HandleClose(c)
	wg.Wait()
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Conn) setupReadConnection() {
	if err := c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait)); err != nil {
		c.log.Debug("error setting initial read deadline", zap.Error(err))
	}
	c.ws.SetPongHandler(func(string) error {
		if err := c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait)); err != nil {
			c.log.Debug("error setting read deadline in pong handler", zap.Error(err))
		}
		return nil
	})
}

func (c *Conn) readPump(h Handler) {
	c.setupReadConnection()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.allow() {
			continue
		}
		c.dispatch(h, data)
	}
}

// dispatch hands one frame to the handler. A panic is confined to the frame.
func (c *Conn) dispatch(h Handler, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("recovered from panic while handling frame", zap.Any("panic", r))
		}
	}()
	h.HandleFrame(c, data)
}

// allow reports whether the rate limiter admits another inbound frame.
func (c *Conn) allow() bool {
	if c.limiter == nil || c.limiter.Allow() {
		return true
	}
	c.log.Info("rate limit exceeded; discarding frame",
		zap.Int("burst", c.opts.RateLimit.Burst),
		zap.Duration("interval", c.opts.RateLimit.RefillInterval))
	if c.opts.OnRateLimited != nil {
		c.opts.OnRateLimited()
	}
	return false
}

// logReadError logs why the read loop ended at a level matching the cause.
func (c *Conn) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Info("frame exceeded maximum size", zap.Int64("max_bytes", c.opts.MaxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure):
		c.log.Debug("client disconnected", zap.Error(err))
	case errors.Is(err, io.EOF) || IsExpectedCloseError(err):
		c.log.Debug("connection closed", zap.Error(err))
	default:
		c.log.Warn("websocket read error", zap.Error(err))
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.closeSocket()
	}()

	for {
		select {
		case <-c.done:
			c.writeCloseMessage()
			return
		case message := <-c.send:
			if !c.writeTextMessage(message) {
				c.Close()
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				c.Close()
				return
			}
		}
	}
}

func (c *Conn) writeTextMessage(message []byte) bool {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		c.log.Debug("error setting write deadline", zap.Error(err))
		return false
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
		if !IsExpectedCloseError(err) {
			c.log.Warn("error writing message", zap.Error(err))
		}
		return false
	}
	return true
}

func (c *Conn) writeCloseMessage() {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.ws.WriteMessage(websocket.CloseMessage, msg); err != nil && !IsExpectedCloseError(err) {
		c.log.Debug("error writing close message", zap.Error(err))
	}
}

func (c *Conn) writePing() bool {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		c.log.Debug("error setting write deadline for ping", zap.Error(err))
		return false
	}
	if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !IsExpectedCloseError(err) {
			c.log.Warn("error writing ping", zap.Error(err))
		}
		return false
	}
	return true
}

func (c *Conn) closeSocket() {
	if err := c.ws.Close(); err != nil && !IsExpectedCloseError(err) {
		c.log.Debug("error closing connection", zap.Error(err))
	}
}

// IsExpectedCloseError checks if an error is expected during connection closure.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
