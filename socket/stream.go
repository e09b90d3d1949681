package socket

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Zereker/chatroom/wire"
)

// ErrBufferFull is returned when the send queue is full and cannot accept more messages.
// This error indicates backpressure - the receiver is not consuming messages fast enough.
// Recommended handling strategies:
//   - Drop the message (for non-critical data like notifications)
//   - Use WriteBlocking or WriteTimeout to wait for queue space
//   - Implement application-level flow control
var ErrBufferFull = errors.New("send buffer full")

// Stream is a client connection with a dedicated reader goroutine and a
// dedicated writer goroutine. The reader decodes framed packets and hands
// them to the OnMessage callback; the writer drains a queue of messages
// and encodes each into a buffer only it touches.
type Stream struct {
	rawConn net.Conn
	reader  *bufio.Reader
	logger  Logger

	opts options

	sendMsg chan wire.Message
	closed  atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewStream wraps an established connection.
// Returns ErrInvalidOnMessage if OnMessageOption is missing.
func NewStream(conn net.Conn, opt ...Option) (*Stream, error) {
	opts := applyOptions(opt)
	if err := checkStreamOptions(&opts); err != nil {
		return nil, err
	}

	return &Stream{
		rawConn: conn,
		reader:  bufio.NewReaderSize(conn, readChunkSize),
		logger:  opts.logger,
		opts:    opts,
		sendMsg: make(chan wire.Message, opts.queueSize),
	}, nil
}

// Dial connects to addr and wraps the connection in a Stream.
func Dial(ctx context.Context, addr string, opt ...Option) (*Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	s, err := NewStream(conn, opt...)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// Run starts the stream's read and write loops.
// It blocks until an error occurs or the context is canceled.
// The connection is automatically closed when Run returns.
func (c *Stream) Run(ctx context.Context) error {
	c.logger.Info("connection established", "addr", c.Addr())
	c.logger.Debug("connection options", "addr", c.Addr(),
		"queue_size", c.opts.queueSize,
		"max_packet_size", c.opts.maxPacketSize,
		"idle_timeout", c.opts.idleTimeout)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancel = cancel
	closed := c.closed.Load()
	c.mu.Unlock()
	if closed {
		cancel()
	}
	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	// A blocked read only returns once the socket is closed.
	group.Go(func() error {
		<-child.Done()
		c.closeConn()
		return nil
	})

	err := group.Wait()
	c.closeConn()

	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Info("connection closed with error", "addr", c.Addr(), "error", err)
	} else {
		c.logger.Info("connection closed", "addr", c.Addr())
	}

	return err
}

// Close gracefully closes the stream.
// It cancels the context and closes the underlying connection.
// Safe to call multiple times.
func (c *Stream) Close() error {
	if c.closed.Swap(true) {
		return nil // already closed
	}
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return c.rawConn.Close()
}

// IsClosed returns true if the stream has been closed.
func (c *Stream) IsClosed() bool {
	return c.closed.Load()
}

// Write queues a message without blocking (fire-and-forget).
//
// Returns:
//   - nil: message was successfully queued (not yet sent)
//   - ErrBufferFull: send queue is full, message was NOT queued
//   - ErrConnectionClosed: stream is closed
//
// The message must not be modified after it is queued.
func (c *Stream) Write(message wire.Message) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.sendMsg <- message:
		return nil
	default:
		return ErrBufferFull
	}
}

// WriteBlocking queues a message, blocking until there is room or the
// context is canceled.
func (c *Stream) WriteBlocking(ctx context.Context, message wire.Message) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.sendMsg <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteTimeout queues a message, waiting at most timeout for room.
// Returns ErrBufferFull when the timeout expires.
func (c *Stream) WriteTimeout(message wire.Message, timeout time.Duration) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.sendMsg <- message:
		return nil
	case <-timer.C:
		return ErrBufferFull
	}
}

// Addr returns the remote address of the stream.
func (c *Stream) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// readLoop reads one packet at a time and passes decoded messages to the
// handler. Unknown message types are logged and skipped. Transport and
// framing errors go through onError; end of stream always stops the loop.
func (c *Stream) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if c.opts.idleTimeout > 0 {
			_ = c.rawConn.SetReadDeadline(time.Now().Add(c.opts.idleTimeout))
		}

		packet, err := wire.ReadPacket(c.reader, c.opts.maxPacketSize)
		if err != nil {
			c.logger.Debug("read error", "addr", c.Addr(), "error", err)
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || c.opts.onError(err) == Disconnect {
				return err
			}
			continue
		}

		message, err := wire.Decode(packet)
		if err != nil {
			if errors.Is(err, wire.ErrUnknownType) {
				c.logger.Warn("ignoring packet", "addr", c.Addr(), "error", err)
				continue
			}
			if c.opts.onError(err) == Disconnect {
				return err
			}
			continue
		}

		if err = c.opts.onMessage(message); err != nil {
			return err
		}
	}
}

// writeLoop drains the send queue. The encode buffer is local to this
// goroutine.
func (c *Stream) writeLoop(ctx context.Context) error {
	buf := wire.NewBuffer(c.opts.bufferSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message := <-c.sendMsg:
			if err := c.write(buf, message); err != nil {
				return err
			}
		}
	}
}

// write encodes and sends one message with a deadline.
// If an error occurs and onError returns Disconnect, the error is propagated.
// Otherwise, the error is suppressed and writing continues.
func (c *Stream) write(buf *wire.Buffer, message wire.Message) error {
	if _, err := wire.Encode(buf, message); err != nil {
		c.logger.Warn("encode error", "addr", c.Addr(), "type", message.Type(), "error", err)
		return nil
	}

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))

	_, err := c.rawConn.Write(buf.Bytes())

	if err != nil {
		c.logger.Debug("write error", "addr", c.Addr(), "error", err)
		if c.opts.onError(err) == Disconnect {
			return err
		}
	}

	return nil
}

// closeConn marks the stream as closed and closes the underlying connection.
func (c *Stream) closeConn() {
	c.closed.Store(true)
	_ = c.rawConn.Close()
}
