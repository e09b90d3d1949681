package socket

import (
	"time"

	"github.com/Zereker/chatroom/wire"
)

// ErrorAction defines the action to take when an error occurs.
type ErrorAction int

const (
	// Disconnect closes the connection when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and continues processing.
	Continue
)

// Default configuration values.
const (
	// defaultPollInterval bounds how long the event loop sleeps when no
	// socket is ready.
	defaultPollInterval = 500 * time.Millisecond
	// defaultWriteTimeout bounds a single packet write.
	defaultWriteTimeout = 5 * time.Second
	// defaultBufferSize is the initial size of a connection's send buffer,
	// and of a stream's send queue.
	defaultBufferSize = 512
	// defaultStreamQueue is the depth of a stream's send queue.
	defaultStreamQueue = 16
)

// options holds the configuration shared by Server and Stream.
type options struct {
	logger Logger
	poller Poller

	// onMessage receives every decoded message of a Stream.
	onMessage func(message wire.Message) error
	// onError is called when a Stream read or write fails.
	// Returns Disconnect to close the stream, Continue to suppress the error.
	onError func(error) ErrorAction

	pollInterval  time.Duration // event loop wake-up budget
	writeTimeout  time.Duration // deadline for a single write
	idleTimeout   time.Duration // stream read deadline, zero disables
	maxPacketSize int           // largest accepted packet
	bufferSize    int           // initial send buffer size
	queueSize     int           // stream send queue depth
}

// Option is a function that configures a Server or a Stream.
type Option func(*options)

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// PollerOption returns an Option that selects the readiness poller of a
// Server. If not set, a goroutine-backed poller is used.
func PollerOption(p Poller) Option {
	return func(o *options) {
		o.poller = p
	}
}

// PollIntervalOption returns an Option that sets how long the event loop
// waits for readiness before running its periodic tick.
func PollIntervalOption(d time.Duration) Option {
	return func(o *options) {
		o.pollInterval = d
	}
}

// WriteTimeoutOption returns an Option that bounds every packet write.
func WriteTimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = d
	}
}

// IdleTimeoutOption returns an Option that drops a Stream when nothing
// has been read for the given duration. Zero disables the deadline.
func IdleTimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = d
	}
}

// MessageMaxSize returns an Option that sets the maximum packet size.
// Packets declaring a larger size terminate the connection.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxPacketSize = size
	}
}

// BufferSizeOption returns an Option that sets the initial size of the
// per-connection send buffer. The buffer grows on demand.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// QueueSizeOption returns an Option that sets the depth of a Stream's
// send queue. A larger queue allows more messages before Write reports
// ErrBufferFull.
func QueueSizeOption(size int) Option {
	return func(o *options) {
		o.queueSize = size
	}
}

// OnMessageOption returns an Option that sets the Stream message handler.
// It is required for streams and is invoked for each decoded message.
func OnMessageOption(cb func(wire.Message) error) Option {
	return func(o *options) {
		o.onMessage = cb
	}
}

// OnErrorOption returns an Option that sets the Stream error callback.
// Return Disconnect to close the stream, or Continue to suppress the error.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

func applyOptions(opt []Option) options {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	return opts
}

// checkOptions fills in default values shared by servers and streams.
func checkOptions(opts *options) {
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
	if opts.pollInterval <= 0 {
		opts.pollInterval = defaultPollInterval
	}
	if opts.writeTimeout <= 0 {
		opts.writeTimeout = defaultWriteTimeout
	}
	if opts.maxPacketSize <= 0 {
		opts.maxPacketSize = wire.DefaultMaxPacketSize
	}
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}
	if opts.queueSize <= 0 {
		opts.queueSize = defaultStreamQueue
	}
}

// checkStreamOptions validates stream options after applying defaults.
func checkStreamOptions(opts *options) error {
	checkOptions(opts)
	if opts.onMessage == nil {
		return ErrInvalidOnMessage
	}
	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}
	return nil
}
