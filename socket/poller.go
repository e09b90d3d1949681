package socket

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// Errors returned by pollers.
var (
	// ErrPollerClosed is returned by Wait after Close.
	ErrPollerClosed = errors.New("poller closed")
	// ErrUnknownPoller is returned by NewPoller for an unsupported kind.
	ErrUnknownPoller = errors.New("unknown poller kind")
	// ErrPollUnsupported is returned when the poll(2) poller is requested
	// on a platform that lacks it.
	ErrPollUnsupported = errors.New("poll poller not supported on this platform")
)

// Poller kinds accepted by NewPoller.
const (
	PollerGoroutine = "goroutine"
	PollerPoll      = "poll"
)

// readChunkSize is the size of a single read posted as an EventData.
const readChunkSize = 4096

// EventKind tells what happened to a socket.
type EventKind int

const (
	// EventAccept carries a newly accepted connection, or an accept error.
	EventAccept EventKind = iota
	// EventData carries bytes received on a registered connection.
	EventData
	// EventClosed reports that a registered connection can no longer be
	// read. Err is io.EOF when the peer closed in an orderly way.
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventAccept:
		return "accept"
	case EventData:
		return "data"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is one readiness result.
type Event struct {
	Kind EventKind
	ID   ConnID   // registered connection, unset for EventAccept
	Conn net.Conn // accepted connection, EventAccept only
	Data []byte   // received bytes, owned by the receiver
	Err  error
}

// Poller waits for readiness on a listener and a set of connections and
// reports what it observed. All methods are called from a single
// goroutine, the one running the event loop.
//
// A Poller may still report events for a connection shortly after its
// removal. Callers ignore events for identifiers they no longer know.
type Poller interface {
	// Listen starts watching l for incoming connections.
	Listen(l net.Listener) error
	// Add starts watching c for incoming bytes.
	Add(id ConnID, c net.Conn) error
	// Remove stops watching the connection. The caller closes it.
	Remove(id ConnID)
	// Wait blocks until at least one event is ready or timeout elapses.
	// A timeout yields no events and no error.
	Wait(timeout time.Duration) ([]Event, error)
	// Close releases the poller. Registered sockets are not closed.
	Close() error
}

// NewPoller returns the poller named by kind. The empty kind selects the
// goroutine poller.
func NewPoller(kind string) (Poller, error) {
	switch kind {
	case "", PollerGoroutine:
		return NewGoroutinePoller(), nil
	case PollerPoll:
		return newPollPoller()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPoller, kind)
	}
}

// goroutinePoller runs one reading goroutine per connection and one
// accepting goroutine per listener. The goroutines only move bytes onto a
// shared channel; every decision about them is taken by the Wait caller.
type goroutinePoller struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewGoroutinePoller returns a portable Poller backed by goroutines and a
// channel.
func NewGoroutinePoller() Poller {
	return &goroutinePoller{
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}
}

func (p *goroutinePoller) Listen(l net.Listener) error {
	if p.closed() {
		return ErrPollerClosed
	}
	go p.accept(l)
	return nil
}

func (p *goroutinePoller) Add(id ConnID, c net.Conn) error {
	if p.closed() {
		return ErrPollerClosed
	}
	go p.read(id, c)
	return nil
}

// Remove is a no-op: the reader exits once the caller closes the socket.
func (p *goroutinePoller) Remove(ConnID) {}

func (p *goroutinePoller) Wait(timeout time.Duration) ([]Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var events []Event
	select {
	case ev := <-p.events:
		events = append(events, ev)
	case <-timer.C:
		return nil, nil
	case <-p.done:
		return nil, ErrPollerClosed
	}

	// Drain what is already queued without blocking again.
	for len(events) < cap(p.events) {
		select {
		case ev := <-p.events:
			events = append(events, ev)
		default:
			return events, nil
		}
	}
	return events, nil
}

func (p *goroutinePoller) Close() error {
	p.once.Do(func() {
		close(p.done)
	})
	return nil
}

func (p *goroutinePoller) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *goroutinePoller) post(ev Event) bool {
	select {
	case p.events <- ev:
		return true
	case <-p.done:
		return false
	}
}

func (p *goroutinePoller) accept(l net.Listener) {
	for {
		c, err := l.Accept()
		if err != nil {
			if !p.post(Event{Kind: EventAccept, Err: err}) || errors.Is(err, net.ErrClosed) {
				return
			}
			// Back off briefly so a persistent failure cannot spin.
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if !p.post(Event{Kind: EventAccept, Conn: c}) {
			_ = c.Close()
			return
		}
	}
}

func (p *goroutinePoller) read(id ConnID, c net.Conn) {
	for {
		buf := make([]byte, readChunkSize)
		n, err := c.Read(buf)
		if n > 0 {
			if !p.post(Event{Kind: EventData, ID: id, Data: buf[:n]}) {
				return
			}
		}
		if err != nil {
			p.post(Event{Kind: EventClosed, ID: id, Err: err})
			return
		}
	}
}
