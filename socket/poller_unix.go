//go:build linux || darwin

package socket

import (
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// acceptWindow bounds a single Accept after poll(2) reported the listener
// readable.
const acceptWindow = 10 * time.Millisecond

type polledConn struct {
	id  ConnID
	fd  int
	raw syscall.RawConn
}

// pollPoller waits on raw descriptors with poll(2). It owns no goroutines:
// every read happens inside Wait on the caller's goroutine.
type pollPoller struct {
	listener   *net.TCPListener
	listenerFD int
	conns      map[ConnID]*polledConn
	order      []ConnID
	fds        []unix.PollFd
	closed     bool
}

func newPollPoller() (Poller, error) {
	return &pollPoller{
		listenerFD: -1,
		conns:      make(map[ConnID]*polledConn),
	}, nil
}

func rawDescriptor(c any) (syscall.RawConn, int, error) {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return nil, -1, errors.New("socket does not expose a file descriptor")
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, -1, err
	}
	fd := -1
	if err := raw.Control(func(descriptor uintptr) { fd = int(descriptor) }); err != nil {
		return nil, -1, err
	}
	return raw, fd, nil
}

func (p *pollPoller) Listen(l net.Listener) error {
	if p.closed {
		return ErrPollerClosed
	}
	tl, ok := l.(*net.TCPListener)
	if !ok {
		return errors.New("poll poller requires a TCP listener")
	}
	_, fd, err := rawDescriptor(tl)
	if err != nil {
		return err
	}
	p.listener = tl
	p.listenerFD = fd
	return nil
}

func (p *pollPoller) Add(id ConnID, c net.Conn) error {
	if p.closed {
		return ErrPollerClosed
	}
	raw, fd, err := rawDescriptor(c)
	if err != nil {
		return err
	}
	p.conns[id] = &polledConn{id: id, fd: fd, raw: raw}
	p.order = append(p.order, id)
	return nil
}

func (p *pollPoller) Remove(id ConnID) {
	if _, ok := p.conns[id]; !ok {
		return
	}
	delete(p.conns, id)
	for i, v := range p.order {
		if v == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

func (p *pollPoller) Wait(timeout time.Duration) ([]Event, error) {
	if p.closed {
		return nil, ErrPollerClosed
	}

	p.fds = p.fds[:0]
	if p.listener != nil {
		p.fds = append(p.fds, unix.PollFd{Fd: int32(p.listenerFD), Events: unix.POLLIN})
	}
	for _, id := range p.order {
		p.fds = append(p.fds, unix.PollFd{Fd: int32(p.conns[id].fd), Events: unix.POLLIN})
	}

	count, err := unix.Poll(p.fds, int(timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	var events []Event
	fds := p.fds
	if p.listener != nil {
		if fds[0].Revents != 0 {
			events = p.acceptReady(events)
		}
		fds = fds[1:]
	}
	for i, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		pc, ok := p.conns[p.order[i]]
		if !ok {
			continue
		}
		events = append(events, p.readReady(pc))
	}
	return events, nil
}

// acceptReady accepts every connection already queued on the listener.
func (p *pollPoller) acceptReady(events []Event) []Event {
	for {
		_ = p.listener.SetDeadline(time.Now().Add(acceptWindow))
		c, err := p.listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return events
			}
			return append(events, Event{Kind: EventAccept, Err: err})
		}
		events = append(events, Event{Kind: EventAccept, Conn: c})
	}
}

// readReady performs one non-blocking read on a readable connection.
func (p *pollPoller) readReady(pc *polledConn) Event {
	buf := make([]byte, readChunkSize)
	var (
		n       int
		readErr error
	)
	err := pc.raw.Read(func(fd uintptr) bool {
		n, readErr = unix.Read(int(fd), buf)
		return true
	})
	switch {
	case err != nil:
		return Event{Kind: EventClosed, ID: pc.id, Err: err}
	case readErr == unix.EAGAIN || readErr == unix.EINTR:
		return Event{Kind: EventData, ID: pc.id}
	case readErr != nil:
		return Event{Kind: EventClosed, ID: pc.id, Err: readErr}
	case n == 0:
		return Event{Kind: EventClosed, ID: pc.id, Err: io.EOF}
	default:
		return Event{Kind: EventData, ID: pc.id, Data: buf[:n]}
	}
}

func (p *pollPoller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.conns = nil
	p.order = nil
	return nil
}
