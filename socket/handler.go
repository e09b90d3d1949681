package socket

import (
	"time"

	"github.com/Zereker/chatroom/wire"
)

// Handler reacts to the events of a Server. All methods are invoked from
// the server's loop goroutine, one at a time, so implementations may keep
// unsynchronized state.
type Handler interface {
	// OnOpen is called for each accepted connection.
	OnOpen(c *Conn)
	// OnMessage is called for every complete, decodable packet.
	OnMessage(c *Conn, m wire.Message)
	// OnClose is called once per connection after it has been removed
	// from the server. err is io.EOF for an orderly peer close.
	OnClose(c *Conn, err error)
	// OnTick is called after every wake of the loop, including timeouts.
	OnTick(now time.Time)
}

// HandlerFuncs adapts optional functions to a Handler. Nil fields are
// ignored.
type HandlerFuncs struct {
	Open    func(c *Conn)
	Message func(c *Conn, m wire.Message)
	Close   func(c *Conn, err error)
	Tick    func(now time.Time)
}

func (h HandlerFuncs) OnOpen(c *Conn) {
	if h.Open != nil {
		h.Open(c)
	}
}

func (h HandlerFuncs) OnMessage(c *Conn, m wire.Message) {
	if h.Message != nil {
		h.Message(c, m)
	}
}

func (h HandlerFuncs) OnClose(c *Conn, err error) {
	if h.Close != nil {
		h.Close(c, err)
	}
}

func (h HandlerFuncs) OnTick(now time.Time) {
	if h.Tick != nil {
		h.Tick(now)
	}
}
