// Package room tracks which users occupy which chat rooms and fans room
// events out to the members.
//
// The catalog of rooms is fixed when the Manager is created. Requests for
// any other room fail without creating it.
package room

import (
	"log/slog"
	"sort"

	"github.com/Zereker/chatroom/socket"
	"github.com/Zereker/chatroom/wire"
)

// DefaultRooms is the catalog used when none is configured.
var DefaultRooms = []string{"graphics", "network", "media", "configuration"}

// Notifier delivers a server-initiated message to a user by name.
// Users without a live connection are silently skipped.
type Notifier interface {
	Notify(user string, m wire.Message)
}

// Requester is the connection a room request arrived on. The ack is sent
// to it before any member is notified.
type Requester interface {
	ID() socket.ConnID
	Send(m wire.Message) error
}

// NotifierFunc adapts a function to a Notifier.
type NotifierFunc func(user string, m wire.Message)

func (f NotifierFunc) Notify(user string, m wire.Message) { f(user, m) }

// Manager owns the room catalog and the member sets. It is not safe for
// concurrent use; the chat service calls it from its event loop.
type Manager struct {
	names    []string
	rooms    map[string]map[string]socket.ConnID // room -> user -> owning connection
	notifier Notifier
	logger   socket.Logger
}

// NewManager returns a manager for the given catalog. An empty catalog
// selects DefaultRooms. A nil logger selects slog.Default.
func NewManager(catalog []string, notifier Notifier, logger socket.Logger) *Manager {
	if len(catalog) == 0 {
		catalog = DefaultRooms
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		rooms:    make(map[string]map[string]socket.ConnID, len(catalog)),
		notifier: notifier,
		logger:   logger,
	}
	for _, name := range catalog {
		if _, dup := m.rooms[name]; dup {
			continue
		}
		m.names = append(m.names, name)
		m.rooms[name] = make(map[string]socket.ConnID)
	}
	return m
}

// Rooms returns the catalog in configuration order.
func (m *Manager) Rooms() []string {
	return append([]string(nil), m.names...)
}

// Members returns the sorted members of a room, or nil and false for a
// room outside the catalog.
func (m *Manager) Members(room string) ([]string, bool) {
	members, ok := m.rooms[room]
	if !ok {
		return nil, false
	}
	return sortedMembers(members), true
}

// Join adds user to room on behalf of the requesting connection and acks
// with the post-join member list. Joining twice is harmless. Every other
// member is then notified with a JoinRoomNtf.
func (m *Manager) Join(user, room string, from Requester) *wire.JoinRoomAck {
	members, ok := m.rooms[room]
	if !ok {
		m.logger.Debug("join unknown room", "user", user, "room", room)
		ack := &wire.JoinRoomAck{Status: wire.StatusFailure, Room: room, Users: []string{}}
		m.ack(from, ack)
		return ack
	}

	members[user] = from.ID()
	m.logger.Info("user joined room", "user", user, "room", room)

	ack := &wire.JoinRoomAck{Status: wire.StatusSuccess, Room: room, Users: sortedMembers(members)}
	m.ack(from, ack)
	for name := range members {
		if name == user {
			continue
		}
		m.notifier.Notify(name, &wire.JoinRoomNtf{Room: room, User: user})
	}
	return ack
}

// Leave removes user from room and acks. The remaining members are then
// notified with a LeaveRoomNtf.
func (m *Manager) Leave(user, room string, from Requester) *wire.LeaveRoomAck {
	members, ok := m.rooms[room]
	if !ok {
		m.logger.Debug("leave unknown room", "user", user, "room", room)
		ack := &wire.LeaveRoomAck{Status: wire.StatusFailure, Room: room, User: user}
		m.ack(from, ack)
		return ack
	}

	delete(members, user)
	m.logger.Info("user left room", "user", user, "room", room)

	ack := &wire.LeaveRoomAck{Status: wire.StatusSuccess, Room: room, User: user}
	m.ack(from, ack)
	m.broadcast(members, &wire.LeaveRoomNtf{Room: room, User: user})
	return ack
}

// Chat acks and then relays text to every member, the sender included.
func (m *Manager) Chat(user, room, text string, from Requester) *wire.ChatInRoomAck {
	members, ok := m.rooms[room]
	if !ok {
		m.logger.Debug("chat in unknown room", "user", user, "room", room)
		ack := &wire.ChatInRoomAck{Status: wire.StatusFailure, Room: room, User: user}
		m.ack(from, ack)
		return ack
	}

	m.logger.Info("chat", "user", user, "room", room, "text", text)
	ack := &wire.ChatInRoomAck{Status: wire.StatusSuccess, Room: room, User: user}
	m.ack(from, ack)
	m.broadcast(members, &wire.ChatInRoomNtf{Room: room, User: user, Chat: text})
	return ack
}

// LeaveAll removes every membership that was joined through owner and
// notifies the remaining members of each affected room. It is the cleanup
// for a closed connection.
func (m *Manager) LeaveAll(owner socket.ConnID) {
	for _, room := range m.names {
		members := m.rooms[room]
		var gone []string
		for user, o := range members {
			if o == owner {
				gone = append(gone, user)
			}
		}
		sort.Strings(gone)
		for _, user := range gone {
			delete(members, user)
			m.logger.Info("user dropped from room", "user", user, "room", room, "conn", owner)
			m.broadcast(members, &wire.LeaveRoomNtf{Room: room, User: user})
		}
	}
}

func (m *Manager) ack(from Requester, msg wire.Message) {
	if err := from.Send(msg); err != nil {
		m.logger.Debug("ack failed", "conn", from.ID(), "type", msg.Type(), "error", err)
	}
}

func (m *Manager) broadcast(members map[string]socket.ConnID, msg wire.Message) {
	for name := range members {
		m.notifier.Notify(name, msg)
	}
}

func sortedMembers(members map[string]socket.ConnID) []string {
	users := make([]string, 0, len(members))
	for name := range members {
		users = append(users, name)
	}
	sort.Strings(users)
	return users
}
