package chatserver

import "github.com/Zereker/chatroom/socket"

// Directory maps client names to the connection that claimed them, and
// back. A name belongs to at most one connection and a connection holds
// at most one name; binding again moves the name.
type Directory struct {
	byName map[string]socket.ConnID
	byConn map[socket.ConnID]string
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		byName: make(map[string]socket.ConnID),
		byConn: make(map[socket.ConnID]string),
	}
}

// Bind records name against id, dropping any earlier binding of either.
func (d *Directory) Bind(name string, id socket.ConnID) {
	if old, ok := d.byConn[id]; ok {
		delete(d.byName, old)
	}
	if prev, ok := d.byName[name]; ok {
		delete(d.byConn, prev)
	}
	d.byName[name] = id
	d.byConn[id] = name
}

// Unbind forgets the name held by id and returns it.
func (d *Directory) Unbind(id socket.ConnID) (string, bool) {
	name, ok := d.byConn[id]
	if !ok {
		return "", false
	}
	delete(d.byConn, id)
	delete(d.byName, name)
	return name, true
}

// Lookup returns the connection bound to name.
func (d *Directory) Lookup(name string) (socket.ConnID, bool) {
	id, ok := d.byName[name]
	return id, ok
}

// Name returns the name bound to id.
func (d *Directory) Name(id socket.ConnID) (string, bool) {
	name, ok := d.byConn[id]
	return name, ok
}

// Len returns the number of bindings.
func (d *Directory) Len() int {
	return len(d.byName)
}
