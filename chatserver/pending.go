package chatserver

import (
	"sort"
	"time"

	"github.com/Zereker/chatroom/wire"
)

type requestKind int

const (
	kindCreate requestKind = iota
	kindAuthenticate
)

func (k requestKind) String() string {
	if k == kindCreate {
		return "create account"
	}
	return "authenticate"
}

// pendingRequest is an account request forwarded upstream and not yet
// answered.
type pendingRequest struct {
	id       wire.RequestID
	kind     requestKind
	email    string
	deadline time.Time
}

// failure is the ack sent to the client when the request cannot complete.
func (p pendingRequest) failure() wire.Message {
	return failureAck(p.kind, p.email)
}

func failureAck(kind requestKind, email string) wire.Message {
	if kind == kindCreate {
		return &wire.CreateAccountFailureAck{Reason: wire.CreateAccountInternalServerError, Email: email}
	}
	return &wire.AuthenticateAccountFailureAck{Reason: wire.AuthenticateInternalServerError, Email: email}
}

// pendingTable correlates upstream replies with the waiting client. The
// request id is the id of the client connection, so a connection has at
// most one entry.
type pendingTable struct {
	entries map[wire.RequestID]pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[wire.RequestID]pendingRequest)}
}

func (t *pendingTable) has(id wire.RequestID) bool {
	_, ok := t.entries[id]
	return ok
}

func (t *pendingTable) add(p pendingRequest) {
	t.entries[p.id] = p
}

// take removes and returns the entry for id.
func (t *pendingTable) take(id wire.RequestID) (pendingRequest, bool) {
	p, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return p, ok
}

// expire removes every entry whose deadline is not after now.
func (t *pendingTable) expire(now time.Time) []pendingRequest {
	var out []pendingRequest
	for id, p := range t.entries {
		if !p.deadline.After(now) {
			out = append(out, p)
			delete(t.entries, id)
		}
	}
	sortPending(out)
	return out
}

// drain removes and returns every entry.
func (t *pendingTable) drain() []pendingRequest {
	out := make([]pendingRequest, 0, len(t.entries))
	for _, p := range t.entries {
		out = append(out, p)
	}
	clear(t.entries)
	sortPending(out)
	return out
}

func (t *pendingTable) len() int {
	return len(t.entries)
}

func sortPending(list []pendingRequest) {
	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
}
