package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// HeaderSize is the size of the fixed packet header: the u32 total packet
// size followed by the u32 message type.
const HeaderSize = 8

// Errors returned by packet decoding.
var (
	// ErrUnknownType is returned for a message type outside both dialects.
	ErrUnknownType = errors.New("unknown message type")
	// ErrBadSize is returned when the declared packet size cannot be valid.
	ErrBadSize = errors.New("invalid packet size")
)

// Type identifies the payload schema of a packet.
//
// Naming follows Req (client request), Ack (server reply to a request) and
// Ntf (server initiated notification). The Web kinds only travel on the
// link between the chat service and the authentication service.
type Type uint32

// Client dialect.
const (
	TypeCreateAccountReq              Type = 1001
	TypeCreateAccountSuccessAck       Type = 1002
	TypeCreateAccountFailureAck       Type = 1003
	TypeAuthenticateAccountReq        Type = 1004
	TypeAuthenticateAccountSuccessAck Type = 1005
	TypeAuthenticateAccountFailureAck Type = 1006
	TypeJoinRoomReq                   Type = 1007
	TypeJoinRoomAck                   Type = 1008
	TypeJoinRoomNtf                   Type = 1009
	TypeLeaveRoomReq                  Type = 1010
	TypeLeaveRoomAck                  Type = 1011
	TypeLeaveRoomNtf                  Type = 1012
	TypeChatInRoomReq                 Type = 1013
	TypeChatInRoomAck                 Type = 1014
	TypeChatInRoomNtf                 Type = 1015
)

// Upstream dialect.
const (
	TypeCreateAccountWebReq        Type = 2001
	TypeCreateAccountWebSuccessAck Type = 2002
	TypeCreateAccountWebFailureAck Type = 2003
	TypeAuthenticateWebReq         Type = 2004
	TypeAuthenticateWebSuccessAck  Type = 2005
	TypeAuthenticateWebFailureAck  Type = 2006
)

var typeNames = map[Type]string{
	TypeCreateAccountReq:              "CreateAccountReq",
	TypeCreateAccountSuccessAck:       "CreateAccountSuccessAck",
	TypeCreateAccountFailureAck:       "CreateAccountFailureAck",
	TypeAuthenticateAccountReq:        "AuthenticateAccountReq",
	TypeAuthenticateAccountSuccessAck: "AuthenticateAccountSuccessAck",
	TypeAuthenticateAccountFailureAck: "AuthenticateAccountFailureAck",
	TypeJoinRoomReq:                   "JoinRoomReq",
	TypeJoinRoomAck:                   "JoinRoomAck",
	TypeJoinRoomNtf:                   "JoinRoomNtf",
	TypeLeaveRoomReq:                  "LeaveRoomReq",
	TypeLeaveRoomAck:                  "LeaveRoomAck",
	TypeLeaveRoomNtf:                  "LeaveRoomNtf",
	TypeChatInRoomReq:                 "ChatInRoomReq",
	TypeChatInRoomAck:                 "ChatInRoomAck",
	TypeChatInRoomNtf:                 "ChatInRoomNtf",
	TypeCreateAccountWebReq:           "CreateAccountWebReq",
	TypeCreateAccountWebSuccessAck:    "CreateAccountWebSuccessAck",
	TypeCreateAccountWebFailureAck:    "CreateAccountWebFailureAck",
	TypeAuthenticateWebReq:            "AuthenticateWebReq",
	TypeAuthenticateWebSuccessAck:     "AuthenticateWebSuccessAck",
	TypeAuthenticateWebFailureAck:     "AuthenticateWebFailureAck",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", uint32(t))
}

// Upstream reports whether t belongs to the service-to-service dialect.
func (t Type) Upstream() bool {
	return t >= TypeCreateAccountWebReq && t <= TypeAuthenticateWebFailureAck
}

// Status is carried by room acknowledgements.
type Status uint16

const (
	StatusSuccess Status = 200
	StatusFailure Status = 400
	StatusError   Status = 500
)

// CreateAccountReason is the outcome code of an account creation.
type CreateAccountReason uint16

const (
	CreateAccountSuccess             CreateAccountReason = 0
	CreateAccountAlreadyExists       CreateAccountReason = 1
	CreateAccountInvalidPassword     CreateAccountReason = 2
	CreateAccountInternalServerError CreateAccountReason = 3
)

func (r CreateAccountReason) String() string {
	switch r {
	case CreateAccountSuccess:
		return "Success."
	case CreateAccountAlreadyExists:
		return "Account already exists."
	case CreateAccountInvalidPassword:
		return "Invalid password."
	case CreateAccountInternalServerError:
		return "Internal server error."
	}
	return fmt.Sprintf("CreateAccountReason(%d)", uint16(r))
}

// AuthenticateReason is the outcome code of an authentication.
type AuthenticateReason uint16

const (
	AuthenticateSuccess             AuthenticateReason = 0
	AuthenticateInvalidCredentials  AuthenticateReason = 1
	AuthenticateInternalServerError AuthenticateReason = 2
)

func (r AuthenticateReason) String() string {
	switch r {
	case AuthenticateSuccess:
		return "Success."
	case AuthenticateInvalidCredentials:
		return "Invalid credentials."
	case AuthenticateInternalServerError:
		return "Internal server error."
	}
	return fmt.Sprintf("AuthenticateReason(%d)", uint16(r))
}

// Header is the fixed prefix of every packet.
type Header struct {
	Size uint32
	Type Type
}

// DecodeHeader reads the header from the first HeaderSize bytes of p.
func DecodeHeader(p []byte) (Header, error) {
	if len(p) < HeaderSize {
		return Header{}, errors.Wrapf(ErrShortBuffer, "header needs %d bytes, have %d", HeaderSize, len(p))
	}
	return Header{
		Size: binary.LittleEndian.Uint32(p[0:4]),
		Type: Type(binary.LittleEndian.Uint32(p[4:8])),
	}, nil
}

// Message is one of the protocol's message kinds. The set is closed: only
// the types in this package implement it.
type Message interface {
	// Type returns the message type code written in the header.
	Type() Type

	encodePayload(b *Buffer) error
	decodePayload(b *Buffer) error
}

// Encode resets b and writes m as a complete packet, header included. It
// returns the packet size. The buffer is meant to be reused per
// connection, one for each direction.
func Encode(b *Buffer, m Message) (int, error) {
	b.Reset()
	b.WriteUint32(0)
	b.WriteUint32(uint32(m.Type()))
	if err := m.encodePayload(b); err != nil {
		return 0, errors.Wrapf(err, "encode %s", m.Type())
	}
	size := b.Len()
	if err := b.PutUint32At(0, uint32(size)); err != nil {
		return 0, err
	}
	return size, nil
}

// Marshal encodes m into a newly allocated packet.
func Marshal(m Message) ([]byte, error) {
	b := NewBuffer(growSize)
	if _, err := Encode(b, m); err != nil {
		return nil, err
	}
	out := make([]byte, b.Len())
	copy(out, b.Bytes())
	return out, nil
}

// Decode parses one complete packet. p must hold at least the declared
// packet size; bytes beyond it are ignored.
func Decode(p []byte) (Message, error) {
	h, err := DecodeHeader(p)
	if err != nil {
		return nil, err
	}
	if h.Size < HeaderSize {
		return nil, errors.Wrapf(ErrBadSize, "declared size %d", h.Size)
	}
	if int(h.Size) > len(p) {
		return nil, errors.Wrapf(ErrShortBuffer, "declared size %d, received %d", h.Size, len(p))
	}
	m, err := newMessage(h.Type)
	if err != nil {
		return nil, err
	}
	b := newReader(p[HeaderSize:h.Size])
	if err := m.decodePayload(b); err != nil {
		return nil, errors.Wrapf(err, "decode %s", h.Type)
	}
	return m, nil
}

func newMessage(t Type) (Message, error) {
	switch t {
	case TypeCreateAccountReq:
		return &CreateAccountReq{}, nil
	case TypeCreateAccountSuccessAck:
		return &CreateAccountSuccessAck{}, nil
	case TypeCreateAccountFailureAck:
		return &CreateAccountFailureAck{}, nil
	case TypeAuthenticateAccountReq:
		return &AuthenticateAccountReq{}, nil
	case TypeAuthenticateAccountSuccessAck:
		return &AuthenticateAccountSuccessAck{}, nil
	case TypeAuthenticateAccountFailureAck:
		return &AuthenticateAccountFailureAck{}, nil
	case TypeJoinRoomReq:
		return &JoinRoomReq{}, nil
	case TypeJoinRoomAck:
		return &JoinRoomAck{}, nil
	case TypeJoinRoomNtf:
		return &JoinRoomNtf{}, nil
	case TypeLeaveRoomReq:
		return &LeaveRoomReq{}, nil
	case TypeLeaveRoomAck:
		return &LeaveRoomAck{}, nil
	case TypeLeaveRoomNtf:
		return &LeaveRoomNtf{}, nil
	case TypeChatInRoomReq:
		return &ChatInRoomReq{}, nil
	case TypeChatInRoomAck:
		return &ChatInRoomAck{}, nil
	case TypeChatInRoomNtf:
		return &ChatInRoomNtf{}, nil
	case TypeCreateAccountWebReq:
		return &CreateAccountWebReq{}, nil
	case TypeCreateAccountWebSuccessAck:
		return &CreateAccountWebSuccessAck{}, nil
	case TypeCreateAccountWebFailureAck:
		return &CreateAccountWebFailureAck{}, nil
	case TypeAuthenticateWebReq:
		return &AuthenticateWebReq{}, nil
	case TypeAuthenticateWebSuccessAck:
		return &AuthenticateWebSuccessAck{}, nil
	case TypeAuthenticateWebFailureAck:
		return &AuthenticateWebFailureAck{}, nil
	}
	return nil, errors.Wrapf(ErrUnknownType, "type %d", uint32(t))
}
