package wire

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// The upstream dialect shares the packet header with the client dialect
// but carries its payload as one CBOR map with integer keys. Deterministic
// encoding makes identical messages produce identical packets.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("wire: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("wire: CBOR decoder initialization failed: " + err.Error())
	}
}

// RequestID correlates an upstream request with its reply. The chat
// service sets it to the id of the client connection that asked.
type RequestID uint64

func encodeCBOR(b *Buffer, v any) error {
	data, err := encMode.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "cbor marshal")
	}
	b.WriteRaw(data)
	return nil
}

func decodeCBOR(b *Buffer, v any) error {
	if err := decMode.Unmarshal(b.ReadRemaining(), v); err != nil {
		return errors.Wrap(err, "cbor unmarshal")
	}
	return nil
}

// CreateAccountWebReq forwards an account creation to the authentication
// service.
type CreateAccountWebReq struct {
	RequestID         RequestID `cbor:"1,keyasint"`
	Email             string    `cbor:"2,keyasint"`
	PlaintextPassword string    `cbor:"3,keyasint"`
}

func (*CreateAccountWebReq) Type() Type { return TypeCreateAccountWebReq }
func (m *CreateAccountWebReq) encodePayload(b *Buffer) error { return encodeCBOR(b, m) }
func (m *CreateAccountWebReq) decodePayload(b *Buffer) error { return decodeCBOR(b, m) }

// CreateAccountWebSuccessAck carries the new user id.
type CreateAccountWebSuccessAck struct {
	RequestID RequestID `cbor:"1,keyasint"`
	UserID    uint64    `cbor:"2,keyasint"`
}

func (*CreateAccountWebSuccessAck) Type() Type { return TypeCreateAccountWebSuccessAck }
func (m *CreateAccountWebSuccessAck) encodePayload(b *Buffer) error { return encodeCBOR(b, m) }
func (m *CreateAccountWebSuccessAck) decodePayload(b *Buffer) error { return decodeCBOR(b, m) }

// CreateAccountWebFailureAck carries the failure reason.
type CreateAccountWebFailureAck struct {
	RequestID RequestID           `cbor:"1,keyasint"`
	Reason    CreateAccountReason `cbor:"2,keyasint"`
}

func (*CreateAccountWebFailureAck) Type() Type { return TypeCreateAccountWebFailureAck }
func (m *CreateAccountWebFailureAck) encodePayload(b *Buffer) error { return encodeCBOR(b, m) }
func (m *CreateAccountWebFailureAck) decodePayload(b *Buffer) error { return decodeCBOR(b, m) }

// AuthenticateWebReq forwards an authentication to the authentication
// service.
type AuthenticateWebReq struct {
	RequestID         RequestID `cbor:"1,keyasint"`
	Email             string    `cbor:"2,keyasint"`
	PlaintextPassword string    `cbor:"3,keyasint"`
}

func (*AuthenticateWebReq) Type() Type { return TypeAuthenticateWebReq }
func (m *AuthenticateWebReq) encodePayload(b *Buffer) error { return encodeCBOR(b, m) }
func (m *AuthenticateWebReq) decodePayload(b *Buffer) error { return decodeCBOR(b, m) }

// AuthenticateWebSuccessAck carries the authenticated user id.
type AuthenticateWebSuccessAck struct {
	RequestID RequestID `cbor:"1,keyasint"`
	UserID    uint64    `cbor:"2,keyasint"`
}

func (*AuthenticateWebSuccessAck) Type() Type { return TypeAuthenticateWebSuccessAck }
func (m *AuthenticateWebSuccessAck) encodePayload(b *Buffer) error { return encodeCBOR(b, m) }
func (m *AuthenticateWebSuccessAck) decodePayload(b *Buffer) error { return decodeCBOR(b, m) }

// AuthenticateWebFailureAck carries the failure reason.
type AuthenticateWebFailureAck struct {
	RequestID RequestID          `cbor:"1,keyasint"`
	Reason    AuthenticateReason `cbor:"2,keyasint"`
}

func (*AuthenticateWebFailureAck) Type() Type { return TypeAuthenticateWebFailureAck }
func (m *AuthenticateWebFailureAck) encodePayload(b *Buffer) error { return encodeCBOR(b, m) }
func (m *AuthenticateWebFailureAck) decodePayload(b *Buffer) error { return decodeCBOR(b, m) }
