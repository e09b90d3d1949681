package wire

// decoder reads consecutive fields and keeps the first error, so payload
// decoders can read a whole layout and check once.
type decoder struct {
	b   *Buffer
	err error
}

func (d *decoder) u16() uint16 {
	if d.err != nil {
		return 0
	}
	var v uint16
	v, d.err = d.b.ReadUint16()
	return v
}

func (d *decoder) u64() uint64 {
	if d.err != nil {
		return 0
	}
	var v uint64
	v, d.err = d.b.ReadUint64()
	return v
}

func (d *decoder) str() string {
	if d.err != nil {
		return ""
	}
	var s string
	s, d.err = d.b.ReadString()
	return s
}

func (d *decoder) list() []string {
	if d.err != nil {
		return nil
	}
	var l []string
	l, d.err = d.b.ReadStrings()
	return l
}

// CreateAccountReq asks the chat service to create an account.
type CreateAccountReq struct {
	Email    string
	Password string
}

func (*CreateAccountReq) Type() Type { return TypeCreateAccountReq }

func (m *CreateAccountReq) encodePayload(b *Buffer) error {
	b.WriteString(m.Email)
	b.WriteString(m.Password)
	return nil
}

func (m *CreateAccountReq) decodePayload(b *Buffer) error {
	d := decoder{b: b}
	m.Email = d.str()
	m.Password = d.str()
	return d.err
}

// CreateAccountSuccessAck reports the id assigned to a new account.
type CreateAccountSuccessAck struct {
	Email  string
	UserID uint64
}

func (*CreateAccountSuccessAck) Type() Type { return TypeCreateAccountSuccessAck }

func (m *CreateAccountSuccessAck) encodePayload(b *Buffer) error {
	b.WriteString(m.Email)
	b.WriteUint64(m.UserID)
	return nil
}

func (m *CreateAccountSuccessAck) decodePayload(b *Buffer) error {
	d := decoder{b: b}
	m.Email = d.str()
	m.UserID = d.u64()
	return d.err
}

// CreateAccountFailureAck reports why an account was not created.
type CreateAccountFailureAck struct {
	Reason CreateAccountReason
	Email  string
}

func (*CreateAccountFailureAck) Type() Type { return TypeCreateAccountFailureAck }

func (m *CreateAccountFailureAck) encodePayload(b *Buffer) error {
	b.WriteUint16(uint16(m.Reason))
	b.WriteString(m.Email)
	return nil
}

func (m *CreateAccountFailureAck) decodePayload(b *Buffer) error {
	d := decoder{b: b}
	m.Reason = CreateAccountReason(d.u16())
	m.Email = d.str()
	return d.err
}

// AuthenticateAccountReq asks the chat service to verify credentials.
type AuthenticateAccountReq struct {
	Email    string
	Password string
}

func (*AuthenticateAccountReq) Type() Type { return TypeAuthenticateAccountReq }

func (m *AuthenticateAccountReq) encodePayload(b *Buffer) error {
	b.WriteString(m.Email)
	b.WriteString(m.Password)
	return nil
}

func (m *AuthenticateAccountReq) decodePayload(b *Buffer) error {
	d := decoder{b: b}
	m.Email = d.str()
	m.Password = d.str()
	return d.err
}

// AuthenticateAccountSuccessAck carries the user id and the room catalog.
type AuthenticateAccountSuccessAck struct {
	Email  string
	UserID uint64
	Rooms  []string
}

func (*AuthenticateAccountSuccessAck) Type() Type { return TypeAuthenticateAccountSuccessAck }

func (m *AuthenticateAccountSuccessAck) encodePayload(b *Buffer) error {
	b.WriteString(m.Email)
	b.WriteUint64(m.UserID)
	b.WriteStrings(m.Rooms)
	return nil
}

func (m *AuthenticateAccountSuccessAck) decodePayload(b *Buffer) error {
	d := decoder{b: b}
	m.Email = d.str()
	m.UserID = d.u64()
	m.Rooms = d.list()
	return d.err
}

// AuthenticateAccountFailureAck reports a rejected authentication.
type AuthenticateAccountFailureAck struct {
	Reason AuthenticateReason
	Email  string
}

func (*AuthenticateAccountFailureAck) Type() Type { return TypeAuthenticateAccountFailureAck }

func (m *AuthenticateAccountFailureAck) encodePayload(b *Buffer) error {
	b.WriteUint16(uint16(m.Reason))
	b.WriteString(m.Email)
	return nil
}

func (m *AuthenticateAccountFailureAck) decodePayload(b *Buffer) error {
	d := decoder{b: b}
	m.Reason = AuthenticateReason(d.u16())
	m.Email = d.str()
	return d.err
}

// JoinRoomReq asks to add User to Room.
type JoinRoomReq struct {
	User string
	Room string
}

func (*JoinRoomReq) Type() Type { return TypeJoinRoomReq }

func (m *JoinRoomReq) encodePayload(b *Buffer) error {
	b.WriteString(m.User)
	b.WriteString(m.Room)
	return nil
}

func (m *JoinRoomReq) decodePayload(b *Buffer) error {
	d := decoder{b: b}
	m.User = d.str()
	m.Room = d.str()
	return d.err
}

// JoinRoomAck answers a join with the members present after it.
type JoinRoomAck struct {
	Status Status
	Room   string
	Users  []string
}

func (*JoinRoomAck) Type() Type { return TypeJoinRoomAck }

func (m *JoinRoomAck) encodePayload(b *Buffer) error {
	b.WriteUint16(uint16(m.Status))
	b.WriteString(m.Room)
	b.WriteStrings(m.Users)
	return nil
}

func (m *JoinRoomAck) decodePayload(b *Buffer) error {
	d := decoder{b: b}
	m.Status = Status(d.u16())
	m.Room = d.str()
	m.Users = d.list()
	return d.err
}

// JoinRoomNtf tells existing members that User joined Room.
type JoinRoomNtf struct {
	Room string
	User string
}

func (*JoinRoomNtf) Type() Type { return TypeJoinRoomNtf }

func (m *JoinRoomNtf) encodePayload(b *Buffer) error {
	b.WriteString(m.Room)
	b.WriteString(m.User)
	return nil
}

func (m *JoinRoomNtf) decodePayload(b *Buffer) error {
	d := decoder{b: b}
	m.Room = d.str()
	m.User = d.str()
	return d.err
}

// LeaveRoomReq asks to remove User from Room.
type LeaveRoomReq struct {
	Room string
	User string
}

func (*LeaveRoomReq) Type() Type { return TypeLeaveRoomReq }

func (m *LeaveRoomReq) encodePayload(b *Buffer) error {
	b.WriteString(m.Room)
	b.WriteString(m.User)
	return nil
}

func (m *LeaveRoomReq) decodePayload(b *Buffer) error {
	d := decoder{b: b}
	m.Room = d.str()
	m.User = d.str()
	return d.err
}

// LeaveRoomAck answers a leave request.
type LeaveRoomAck struct {
	Status Status
	Room   string
	User   string
}

func (*LeaveRoomAck) Type() Type { return TypeLeaveRoomAck }

func (m *LeaveRoomAck) encodePayload(b *Buffer) error {
	b.WriteUint16(uint16(m.Status))
	b.WriteString(m.Room)
	b.WriteString(m.User)
	return nil
}

func (m *LeaveRoomAck) decodePayload(b *Buffer) error {
	d := decoder{b: b}
	m.Status = Status(d.u16())
	m.Room = d.str()
	m.User = d.str()
	return d.err
}

// LeaveRoomNtf tells remaining members that User left Room.
type LeaveRoomNtf struct {
	Room string
	User string
}

func (*LeaveRoomNtf) Type() Type { return TypeLeaveRoomNtf }

func (m *LeaveRoomNtf) encodePayload(b *Buffer) error {
	b.WriteString(m.Room)
	b.WriteString(m.User)
	return nil
}

func (m *LeaveRoomNtf) decodePayload(b *Buffer) error {
	d := decoder{b: b}
	m.Room = d.str()
	m.User = d.str()
	return d.err
}

// ChatInRoomReq posts Chat to Room on behalf of User.
type ChatInRoomReq struct {
	Room string
	User string
	Chat string
}

func (*ChatInRoomReq) Type() Type { return TypeChatInRoomReq }

func (m *ChatInRoomReq) encodePayload(b *Buffer) error {
	b.WriteString(m.Room)
	b.WriteString(m.User)
	b.WriteString(m.Chat)
	return nil
}

func (m *ChatInRoomReq) decodePayload(b *Buffer) error {
	d := decoder{b: b}
	m.Room = d.str()
	m.User = d.str()
	m.Chat = d.str()
	return d.err
}

// ChatInRoomAck answers a chat request.
type ChatInRoomAck struct {
	Status Status
	Room   string
	User   string
}

func (*ChatInRoomAck) Type() Type { return TypeChatInRoomAck }

func (m *ChatInRoomAck) encodePayload(b *Buffer) error {
	b.WriteUint16(uint16(m.Status))
	b.WriteString(m.Room)
	b.WriteString(m.User)
	return nil
}

func (m *ChatInRoomAck) decodePayload(b *Buffer) error {
	d := decoder{b: b}
	m.Status = Status(d.u16())
	m.Room = d.str()
	m.User = d.str()
	return d.err
}

// ChatInRoomNtf delivers a chat line to every member of Room.
type ChatInRoomNtf struct {
	Room string
	User string
	Chat string
}

func (*ChatInRoomNtf) Type() Type { return TypeChatInRoomNtf }

func (m *ChatInRoomNtf) encodePayload(b *Buffer) error {
	b.WriteString(m.Room)
	b.WriteString(m.User)
	b.WriteString(m.Chat)
	return nil
}

func (m *ChatInRoomNtf) decodePayload(b *Buffer) error {
	d := decoder{b: b}
	m.Room = d.str()
	m.User = d.str()
	m.Chat = d.str()
	return d.err
}
