package protocol

import (
	"fmt"
	"strconv"
)

// Type is the message type tag in field 0.
type Type string

// Message types.
const (
	TypeRegister   Type = "REGISTER"
	TypeDeregister Type = "DEREGISTER"
	TypeLogin      Type = "LOGIN"
	TypeLogoff     Type = "LOGOFF"
	TypeData       Type = "DATA"
	TypeQuery      Type = "QUERY"
	TypeStatus     Type = "STATUS"
	TypeAck        Type = "ACK"
)

// fieldCounts is the number of fields each type needs, tag included.
var fieldCounts = map[Type]int{
	TypeRegister:   4,
	TypeDeregister: 4,
	TypeLogin:      5,
	TypeLogoff:     2,
	TypeData:       6,
	TypeQuery:      5,
	TypeStatus:     6,
	TypeAck:        5,
}

// Message is a typed wire message.
type Message interface {
	// Type returns the tag.
	Type() Type
	// Fields returns the wire fields, tag first.
	Fields() []string
}

// Register asks the server to create a device record.
type Register struct {
	Name       string
	Passphrase string
	MAC        string
}

// Deregister asks the server to delete a device record.
type Deregister struct {
	Name       string
	Passphrase string
	MAC        string
}

// Login starts a session and records the endpoint peers can reach the device at.
type Login struct {
	Name       string
	Passphrase string
	IP         string
	Port       int
}

// Logoff ends a session.
type Logoff struct {
	Name string
}

// Data carries a payload between a device and the server or a peer.
type Data struct {
	Code      string
	Name      string
	Timestamp int64
	Length    int
	Payload   string
}

// Query asks Target for data on behalf of Requester.
type Query struct {
	Code      string
	Requester string
	Timestamp int64
	Target    string
}

// Status is a device-to-device liveness message.
type Status struct {
	Code      string
	Name      string
	Timestamp int64
	Length    int
	Message   string
}

// Ack answers a request with a code and the digest of the request bytes.
type Ack struct {
	Code      Code
	Name      string
	Timestamp int64
	Digest    string
}

func (Register) Type() Type   { return TypeRegister }
func (Deregister) Type() Type { return TypeDeregister }
func (Login) Type() Type      { return TypeLogin }
func (Logoff) Type() Type     { return TypeLogoff }
func (Data) Type() Type       { return TypeData }
func (Query) Type() Type      { return TypeQuery }
func (Status) Type() Type     { return TypeStatus }
func (Ack) Type() Type        { return TypeAck }

func (m Register) Fields() []string {
	return []string{string(TypeRegister), m.Name, m.Passphrase, m.MAC}
}

func (m Deregister) Fields() []string {
	return []string{string(TypeDeregister), m.Name, m.Passphrase, m.MAC}
}

func (m Login) Fields() []string {
	return []string{string(TypeLogin), m.Name, m.Passphrase, m.IP, strconv.Itoa(m.Port)}
}

func (m Logoff) Fields() []string {
	return []string{string(TypeLogoff), m.Name}
}

func (m Data) Fields() []string {
	return []string{string(TypeData), m.Code, m.Name, formatInt64(m.Timestamp), strconv.Itoa(m.Length), m.Payload}
}

func (m Query) Fields() []string {
	return []string{string(TypeQuery), m.Code, m.Requester, formatInt64(m.Timestamp), m.Target}
}

func (m Status) Fields() []string {
	return []string{string(TypeStatus), m.Code, m.Name, formatInt64(m.Timestamp), strconv.Itoa(m.Length), m.Message}
}

func (m Ack) Fields() []string {
	return []string{string(TypeAck), string(m.Code), m.Name, formatInt64(m.Timestamp), m.Digest}
}

// Marshal encodes m for the wire.
func Marshal(m Message) []byte {
	return Encode(m.Fields()...)
}

// Parse decodes one wire message. It returns ErrMalformedMessage for an
// unknown tag, too few fields or a non-numeric port, timestamp or length.
// Fields beyond those the type defines are ignored. A trailing line ending
// is tolerated.
func Parse(b []byte) (Message, error) {
	b = trimLineEnding(b)
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformedMessage)
	}

	f := Decode(b)
	t := Type(f[0])
	want, ok := fieldCounts[t]
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, f[0])
	}
	if len(f) < want {
		return nil, fmt.Errorf("%w: %s needs %d fields, got %d", ErrMalformedMessage, t, want, len(f))
	}

	var p fieldParser
	var m Message
	switch t {
	case TypeRegister:
		m = Register{Name: f[1], Passphrase: f[2], MAC: f[3]}
	case TypeDeregister:
		m = Deregister{Name: f[1], Passphrase: f[2], MAC: f[3]}
	case TypeLogin:
		m = Login{Name: f[1], Passphrase: f[2], IP: f[3], Port: p.parsePort(f[4])}
	case TypeLogoff:
		m = Logoff{Name: f[1]}
	case TypeData:
		m = Data{Code: f[1], Name: f[2], Timestamp: p.parseInt64(f[3]), Length: p.parseInt(f[4]), Payload: f[5]}
	case TypeQuery:
		m = Query{Code: f[1], Requester: f[2], Timestamp: p.parseInt64(f[3]), Target: f[4]}
	case TypeStatus:
		m = Status{Code: f[1], Name: f[2], Timestamp: p.parseInt64(f[3]), Length: p.parseInt(f[4]), Message: f[5]}
	case TypeAck:
		m = Ack{Code: Code(f[1]), Name: f[2], Timestamp: p.parseInt64(f[3]), Digest: f[4]}
	}
	if p.err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, t, p.err)
	}
	return m, nil
}

// fieldParser converts numeric fields and keeps the first failure.
type fieldParser struct {
	err error
}

func (p *fieldParser) parseInt64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("bad number %q", s)
	}
	return v
}

func (p *fieldParser) parseInt(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("bad number %q", s)
	}
	return v
}

func (p *fieldParser) parsePort(s string) int {
	v := p.parseInt(s)
	if p.err == nil && (v < 0 || v > 65535) {
		p.err = fmt.Errorf("port %d out of range", v)
	}
	return v
}

func formatInt64(v int64) string {
	return strconv.FormatInt(v, 10)
}
