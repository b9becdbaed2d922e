package server

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/devicelink/internal/audit"
	"github.com/nerrad567/devicelink/internal/device"
	"github.com/nerrad567/devicelink/internal/metrics"
	"github.com/nerrad567/devicelink/internal/protocol"
)

// outcomeCodes maps registry outcomes to the ACK code sent to the device.
// A wrong passphrase is reported exactly like an unknown device.
var outcomeCodes = map[device.Outcome]protocol.Code{
	device.OutcomeRegistered:          protocol.CodeRegistered,
	device.OutcomeAlreadyRegistered:   protocol.CodeAlreadyRegistered,
	device.OutcomeRegisteredElsewhere: protocol.CodeRegisteredElsewhere,
	device.OutcomeMACInUse:            protocol.CodeMACInUse,
	device.OutcomeLoggedOn:            protocol.CodeLoggedOn,
	device.OutcomeLoggedOff:           protocol.CodeLoggedOff,
	device.OutcomeNotLoggedOn:         protocol.CodeLoggedOff,
	device.OutcomeNotRegistered:       protocol.CodeNotRegistered,
	device.OutcomeAuthFailed:          protocol.CodeNotRegistered,
	device.OutcomeDeregistered:        protocol.CodeDeregistered,
	device.OutcomeDidNotExist:         protocol.CodeDidNotExist,
}

// OutcomeCode returns the ACK code for a registry outcome.
func OutcomeCode(o device.Outcome) protocol.Code {
	if code, ok := outcomeCodes[o]; ok {
		return code
	}
	return protocol.CodeNotRegistered
}

// handle parses and dispatches one received message.
func (s *Server) handle(ctx context.Context, sess *Session, raw []byte) {
	msg, err := protocol.Parse(raw)
	if err != nil {
		s.metrics.MessageDropped(metrics.DropMalformed)
		s.logger.Debug("dropping malformed message", "session", sess.ID, "error", err)
		return
	}

	msgType := string(msg.Type())
	s.metrics.MessageReceived(msgType)
	start := time.Now()
	defer func() { s.metrics.ObserveHandle(msgType, time.Since(start)) }()

	switch m := msg.(type) {
	case protocol.Register:
		s.handleRegister(ctx, sess, m, raw)
	case protocol.Deregister:
		s.handleDeregister(ctx, sess, m, raw)
	case protocol.Login:
		s.handleLogin(ctx, sess, m, raw)
	case protocol.Logoff:
		s.handleLogoff(ctx, sess, m, raw)
	case protocol.Data:
		s.handleData(sess, m, raw)
	case protocol.Query:
		s.handleQuery(ctx, sess, m, raw)
	default:
		s.metrics.MessageDropped(metrics.DropUnhandled)
		s.logger.Debug("ignoring message", "session", sess.ID, "type", msgType)
	}
}

func (s *Server) handleRegister(ctx context.Context, sess *Session, m protocol.Register, raw []byte) {
	outcome, err := s.registry.Register(ctx, m.Name, m.Passphrase, m.MAC)
	if err != nil {
		s.registryFailed(sess, protocol.TypeRegister, m.Name, err)
		return
	}
	if outcome == device.OutcomeRegistered || outcome == device.OutcomeAlreadyRegistered {
		s.sessions.Bind(m.Name, sess)
	}
	s.finish(ctx, sess, m.Name, outcome, raw)
}

// handleDeregister removes the device. The passphrase and MAC fields are
// carried on the wire but not checked.
func (s *Server) handleDeregister(ctx context.Context, sess *Session, m protocol.Deregister, raw []byte) {
	name := sess.resolve(m.Name)
	outcome, err := s.registry.Deregister(ctx, name)
	if err != nil {
		s.registryFailed(sess, protocol.TypeDeregister, name, err)
		return
	}
	if outcome == device.OutcomeDeregistered {
		if live := s.sessions.Get(name); live != nil {
			s.sessions.Unbind(name, live)
		}
	}
	s.finish(ctx, sess, name, outcome, raw)
}

func (s *Server) handleLogin(ctx context.Context, sess *Session, m protocol.Login, raw []byte) {
	name := sess.resolve(m.Name)
	outcome, err := s.registry.Login(ctx, name, m.Passphrase, m.IP, m.Port)
	if err != nil {
		s.registryFailed(sess, protocol.TypeLogin, name, err)
		return
	}
	if outcome == device.OutcomeLoggedOn {
		s.sessions.Bind(name, sess)
	}
	s.finish(ctx, sess, name, outcome, raw)
}

func (s *Server) handleLogoff(ctx context.Context, sess *Session, m protocol.Logoff, raw []byte) {
	name := sess.resolve(m.Name)
	outcome, err := s.registry.Logoff(ctx, name)
	if err != nil {
		s.registryFailed(sess, protocol.TypeLogoff, name, err)
		return
	}
	s.finish(ctx, sess, name, outcome, raw)
}

// handleData accepts DATA from an active device and relays it.
func (s *Server) handleData(sess *Session, m protocol.Data, raw []byte) {
	name := sess.resolve(m.Name)

	d, err := s.registry.LookupByName(name)
	if err != nil || !d.Active {
		s.logger.Debug("data from inactive device", "device", name)
		s.reply(sess, protocol.CodeNotRegistered, name, raw)
		return
	}

	s.logger.Debug("data received", "device", name, "code", m.Code, "length", m.Length)
	s.relay.Data(name, m)
	s.reply(sess, protocol.CodeDataReceived, name, raw)
}

// handleQuery forwards a device-originated QUERY to its target.
// The requester gets an ACK only when the target cannot be reached.
func (s *Server) handleQuery(ctx context.Context, sess *Session, m protocol.Query, raw []byte) {
	requester := sess.resolve(m.Requester)
	if err := s.deliver(ctx, m.Target, protocol.Marshal(m)); err != nil {
		s.logger.Debug("query not forwarded", "requester", requester, "target", m.Target, "error", err)
		s.reply(sess, protocol.CodeNotRegistered, requester, raw)
		return
	}
	s.logger.Debug("query forwarded", "requester", requester, "target", m.Target)
}

// finish records a registry outcome, then acknowledges it.
func (s *Server) finish(ctx context.Context, sess *Session, name string, outcome device.Outcome, raw []byte) {
	code := OutcomeCode(outcome)
	s.record(ctx, sess, name, outcome, code)
	s.relay.Event(name, outcome)

	if outcome.Mutated() {
		stats := s.registry.Stats()
		s.metrics.SetDevices(stats.Total, stats.Active)
	}
	s.reply(sess, code, name, raw)
}

// reply writes the ACK of raw to sess.
func (s *Server) reply(sess *Session, code protocol.Code, name string, raw []byte) {
	ack := s.acks.Build(code, name, raw)
	if err := sess.Write(protocol.Marshal(ack)); err != nil {
		s.logger.Debug("ack not delivered", "session", sess.ID, "code", string(code), "error", err)
		return
	}
	s.metrics.AckSent(string(code))
}

// record writes the outcome to the audit log. Failures are logged only.
func (s *Server) record(ctx context.Context, sess *Session, name string, outcome device.Outcome, code protocol.Code) {
	if s.audit == nil {
		return
	}
	entry := &audit.Entry{
		Action:     outcome.String(),
		EntityType: audit.EntityDevice,
		EntityID:   name,
		Source:     sess.RemoteAddr,
		Details: map[string]any{
			"code":    string(code),
			"session": sess.ID,
		},
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("audit write failed", "device", name, "action", entry.Action, "error", err)
	}
}

// registryFailed drops a request the registry rejected. Invalid identity
// fields count as malformed input; anything else is a storage failure.
func (s *Server) registryFailed(sess *Session, t protocol.Type, name string, err error) {
	if errors.Is(err, device.ErrInvalidName) || errors.Is(err, device.ErrInvalidMAC) || errors.Is(err, device.ErrInvalidDevice) {
		s.metrics.MessageDropped(metrics.DropMalformed)
		s.logger.Debug("dropping invalid request", "session", sess.ID, "type", string(t), "error", err)
		return
	}
	s.metrics.MessageDropped(metrics.DropStoreError)
	s.logger.Error("registry operation failed", "session", sess.ID, "type", string(t), "device", name, "error", err)
}
