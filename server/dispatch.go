package server

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"nx-ipc/codec"
	"nx-ipc/message"
	"nx-ipc/middleware"
	"nx-ipc/protocol"
	"nx-ipc/result"
)

// process handles the request a worker just received on s.
func (m *Manager) process(ctx context.Context, s *session, msg, pointerBuffer []byte) {
	cmd := message.NewServerContext(s.info, pointerBuffer)
	defer cmd.Release()
	cmd.Message = msg
	c := codec.GetCodec(s.info.Protocol)

	info, err := c.ReadRequest(cmd)
	if err != nil {
		m.logger.Debug("bad request", zap.String("service", s.name), zap.Error(err))
		m.replyError(s, c, info, msg, pointerBuffer, result.FromError(err))
		return
	}

	if info.IsClose(s.info.Protocol) {
		if err := c.WriteCloseResponse(cmd); err == nil {
			m.kernel.Reply(s.handle, msg)
		}
		m.closeSession(s.handle)
		return
	}

	r := &Request{Command: cmd, Info: info, manager: m, session: s}
	if s.info.UsesCmif() && protocol.CommandType(info.CommandType).IsControl() {
		err = m.control(r)
	} else {
		err = m.request(ctx, r)
	}
	m.respond(r, c, err, pointerBuffer)
}

// request resolves the target of a Request command and runs its handler.
func (m *Manager) request(ctx context.Context, r *Request) error {
	s := r.session
	target := s.object
	if s.domain != nil {
		id := r.Info.DomainObjectID
		switch r.Info.DomainCommandType {
		case protocol.DomainCommandTypeSendMessage:
			obj, ok := s.domain.Find(id)
			if !ok {
				return result.ResultDomainNotFound
			}
			target = obj
		case protocol.DomainCommandTypeClose:
			return s.domain.Deallocate(id)
		default:
			return result.ResultInvalidDomainCommandType
		}
	}

	meta, ok := Match(target.Commands(), r.Info.RequestID, m.version)
	if !ok {
		return result.ResultInvalidCommandRequestID
	}
	r.Target = target
	r.meta = meta

	req := &middleware.Request{
		Service:     serviceName(target, s.name),
		RequestID:   r.Info.RequestID,
		CommandType: r.Info.CommandType,
		Object:      s.info,
	}
	return m.handler(withRequest(ctx, r), req)
}

// dispatch is the innermost handler of the middleware chain.
func (m *Manager) dispatch(ctx context.Context, _ *middleware.Request) (err error) {
	r := requestFrom(ctx)
	defer func() {
		if p := recover(); p != nil {
			m.logger.Error("handler panicked", zap.Uint32("request_id", r.Info.RequestID), zap.Any("panic", p))
			err = result.ResultPanicked
		}
	}()
	return r.meta.Handler(ctx, r)
}

// respond writes the reply for r. A failed command replies with its result
// and no outputs.
func (m *Manager) respond(r *Request, c codec.Codec, err error, pointerBuffer []byte) {
	s := r.session
	msg := r.Command.Message
	if err != nil {
		r.rollback()
		m.replyError(s, c, r.Info, msg, pointerBuffer, result.FromError(err))
		return
	}

	cmd := r.Command
	size, err := message.ReserveAll(cmd, r.outputs)
	if err == nil {
		cmd.Out.DataSize = size
		err = c.WriteResponse(cmd, r.Info, result.Success)
	}
	if err == nil {
		err = message.EncodeAll(cmd, msg[cmd.Out.DataOffset:], r.outputs)
	}
	if err != nil {
		m.logger.Warn("write response", zap.String("service", s.name), zap.Error(err))
		r.rollback()
		m.replyError(s, c, r.Info, msg, pointerBuffer, result.FromError(err))
		return
	}
	m.reply(s, msg)
}

func (m *Manager) replyError(s *session, c codec.Codec, info codec.RequestInfo, msg, pointerBuffer []byte, rc result.Code) {
	cmd := message.NewServerContext(s.info, pointerBuffer)
	cmd.Message = msg
	if err := c.WriteResponse(cmd, info, rc); err != nil {
		m.logger.Error("write error response", zap.String("service", s.name), zap.Error(err))
		m.closeSession(s.handle)
		return
	}
	m.reply(s, msg)
}

func (m *Manager) reply(s *session, msg []byte) {
	err := m.kernel.Reply(s.handle, msg)
	switch {
	case err == nil:
	case errors.Is(err, result.ResultSessionClosed), errors.Is(err, result.ResultInvalidHandle):
		m.closeSession(s.handle)
	default:
		m.logger.Warn("reply", zap.String("service", s.name), zap.Error(err))
	}
}

// control runs the built-in session control commands.
func (m *Manager) control(r *Request) error {
	s := r.session
	switch protocol.ControlRequestID(r.Info.RequestID) {
	case protocol.ControlConvertCurrentObjectToDomain:
		if s.domain != nil {
			return result.ResultAlreadyDomain
		}
		domain := NewDomainTable()
		id, err := domain.AllocateID(s.object)
		if err != nil {
			return err
		}
		m.mu.Lock()
		s.domain = domain
		s.info = message.FromDomainObjectID(s.handle, id).WithProtocol(s.info.Protocol)
		m.mu.Unlock()
		r.Reply(message.Data(uint32(id)))
		return nil

	case protocol.ControlCopyFromCurrentDomain:
		if s.domain == nil {
			return result.ResultDomainNotFound
		}
		var id message.DomainObjectID
		if err := r.Decode(message.DataTo(&id)); err != nil {
			return err
		}
		obj, ok := s.domain.Find(id)
		if !ok {
			return result.ResultDomainNotFound
		}
		client, err := m.openSession(obj, s.info.Protocol, serviceName(obj, s.name))
		if err != nil {
			return err
		}
		r.undo = append(r.undo, func() { m.abandonSession(client) })
		r.Reply(message.MoveHandle(client))
		return nil

	case protocol.ControlCloneCurrentObject, protocol.ControlCloneCurrentObjectEx:
		if protocol.ControlRequestID(r.Info.RequestID) == protocol.ControlCloneCurrentObjectEx {
			var tag uint32
			if err := r.Decode(message.DataTo(&tag)); err != nil {
				return err
			}
		}
		client, err := m.clone(s)
		if err != nil {
			return err
		}
		r.undo = append(r.undo, func() { m.abandonSession(client) })
		r.Reply(message.MoveHandle(client))
		return nil

	case protocol.ControlQueryPointerBufferSize:
		r.Reply(message.Data(uint16(len(r.Command.PointerBuffer()))))
		return nil
	}
	return result.ResultInvalidCommandRequestID
}

// clone opens a second session onto the same object. A clone of a domain
// session shares the domain.
func (m *Manager) clone(s *session) (protocol.Handle, error) {
	server, client, err := m.kernel.CreateSession()
	if err != nil {
		return protocol.InvalidHandle, err
	}
	c := &session{
		handle: server,
		info:   message.FromHandle(server).WithProtocol(s.info.Protocol),
		object: s.object,
		domain: s.domain,
		name:   s.name,
	}
	if s.domain != nil {
		c.info = message.FromDomainObjectID(server, s.info.DomainObjectID).WithProtocol(s.info.Protocol)
	}
	m.mu.Lock()
	m.sessions[server] = c
	m.mu.Unlock()
	m.notify()
	return client, nil
}
