package client

import (
	"context"

	"go.uber.org/zap"

	"nx-ipc/codec"
	"nx-ipc/message"
	"nx-ipc/protocol"
	"nx-ipc/result"
)

// control sends a session control command. Control commands exist only in
// CMIF and always address the session, never a domain member.
func (s *Session) control(ctx context.Context, msg []byte, id protocol.ControlRequestID, in []message.Encoder, out []message.Decoder) error {
	info := s.Info()
	if !info.UsesCmif() {
		return result.ResultInvalidProtocol
	}
	cmif := codec.GetCodec(message.ProtocolCmif).(*codec.Cmif)

	cc := message.NewClientContext(info, nil)
	defer cc.Release()
	cc.Message = msg
	size, err := message.ReserveAll(cc, in)
	if err != nil {
		return err
	}
	cc.In.DataSize = size
	if err := cmif.WriteControl(cc, id); err != nil {
		return err
	}
	if err := message.EncodeAll(cc, msg[cc.In.DataOffset:], in); err != nil {
		return err
	}
	if err := s.client.kernel.SendSyncRequest(ctx, info.Handle, msg); err != nil {
		return err
	}
	cc.Out.DataSize = message.RawSize(out)
	if err := cmif.ReadControlResponse(cc); err != nil {
		return err
	}
	return message.DecodeAll(cc, msg[cc.Out.DataOffset:], out)
}

func (s *Session) sendControl(ctx context.Context, id protocol.ControlRequestID, in []message.Encoder, out []message.Decoder) error {
	err := s.client.withMessage(ctx, func(msg []byte) error {
		return s.control(ctx, msg, id, in, out)
	})
	if err != nil {
		s.client.logger.Debug("control command failed", zap.String("service", s.name), zap.Uint32("request_id", uint32(id)), zap.Error(err))
	}
	return err
}

// ConvertToDomain turns the session into a domain. Objects returned from then
// on are domain ids on the same handle.
func (s *Session) ConvertToDomain(ctx context.Context) error {
	if s.Info().IsDomain() {
		return result.ResultAlreadyDomain
	}
	var id message.DomainObjectID
	if err := s.sendControl(ctx, protocol.ControlConvertCurrentObjectToDomain, nil, []message.Decoder{message.DataTo(&id)}); err != nil {
		return err
	}
	s.mu.Lock()
	s.info.DomainObjectID = id
	s.mu.Unlock()
	return nil
}

// QueryPointerBufferSize returns the server's pointer buffer size. The
// answer is cached for the session's lifetime.
func (s *Session) QueryPointerBufferSize(ctx context.Context) (uint16, error) {
	s.mu.Lock()
	if s.pointerKnown {
		defer s.mu.Unlock()
		return s.pointerSize, nil
	}
	s.mu.Unlock()

	var size uint16
	err := s.client.withMessage(ctx, func(msg []byte) error {
		var err error
		size, err = s.queryPointerBufferSize(ctx, msg)
		return err
	})
	return size, err
}

func (s *Session) queryPointerBufferSize(ctx context.Context, msg []byte) (uint16, error) {
	s.mu.Lock()
	if s.pointerKnown {
		defer s.mu.Unlock()
		return s.pointerSize, nil
	}
	s.mu.Unlock()

	var size uint16
	if err := s.control(ctx, msg, protocol.ControlQueryPointerBufferSize, nil, []message.Decoder{message.DataTo(&size)}); err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.pointerSize, s.pointerKnown = size, true
	s.mu.Unlock()
	return size, nil
}

// Clone opens a second session onto the same object. The clone of a domain
// session refers to the same domain member and owns its own handle.
func (s *Session) Clone(ctx context.Context) (*Session, error) {
	return s.clone(ctx, protocol.ControlCloneCurrentObject, nil)
}

// CloneEx is Clone with a tag the server may use to tell clones apart.
func (s *Session) CloneEx(ctx context.Context, tag uint32) (*Session, error) {
	return s.clone(ctx, protocol.ControlCloneCurrentObjectEx, []message.Encoder{message.Data(tag)})
}

func (s *Session) clone(ctx context.Context, id protocol.ControlRequestID, in []message.Encoder) (*Session, error) {
	var h protocol.Handle
	if err := s.sendControl(ctx, id, in, []message.Decoder{message.MoveHandleTo(&h)}); err != nil {
		return nil, err
	}
	info := s.Info()
	clone := message.FromHandle(h)
	clone.DomainObjectID = info.DomainObjectID
	return s.client.Open(clone).WithName(s.name), nil
}

// CopyFromCurrentDomain opens a session of its own onto domain member id.
func (s *Session) CopyFromCurrentDomain(ctx context.Context, id message.DomainObjectID) (*Session, error) {
	var h protocol.Handle
	in := []message.Encoder{message.Data(id)}
	if err := s.sendControl(ctx, protocol.ControlCopyFromCurrentDomain, in, []message.Decoder{message.MoveHandleTo(&h)}); err != nil {
		return nil, err
	}
	return s.client.Open(message.FromHandle(h)).WithName(s.name), nil
}
