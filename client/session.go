package client

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"nx-ipc/codec"
	"nx-ipc/message"
	"nx-ipc/middleware"
	"nx-ipc/protocol"
	"nx-ipc/result"
	"nx-ipc/version"
)

// Command is one typed call. In is written and Out is read in the order
// given; both sides must agree on it.
type Command struct {
	ID       uint32
	Versions version.Interval
	In       []message.Encoder
	Out      []message.Decoder
}

func (c Command) VersionInterval() version.Interval {
	return c.Versions
}

// Session owns one remote object. It is safe for concurrent Sends; control
// commands that change its identity (ConvertToDomain) must not race them.
type Session struct {
	client *Client
	name   string

	mu           sync.Mutex
	info         message.ObjectInfo
	pointerSize  uint16
	pointerKnown bool
	closed       bool
}

// WithName sets the service name used in logs and metrics.
func (s *Session) WithName(name string) *Session {
	s.name = name
	return s
}

func (s *Session) Name() string {
	return s.name
}

func (s *Session) Info() message.ObjectInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Send runs cmd. A command not available on the client's version fails with
// ResultNotSupported without reaching the server.
func (s *Session) Send(ctx context.Context, cmd Command) error {
	if !version.Matches(s.client.version, cmd.Versions) {
		return result.ResultNotSupported
	}
	info := s.Info()
	if s.isClosed() {
		return result.ResultSessionClosed
	}
	req := &middleware.Request{
		Service:     s.name,
		RequestID:   cmd.ID,
		CommandType: uint32(protocol.CommandTypeRequest),
		Object:      info,
	}
	if info.UsesTipc() {
		req.CommandType = cmd.ID + protocol.TipcCommandTypeBase
	}
	return s.client.handler(context.WithValue(ctx, callKey{}, &call{session: s, cmd: &cmd}), req)
}

// SendFirst sends the first of candidates available on the client's version.
func (s *Session) SendFirst(ctx context.Context, candidates ...Command) error {
	cmd, ok := version.Select(s.client.version, candidates...)
	if !ok {
		return result.ResultNotSupported
	}
	return s.Send(ctx, cmd)
}

func (s *Session) invoke(ctx context.Context, msg []byte, cmd *Command) error {
	info := s.Info()
	cc := message.NewClientContext(info, message.PointerBufferSizerFunc(func() (uint16, error) {
		// The request is not written yet, so the query may use msg.
		return s.queryPointerBufferSize(ctx, msg)
	}))
	defer cc.Release()
	cc.Message = msg

	size, err := message.ReserveAll(cc, cmd.In)
	if err != nil {
		return err
	}
	cc.In.DataSize = size
	c := codec.GetCodec(info.Protocol)
	if err := c.WriteRequest(cc, cmd.ID); err != nil {
		return err
	}
	if err := message.EncodeAll(cc, msg[cc.In.DataOffset:], cmd.In); err != nil {
		return err
	}

	if err := s.client.kernel.SendSyncRequest(ctx, info.Handle, msg); err != nil {
		return err
	}

	cc.Out.DataSize = message.RawSize(cmd.Out)
	if err := c.ReadResponse(cc); err != nil {
		return err
	}
	return message.DecodeAll(cc, msg[cc.Out.DataOffset:], cmd.Out)
}

// Child adopts an object returned by a command on s.
func (s *Session) Child(info message.ObjectInfo) *Session {
	child := s.client.Open(info).WithName(s.name)
	s.mu.Lock()
	if info.Handle == s.info.Handle {
		// Same session, same pointer buffer.
		child.pointerSize, child.pointerKnown = s.pointerSize, s.pointerKnown
	}
	s.mu.Unlock()
	return child
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the object. A domain object, the root included, is closed by
// id and any other session with a Close command; the handle is then released
// if s owns it. Failures are logged.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	info := s.info
	s.mu.Unlock()

	if !info.IsValid() || (!info.OwnsHandle && !info.IsDomain()) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	err := s.client.withMessage(ctx, func(msg []byte) error {
		cc := message.NewClientContext(info, nil)
		defer cc.Release()
		cc.Message = msg
		if err := codec.GetCodec(info.Protocol).WriteClose(cc); err != nil {
			return err
		}
		return s.client.kernel.SendSyncRequest(ctx, info.Handle, msg)
	})
	if err != nil && !errors.Is(err, result.ResultSessionClosed) {
		s.client.logger.Debug("close command", zap.String("service", s.name), zap.Uint32("handle", uint32(info.Handle)), zap.Error(err))
	}

	if info.OwnsHandle {
		if err := s.client.kernel.CloseHandle(info.Handle); err != nil {
			s.client.logger.Warn("close handle", zap.String("service", s.name), zap.Uint32("handle", uint32(info.Handle)), zap.Error(err))
		}
	}
}
