// Package demo is a small echo/arith service used by the tests and the
// nxipc CLI. It exercises every parameter kind the engine carries: raw data,
// map-alias, pointer and auto-select buffers, the process id, returned
// objects, sized outputs and version-gated command variants.
package demo

import (
	"context"
	"sync/atomic"

	"nx-ipc/message"
	"nx-ipc/server"
	"nx-ipc/version"
)

// ServiceName is the name the demo service registers under.
const ServiceName = "demo"

// Command ids of the demo service.
const (
	CmdAdd          = 0
	CmdEcho         = 1
	CmdEchoAuto     = 2
	CmdEchoPointer  = 3
	CmdOpenCounter  = 4
	CmdGetProcessID = 5
	CmdDescribe     = 6
	CmdLimitLegacy  = 7
	CmdLimit        = 8
)

// Command ids of a counter object.
const (
	CmdIncrement = 0
	CmdGet       = 1
)

// LimitCutover is the first version answering CmdLimit rather than
// CmdLimitLegacy.
var LimitCutover = version.New(10, 0, 0)

// Limit is what both Limit variants report, in their own widths.
const Limit = 1 << 20

// Description is the sized value returned by Describe.
type Description struct {
	Major    uint8
	Minor    uint8
	Micro    uint8
	_        uint8
	Counters uint32
	Calls    uint64
}

// Service implements the demo commands.
type Service struct {
	calls    atomic.Uint64
	counters atomic.Uint32
}

func NewService() *Service {
	return &Service{}
}

func (s *Service) Name() string {
	return ServiceName
}

func (s *Service) Commands() []server.CommandMetadata {
	last := version.New(9, 2, 0)
	return []server.CommandMetadata{
		server.Command(CmdAdd, s.add),
		server.Command(CmdEcho, s.echo),
		server.Command(CmdEchoAuto, s.echoAuto),
		server.Command(CmdEchoPointer, s.echoPointer),
		server.Command(CmdOpenCounter, s.openCounter),
		server.Command(CmdGetProcessID, s.getProcessID),
		server.Command(CmdDescribe, s.describe),
		{ID: CmdLimitLegacy, Versions: version.To(last), Handler: s.limitLegacy},
		{ID: CmdLimit, Versions: version.From(LimitCutover), Handler: s.limit},
	}
}

func (s *Service) add(ctx context.Context, r *server.Request) error {
	s.calls.Add(1)
	var a, b uint32
	if err := r.Decode(message.DataTo(&a), message.DataTo(&b)); err != nil {
		return err
	}
	r.Reply(message.Data(uint64(a) + uint64(b)))
	return nil
}

// copyBuffers copies in to out and replies with the number of bytes copied.
func (s *Service) copyBuffers(r *server.Request, in, out *message.Buffer) error {
	s.calls.Add(1)
	if err := r.Decode(in, out); err != nil {
		return err
	}
	n := copy(out.Data, in.Data)
	r.Reply(message.Data(uint32(n)))
	return nil
}

func (s *Service) echo(ctx context.Context, r *server.Request) error {
	return s.copyBuffers(r, message.InMapAlias(nil), message.OutMapAlias(nil))
}

func (s *Service) echoAuto(ctx context.Context, r *server.Request) error {
	return s.copyBuffers(r, message.InAutoSelect(nil), message.OutAutoSelect(nil))
}

func (s *Service) echoPointer(ctx context.Context, r *server.Request) error {
	return s.copyBuffers(r, message.InPointer(nil), message.OutPointer(nil))
}

func (s *Service) openCounter(ctx context.Context, r *server.Request) error {
	s.calls.Add(1)
	out, err := r.OutObject(newCounter(s))
	if err != nil {
		return err
	}
	r.Reply(out)
	return nil
}

func (s *Service) getProcessID(ctx context.Context, r *server.Request) error {
	s.calls.Add(1)
	var pid uint64
	if err := r.Decode(message.ProcessIDTo(&pid)); err != nil {
		return err
	}
	r.Reply(message.Data(pid))
	return nil
}

func (s *Service) describe(ctx context.Context, r *server.Request) error {
	calls := s.calls.Add(1)
	out := message.OutMapAlias(nil)
	if err := r.Decode(out); err != nil {
		return err
	}
	v := r.Version()
	return message.Sized(out.Data, Description{
		Major:    v.Major,
		Minor:    v.Minor,
		Micro:    v.Micro,
		Counters: s.counters.Load(),
		Calls:    calls,
	})
}

func (s *Service) limitLegacy(ctx context.Context, r *server.Request) error {
	s.calls.Add(1)
	r.Reply(message.Data(uint32(Limit)))
	return nil
}

func (s *Service) limit(ctx context.Context, r *server.Request) error {
	s.calls.Add(1)
	r.Reply(message.Data(uint64(Limit)))
	return nil
}

// counter is the object returned by OpenCounter. Every counter counts on
// its own.
type counter struct {
	n atomic.Uint64
}

func newCounter(s *Service) *counter {
	s.counters.Add(1)
	return &counter{}
}

func (c *counter) Name() string {
	return ServiceName + ".counter"
}

func (c *counter) Commands() []server.CommandMetadata {
	return []server.CommandMetadata{
		server.Command(CmdIncrement, func(ctx context.Context, r *server.Request) error {
			r.Reply(message.Data(c.n.Add(1)))
			return nil
		}),
		server.Command(CmdGet, func(ctx context.Context, r *server.Request) error {
			r.Reply(message.Data(c.n.Load()))
			return nil
		}),
	}
}
