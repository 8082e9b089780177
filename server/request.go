package server

import (
	"context"

	"nx-ipc/codec"
	"nx-ipc/message"
	"nx-ipc/protocol"
	"nx-ipc/version"
)

// Request is one command being handled.
type Request struct {
	// Command is the server-side call state. Its Object is the session's
	// identity, which for a domain session is the domain, not the target.
	Command *message.CommandContext
	Info    codec.RequestInfo
	// Target is the object the command is addressed to.
	Target Object

	manager *Manager
	session *session
	meta    CommandMetadata
	outputs []message.Encoder
	undo    []func()
}

type requestKey struct{}

func withRequest(ctx context.Context, r *Request) context.Context {
	return context.WithValue(ctx, requestKey{}, r)
}

func requestFrom(ctx context.Context) *Request {
	r, _ := ctx.Value(requestKey{}).(*Request)
	return r
}

// Decode reads the command's inputs in wire order.
func (r *Request) Decode(params ...message.Decoder) error {
	c := r.Command
	return message.DecodeAll(c, c.Message[c.In.DataOffset:], params)
}

// Reply queues outputs. They are written only if the handler succeeds.
func (r *Request) Reply(params ...message.Encoder) {
	r.outputs = append(r.outputs, params...)
}

// OutObject makes obj reachable by the client and returns the output that
// carries it: a new id in the session's domain, or a new session.
func (r *Request) OutObject(obj Object) (message.Encoder, error) {
	s := r.session
	if s.domain != nil {
		id, err := s.domain.AllocateID(obj)
		if err != nil {
			return nil, err
		}
		r.undo = append(r.undo, func() { s.domain.Deallocate(id) })
		return message.DomainObject(id), nil
	}

	client, err := r.manager.openSession(obj, s.info.Protocol, serviceName(obj, s.name))
	if err != nil {
		return nil, err
	}
	r.undo = append(r.undo, func() { r.manager.abandonSession(client) })
	return message.MoveHandle(client), nil
}

// Version is the system version commands are matched against.
func (r *Request) Version() version.Version {
	return r.manager.version
}

// ProcessID is the pid the kernel stamped on the request, if it sent one.
func (r *Request) ProcessID() (uint64, bool) {
	in := &r.Command.In
	return in.ProcessID, in.SendProcessID
}

// Handle is the server end of the session the request arrived on.
func (r *Request) Handle() protocol.Handle {
	return r.session.handle
}

// Manager is the manager dispatching the request.
func (r *Request) Manager() *Manager {
	return r.manager
}

func (r *Request) rollback() {
	for i := len(r.undo) - 1; i >= 0; i-- {
		r.undo[i]()
	}
	r.undo = nil
	r.outputs = nil
}
