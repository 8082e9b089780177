package transport

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"nx-ipc/protocol"
	"nx-ipc/result"
)

// Loopback is an in-process kernel. Client and server share one address
// space, so descriptor addresses are used as they are and only static
// buffers are actually copied.
//
// All state sits behind one mutex. Every change closes the current changed
// channel, which wakes each Receive to rescan its handles.
type Loopback struct {
	*loopbackState
	pid uint64 // stamped into requests sent through this view
}

type loopbackState struct {
	mu      sync.Mutex
	logger  *zap.Logger
	last    protocol.Handle
	handles map[protocol.Handle]any
	named   map[string]protocol.Handle
	changed chan struct{}
}

type LoopbackOption func(*Loopback)

func WithLogger(logger *zap.Logger) LoopbackOption {
	return func(l *Loopback) {
		l.logger = logger
	}
}

// WithProcessID sets the pid of the process owning the kernel view.
func WithProcessID(pid uint64) LoopbackOption {
	return func(l *Loopback) {
		l.pid = pid
	}
}

func NewLoopback(opts ...LoopbackOption) *Loopback {
	l := &Loopback{
		loopbackState: &loopbackState{
			logger:  zap.NewNop(),
			handles: make(map[protocol.Handle]any),
			named:   make(map[string]protocol.Handle),
			changed: make(chan struct{}),
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ForProcess returns a view of the same kernel for another process. Handles
// are global, only the pid stamped into requests differs.
func (l *Loopback) ForProcess(pid uint64) *Loopback {
	return &Loopback{loopbackState: l.loopbackState, pid: pid}
}

func (l *Loopback) ProcessID() uint64 {
	return l.pid
}

// OpenHandles is the number of live handles.
func (l *Loopback) OpenHandles() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handles)
}

type session struct {
	queue      []*request
	inflight   *request
	clientOpen bool
	serverOpen bool
	port       *serverPort
}

type sessionEnd struct {
	session *session
	server  bool
}

type request struct {
	msg       []byte
	pid       uint64
	done      chan error
	abandoned bool
}

type serverPort struct {
	name        string
	maxSessions int
	sessions    int
	pending     []protocol.Handle
	open        bool
}

type event struct {
	signaled bool
}

// broadcast wakes every waiter. Must be called with mu held.
func (l *Loopback) broadcast() {
	close(l.changed)
	l.changed = make(chan struct{})
}

func (l *Loopback) alloc(obj any) protocol.Handle {
	for {
		l.last++
		if l.last == protocol.InvalidHandle {
			continue
		}
		if _, used := l.handles[l.last]; !used {
			l.handles[l.last] = obj
			return l.last
		}
	}
}

func (l *Loopback) newSession(p *serverPort) (server, client protocol.Handle) {
	s := &session{clientOpen: true, serverOpen: true, port: p}
	server = l.alloc(&sessionEnd{session: s, server: true})
	client = l.alloc(&sessionEnd{session: s})
	l.logger.Debug("session created",
		zap.Uint32("server", uint32(server)),
		zap.Uint32("client", uint32(client)))
	return server, client
}

func (l *Loopback) CreateSession() (protocol.Handle, protocol.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	server, client := l.newSession(nil)
	return server, client, nil
}

func (l *Loopback) CreatePort(maxSessions int) (protocol.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.alloc(&serverPort{maxSessions: maxSessions, open: true}), nil
}

func (l *Loopback) RegisterNamedPort(name string, maxSessions int) (protocol.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.named[name]; ok {
		return protocol.InvalidHandle, result.ResultInvalidState
	}
	h := l.alloc(&serverPort{name: name, maxSessions: maxSessions, open: true})
	l.named[name] = h
	return h, nil
}

func (l *Loopback) ConnectToNamedPort(ctx context.Context, name string) (protocol.Handle, error) {
	l.mu.Lock()
	h, ok := l.named[name]
	l.mu.Unlock()
	if !ok {
		return protocol.InvalidHandle, result.ResultNotFound
	}
	return l.ConnectToPort(ctx, h)
}

// ConnectToPort queues a new session on port and returns its client end.
// The session is usable right away; requests wait until the server accepts.
func (l *Loopback) ConnectToPort(ctx context.Context, port protocol.Handle) (protocol.Handle, error) {
	if err := ctx.Err(); err != nil {
		return protocol.InvalidHandle, result.ResultOperationCanceled
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.handles[port].(*serverPort)
	if !ok {
		return protocol.InvalidHandle, result.ResultInvalidHandle
	}
	if !p.open {
		return protocol.InvalidHandle, result.ResultSessionClosed
	}
	if p.sessions >= p.maxSessions {
		return protocol.InvalidHandle, result.ResultOutOfSessions
	}
	p.sessions++
	server, client := l.newSession(p)
	p.pending = append(p.pending, server)
	l.broadcast()
	return client, nil
}

func (l *Loopback) AcceptSession(port protocol.Handle) (protocol.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.handles[port].(*serverPort)
	if !ok {
		return protocol.InvalidHandle, result.ResultInvalidHandle
	}
	if len(p.pending) == 0 {
		return protocol.InvalidHandle, result.ResultNotFound
	}
	h := p.pending[0]
	p.pending = p.pending[1:]
	return h, nil
}

func (l *Loopback) CreateEvent() (protocol.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.alloc(&event{}), nil
}

func (l *Loopback) SignalEvent(h protocol.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.handles[h].(*event)
	if !ok {
		return result.ResultInvalidHandle
	}
	e.signaled = true
	l.broadcast()
	return nil
}

func (l *Loopback) CloseHandle(h protocol.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	obj, ok := l.handles[h]
	if !ok {
		return result.ResultInvalidHandle
	}
	delete(l.handles, h)

	switch obj := obj.(type) {
	case *sessionEnd:
		l.closeEnd(obj)
	case *serverPort:
		obj.open = false
		for _, pending := range obj.pending {
			if end, ok := l.handles[pending].(*sessionEnd); ok {
				delete(l.handles, pending)
				l.closeEnd(end)
			}
		}
		obj.pending = nil
		if obj.name != "" {
			delete(l.named, obj.name)
		}
	}
	l.logger.Debug("handle closed", zap.Uint32("handle", uint32(h)))
	l.broadcast()
	return nil
}

func (l *Loopback) closeEnd(end *sessionEnd) {
	s := end.session
	if end.server {
		s.serverOpen = false
		if s.inflight != nil {
			s.inflight.done <- result.ResultSessionClosed
			s.inflight = nil
		}
	} else {
		s.clientOpen = false
	}
	for _, req := range s.queue {
		req.done <- result.ResultSessionClosed
	}
	s.queue = nil
	if !s.clientOpen && !s.serverOpen && s.port != nil {
		s.port.sessions--
	}
}

func (l *Loopback) SendSyncRequest(ctx context.Context, h protocol.Handle, msg []byte) error {
	l.mu.Lock()
	end, ok := l.handles[h].(*sessionEnd)
	if !ok || end.server {
		l.mu.Unlock()
		return result.ResultInvalidHandle
	}
	s := end.session
	if !s.serverOpen {
		l.mu.Unlock()
		return result.ResultSessionClosed
	}
	req := &request{msg: msg, pid: l.pid, done: make(chan error, 1)}
	s.queue = append(s.queue, req)
	l.broadcast()
	l.mu.Unlock()

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// The reply may have landed while the lock was released.
	select {
	case err := <-req.done:
		return err
	default:
	}
	if i := slices.Index(s.queue, req); i >= 0 {
		s.queue = slices.Delete(s.queue, i, i+1)
	} else {
		req.abandoned = true
	}
	l.logger.Debug("request abandoned", zap.Uint32("handle", uint32(h)), zap.Error(ctx.Err()))
	return result.ResultOperationCanceled
}

// Receive scans handles in order and returns the first signaled one. The
// caller's msg must hold its receive list (see WriteReceiveList) on entry.
func (l *Loopback) Receive(ctx context.Context, msg []byte, handles []protocol.Handle) (int, error) {
	for {
		l.mu.Lock()
		index, err, ready := l.poll(msg, handles)
		changed := l.changed
		l.mu.Unlock()
		if ready {
			return index, err
		}

		select {
		case <-ctx.Done():
			return -1, result.ResultOperationCanceled
		case <-changed:
		}
	}
}

func (l *Loopback) poll(msg []byte, handles []protocol.Handle) (int, error, bool) {
	for i, h := range handles {
		switch obj := l.handles[h].(type) {
		case nil:
			return i, result.ResultInvalidHandle, true
		case *sessionEnd:
			if !obj.server {
				return i, result.ResultInvalidHandle, true
			}
			s := obj.session
			if s.inflight != nil {
				continue
			}
			for len(s.queue) > 0 {
				req := s.queue[0]
				s.queue = s.queue[1:]
				if err := deliver(msg, req); err != nil {
					l.logger.Debug("request rejected", zap.Uint32("handle", uint32(h)), zap.Error(err))
					req.done <- err
					continue
				}
				s.inflight = req
				return i, nil, true
			}
			if !s.clientOpen {
				return i, result.ResultSessionClosed, true
			}
		case *serverPort:
			if len(obj.pending) > 0 {
				return i, nil, true
			}
		case *event:
			if obj.signaled {
				obj.signaled = false
				return i, nil, true
			}
		}
	}
	return -1, nil, false
}

// Reply completes the request in flight on h. A reply to an abandoned request
// is dropped.
func (l *Loopback) Reply(h protocol.Handle, msg []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	end, ok := l.handles[h].(*sessionEnd)
	if !ok || !end.server {
		return result.ResultInvalidHandle
	}
	s := end.session
	req := s.inflight
	if req == nil {
		return result.ResultInvalidState
	}
	s.inflight = nil
	defer l.broadcast()

	if req.abandoned {
		l.logger.Debug("reply dropped", zap.Uint32("handle", uint32(h)))
		return nil
	}
	err := complete(req.msg, msg)
	req.done <- err
	return err
}
