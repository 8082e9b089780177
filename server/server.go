// Package server implements server dispatch: a Manager that waits on its
// sessions and ports, decodes each request, runs the matching command
// handler through the middleware chain and writes the reply.
//
// Request processing pipeline:
//
//	worker: Receive(wake, ports..., sessions...)
//	  → port signaled:    AcceptSession → new session for the port's object
//	  → session signaled: codec.ReadRequest
//	      → Close:   reply, drop the session
//	      → Control: built-in control handler (domains, clones, pointer size)
//	      → Request: resolve target (domain id?) → Match(id, version)
//	                 → middleware chain → Handler → codec.WriteResponse → Reply
//
// Several workers may run; each owns its message buffer and pointer buffer.
// The kernel hands a session's next request out only after the previous one
// was replied to, so a session is never handled by two workers at once.
package server

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nx-ipc/message"
	"nx-ipc/middleware"
	"nx-ipc/protocol"
	"nx-ipc/result"
	"nx-ipc/transport"
	"nx-ipc/version"
)

// DefaultPointerBufferSize is the size of each worker's pointer buffer.
const DefaultPointerBufferSize = 0x500

type session struct {
	handle protocol.Handle
	// info is the session's identity as the codec sees it: a plain handle,
	// or a domain id once converted.
	info   message.ObjectInfo
	object Object
	domain *DomainTable
	name   string
}

type port struct {
	handle   protocol.Handle
	name     string
	protocol message.Protocol
	factory  func() Object
}

// Manager serves objects over the sessions and ports registered with it.
type Manager struct {
	kernel            transport.ServerKernel
	logger            *zap.Logger
	version           version.Version
	pointerBufferSize int
	workers           int
	middlewares       []middleware.Middleware
	handler           middleware.HandlerFunc // middleware(middleware(...(dispatch)))

	mu       sync.Mutex
	sessions map[protocol.Handle]*session
	ports    map[protocol.Handle]*port
	wakes    []protocol.Handle
	cancel   context.CancelFunc
	done     chan struct{}
	shutdown atomic.Bool
}

type Option func(*Manager)

// WithVersion sets the system version commands are matched against.
// Defaults to version.Current().
func WithVersion(v version.Version) Option {
	return func(m *Manager) {
		m.version = v
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithPointerBufferSize(size int) Option {
	return func(m *Manager) {
		m.pointerBufferSize = size
	}
}

func WithWorkers(n int) Option {
	return func(m *Manager) {
		m.workers = n
	}
}

// WithMiddleware appends middlewares, applied in the order given.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(m *Manager) {
		m.middlewares = append(m.middlewares, mws...)
	}
}

func NewManager(kernel transport.ServerKernel, opts ...Option) *Manager {
	m := &Manager{
		kernel:            kernel,
		logger:            zap.NewNop(),
		version:           version.Current(),
		pointerBufferSize: DefaultPointerBufferSize,
		workers:           1,
		sessions:          make(map[protocol.Handle]*session),
		ports:             make(map[protocol.Handle]*port),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.workers < 1 {
		m.workers = 1
	}
	if m.pointerBufferSize > protocol.MaxStaticSize {
		m.pointerBufferSize = protocol.MaxStaticSize
	}
	// Built once, not per request. Chain(A, B)(h) runs as A(B(h)).
	m.handler = middleware.Chain(m.middlewares...)(m.dispatch)
	return m
}

func serviceName(obj Object, fallback string) string {
	if n, ok := obj.(Named); ok {
		return n.Name()
	}
	if fallback != "" {
		return fallback
	}
	return fmt.Sprintf("%T", obj)
}

// Version is the system version commands are matched against.
func (m *Manager) Version() version.Version {
	return m.version
}

// RegisterSession serves obj over a new session and returns the client end.
func (m *Manager) RegisterSession(obj Object, p message.Protocol) (protocol.Handle, error) {
	return m.openSession(obj, p, serviceName(obj, ""))
}

func (m *Manager) openSession(obj Object, p message.Protocol, name string) (protocol.Handle, error) {
	if m.shutdown.Load() {
		return protocol.InvalidHandle, result.ResultSessionClosed
	}
	server, client, err := m.kernel.CreateSession()
	if err != nil {
		return protocol.InvalidHandle, err
	}
	m.addSession(server, obj, p, name)
	return client, nil
}

func (m *Manager) addSession(h protocol.Handle, obj Object, p message.Protocol, name string) *session {
	s := &session{
		handle: h,
		info:   message.FromHandle(h).WithProtocol(p),
		object: obj,
		name:   name,
	}
	m.mu.Lock()
	m.sessions[h] = s
	m.mu.Unlock()
	m.logger.Debug("session registered", zap.String("service", name), zap.Uint32("handle", uint32(h)))
	m.notify()
	return s
}

// abandonSession closes a client end that never reached its client. The
// server end goes away once a worker sees the session closed.
func (m *Manager) abandonSession(client protocol.Handle) {
	if err := m.kernel.CloseHandle(client); err != nil {
		m.logger.Warn("close abandoned session", zap.Uint32("handle", uint32(client)), zap.Error(err))
	}
}

// RegisterPort creates a port for up to maxSessions clients. Every accepted
// session is served by a fresh object from factory.
func (m *Manager) RegisterPort(name string, p message.Protocol, maxSessions int, factory func() Object) (protocol.Handle, error) {
	h, err := m.kernel.CreatePort(maxSessions)
	if err != nil {
		return protocol.InvalidHandle, err
	}
	m.AddPort(h, name, p, factory)
	return h, nil
}

// RegisterNamedPort is RegisterPort for a port clients find by name.
func (m *Manager) RegisterNamedPort(name string, p message.Protocol, maxSessions int, factory func() Object) (protocol.Handle, error) {
	h, err := m.kernel.RegisterNamedPort(name, maxSessions)
	if err != nil {
		return protocol.InvalidHandle, err
	}
	m.AddPort(h, name, p, factory)
	return h, nil
}

// AddPort serves a port created elsewhere, such as one handed out by the
// service manager.
func (m *Manager) AddPort(h protocol.Handle, name string, p message.Protocol, factory func() Object) {
	m.mu.Lock()
	m.ports[h] = &port{handle: h, name: name, protocol: p, factory: factory}
	m.mu.Unlock()
	m.logger.Info("port registered", zap.String("service", name), zap.Uint32("handle", uint32(h)))
	m.notify()
}

// RemovePort stops serving h and closes it.
func (m *Manager) RemovePort(h protocol.Handle) error {
	m.mu.Lock()
	_, ok := m.ports[h]
	delete(m.ports, h)
	m.mu.Unlock()
	if !ok {
		return result.ResultInvalidHandle
	}
	m.notify()
	return m.kernel.CloseHandle(h)
}

// Sessions is the number of live sessions.
func (m *Manager) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// notify makes every worker rebuild its wait list.
func (m *Manager) notify() {
	m.mu.Lock()
	wakes := slices.Clone(m.wakes)
	m.mu.Unlock()
	for _, w := range wakes {
		m.kernel.SignalEvent(w)
	}
}

// waitList is what a worker waits on: its wake event first, then ports,
// then sessions.
func (m *Manager) waitList(wake protocol.Handle, buf []protocol.Handle) []protocol.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf = append(buf[:0], wake)
	for h := range m.ports {
		buf = append(buf, h)
	}
	for h := range m.sessions {
		buf = append(buf, h)
	}
	return buf
}

func (m *Manager) lookup(h protocol.Handle) (*session, *port) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[h], m.ports[h]
}

// closeSession forgets the session and closes its handle. Only the first of
// concurrent callers closes it.
func (m *Manager) closeSession(h protocol.Handle) {
	m.mu.Lock()
	s, ok := m.sessions[h]
	delete(m.sessions, h)
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := m.kernel.CloseHandle(h); err != nil {
		m.logger.Warn("close session", zap.Uint32("handle", uint32(h)), zap.Error(err))
	}
	m.logger.Debug("session closed", zap.String("service", s.name), zap.Uint32("handle", uint32(h)))
}

// Serve runs the workers until ctx ends or Shutdown is called.
func (m *Manager) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wakes := make([]protocol.Handle, 0, m.workers)
	for i := 0; i < m.workers; i++ {
		w, err := m.kernel.CreateEvent()
		if err != nil {
			return err
		}
		wakes = append(wakes, w)
	}
	done := make(chan struct{})
	m.mu.Lock()
	m.wakes = wakes
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()
	defer close(done)

	g, ctx := errgroup.WithContext(ctx)
	for i, w := range wakes {
		g.Go(func() error {
			return m.worker(ctx, i, w)
		})
	}
	err := g.Wait()

	m.mu.Lock()
	m.wakes = nil
	m.mu.Unlock()
	for _, w := range wakes {
		m.kernel.CloseHandle(w)
	}
	return err
}

func (m *Manager) worker(ctx context.Context, id int, wake protocol.Handle) error {
	logger := m.logger.With(zap.Int("worker", id))
	msg := transport.NewMessageBuffer().Bytes()
	pointerBuffer := transport.Aligned(m.pointerBufferSize)
	var mem protocol.Mapping
	mem.Map(pointerBuffer)
	defer mem.Unmap()
	var handles []protocol.Handle

	for {
		handles = m.waitList(wake, handles)
		transport.WriteReceiveList(msg, pointerBuffer)
		index, err := m.kernel.Receive(ctx, msg, handles)
		if ctx.Err() != nil {
			return nil
		}
		if index <= 0 {
			if err != nil {
				logger.Warn("receive", zap.Error(err))
			}
			continue
		}

		h := handles[index]
		s, p := m.lookup(h)
		switch {
		case errors.Is(err, result.ResultSessionClosed):
			m.closeSession(h)
		case err != nil:
			// A session closed by another worker since the list was built.
			if s != nil || p != nil {
				logger.Warn("receive", zap.Uint32("handle", uint32(h)), zap.Error(err))
			}
		case p != nil:
			m.accept(p)
		case s != nil:
			m.process(ctx, s, msg, pointerBuffer)
		}
	}
}

func (m *Manager) accept(p *port) {
	h, err := m.kernel.AcceptSession(p.handle)
	if err != nil {
		// Another worker took it.
		return
	}
	m.addSession(h, p.factory(), p.protocol, p.name)
}

// Shutdown stops the workers, waits up to timeout for in-flight commands and
// then closes every session and port.
func (m *Manager) Shutdown(timeout time.Duration) error {
	m.shutdown.Store(true)
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-time.After(timeout):
			return fmt.Errorf("timeout waiting for in-flight commands to finish")
		}
	}

	m.mu.Lock()
	handles := make([]protocol.Handle, 0, len(m.sessions)+len(m.ports))
	for h := range m.sessions {
		handles = append(handles, h)
	}
	for h := range m.ports {
		handles = append(handles, h)
	}
	clear(m.sessions)
	clear(m.ports)
	m.mu.Unlock()

	for _, h := range handles {
		m.kernel.CloseHandle(h)
	}
	return nil
}
