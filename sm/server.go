// Package sm is the service manager: the one service every process can reach
// by a well-known port name, which hands out sessions to every other service.
//
//	server process                 sm                      client process
//	  RegisterService(name) ──▶ CreatePort, registry.Register
//	  ◀── port (move handle)
//	  serve the port                                  GetServiceHandle(name)
//	                            registry.Discover ◀────────────┘
//	                            balancer.Pick(pid)
//	                            ConnectToPort ─── session (move handle) ──▶
//
// Every registered service is an instance in a registry.Registry, so several
// servers may offer one name and the balancer picks between them.
package sm

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nx-ipc/loadbalance"
	"nx-ipc/message"
	"nx-ipc/protocol"
	"nx-ipc/registry"
	"nx-ipc/result"
	"nx-ipc/server"
	"nx-ipc/transport"
	"nx-ipc/version"
)

// PortName is the named port sm listens on.
const PortName = "sm:"

// MaxSessions is how many sessions the sm port accepts.
const MaxSessions = 64

const (
	CmdRegisterClient    = 0
	CmdGetServiceHandle  = 1
	CmdRegisterService   = 2
	CmdUnregisterService = 3
	CmdDetachClient      = 4
	CmdHasService        = 65100
)

var (
	// TipcCutover is the first version whose sm speaks TIPC.
	TipcCutover = version.New(12, 0, 0)
	// DetachFrom is the first version with DetachClient.
	DetachFrom = version.New(11, 0, 0)
)

// ProtocolFor is the dialect sm speaks on version v.
func ProtocolFor(v version.Version) message.Protocol {
	if v.Compare(TipcCutover) >= 0 {
		return message.ProtocolTipc
	}
	return message.ProtocolCmif
}

type owner struct {
	pid  uint64
	name ServiceName
}

// Server is the service manager.
type Server struct {
	manager  *server.Manager
	kernel   transport.ServerKernel
	registry registry.Registry
	balancer loadbalance.Balancer
	logger   *zap.Logger

	mu    sync.Mutex
	owned map[owner]uuid.UUID
}

type Option func(*Server)

// WithRegistry sets where services are published. Defaults to an in-memory
// registry.
func WithRegistry(reg registry.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithBalancer sets how an instance is picked when several serve one name.
// Defaults to round robin.
func WithBalancer(b loadbalance.Balancer) Option {
	return func(s *Server) {
		s.balancer = b
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(m *server.Manager, kernel transport.ServerKernel, opts ...Option) *Server {
	s := &Server{
		manager:  m,
		kernel:   kernel,
		registry: registry.NewMemoryRegistry(),
		balancer: &loadbalance.RoundRobinBalancer{},
		logger:   zap.NewNop(),
		owned:    make(map[owner]uuid.UUID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the sm port on the manager. Each connection gets its own
// client state.
func (s *Server) Start() (protocol.Handle, error) {
	return s.manager.RegisterNamedPort(PortName, ProtocolFor(s.manager.Version()), MaxSessions, func() server.Object {
		return &userInterface{srv: s}
	})
}

// userInterface is the state of one sm session.
type userInterface struct {
	srv        *Server
	pid        uint64
	registered bool
}

func (u *userInterface) Name() string {
	return "sm"
}

func (u *userInterface) Commands() []server.CommandMetadata {
	return []server.CommandMetadata{
		server.Command(CmdRegisterClient, u.registerClient),
		server.Command(CmdGetServiceHandle, u.getServiceHandle),
		server.Command(CmdRegisterService, u.registerService),
		server.Command(CmdUnregisterService, u.unregisterService),
		{ID: CmdDetachClient, Versions: version.From(DetachFrom), Handler: u.detachClient},
		server.Command(CmdHasService, u.hasService),
	}
}

func (u *userInterface) registerClient(ctx context.Context, r *server.Request) error {
	var pid uint64
	if err := r.Decode(message.ProcessIDTo(&pid)); err != nil {
		return err
	}
	u.pid, u.registered = pid, true
	return nil
}

func (u *userInterface) detachClient(ctx context.Context, r *server.Request) error {
	var pid uint64
	if err := r.Decode(message.ProcessIDTo(&pid)); err != nil {
		return err
	}
	u.registered = false
	return nil
}

// name decodes the leading service name of a request and checks the caller
// registered first.
func (u *userInterface) name(r *server.Request, rest ...message.Decoder) (ServiceName, error) {
	var name ServiceName
	if err := r.Decode(append([]message.Decoder{message.DataTo(&name)}, rest...)...); err != nil {
		return 0, err
	}
	if !u.registered {
		return 0, result.ResultInvalidClient
	}
	if !name.Valid() {
		return 0, result.ResultInvalidServiceName
	}
	return name, nil
}

func (u *userInterface) getServiceHandle(ctx context.Context, r *server.Request) error {
	name, err := u.name(r)
	if err != nil {
		return err
	}
	instances, err := u.srv.registry.Discover(ctx, name.String())
	if err != nil {
		return err
	}
	inst, err := u.srv.balancer.Pick(instances, strconv.FormatUint(u.pid, 10))
	if errors.Is(err, loadbalance.ErrNoInstances) {
		return result.ResultNotRegistered
	}
	if err != nil {
		return err
	}

	h, err := u.srv.kernel.ConnectToPort(ctx, inst.Port)
	if errors.Is(err, result.ResultOutOfSessions) {
		return result.ResultSmOutOfSessions
	}
	if err != nil {
		return err
	}
	u.srv.logger.Debug("service handle", zap.Stringer("service", name), zap.Uint64("pid", u.pid), zap.Stringer("instance", inst.ID))
	r.Reply(message.MoveHandle(h))
	return nil
}

// registerService creates the port of a new service instance and returns
// it to the caller, who serves it. sm keeps using the same handle to connect
// clients; the kernel's handle table is shared.
func (u *userInterface) registerService(ctx context.Context, r *server.Request) error {
	var (
		light       bool
		maxSessions int32
	)
	name, err := u.name(r, message.DataTo(&light), message.DataTo(&maxSessions))
	if err != nil {
		return err
	}
	if maxSessions <= 0 {
		return result.ResultInvalidSize
	}
	key := owner{pid: u.pid, name: name}

	srv := u.srv
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if _, ok := srv.owned[key]; ok {
		return result.ResultAlreadyRegistered
	}

	port, err := srv.kernel.CreatePort(int(maxSessions))
	if err != nil {
		return err
	}
	inst := registry.NewInstance(name.String(), port, int(maxSessions))
	inst.Light = light
	if err := srv.registry.Register(ctx, name.String(), inst); err != nil {
		srv.kernel.CloseHandle(port)
		return err
	}
	srv.owned[key] = inst.ID
	srv.logger.Info("service registered", zap.Stringer("service", name), zap.Uint64("pid", u.pid), zap.Bool("light", light))
	r.Reply(message.MoveHandle(port))
	return nil
}

func (u *userInterface) unregisterService(ctx context.Context, r *server.Request) error {
	name, err := u.name(r)
	if err != nil {
		return err
	}
	key := owner{pid: u.pid, name: name}

	srv := u.srv
	srv.mu.Lock()
	defer srv.mu.Unlock()
	id, ok := srv.owned[key]
	if !ok {
		return result.ResultNotRegistered
	}
	if err := srv.registry.Deregister(ctx, name.String(), id); err != nil {
		return err
	}
	delete(srv.owned, key)
	srv.logger.Info("service unregistered", zap.Stringer("service", name), zap.Uint64("pid", u.pid))
	return nil
}

func (u *userInterface) hasService(ctx context.Context, r *server.Request) error {
	name, err := u.name(r)
	if err != nil {
		return err
	}
	instances, err := u.srv.registry.Discover(ctx, name.String())
	if err != nil {
		return err
	}
	r.Reply(message.Data(len(instances) > 0))
	return nil
}
