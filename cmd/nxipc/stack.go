package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"nx-ipc/client"
	"nx-ipc/config"
	"nx-ipc/demo"
	"nx-ipc/loadbalance"
	"nx-ipc/middleware"
	"nx-ipc/registry"
	"nx-ipc/server"
	"nx-ipc/sm"
	"nx-ipc/transport"
	"nx-ipc/version"
)

// stack is one loopback kernel with sm and the demo service on it.
type stack struct {
	cfg     *config.Config
	logger  *zap.Logger
	version version.Version
	kernel  *transport.Loopback
	manager *server.Manager
	metrics *prometheus.Registry
	pool    *transport.BufferPool
	closers []func() error
}

func newStack(cfg *config.Config, logger *zap.Logger) (*stack, error) {
	v, err := cfg.Version()
	if err != nil {
		return nil, err
	}
	s := &stack{
		cfg:     cfg,
		logger:  logger,
		version: v,
		kernel:  transport.NewLoopback(transport.WithProcessID(cfg.ProcessID), transport.WithLogger(logger.Named("kernel"))),
		metrics: prometheus.NewRegistry(),
		pool:    transport.NewBufferPool(cfg.Client.BufferPoolSize),
	}

	mws := []middleware.Middleware{
		middleware.Logging(logger.Named("server")),
		middleware.Metrics(s.metrics),
	}
	if cfg.Server.RequestTimeout > 0 {
		mws = append(mws, middleware.Timeout(time.Duration(cfg.Server.RequestTimeout)))
	}
	if cfg.Server.RateLimit > 0 {
		mws = append(mws, middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst))
	}
	s.manager = server.NewManager(s.kernel,
		server.WithVersion(v),
		server.WithLogger(logger.Named("server")),
		server.WithWorkers(cfg.Server.Workers),
		server.WithPointerBufferSize(cfg.Server.PointerBufferSize),
		server.WithMiddleware(mws...),
	)

	reg, err := s.registry()
	if err != nil {
		return nil, err
	}
	balancer, err := loadbalance.New(cfg.Balancer)
	if err != nil {
		return nil, err
	}
	if _, err := sm.NewServer(s.manager, s.kernel,
		sm.WithRegistry(reg),
		sm.WithBalancer(balancer),
		sm.WithLogger(logger.Named("sm")),
	).Start(); err != nil {
		return nil, fmt.Errorf("start sm: %w", err)
	}
	return s, nil
}

func (s *stack) registry() (registry.Registry, error) {
	if s.cfg.Registry.Backend != config.BackendEtcd {
		return registry.NewMemoryRegistry(), nil
	}
	reg, err := registry.NewEtcdRegistry(s.cfg.Registry.Endpoints,
		registry.WithTTL(s.cfg.Registry.TTL),
		registry.WithLogger(s.logger.Named("registry")),
	)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, reg.Close)
	return reg, nil
}

// client returns a client acting as process pid.
func (s *stack) client(pid uint64) *client.Client {
	return client.NewClient(s.kernel.ForProcess(pid),
		client.WithVersion(s.version),
		client.WithLogger(s.logger.Named("client")),
		client.WithBufferPool(s.pool),
		client.WithMiddleware(
			middleware.Logging(s.logger.Named("client")),
			middleware.Retry(s.cfg.Client.Retry.Attempts, time.Duration(s.cfg.Client.Retry.Delay)),
		),
	)
}

// publishDemo registers the demo service with sm as its own process. The
// manager must already be serving.
func (s *stack) publishDemo(ctx context.Context) error {
	smc, err := sm.Connect(ctx, s.client(s.cfg.ProcessID+1))
	if err != nil {
		return fmt.Errorf("connect sm: %w", err)
	}
	defer smc.Close()

	svc := demo.NewService()
	_, err = sm.Publish(ctx, smc, s.manager, demo.ServiceName, int32(s.cfg.Server.MaxSessions), false, func() server.Object {
		return svc
	})
	return err
}

func (s *stack) Close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			s.logger.Warn("close", zap.Error(err))
		}
	}
}
