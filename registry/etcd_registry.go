package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"nx-ipc/result"
)

const keyPrefix = "/nx-ipc/"

// DefaultTTL is the lease TTL in seconds.
const DefaultTTL = 10

// EtcdRegistry publishes instances in etcd so service managers of several
// processes see each other's services:
//
//	Key:   /nx-ipc/{ServiceName}/{InstanceID}
//	Value: JSON-encoded ServiceInstance
//
// Registration uses TTL-based leases: if the server dies, the lease expires
// and the entry is removed with it.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
	ttl    int64
	logger *zap.Logger

	mu     sync.Mutex
	leases map[uuid.UUID]context.CancelFunc // stops the keepalive of a registered instance
}

type EtcdOption func(*EtcdRegistry)

func WithTTL(ttl int64) EtcdOption {
	return func(r *EtcdRegistry) {
		r.ttl = ttl
	}
}

func WithLogger(logger *zap.Logger) EtcdOption {
	return func(r *EtcdRegistry) {
		r.logger = logger
	}
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, opts ...EtcdOption) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	r := &EtcdRegistry{
		client: c,
		ttl:    DefaultTTL,
		logger: zap.NewNop(),
		leases: make(map[uuid.UUID]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func serviceKey(name string, id uuid.UUID) string {
	return keyPrefix + name + "/" + id.String()
}

func servicePrefix(name string) string {
	return keyPrefix + name + "/"
}

// Register stores the instance under a lease and keeps the lease alive until
// Deregister or Close.
//
// Flow:
//  1. Create a lease with the registry's TTL
//  2. Put the key-value pair with the lease attached
//  3. Start KeepAlive to renew the lease in the background
func (r *EtcdRegistry) Register(ctx context.Context, name string, instance ServiceInstance) error {
	instance.Name = name
	lease, err := r.client.Grant(ctx, r.ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, serviceKey(name, instance.ID), string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	// The keepalive outlives the Register call, so it gets its own context.
	kctx, cancel := context.WithCancel(context.Background())
	ch, err := r.client.KeepAlive(kctx, lease.ID)
	if err != nil {
		cancel()
		return err
	}
	r.mu.Lock()
	if old, ok := r.leases[instance.ID]; ok {
		old()
	}
	r.leases[instance.ID] = cancel
	r.mu.Unlock()

	// Consume KeepAlive responses to prevent the channel from filling up
	go func() {
		for range ch {
		}
		r.logger.Debug("lease keepalive stopped", zap.String("service", name), zap.Stringer("id", instance.ID))
	}()
	return nil
}

// Deregister removes an instance. Called during graceful shutdown before the
// port is closed.
func (r *EtcdRegistry) Deregister(ctx context.Context, name string, id uuid.UUID) error {
	r.mu.Lock()
	cancel, ok := r.leases[id]
	delete(r.leases, id)
	r.mu.Unlock()
	if ok {
		cancel()
	}

	resp, err := r.client.Delete(ctx, serviceKey(name, id))
	if err != nil {
		return err
	}
	if resp.Deleted == 0 {
		return result.ResultNotRegistered
	}
	return nil
}

// Watch monitors a service prefix and emits the refreshed instance list
// whenever something under it changes.
func (r *EtcdRegistry) Watch(ctx context.Context, name string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, servicePrefix(name), clientv3.WithPrefix())
		for range watchChan {
			// Re-fetch the full list rather than apply individual events.
			instances, err := r.Discover(ctx, name)
			if err != nil {
				r.logger.Warn("discover after watch event", zap.String("service", name), zap.Error(err))
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Discover returns every instance registered under name.
func (r *EtcdRegistry) Discover(ctx context.Context, name string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(ctx, servicePrefix(name), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.logger.Warn("skip malformed instance", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Close stops every keepalive and the etcd client. Leases then expire on
// their own.
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	for id, cancel := range r.leases {
		cancel()
		delete(r.leases, id)
	}
	r.mu.Unlock()
	return r.client.Close()
}
