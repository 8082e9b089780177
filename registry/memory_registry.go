package registry

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"nx-ipc/result"
)

// MemoryRegistry keeps instances in process. It is the default backend when
// every server shares one kernel.
type MemoryRegistry struct {
	mu       sync.Mutex
	services map[string]map[uuid.UUID]ServiceInstance
	watchers map[string][]chan []ServiceInstance
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		services: make(map[string]map[uuid.UUID]ServiceInstance),
		watchers: make(map[string][]chan []ServiceInstance),
	}
}

// Register adds or replaces the instance with the same id.
func (r *MemoryRegistry) Register(ctx context.Context, name string, instance ServiceInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	instances, ok := r.services[name]
	if !ok {
		instances = make(map[uuid.UUID]ServiceInstance)
		r.services[name] = instances
	}
	instance.Name = name
	instances[instance.ID] = instance
	r.publish(name)
	return nil
}

func (r *MemoryRegistry) Deregister(ctx context.Context, name string, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[name][id]; !ok {
		return result.ResultNotRegistered
	}
	delete(r.services[name], id)
	if len(r.services[name]) == 0 {
		delete(r.services, name)
	}
	r.publish(name)
	return nil
}

func (r *MemoryRegistry) Discover(ctx context.Context, name string) ([]ServiceInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(name), nil
}

func (r *MemoryRegistry) Watch(ctx context.Context, name string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	r.mu.Lock()
	r.watchers[name] = append(r.watchers[name], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		r.watchers[name] = slices.DeleteFunc(r.watchers[name], func(c chan []ServiceInstance) bool {
			return c == ch
		})
		close(ch)
	}()
	return ch
}

// list returns the instances of name in a stable order. Called with mu held.
func (r *MemoryRegistry) list(name string) []ServiceInstance {
	instances := make([]ServiceInstance, 0, len(r.services[name]))
	for _, inst := range r.services[name] {
		instances = append(instances, inst)
	}
	slices.SortFunc(instances, func(a, b ServiceInstance) int {
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return instances
}

// publish hands every watcher of name the current list, replacing one it
// has not read yet. Called with mu held.
func (r *MemoryRegistry) publish(name string) {
	if len(r.watchers[name]) == 0 {
		return
	}
	instances := r.list(name)
	for _, ch := range r.watchers[name] {
		select {
		case <-ch:
		default:
		}
		ch <- instances
	}
}
