// Package registry is where service instances are published and found. The
// service manager (package sm) registers every port a server opens and looks
// instances up when a client asks for a service by name.
package registry

import (
	"context"

	"github.com/google/uuid"

	"nx-ipc/protocol"
)

// ServiceInstance is one server port offering a service.
type ServiceInstance struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Port        protocol.Handle `json:"port"`
	Weight      int             `json:"weight"` // Weight for load balancing
	MaxSessions int             `json:"max_sessions"`
	// Light services speak TIPC rather than CMIF.
	Light bool `json:"light"`
}

// NewInstance returns an instance with a fresh id and weight 1.
func NewInstance(name string, port protocol.Handle, maxSessions int) ServiceInstance {
	return ServiceInstance{
		ID:          uuid.New(),
		Name:        name,
		Port:        port,
		Weight:      1,
		MaxSessions: maxSessions,
	}
}

type Registry interface {
	Register(ctx context.Context, name string, instance ServiceInstance) error
	Deregister(ctx context.Context, name string, id uuid.UUID) error
	Discover(ctx context.Context, name string) ([]ServiceInstance, error)
	// Watch emits the full instance list whenever it changes, until ctx ends.
	Watch(ctx context.Context, name string) <-chan []ServiceInstance
}
