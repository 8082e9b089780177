package server

import (
	"context"

	"nx-ipc/version"
)

// Handler runs one command. It reads its inputs with r.Decode, queues its
// outputs with r.Reply, and returns the result put on the wire.
type Handler func(ctx context.Context, r *Request) error

// CommandMetadata is one entry of an object's command table. The same id may
// appear several times with disjoint version ranges; the first entry whose
// range holds the running version wins.
type CommandMetadata struct {
	ID       uint32
	Versions version.Interval
	Handler  Handler
}

func (m CommandMetadata) VersionInterval() version.Interval {
	return m.Versions
}

// Command is an entry valid on every version.
func Command(id uint32, h Handler) CommandMetadata {
	return CommandMetadata{ID: id, Versions: version.All(), Handler: h}
}

// Object is a server-side object reachable through a session or a domain id.
// Objects shared between sessions must be safe for concurrent use.
type Object interface {
	Commands() []CommandMetadata
}

// Named objects report the service name used in logs and metrics.
type Named interface {
	Name() string
}

// Match looks id up in table for version v. It runs on every request and
// does not allocate.
func Match(table []CommandMetadata, id uint32, v version.Version) (CommandMetadata, bool) {
	for _, m := range table {
		if m.ID == id && version.Matches(v, m.Versions) {
			return m, true
		}
	}
	return CommandMetadata{}, false
}
