// Package transport provides the kernel side of IPC: sessions, ports and the
// synchronous request/reply exchange that moves a message buffer from a
// client to a server and back.
//
// A call on a session, as the kernel sees it:
//
//	client                         kernel                         server
//	  │ SendSyncRequest(h, msg)      │                              │ Receive(msg, handles)
//	  │─────────────────────────────▶│ copy header, handles, pid    │
//	  │        (blocked)             │ copy send statics into the   │
//	  │                              │ server's receive list ──────▶│ dispatch
//	  │                              │                              │ Reply(h, msg)
//	  │                              │◀─────────────────────────────│
//	  │◀─────────────────────────────│ copy reply, reply statics    │
//	  │ read reply in msg            │ into the client's receive    │
//	  │                              │ statics by index             │
//
// Map-alias buffers are not copied: both ends see the same memory.
package transport

import (
	"context"

	"nx-ipc/protocol"
)

// Kernel is what a client needs from the kernel.
type Kernel interface {
	// SendSyncRequest sends the request in msg on session h and blocks until
	// the reply has been written back into msg. If ctx ends first the call
	// returns ResultOperationCanceled and the eventual reply is discarded.
	SendSyncRequest(ctx context.Context, h protocol.Handle, msg []byte) error
	CloseHandle(h protocol.Handle) error
	// ProcessID is the id stamped into requests that send a pid.
	ProcessID() uint64

	ConnectToPort(ctx context.Context, port protocol.Handle) (protocol.Handle, error)
	ConnectToNamedPort(ctx context.Context, name string) (protocol.Handle, error)
}

// ServerKernel is what a server needs on top of Kernel.
type ServerKernel interface {
	Kernel

	// CreateSession returns both ends of a new session.
	CreateSession() (server, client protocol.Handle, err error)
	CreatePort(maxSessions int) (protocol.Handle, error)
	RegisterNamedPort(name string, maxSessions int) (protocol.Handle, error)
	// AcceptSession returns the server end of the next pending connection.
	AcceptSession(port protocol.Handle) (protocol.Handle, error)

	// Receive waits until one of handles is signaled and returns its index.
	// A signaled server session has had its next request copied into msg.
	// A session whose client has gone away yields ResultSessionClosed along
	// with its index.
	Receive(ctx context.Context, msg []byte, handles []protocol.Handle) (int, error)
	// Reply completes the request in flight on server session h.
	Reply(h protocol.Handle, msg []byte) error

	// CreateEvent returns an auto-clearing event. Receive reports it once
	// per SignalEvent.
	CreateEvent() (protocol.Handle, error)
	SignalEvent(h protocol.Handle) error
}
