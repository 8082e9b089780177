// Package message holds the per-call state of an IPC command.
//
// A CommandContext is built fresh for every call, right before a request is
// encoded (client) or right after one is received (server), and dropped when
// the call completes. It gathers the target object, the handles and domain
// object ids travelling each way, and the five descriptor lists.
//
//	client:  params ──Reserve──▶ CommandContext ──codec──▶ message buffer
//	server:  message buffer ──codec──▶ CommandContext ──Decode──▶ params
package message

import "nx-ipc/protocol"

// MaxCount bounds every handle, object and descriptor collection.
const MaxCount = 8

// Protocol is the wire dialect of a session, fixed when the session is opened.
type Protocol uint8

const (
	ProtocolCmif Protocol = iota
	ProtocolTipc
)

func (p Protocol) String() string {
	switch p {
	case ProtocolCmif:
		return "cmif"
	case ProtocolTipc:
		return "tipc"
	}
	return "unknown"
}

// DomainObjectID names an object multiplexed over a domain session.
type DomainObjectID = uint32

// ObjectInfo identifies one remote object.
//
// A non-zero DomainObjectID means the object lives inside a domain: Handle is
// then the parent session's handle, not a kernel object of its own.
type ObjectInfo struct {
	Handle         protocol.Handle
	DomainObjectID DomainObjectID
	OwnsHandle     bool
	Protocol       Protocol
}

// FromHandle wraps a session handle the caller now owns.
func FromHandle(h protocol.Handle) ObjectInfo {
	return ObjectInfo{Handle: h, OwnsHandle: true, Protocol: ProtocolCmif}
}

// FromDomainObjectID names a child object inside the domain behind parent.
func FromDomainObjectID(parent protocol.Handle, id DomainObjectID) ObjectInfo {
	return ObjectInfo{Handle: parent, DomainObjectID: id, Protocol: ProtocolCmif}
}

// WithProtocol returns a copy using the given dialect.
func (o ObjectInfo) WithProtocol(p Protocol) ObjectInfo {
	o.Protocol = p
	return o
}

func (o ObjectInfo) IsValid() bool {
	return o.Handle != protocol.InvalidHandle
}

func (o ObjectInfo) IsDomain() bool {
	return o.DomainObjectID != 0
}

func (o ObjectInfo) UsesCmif() bool {
	return o.Protocol == ProtocolCmif
}

func (o ObjectInfo) UsesTipc() bool {
	return o.Protocol == ProtocolTipc
}
