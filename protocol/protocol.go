// Package protocol implements the fixed binary layout of an IPC message buffer.
//
// Every command and every reply is written into one 0x100-byte message buffer.
// The kernel reads the headers and descriptors to translate the message into
// the peer's buffer, so every bit position here is dictated by the kernel ABI.
//
// Message buffer layout:
//
//	0        8     12      20             data words                     end
//	┌────────┬─────┬───────┬─────────┬─────┬─────────────────────────┬──────────┐
//	│ header │ sph │  pid  │ handles │desc │ pad │ [dom] │ data ...  │ recv     │
//	│ 2×u32  │ u32 │  u64  │ u32 × n │     │ →16 │ hdr   │ hdr + raw │ statics  │
//	└────────┴─────┴───────┴─────────┴─────┴─────────────────────────┴──────────┘
//
//	header   CommandHeader (command type, descriptor counts, data word count)
//	sph      SpecialHeader, present only when pid or handles are sent
//	desc     send statics (8B) | send (12B) | receive (12B) | exchange (12B) buffers
//	data     raw data words; CMIF aligns the payload to 16 bytes from the buffer
//	         start and prefixes it with a DataHeader (and a domain header)
//	recv     receive static descriptors (8B) follow the data words
package protocol

const (
	// MessageBufferSize is the size of one per-caller message buffer.
	MessageBufferSize = 0x100

	// DataPadding is the slack added to the data size so the payload can be
	// realigned to 16 bytes wherever the descriptors end.
	DataPadding = 16

	// ReceiveStaticUnbounded is the in-memory count for an "unbounded"
	// receive static list (encoded as type 2).
	ReceiveStaticUnbounded = 0xFF
)

// CommandType is the CMIF command kind in the low 16 bits of the header.
type CommandType uint32

const (
	CommandTypeInvalid            CommandType = 0
	CommandTypeLegacyRequest      CommandType = 1
	CommandTypeClose              CommandType = 2
	CommandTypeLegacyControl      CommandType = 3
	CommandTypeRequest            CommandType = 4
	CommandTypeControl            CommandType = 5
	CommandTypeRequestWithContext CommandType = 6
	CommandTypeControlWithContext CommandType = 7
)

// IsRequest reports Request and RequestWithContext.
func (t CommandType) IsRequest() bool {
	return t == CommandTypeRequest || t == CommandTypeRequestWithContext
}

// IsControl reports Control and ControlWithContext.
func (t CommandType) IsControl() bool {
	return t == CommandTypeControl || t == CommandTypeControlWithContext
}

// HasContext reports the *WithContext kinds, answered with DataHeader version 1.
func (t CommandType) HasContext() bool {
	return t == CommandTypeRequestWithContext || t == CommandTypeControlWithContext
}

func (t CommandType) String() string {
	switch t {
	case CommandTypeInvalid:
		return "Invalid"
	case CommandTypeLegacyRequest:
		return "LegacyRequest"
	case CommandTypeClose:
		return "Close"
	case CommandTypeLegacyControl:
		return "LegacyControl"
	case CommandTypeRequest:
		return "Request"
	case CommandTypeControl:
		return "Control"
	case CommandTypeRequestWithContext:
		return "RequestWithContext"
	case CommandTypeControlWithContext:
		return "ControlWithContext"
	}
	return "Unknown"
}

// DomainCommandType selects what a domain request does with its target object.
type DomainCommandType uint8

const (
	DomainCommandTypeInvalid     DomainCommandType = 0
	DomainCommandTypeSendMessage DomainCommandType = 1
	DomainCommandTypeClose       DomainCommandType = 2
)

// ControlRequestID identifies the session control commands.
type ControlRequestID uint32

const (
	ControlConvertCurrentObjectToDomain ControlRequestID = 0
	ControlCopyFromCurrentDomain        ControlRequestID = 1
	ControlCloneCurrentObject           ControlRequestID = 2
	ControlQueryPointerBufferSize       ControlRequestID = 3
	ControlCloneCurrentObjectEx         ControlRequestID = 4
)

// TIPC has no data header: the request id rides in the command type.
const (
	TipcCommandTypeBase = 16
	TipcCloseSession    = 15
	TipcMaxRequestID    = 0xFFFF - TipcCommandTypeBase
)

// Handle is a kernel handle value as carried in the handle lists.
type Handle uint32

// InvalidHandle is the zero handle.
const InvalidHandle Handle = 0
