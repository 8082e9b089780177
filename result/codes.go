package result

// Kernel results.
const ModuleKernel = 1

var (
	ResultOutOfSessions     = Make(ModuleKernel, 7)
	ResultInvalidSize       = Make(ModuleKernel, 101)
	ResultInvalidAddress    = Make(ModuleKernel, 102)
	ResultInvalidHandle     = Make(ModuleKernel, 114)
	ResultTimeout           = Make(ModuleKernel, 117)
	ResultOperationCanceled = Make(ModuleKernel, 118)
	ResultNotFound          = Make(ModuleKernel, 121)
	ResultSessionClosed     = Make(ModuleKernel, 123)
	ResultInvalidState      = Make(ModuleKernel, 125)
)

// Service framework (CMIF) results.
const ModuleCmif = 10

var (
	ResultInvalidHeaderSize       = Make(ModuleCmif, 202)
	ResultInvalidInputHeader      = Make(ModuleCmif, 211)
	ResultInvalidOutputHeader     = Make(ModuleCmif, 212)
	ResultInvalidCommandRequestID = Make(ModuleCmif, 221)
	ResultInvalidInObjectCount    = Make(ModuleCmif, 235)
	ResultInvalidOutObjectCount   = Make(ModuleCmif, 236)
)

// Service manager results.
const ModuleSm = 21

var (
	ResultInvalidClient      = Make(ModuleSm, 2)
	ResultSmOutOfSessions    = Make(ModuleSm, 3)
	ResultAlreadyRegistered  = Make(ModuleSm, 4)
	ResultInvalidServiceName = Make(ModuleSm, 6)
	ResultNotRegistered      = Make(ModuleSm, 7)
)

// Applet manager results. Busy is returned while a service is not ready yet
// and is the one code callers retry after a fixed sleep.
const ModuleAm = 128

var ResultBusy = Make(ModuleAm, 201)

// Library results. Descriptions are submodule + value.
const (
	ModuleLib = 430

	submoduleMisc   = 0
	submoduleIpc    = 600
	submoduleServer = 1300
)

var (
	ResultNotImplemented = Make(ModuleLib, submoduleMisc+1)
	ResultNotSupported   = Make(ModuleLib, submoduleMisc+2)
	ResultNotInitialized = Make(ModuleLib, submoduleMisc+3)
	ResultPanicked       = Make(ModuleLib, submoduleMisc+4)
	ResultUnknown        = Make(ModuleLib, submoduleMisc+5)
)

var (
	ResultCopyHandlesFull            = Make(ModuleLib, submoduleIpc+1)
	ResultMoveHandlesFull            = Make(ModuleLib, submoduleIpc+2)
	ResultDomainObjectsFull          = Make(ModuleLib, submoduleIpc+3)
	ResultInvalidDomainObject        = Make(ModuleLib, submoduleIpc+4)
	ResultPointerSizesFull           = Make(ModuleLib, submoduleIpc+5)
	ResultSendStaticsFull            = Make(ModuleLib, submoduleIpc+6)
	ResultReceiveStaticsFull         = Make(ModuleLib, submoduleIpc+7)
	ResultSendBuffersFull            = Make(ModuleLib, submoduleIpc+8)
	ResultReceiveBuffersFull         = Make(ModuleLib, submoduleIpc+9)
	ResultExchangeBuffersFull        = Make(ModuleLib, submoduleIpc+10)
	ResultInvalidSendStaticCount     = Make(ModuleLib, submoduleIpc+11)
	ResultInvalidReceiveStaticCount  = Make(ModuleLib, submoduleIpc+12)
	ResultInvalidSendBufferCount     = Make(ModuleLib, submoduleIpc+13)
	ResultInvalidReceiveBufferCount  = Make(ModuleLib, submoduleIpc+14)
	ResultInvalidExchangeBufferCount = Make(ModuleLib, submoduleIpc+15)
	ResultInvalidBufferAttributes    = Make(ModuleLib, submoduleIpc+16)
	ResultInvalidProtocol            = Make(ModuleLib, submoduleIpc+17)
	ResultInvalidBufferPointer       = Make(ModuleLib, submoduleIpc+18)
	ResultInvalidSizedRead           = Make(ModuleLib, submoduleIpc+19)
	ResultInvalidCopyHandleCount     = Make(ModuleLib, submoduleIpc+20)
	ResultInvalidMoveHandleCount     = Make(ModuleLib, submoduleIpc+21)
	ResultInvalidDomainObjectCount   = Make(ModuleLib, submoduleIpc+22)
	ResultInvalidPointerSizeCount    = Make(ModuleLib, submoduleIpc+23)
)

var (
	ResultObjectIDAlreadyAllocated = Make(ModuleLib, submoduleServer+1)
	ResultDomainNotFound           = Make(ModuleLib, submoduleServer+2)
	ResultInvalidCommandType       = Make(ModuleLib, submoduleServer+3)
	ResultInvalidDomainCommandType = Make(ModuleLib, submoduleServer+4)
	ResultSignaledServerNotFound   = Make(ModuleLib, submoduleServer+5)
	ResultAlreadyDomain            = Make(ModuleLib, submoduleServer+6)
)

var names = map[Code]string{
	ResultOutOfSessions:     "OutOfSessions",
	ResultInvalidSize:       "InvalidSize",
	ResultInvalidAddress:    "InvalidAddress",
	ResultInvalidHandle:     "InvalidHandle",
	ResultTimeout:           "Timeout",
	ResultOperationCanceled: "OperationCanceled",
	ResultNotFound:          "NotFound",
	ResultSessionClosed:     "SessionClosed",
	ResultInvalidState:      "InvalidState",

	ResultInvalidHeaderSize:       "InvalidHeaderSize",
	ResultInvalidInputHeader:      "InvalidInputHeader",
	ResultInvalidOutputHeader:     "InvalidOutputHeader",
	ResultInvalidCommandRequestID: "InvalidCommandRequestId",
	ResultInvalidInObjectCount:    "InvalidInObjectCount",
	ResultInvalidOutObjectCount:   "InvalidOutObjectCount",

	ResultInvalidClient:      "InvalidClient",
	ResultSmOutOfSessions:    "OutOfSessions",
	ResultAlreadyRegistered:  "AlreadyRegistered",
	ResultInvalidServiceName: "InvalidServiceName",
	ResultNotRegistered:      "NotRegistered",

	ResultBusy: "Busy",

	ResultNotImplemented: "NotImplemented",
	ResultNotSupported:   "NotSupported",
	ResultNotInitialized: "NotInitialized",
	ResultPanicked:       "Panicked",
	ResultUnknown:        "Unknown",

	ResultCopyHandlesFull:            "CopyHandlesFull",
	ResultMoveHandlesFull:            "MoveHandlesFull",
	ResultDomainObjectsFull:          "DomainObjectsFull",
	ResultInvalidDomainObject:        "InvalidDomainObject",
	ResultPointerSizesFull:           "PointerSizesFull",
	ResultSendStaticsFull:            "SendStaticsFull",
	ResultReceiveStaticsFull:         "ReceiveStaticsFull",
	ResultSendBuffersFull:            "SendBuffersFull",
	ResultReceiveBuffersFull:         "ReceiveBuffersFull",
	ResultExchangeBuffersFull:        "ExchangeBuffersFull",
	ResultInvalidSendStaticCount:     "InvalidSendStaticCount",
	ResultInvalidReceiveStaticCount:  "InvalidReceiveStaticCount",
	ResultInvalidSendBufferCount:     "InvalidSendBufferCount",
	ResultInvalidReceiveBufferCount:  "InvalidReceiveBufferCount",
	ResultInvalidExchangeBufferCount: "InvalidExchangeBufferCount",
	ResultInvalidBufferAttributes:    "InvalidBufferAttributes",
	ResultInvalidProtocol:            "InvalidProtocol",
	ResultInvalidBufferPointer:       "InvalidBufferPointer",
	ResultInvalidSizedRead:           "InvalidSizedRead",
	ResultInvalidCopyHandleCount:     "InvalidCopyHandleCount",
	ResultInvalidMoveHandleCount:     "InvalidMoveHandleCount",
	ResultInvalidDomainObjectCount:   "InvalidDomainObjectCount",
	ResultInvalidPointerSizeCount:    "InvalidPointerSizeCount",

	ResultObjectIDAlreadyAllocated: "ObjectIdAlreadyAllocated",
	ResultDomainNotFound:           "DomainNotFound",
	ResultInvalidCommandType:       "InvalidCommandType",
	ResultInvalidDomainCommandType: "InvalidDomainCommandType",
	ResultSignaledServerNotFound:   "SignaledServerNotFound",
	ResultAlreadyDomain:            "AlreadyDomain",
}
