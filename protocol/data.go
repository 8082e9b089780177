package protocol

// Data header magics: "SFCI" on requests, "SFCO" on replies.
const (
	InDataHeaderMagic  uint32 = 0x49434653
	OutDataHeaderMagic uint32 = 0x4F434653
)

// DataHeader opens the CMIF payload. Value carries the request id on the way
// in and the result code on the way out.
type DataHeader struct {
	Magic   uint32
	Version uint32
	Value   uint32
	Token   uint32
}

func NewDataHeader(magic, version, value, token uint32) DataHeader {
	return DataHeader{Magic: magic, Version: version, Value: value, Token: token}
}

// DomainInDataHeader precedes the DataHeader of a request sent to a domain.
// DataSize covers the DataHeader and the raw data; the ids of ObjectCount
// input objects follow right after that.
type DomainInDataHeader struct {
	CommandType    DomainCommandType
	ObjectCount    uint8
	DataSize       uint16
	DomainObjectID uint32
	Padding        uint32
	Token          uint32
}

func NewDomainInDataHeader(commandType DomainCommandType, objectCount uint8, dataSize uint16, domainObjectID, token uint32) DomainInDataHeader {
	return DomainInDataHeader{
		CommandType:    commandType,
		ObjectCount:    objectCount,
		DataSize:       dataSize,
		DomainObjectID: domainObjectID,
		Token:          token,
	}
}

// DomainOutDataHeader precedes the DataHeader of a reply from a domain. The
// ids of OutObjectCount returned objects follow the DataHeader and raw data.
type DomainOutDataHeader struct {
	OutObjectCount uint32
	Padding        [3]uint32
}

func NewDomainOutDataHeader(outObjectCount uint32) DomainOutDataHeader {
	return DomainOutDataHeader{OutObjectCount: outObjectCount}
}

// Wire sizes of the fixed structures.
var (
	CommandHeaderSize           = SizeOf[CommandHeader]()
	SpecialHeaderSize           = SizeOf[SpecialHeader]()
	BufferDescriptorSize        = SizeOf[BufferDescriptor]()
	SendStaticDescriptorSize    = SizeOf[SendStaticDescriptor]()
	ReceiveStaticDescriptorSize = SizeOf[ReceiveStaticDescriptor]()
	DataHeaderSize              = SizeOf[DataHeader]()
	DomainInDataHeaderSize      = SizeOf[DomainInDataHeader]()
	DomainOutDataHeaderSize     = SizeOf[DomainOutDataHeader]()
)

// AlignedDataOffset returns the first 16-byte aligned offset at or after
// dataWordsOffset, measured from the start of the message buffer.
func AlignedDataOffset(dataWordsOffset int) int {
	return alignUp(dataWordsOffset, 16)
}

// AlignDown rounds off down to a multiple of align (a power of two).
func AlignDown(off, align int) int {
	return off &^ (align - 1)
}

// AlignUp rounds off up to a multiple of align (a power of two).
func AlignUp(off, align int) int {
	return alignUp(off, align)
}
