package flash

import "github.com/dgreave/qspiflash/qspi"

// MaxRegions bounds the size of the region arrays carried by a Descriptor.
const MaxRegions = 32

// OpcodeUnsupported marks an erase type slot that the device does not
// implement.
const OpcodeUnsupported byte = 0xFF

// OpcodeNone marks a status/extended-address-register opcode field as
// unused: SR2 written as the second byte of a two-byte SR1 write, or no
// extended-address register configured at all.
const OpcodeNone byte = 0x00

// SoftResetKind names the reset sequence a device's SFDP table advertises.
type SoftResetKind int

const (
	SoftResetNone SoftResetKind = iota
	SoftResetSingleF0
	SoftResetEnableThenReset
)

// EraseType is one of up to four device-supported erase granularities.
type EraseType struct {
	Opcode    byte
	SizeBytes uint32
}

// Region is a contiguous address range sharing one erase-type bitfield.
type Region struct {
	SizeBytes          uint32
	HighBoundary       uint64
	EraseTypesBitfield uint8
}

// Descriptor holds everything the driver derived about one physical flash
// during discovery. It is mutated only during Init and, for the ref
// count, by Init/Deinit; data operations never change it.
type Descriptor struct {
	chipSelect uint32

	deviceSizeBytes uint64
	pageSizeBytes   uint32
	addressSize     int // 24 or 32

	readInstruction    byte
	programInstruction byte
	erase4KInstruction byte

	dummyAndModeCycles uint8

	instWidth    qspi.BusWidth
	addressWidth qspi.BusWidth
	dataWidth    qspi.BusWidth

	eraseTypes [4]EraseType

	statusReg2ReadOpcode  byte
	statusReg2WriteOpcode byte

	extendedAddrRegWriteOpcode byte

	softResetKind SoftResetKind

	regions            []Region
	minCommonEraseSize uint32

	isInitialized bool
	initRefCount  uint32
}

// The following accessors let *Descriptor satisfy qspi.View without the
// qspi package importing this one.

func (d *Descriptor) AddressSize() int                { return d.addressSize }
func (d *Descriptor) ExtendedAddrRegWriteOpcode() byte { return d.extendedAddrRegWriteOpcode }
func (d *Descriptor) OpcodeNone() byte                 { return OpcodeNone }
func (d *Descriptor) ReadOpcode() byte                 { return d.readInstruction }

func (d *Descriptor) ReadFormat() qspi.Format {
	return qspi.Format{
		InstWidth:   d.instWidth,
		AddrWidth:   d.addressWidth,
		AddrSize:    d.addressSize,
		DataWidth:   d.dataWidth,
		DummyCycles: d.dummyAndModeCycles,
	}
}

// Size returns the total addressable byte size of the device.
func (d *Descriptor) Size() uint64 { return d.deviceSizeBytes }
