package sfdp

import (
	"fmt"

	"github.com/dgreave/qspiflash/qspi"
)

// MaxRegions bounds the number of erase regions this driver will track,
// matching the descriptor's fixed-size region arrays.
const MaxRegions = 32

// EraseType is one of a device's up to four supported erase granularities.
type EraseType struct {
	Opcode    byte
	SizeBytes uint32
}

// ReadMode is the fastest read mode the Basic Parameters Table supports,
// together with the bus configuration needed to use it.
type ReadMode struct {
	Opcode             byte
	InstWidth          qspi.BusWidth
	AddrWidth          qspi.BusWidth
	DataWidth          qspi.BusWidth
	DummyAndModeCycles uint8
	RequiresQE         bool
	RequiresQPI        bool
}

// QEAction names how the Quad Enable bit (if any) must be set.
type QEAction int

const (
	QENone QEAction = iota
	QESetStatusReg2Bit1
	QESetStatusReg1Bit6
	QESetStatusReg1Bit7
	QEWarnUnknown
)

// QPIAction names the sequence used to enter 4-4-4 QPI mode.
type QPIAction int

const (
	QPINone QPIAction = iota
	QPISend0x38
	QPISend0x35
	QPIConfigRegBit6Via0x800003
	QPIConfigRegBit7NoAddr
	QPIWarnUnknown
)

// FourByteAction names the sequence used to reach 32-bit addressing, or
// the extended-address-register fallback that stays at 24-bit addressing.
type FourByteAction int

const (
	FourByteKeep24 FourByteAction = iota
	FourByteNative32
	FourByteEnter0xB7
	FourByteWELThen0xB7
	FourByteBankRegVia0xB5_0xB1
	FourByteWrite0x80Via0x17
	FourByteExtAddrRegister
)

// SoftResetKind names the reset sequence the Basic Parameters Table
// advertises.
type SoftResetKind int

const (
	SoftResetNone SoftResetKind = iota
	SoftResetSingleF0
	SoftResetEnableThen66_99
)

// Region is one entry of a decoded Sector Map Table, or the single
// fallback region synthesized when no table is present.
type Region struct {
	SizeBytes          uint32
	HighBoundary       uint64
	EraseTypesBitfield uint8
}

// Result is the fully-decoded Basic Parameters Table: every field the
// capability resolver derives, plus the actions still owed to the device
// (quad-enable, QPI-enable, 4-byte-addressing, soft-reset) which the
// caller executes with real bus I/O. ResolveBasicParameters never touches
// the bus.
type Result struct {
	DeviceSizeBytes uint64
	PageSizeBytes   uint32

	DefaultReadOpcode    byte
	DefaultProgramOpcode byte
	Legacy4KOpcode       byte

	ReadMode ReadMode

	EraseTypes         [4]EraseType
	MinCommonEraseSize uint32

	QE   QEAction
	QPI  QPIAction
	Four FourByteAction

	SoftReset SoftResetKind

	Warnings []string
}

const unsupportedOpcode = 0xFF

func bit(b byte, n int) bool {
	return b&(1<<n) != 0
}

// ResolveBasicParameters implements the capability resolver: it interprets
// a raw Basic Parameters Table and returns every descriptor field it can
// derive, plus the actions the caller still needs to execute against the
// real device (quad-enable, QPI-enable, 4-byte addressing, soft reset).
func ResolveBasicParameters(bpt []byte) (*Result, error) {
	if len(bpt) < 16 {
		return nil, fmt.Errorf("%w: basic parameters table too short (%d bytes)", ErrParsingFailed, len(bpt))
	}

	r := &Result{}

	density := u32le(bpt[4:8])
	if density&0x80000000 != 0 {
		return nil, fmt.Errorf("%w: density field signals unsupported extended encoding", ErrParsingFailed)
	}
	r.DeviceSizeBytes = (uint64(density) + 1) / 8

	r.DefaultReadOpcode = 0x03
	r.DefaultProgramOpcode = 0x02
	r.Legacy4KOpcode = bpt[1]

	if len(bpt) > 40 {
		r.PageSizeBytes = 1 << (bpt[40] >> 4)
	} else {
		r.PageSizeBytes = 256
	}

	softReset, err := resolveSoftReset(bpt)
	if err != nil {
		return nil, err
	}
	r.SoftReset = softReset

	resolveEraseTypes(bpt, r)
	resolveBestReadMode(bpt, r)
	resolveQuadEnable(bpt, r)
	resolveQPIEnable(bpt, r)
	resolveFourByteAddressing(bpt, r)

	return r, nil
}

func u32le(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// resolveSoftReset implements the soft-reset byte decode. Unlike the
// other BPT fields, a device that advertises neither reset method is a
// hard discovery failure: there is no way to return it to a known state
// after the mutating sequences discovery itself performs.
func resolveSoftReset(bpt []byte) (SoftResetKind, error) {
	if len(bpt) <= 61 {
		return SoftResetNone, fmt.Errorf("%w: basic parameters table too short for the soft-reset byte", ErrParsingFailed)
	}
	b := bpt[61]
	switch {
	case bit(b, 3):
		return SoftResetSingleF0, nil
	case bit(b, 4):
		return SoftResetEnableThen66_99, nil
	default:
		return SoftResetNone, fmt.Errorf("%w: device advertises no soft-reset method", ErrParsingFailed)
	}
}

func resolveEraseTypes(bpt []byte, r *Result) {
	haveAtLeast4K := false

	for i := 0; i < 4; i++ {
		r.EraseTypes[i] = EraseType{Opcode: unsupportedOpcode}

		off := 28 + 2*i
		if len(bpt) <= off+1 {
			continue
		}
		encodedSize := bpt[off]
		opcode := bpt[off+1]
		size := uint32(1) << encodedSize
		if size <= 2 {
			continue
		}

		r.EraseTypes[i] = EraseType{Opcode: opcode, SizeBytes: size}
		if r.MinCommonEraseSize == 0 || size < r.MinCommonEraseSize {
			r.MinCommonEraseSize = size
		}
		if size >= 4096 {
			haveAtLeast4K = true
		}
		if size == 4096 && opcode != r.Legacy4KOpcode {
			r.Warnings = append(r.Warnings, fmt.Sprintf(
				"sfdp: erase type %d reports a 4KiB opcode (0x%02X) that differs from the legacy opcode (0x%02X); using the discovered one",
				i+1, opcode, r.Legacy4KOpcode))
			r.Legacy4KOpcode = opcode
		}
	}

	if !haveAtLeast4K {
		r.Warnings = append(r.Warnings, "sfdp: no erase type reports a size of 4KiB or larger")
	}
}

func resolveBestReadMode(bpt []byte, r *Result) {
	has := func(idx int) bool { return len(bpt) > idx }

	dummyAndMode := func(precedingByteIdx int) uint8 {
		if !has(precedingByteIdx) {
			return 0
		}
		b := bpt[precedingByteIdx]
		return (b >> 5) + (b & 0x1F)
	}

	switch {
	case has(16) && bit(bpt[16], 4) && has(27):
		r.ReadMode = ReadMode{
			Opcode: bpt[27], InstWidth: qspi.Quad, AddrWidth: qspi.Quad, DataWidth: qspi.Quad,
			DummyAndModeCycles: dummyAndMode(26), RequiresQE: true, RequiresQPI: true,
		}
	case has(2) && bit(bpt[2], 5) && has(9):
		r.ReadMode = ReadMode{
			Opcode: bpt[9], InstWidth: qspi.Single, AddrWidth: qspi.Quad, DataWidth: qspi.Quad,
			DummyAndModeCycles: dummyAndMode(8), RequiresQE: true,
		}
	case has(2) && bit(bpt[2], 6) && has(11):
		r.ReadMode = ReadMode{
			Opcode: bpt[11], InstWidth: qspi.Single, AddrWidth: qspi.Single, DataWidth: qspi.Quad,
			DummyAndModeCycles: dummyAndMode(10), RequiresQE: true,
		}
	case has(16) && bit(bpt[16], 0) && has(23):
		r.ReadMode = ReadMode{
			Opcode: bpt[23], InstWidth: qspi.Dual, AddrWidth: qspi.Dual, DataWidth: qspi.Dual,
			DummyAndModeCycles: dummyAndMode(22),
		}
	case has(2) && bit(bpt[2], 4) && has(15):
		r.ReadMode = ReadMode{
			Opcode: bpt[15], InstWidth: qspi.Single, AddrWidth: qspi.Dual, DataWidth: qspi.Dual,
			DummyAndModeCycles: dummyAndMode(14),
		}
	case has(2) && bit(bpt[2], 0) && has(13):
		r.ReadMode = ReadMode{
			Opcode: bpt[13], InstWidth: qspi.Single, AddrWidth: qspi.Single, DataWidth: qspi.Dual,
			DummyAndModeCycles: dummyAndMode(12),
		}
	default:
		r.ReadMode = ReadMode{
			Opcode: 0x03, InstWidth: qspi.Single, AddrWidth: qspi.Single, DataWidth: qspi.Single,
		}
	}
}

func resolveQuadEnable(bpt []byte, r *Result) {
	if !r.ReadMode.RequiresQE {
		r.QE = QENone
		return
	}
	if len(bpt) <= 58 {
		r.QE = QENone
		return
	}
	switch (bpt[58] >> 4) & 0x07 {
	case 0:
		r.QE = QENone
	case 1, 4, 5:
		r.QE = QESetStatusReg2Bit1
	case 2:
		r.QE = QESetStatusReg1Bit6
	case 3:
		r.QE = QESetStatusReg1Bit7
	case 6, 7:
		r.QE = QEWarnUnknown
		r.Warnings = append(r.Warnings, "sfdp: unrecognized quad-enable dialect, proceeding without it")
	}
}

func resolveQPIEnable(bpt []byte, r *Result) {
	if !r.ReadMode.RequiresQPI {
		r.QPI = QPINone
		return
	}
	if len(bpt) <= 56 {
		r.QPI = QPINone
		return
	}
	b := bpt[56]
	combined := (b >> 4) | ((b & 0x0F) << 4)
	switch combined {
	case 1, 2:
		r.QPI = QPISend0x38
	case 4:
		r.QPI = QPISend0x35
	case 8:
		r.QPI = QPIConfigRegBit6Via0x800003
	case 16:
		r.QPI = QPIConfigRegBit7NoAddr
	default:
		r.QPI = QPIWarnUnknown
		r.Warnings = append(r.Warnings, "sfdp: unrecognized QPI-enable dialect, proceeding without it")
	}
}

func resolveFourByteAddressing(bpt []byte, r *Result) {
	if len(bpt) <= 63 {
		r.Four = FourByteKeep24
		return
	}
	b := bpt[63]
	switch {
	case bit(b, 6):
		r.Four = FourByteNative32
	case bit(b, 0):
		r.Four = FourByteEnter0xB7
	case bit(b, 1):
		r.Four = FourByteWELThen0xB7
	case bit(b, 4):
		r.Four = FourByteBankRegVia0xB5_0xB1
	case bit(b, 3):
		r.Four = FourByteWrite0x80Via0x17
	case bit(b, 2):
		r.Four = FourByteExtAddrRegister
	default:
		r.Four = FourByteKeep24
	}
}

// ResolveSectorMap implements the Sector Map Table decode. Only the simple
// single-descriptor map shape is supported, matching the driver's
// Non-goal of not chasing every vendor's nested-descriptor dialect. The
// returned commonBitfield is the AND of every region's erase-type
// bitfield; the caller combines it with the Basic Parameters Table's
// erase-type sizes to get min_common_erase_size.
func ResolveSectorMap(smt []byte) (regions []Region, commonBitfield uint8, err error) {
	if len(smt) < 4 {
		return nil, 0, fmt.Errorf("%w: sector map table too short", ErrParsingFailed)
	}
	dword0 := u32le(smt[0:4])
	if dword0&0x03 != 0x03 {
		return nil, 0, fmt.Errorf("%w: unsupported sector map descriptor shape", ErrParsingFailed)
	}
	if (dword0>>8)&0xFF != 0 {
		return nil, 0, fmt.Errorf("%w: unsupported sector map descriptor shape", ErrParsingFailed)
	}
	regionsCount := int((dword0>>16)&0xFF) + 1
	if regionsCount > MaxRegions {
		return nil, 0, fmt.Errorf("%w: sector map has %d regions, more than the %d maximum", ErrParsingFailed, regionsCount, MaxRegions)
	}
	if len(smt) < 4+4*regionsCount {
		return nil, 0, fmt.Errorf("%w: sector map table truncated", ErrParsingFailed)
	}

	regions = make([]Region, regionsCount)
	commonBitfield = 0x0F
	var boundary uint64
	for i := 0; i < regionsCount; i++ {
		dword := u32le(smt[4+4*i : 8+4*i])
		size := (((dword >> 8) & 0x00FFFFFF) + 1) * 256
		bf := uint8(dword & 0x0F)

		boundary += uint64(size)
		regions[i] = Region{
			SizeBytes:          size,
			HighBoundary:       boundary - 1,
			EraseTypesBitfield: bf,
		}
		commonBitfield &= bf
	}

	return regions, commonBitfield, nil
}
