// Package qspi provides the transport layer between the flash driver and
// the QSPI bus controller. The controller itself is an external
// collaborator: this package only defines the shape it must satisfy and
// a framing adapter that turns descriptor-level decisions (bus width,
// dummy cycles, address size) into controller calls.
package qspi

import "fmt"

// BusWidth is the number of data lines a phase of a transaction uses.
type BusWidth uint8

const (
	Single BusWidth = 1
	Dual   BusWidth = 2
	Quad   BusWidth = 4
)

func (w BusWidth) String() string {
	switch w {
	case Single:
		return "1"
	case Dual:
		return "2"
	case Quad:
		return "4"
	default:
		return fmt.Sprintf("BusWidth(%d)", uint8(w))
	}
}

// AltBytes describes the optional mode/alternate-byte phase of a
// transaction. The driver never enters continuous-read (0-4-4) mode, so
// this is always nil in practice, but the controller interface carries it
// to match the bus's actual capability surface.
type AltBytes struct {
	Width BusWidth
	Bits  uint8
}

// Format is the bus configuration applied before a transaction. It mirrors
// configure_format's parameter list: widths for each phase, the address
// size in bits, and the dummy cycle count (which folds in any mode-bit
// cycles, since this driver never uses a distinct alt-byte phase).
type Format struct {
	InstWidth   BusWidth
	AddrWidth   BusWidth
	AddrSize    int
	AltWidth    BusWidth
	AltSize     int
	DataWidth   BusWidth
	DummyCycles uint8
}

// Default111 is the bus format used for status, enable, reset and ID
// commands: single-wide on every phase, no dummy cycles.
var Default111 = Format{
	InstWidth: Single,
	AddrWidth: Single,
	AddrSize:  24,
	DataWidth: Single,
}

// Controller is the capability the host provides to drive the physical
// QSPI bus. The driver never assumes more than this.
type Controller interface {
	SetFrequency(hz uint32) error
	ConfigureFormat(f Format) error
	CommandTransfer(opcode byte, addr *uint32, tx, rx []byte) error
	Read(opcode byte, alt *AltBytes, addr uint32, rx []byte) error
	Write(opcode byte, alt *AltBytes, addr uint32, tx []byte) error
}
