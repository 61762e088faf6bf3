// Package sfdp decodes JEDEC JESD216 Serial Flash Discoverable Parameters:
// the header chain, the mandatory Basic Parameters Table, and the optional
// Sector Map Table. It never performs bus I/O itself; it only interprets
// bytes a caller has already read from the flash's SFDP address space.
package sfdp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrParsingFailed covers every malformed, unsupported, or absent table
// the parser encounters.
var ErrParsingFailed = errors.New("sfdp: parsing failed")

const (
	basicTableIDLSB  = 0x00
	basicTableIDMSB  = 0xFF
	sectorMapIDLSB   = 0x81
	sectorMapIDMSB   = 0xFF
	basicTableMaxLen = 64
)

// Reader is the narrow capability the parser needs from the transport: a
// byte-addressed read of the SFDP space.
type Reader interface {
	ReadSFDP(addr uint32, out []byte) error
}

// Buffer lets tests exercise the parser against a canned SFDP image
// without any bus involved.
type Buffer []byte

func (b Buffer) ReadSFDP(addr uint32, out []byte) error {
	addr &= 0x00FFFFFF
	if int(addr)+len(out) > len(b) {
		return fmt.Errorf("sfdp: read past end of buffer")
	}
	copy(out, b[addr:])
	return nil
}

type parameterHeader struct {
	idLSB        byte
	minorRev     byte
	majorRev     byte
	lengthDwords byte
	tableAddr    uint32
	idMSB        byte
}

// Tables holds the raw bytes of the two tables this driver understands.
// SectorMap is nil when the device does not publish one.
type Tables struct {
	Basic     []byte
	SectorMap []byte
}

// Discover reads the SFDP header chain and returns the raw bytes of the
// Basic Parameters Table and, if present, the Sector Map Table.
func Discover(r Reader) (*Tables, error) {
	var hdr [8]byte
	if err := r.ReadSFDP(0, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrParsingFailed, err)
	}
	if string(hdr[0:4]) != "SFDP" {
		return nil, fmt.Errorf("%w: missing SFDP signature", ErrParsingFailed)
	}
	if hdr[5] != 1 {
		return nil, fmt.Errorf("%w: unsupported SFDP minor version %d", ErrParsingFailed, hdr[5])
	}
	headerCount := int(hdr[6]) + 1

	var basic, sectorMap []byte
	for i := 0; i < headerCount; i++ {
		off := uint32(8 + i*8)
		var raw [8]byte
		if err := r.ReadSFDP(off, raw[:]); err != nil {
			return nil, fmt.Errorf("%w: reading parameter header %d: %v", ErrParsingFailed, i, err)
		}
		ph := parameterHeader{
			idLSB:        raw[0],
			minorRev:     raw[1],
			majorRev:     raw[2],
			lengthDwords: raw[3],
			tableAddr:    binary.LittleEndian.Uint32(raw[4:8]) & 0x00FFFFFF,
			idMSB:        raw[7],
		}
		if ph.majorRev != 1 {
			continue
		}

		switch {
		case ph.idLSB == basicTableIDLSB && ph.idMSB == basicTableIDMSB:
			n := int(ph.lengthDwords) * 4
			if n > basicTableMaxLen {
				n = basicTableMaxLen
			}
			buf := make([]byte, n)
			if err := r.ReadSFDP(ph.tableAddr, buf); err != nil {
				return nil, fmt.Errorf("%w: reading basic parameters table: %v", ErrParsingFailed, err)
			}
			basic = buf
		case ph.idLSB == sectorMapIDLSB && ph.idMSB == sectorMapIDMSB:
			n := int(ph.lengthDwords) * 4
			buf := make([]byte, n)
			if err := r.ReadSFDP(ph.tableAddr, buf); err != nil {
				return nil, fmt.Errorf("%w: reading sector map table: %v", ErrParsingFailed, err)
			}
			sectorMap = buf
		}
	}

	if basic == nil {
		return nil, fmt.Errorf("%w: no basic parameters table found", ErrParsingFailed)
	}

	return &Tables{Basic: basic, SectorMap: sectorMap}, nil
}
