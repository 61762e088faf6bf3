// Package spidev implements qspi.Controller against the Linux generic SPI
// character device ("Documentation/spi/spidev.rst"). It drives the
// SPI_IOC_MESSAGE ioctl directly the same way the rest of this driver's
// ancestry drives SG_IO for SCSI generic devices: open the node, build a
// fixed-layout ioctl struct, and hand the kernel raw pointers.
package spidev

import (
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/dgreave/qspiflash/qspi"
)

// Mode bits, see linux/spi/spidev.h.
type mode uint32

const (
	modeCPHA mode = 1 << 0
	modeCPOL mode = 1 << 1
)

// Per-transfer bus-width bits understood by SPI_IOC_MESSAGE.
const (
	txDual uint8 = 1 << 0
	txQuad uint8 = 1 << 1
	rxDual uint8 = 1 << 2
	rxQuad uint8 = 1 << 3
)

const (
	iocRdMode       = 0x80016b01
	iocWrMode       = 0x40016b01
	iocRdMaxSpeedHz = 0x80046b04
	iocWrMaxSpeedHz = 0x40046b04
)

// iocTransfer mirrors struct spi_ioc_transfer from linux/spi/spidev.h.
type iocTransfer struct {
	TxBuf          uint64
	RxBuf          uint64
	Length         uint32
	SpeedHz        uint32
	DelayUsecs     uint16
	BitsPerWord    uint8
	CSChange       uint8
	TxNBits        uint8
	RxNBits        uint8
	WordDelayUsecs uint8
	Pad            uint8
}

func iocMessage(n int) uint32 {
	const sizeShift = 16
	size := uint32(n * int(unsafe.Sizeof(iocTransfer{})))
	return 0x40006b00 | (size << sizeShift)
}

// Device drives a single chip-select over /dev/spidevB.D.
type Device struct {
	f       *os.File
	speedHz uint32
	format  qspi.Format
}

// Open opens the given spidev node, e.g. "/dev/spidev0.0".
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &Device{f: f, speedHz: 1_000_000}, nil
}

func (d *Device) Close() error {
	return d.f.Close()
}

func (d *Device) SetFrequency(hz uint32) error {
	if err := ioctlU32(d.f.Fd(), iocWrMaxSpeedHz, hz); err != nil {
		return err
	}
	d.speedHz = hz
	return nil
}

func (d *Device) ConfigureFormat(f qspi.Format) error {
	// spidev has no notion of per-phase bus width at the mode level; the
	// width is instead carried per-transfer below. We only remember it.
	d.format = f
	return nil
}

func widthBits(f qspi.Format) (tx, rx uint8) {
	if f.AddrWidth == qspi.Quad || f.DataWidth == qspi.Quad {
		tx |= txQuad
		rx |= rxQuad
	} else if f.AddrWidth == qspi.Dual || f.DataWidth == qspi.Dual {
		tx |= txDual
		rx |= rxDual
	}
	return
}

func (d *Device) transfer(tx, rx []byte) error {
	if len(tx) == 0 && len(rx) == 0 {
		return nil
	}

	txBits, rxBits := widthBits(d.format)

	var transfers []iocTransfer
	if len(tx) > 0 {
		transfers = append(transfers, iocTransfer{
			TxBuf:   uint64(uintptr(unsafe.Pointer(&tx[0]))),
			Length:  uint32(len(tx)),
			SpeedHz: d.speedHz,
			TxNBits: txBits,
			CSChange: boolToU8(len(rx) > 0),
		})
	}
	if len(rx) > 0 {
		t := iocTransfer{
			RxBuf:   uint64(uintptr(unsafe.Pointer(&rx[0]))),
			Length:  uint32(len(rx)),
			SpeedHz: d.speedHz,
			RxNBits: rxBits,
		}
		transfers = append(transfers, t)
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(),
		uintptr(iocMessage(len(transfers))), uintptr(unsafe.Pointer(&transfers[0])))
	if errno != 0 {
		return errno
	}
	return nil
}

func boolToU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func addressBytes(addr uint32, size int) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, addr)
	if size == 24 {
		return buf[1:]
	}
	return buf
}

func (d *Device) CommandTransfer(opcode byte, addr *uint32, tx, rx []byte) error {
	frame := []byte{opcode}
	if addr != nil {
		frame = append(frame, addressBytes(*addr, d.format.AddrSize)...)
	}
	frame = append(frame, tx...)
	if len(rx) == 0 {
		return d.transfer(frame, nil)
	}
	if err := d.transfer(frame, nil); err != nil {
		return err
	}
	return d.transfer(nil, rx)
}

func (d *Device) Read(opcode byte, alt *qspi.AltBytes, addr uint32, rx []byte) error {
	frame := append([]byte{opcode}, addressBytes(addr, d.format.AddrSize)...)
	for i := uint8(0); i < d.format.DummyCycles/8; i++ {
		frame = append(frame, 0x00)
	}
	if err := d.transfer(frame, nil); err != nil {
		return err
	}
	return d.transfer(nil, rx)
}

func (d *Device) Write(opcode byte, alt *qspi.AltBytes, addr uint32, tx []byte) error {
	frame := append([]byte{opcode}, addressBytes(addr, d.format.AddrSize)...)
	frame = append(frame, tx...)
	return d.transfer(frame, nil)
}

func ioctlU32(fd uintptr, ioc uintptr, v uint32) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, ioc, uintptr(unsafe.Pointer(&v)))
	if errno != 0 {
		return fmt.Errorf("spidev ioctl: %w", errno)
	}
	return nil
}

// Mode reads back the SPI mode bits currently configured on the node.
func (d *Device) Mode() (uint32, error) {
	var m uint32
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), iocRdMode, uintptr(unsafe.Pointer(&m)))
	if errno != 0 {
		return 0, errno
	}
	return m, nil
}

// SetMode sets CPOL/CPHA. Flash parts conventionally run in mode 0.
func (d *Device) SetMode(cpol, cpha bool) error {
	var m mode
	if cpol {
		m |= modeCPOL
	}
	if cpha {
		m |= modeCPHA
	}
	return ioctlU32(d.f.Fd(), iocWrMode, uint32(m))
}
