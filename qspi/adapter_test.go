package qspi

import (
	"errors"
	"testing"
)

// fakeController is a minimal in-memory stand-in for a real bus
// controller: it records every call it receives so tests can assert on
// framing decisions without any hardware involved.
type fakeController struct {
	formatCalls []Format
	cmdCalls    []struct {
		opcode byte
		addr   *uint32
		tx, rx []byte
	}
	mem []byte

	failConfigure bool
}

func newFakeController(size int) *fakeController {
	return &fakeController{mem: make([]byte, size)}
}

func (f *fakeController) SetFrequency(hz uint32) error { return nil }

func (f *fakeController) ConfigureFormat(format Format) error {
	if f.failConfigure {
		return errors.New("configure failed")
	}
	f.formatCalls = append(f.formatCalls, format)
	return nil
}

func (f *fakeController) CommandTransfer(opcode byte, addr *uint32, tx, rx []byte) error {
	f.cmdCalls = append(f.cmdCalls, struct {
		opcode byte
		addr   *uint32
		tx, rx []byte
	}{opcode, addr, tx, rx})
	return nil
}

func (f *fakeController) Read(opcode byte, alt *AltBytes, addr uint32, rx []byte) error {
	copy(rx, f.mem[addr:])
	return nil
}

func (f *fakeController) Write(opcode byte, alt *AltBytes, addr uint32, tx []byte) error {
	copy(f.mem[addr:], tx)
	return nil
}

// fakeView is a fixed View used to drive the adapter in isolation from
// the flash package's Descriptor.
type fakeView struct {
	addressSize   int
	extAddrOpcode byte
	readOpcode    byte
	readFormat    Format
}

func (v fakeView) AddressSize() int                { return v.addressSize }
func (v fakeView) ExtendedAddrRegWriteOpcode() byte { return v.extAddrOpcode }
func (v fakeView) OpcodeNone() byte                 { return 0x00 }
func (v fakeView) ReadOpcode() byte                 { return v.readOpcode }
func (v fakeView) ReadFormat() Format               { return v.readFormat }

func TestAdapterCachesFormatAcrossCalls(t *testing.T) {
	fc := newFakeController(1024)
	v := fakeView{addressSize: 24, readOpcode: 0x03, readFormat: Default111}
	a := New(fc, v)

	buf := make([]byte, 4)
	if err := a.SendRead(0x03, 0, buf); err != nil {
		t.Fatalf("SendRead: %v", err)
	}
	if err := a.SendRead(0x03, 4, buf); err != nil {
		t.Fatalf("SendRead: %v", err)
	}

	// Default111 read format equals the restore format, so consecutive
	// 1-1-1 reads should not reconfigure the bus between them.
	if len(fc.formatCalls) != 1 {
		t.Errorf("formatCalls = %d, want 1 (format should be cached)", len(fc.formatCalls))
	}
}

func TestAdapterReconfiguresOnFormatChange(t *testing.T) {
	fc := newFakeController(1024)
	quadFormat := Format{InstWidth: Single, AddrWidth: Single, AddrSize: 24, DataWidth: Quad, DummyCycles: 8}
	v := fakeView{addressSize: 24, readOpcode: 0x6B, readFormat: quadFormat}
	a := New(fc, v)

	buf := make([]byte, 4)
	if err := a.SendRead(0x6B, 0, buf); err != nil {
		t.Fatalf("SendRead: %v", err)
	}

	// SendRead restores Default111 afterward, so a single call already
	// issues two distinct formats.
	if len(fc.formatCalls) != 2 {
		t.Fatalf("formatCalls = %d, want 2 (quad format then restore)", len(fc.formatCalls))
	}
	if fc.formatCalls[0] != quadFormat {
		t.Errorf("first format = %+v, want %+v", fc.formatCalls[0], quadFormat)
	}
	if fc.formatCalls[1] != Default111 {
		t.Errorf("second format = %+v, want Default111", fc.formatCalls[1])
	}
}

func TestExtendedAddressPreambleWritesTopByteWhenRegisterConfigured(t *testing.T) {
	fc := newFakeController(32 << 20)
	v := fakeView{addressSize: 24, extAddrOpcode: 0xC5, readOpcode: 0x03, readFormat: Default111}
	a := New(fc, v)

	buf := make([]byte, 4)
	const addr = 0x01_00_00_10 // above the 16MiB 3-byte addressing limit
	if err := a.SendRead(0x03, addr, buf); err != nil {
		t.Fatalf("SendRead: %v", err)
	}

	if len(fc.cmdCalls) < 2 {
		t.Fatalf("cmdCalls = %d, want at least 2 (write-enable + extension register write)", len(fc.cmdCalls))
	}
	wroteExt := false
	for _, c := range fc.cmdCalls {
		if c.opcode == 0xC5 && len(c.tx) == 1 && c.tx[0] == byte(addr>>24) {
			wroteExt = true
		}
	}
	if !wroteExt {
		t.Error("extension register was never written with the address's top byte")
	}
}

func TestExtendedAddressPreambleFailsWithoutRegisterPast16MiB(t *testing.T) {
	fc := newFakeController(32 << 20)
	v := fakeView{addressSize: 24, readOpcode: 0x03, readFormat: Default111} // no extAddrOpcode configured
	a := New(fc, v)

	buf := make([]byte, 4)
	err := a.SendRead(0x03, 0x01_00_00_10, buf)
	if !errors.Is(err, ErrDeviceError) {
		t.Fatalf("err = %v, want ErrDeviceError", err)
	}
}

func TestSendGeneralWrapsControllerFailure(t *testing.T) {
	fc := newFakeController(16)
	fc.failConfigure = true
	v := fakeView{addressSize: 24, readOpcode: 0x03, readFormat: Default111}
	a := New(fc, v)

	err := a.SendGeneral(0x06, nil, nil, nil)
	if !errors.Is(err, ErrDeviceError) {
		t.Fatalf("err = %v, want ErrDeviceError", err)
	}
}
