package qspi

import "errors"

// ErrDeviceError is returned whenever the underlying Controller fails, or
// whenever the adapter must refuse a transaction it cannot safely frame
// (a >=16MiB address with neither native 4-byte addressing nor an
// extended-address register configured).
var ErrDeviceError = errors.New("qspi: device error")

// View is the narrow slice of descriptor state the adapter needs in order
// to frame a transaction. It is satisfied by *flash.Descriptor without
// this package importing flash.
type View interface {
	AddressSize() int
	ExtendedAddrRegWriteOpcode() byte
	OpcodeNone() byte
	ReadOpcode() byte
	ReadFormat() Format
}

const sfdpReadOpcode = 0x5A
const writeEnableOpcode = 0x06

// Adapter frames descriptor-driven transactions against a Controller. It
// tracks the last format applied so that runs of same-mode operations
// don't reconfigure the bus on every call.
type Adapter struct {
	Controller Controller
	View       View

	currentFormat Format
	formatValid   bool
}

func New(c Controller, v View) *Adapter {
	return &Adapter{Controller: c, View: v}
}

func (a *Adapter) ensureFormat(f Format) error {
	if a.formatValid && a.currentFormat == f {
		return nil
	}
	if err := a.Controller.ConfigureFormat(f); err != nil {
		return errors.Join(ErrDeviceError, err)
	}
	a.currentFormat = f
	a.formatValid = true
	return nil
}

// extendedAddressPreamble implements the 4-byte extension-register update
// described for the transport adapter: if an extension register is
// configured and the address needs the top byte, write it first; if no
// extension register is configured and 3-byte addressing cannot reach the
// address, fail without issuing the real command.
func (a *Adapter) extendedAddressPreamble(addr uint32) error {
	extOp := a.View.ExtendedAddrRegWriteOpcode()
	none := a.View.OpcodeNone()

	if extOp != none && addr >= 1<<24 {
		if err := a.SendGeneral(writeEnableOpcode, nil, nil, nil); err != nil {
			return err
		}
		top := [1]byte{byte(addr >> 24)}
		return a.SendGeneral(extOp, nil, top[:], nil)
	}

	if a.View.AddressSize() == 24 && addr >= 1<<24 {
		return ErrDeviceError
	}

	return nil
}

// SendGeneral issues a 1-1-1 command: status reads, enables, resets, ID.
func (a *Adapter) SendGeneral(opcode byte, addr *uint32, tx, rx []byte) error {
	if err := a.ensureFormat(Default111); err != nil {
		return err
	}
	if err := a.Controller.CommandTransfer(opcode, addr, tx, rx); err != nil {
		return errors.Join(ErrDeviceError, err)
	}
	return nil
}

// SendRead switches to the discovered best read mode, performs the read,
// then restores 1-1-1 with zero dummy cycles.
func (a *Adapter) SendRead(opcode byte, addr uint32, buf []byte) error {
	if err := a.extendedAddressPreamble(addr); err != nil {
		return err
	}
	if err := a.ensureFormat(a.View.ReadFormat()); err != nil {
		return err
	}
	if err := a.Controller.Read(opcode, nil, addr, buf); err != nil {
		return errors.Join(ErrDeviceError, err)
	}
	return a.ensureFormat(Default111)
}

// SendProgram issues a 1-1-1 page-bounded program command. The caller is
// responsible for page alignment.
func (a *Adapter) SendProgram(opcode byte, addr uint32, buf []byte) error {
	if err := a.extendedAddressPreamble(addr); err != nil {
		return err
	}
	if err := a.ensureFormat(Default111); err != nil {
		return err
	}
	if err := a.Controller.Write(opcode, nil, addr, buf); err != nil {
		return errors.Join(ErrDeviceError, err)
	}
	return nil
}

// SendErase issues a 1-1-1 erase command. The address is masked to 4KiB
// alignment to match legacy controllers that ignore the low address bits
// on an erase transaction anyway.
func (a *Adapter) SendErase(opcode byte, addr uint32) error {
	if err := a.extendedAddressPreamble(addr); err != nil {
		return err
	}
	if err := a.ensureFormat(Default111); err != nil {
		return err
	}
	masked := addr &^ 0xFFF
	if err := a.Controller.CommandTransfer(opcode, &masked, nil, nil); err != nil {
		return errors.Join(ErrDeviceError, err)
	}
	return nil
}

// SendReadSFDP reads the SFDP address space: 1-1-1, 24-bit address, 8
// dummy cycles, regardless of whatever mode has since been discovered.
func (a *Adapter) SendReadSFDP(addr uint32, buf []byte) error {
	sfdpFormat := Format{
		InstWidth:   Single,
		AddrWidth:   Single,
		AddrSize:    24,
		DataWidth:   Single,
		DummyCycles: 8,
	}
	if err := a.ensureFormat(sfdpFormat); err != nil {
		return err
	}
	if err := a.Controller.Read(sfdpReadOpcode, nil, addr&0x00FFFFFF, buf); err != nil {
		return errors.Join(ErrDeviceError, err)
	}
	return a.ensureFormat(Default111)
}
