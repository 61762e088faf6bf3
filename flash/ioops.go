package flash

import "fmt"

// EraseValue is the byte value flash reads back as after an erase.
const EraseValue byte = 0xFF

// Size returns the device's total addressable byte size.
func (d *Device) Size() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.desc.deviceSizeBytes
}

// GetReadSize returns the host-configured minimum read granularity.
func (d *Device) GetReadSize() uint32 {
	if d.cfg.MinReadSize == 0 {
		return 1
	}
	return d.cfg.MinReadSize
}

// GetProgramSize returns the host-configured minimum program granularity.
func (d *Device) GetProgramSize() uint32 {
	if d.cfg.MinProgramSize == 0 {
		return 1
	}
	return d.cfg.MinProgramSize
}

// GetEraseSize returns the minimum erase-type size common to every
// region on the device.
func (d *Device) GetEraseSize() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.desc.GetEraseSize()
}

// GetEraseSizeAt returns the smallest erase-type size supported at addr.
func (d *Device) GetEraseSizeAt(addr uint64) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.desc.GetEraseSizeAt(addr)
}

// GetEraseValue returns the byte value an erased region reads back as.
func (d *Device) GetEraseValue() byte { return EraseValue }

// Read performs a single QSPI read of size bytes starting at addr, using
// the best mode the capability resolver discovered. Like Program, and
// unlike Erase, a read has no alignment requirement.
func (d *Device) Read(addr uint64, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.desc.isInitialized {
		return fmt.Errorf("%w: device not initialized", ErrDeviceError)
	}
	if addr+uint64(len(buf)) > d.desc.deviceSizeBytes {
		return fmt.Errorf("%w: read past end of device", ErrDeviceError)
	}
	if len(buf) == 0 {
		return nil
	}

	return d.wrapErr(d.adapter.SendRead(d.desc.readInstruction, uint32(addr), buf))
}

// Program splits data on the page boundary and, per page, write-enables,
// programs, and polls memory-ready. A short write reported by the
// transport is treated as a device error: the caller's byte accounting
// of what actually landed is only trustworthy if every requested byte
// was either fully written or the call failed outright.
func (d *Device) Program(addr uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.desc.isInitialized {
		return fmt.Errorf("%w: device not initialized", ErrDeviceError)
	}
	if addr+uint64(len(data)) > d.desc.deviceSizeBytes {
		return fmt.Errorf("%w: program past end of device", ErrDeviceError)
	}

	pageSize := uint64(d.desc.pageSizeBytes)
	for len(data) > 0 {
		offsetInPage := addr % pageSize
		chunk := pageSize - offsetInPage
		if chunk > uint64(len(data)) {
			chunk = uint64(len(data))
		}

		page := data[:chunk]
		if err := d.withWriteEnable(func() error {
			return d.wrapErr(d.adapter.SendProgram(d.desc.programInstruction, uint32(addr), page))
		}); err != nil {
			return err
		}

		addr += chunk
		data = data[chunk:]
	}

	return nil
}

// Erase delegates to the erase planner: it validates the request, then
// issues the planner's chosen sequence of erase commands, each gated by
// write-enable and followed by a memory-ready poll.
func (d *Device) Erase(addr, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.desc.isInitialized {
		return fmt.Errorf("%w: device not initialized", ErrDeviceError)
	}
	if err := d.desc.validateEraseParams(addr, size); err != nil {
		return err
	}
	if size == 0 {
		return nil
	}

	for _, step := range d.desc.planErase(addr, size) {
		stepAddr, opcode := step.Addr, step.Opcode
		if err := d.withWriteEnable(func() error {
			return d.wrapErr(d.adapter.SendErase(opcode, uint32(stepAddr)))
		}); err != nil {
			return err
		}
	}

	return nil
}
