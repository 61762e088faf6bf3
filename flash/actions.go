package flash

import "github.com/dgreave/qspiflash/sfdp"

// executeQuadEnable runs the status-register sequence the capability
// resolver decided on, then reads both status registers back to confirm
// the bit actually took — the BPT only tells us which bit to set, not
// whether the part honors it.
func (d *Device) executeQuadEnable(act sfdp.QEAction) error {
	var setSR1, setSR2 uint8

	switch act {
	case sfdp.QENone:
		return nil
	case sfdp.QEWarnUnknown:
		d.logf((Logger).Warnf, "unrecognized quad-enable dialect, proceeding without it")
		return nil
	case sfdp.QESetStatusReg2Bit1:
		setSR2 = 1 << 1
	case sfdp.QESetStatusReg1Bit6:
		setSR1 = 1 << 6
	case sfdp.QESetStatusReg1Bit7:
		setSR1 = 1 << 7
		d.desc.statusReg2ReadOpcode = 0x3F
		d.desc.statusReg2WriteOpcode = 0x3E
	}

	err := d.withWriteEnable(func() error {
		sr1, err := d.statusRead1()
		if err != nil {
			return err
		}
		sr2, err := d.statusRead2()
		if err != nil {
			return err
		}
		return d.writeStatusRegisters(sr1|setSR1, sr2|setSR2)
	})
	if err != nil {
		return err
	}

	sr1, err := d.statusRead1()
	if err != nil {
		return err
	}
	sr2, err := d.statusRead2()
	if err != nil {
		return err
	}
	if sr1&setSR1 == 0 && sr2&setSR2 == 0 {
		return ErrDeviceError
	}
	return nil
}

func (d *Device) writeStatusRegisters(sr1, sr2 byte) error {
	if d.desc.statusReg2WriteOpcode == OpcodeNone {
		return d.wrapErr(d.adapter.SendGeneral(opcodeWriteSR1, nil, []byte{sr1, sr2}, nil))
	}
	if err := d.adapter.SendGeneral(opcodeWriteSR1, nil, []byte{sr1}, nil); err != nil {
		return d.wrapErr(err)
	}
	return d.wrapErr(d.adapter.SendGeneral(d.desc.statusReg2WriteOpcode, nil, []byte{sr2}, nil))
}

// executeQPIEnable runs the 4-4-4 entry sequence, only reachable when the
// resolver already required QPI for the chosen read mode.
func (d *Device) executeQPIEnable(act sfdp.QPIAction) error {
	switch act {
	case sfdp.QPINone:
		return nil
	case sfdp.QPIWarnUnknown:
		d.logf((Logger).Warnf, "unrecognized QPI-enable dialect, proceeding without it")
		return nil
	case sfdp.QPISend0x38:
		return d.wrapErr(d.adapter.SendGeneral(opcodeQPIEnter38, nil, nil, nil))
	case sfdp.QPISend0x35:
		return d.wrapErr(d.adapter.SendGeneral(opcodeQPIEnter35, nil, nil, nil))
	case sfdp.QPIConfigRegBit6Via0x800003:
		addr := uint32(fourByteConfigRegAddr)
		var cfg [1]byte
		if err := d.adapter.SendGeneral(opcodeReadConfigReg, &addr, nil, cfg[:]); err != nil {
			return d.wrapErr(err)
		}
		cfg[0] |= 1 << 6
		return d.wrapErr(d.adapter.SendGeneral(opcodeWriteConfigRegBank2, &addr, cfg[:], nil))
	case sfdp.QPIConfigRegBit7NoAddr:
		var cfg [1]byte
		if err := d.adapter.SendGeneral(opcodeReadConfigReg, nil, nil, cfg[:]); err != nil {
			return d.wrapErr(err)
		}
		cfg[0] &^= 1 << 7
		return d.wrapErr(d.adapter.SendGeneral(opcodeWriteConfigRegBank1, nil, cfg[:], nil))
	}
	return nil
}

// executeFourByteAddressing runs the addressing-width sequence the
// resolver decided on and records the resulting address size (or, for
// the extended-address-register dialect, leaves 24-bit addressing in
// place and arms the register the transport adapter writes per
// transaction).
func (d *Device) executeFourByteAddressing(act sfdp.FourByteAction) error {
	switch act {
	case sfdp.FourByteKeep24:
		return nil
	case sfdp.FourByteNative32:
		d.desc.addressSize = 32
		return nil
	case sfdp.FourByteEnter0xB7:
		if err := d.adapter.SendGeneral(opcodeEnter4ByteAddressing, nil, nil, nil); err != nil {
			return d.wrapErr(err)
		}
		d.desc.addressSize = 32
		return nil
	case sfdp.FourByteWELThen0xB7:
		err := d.withWriteEnable(func() error {
			return d.wrapErr(d.adapter.SendGeneral(opcodeEnter4ByteAddressing, nil, nil, nil))
		})
		if err != nil {
			return err
		}
		d.desc.addressSize = 32
		return nil
	case sfdp.FourByteBankRegVia0xB5_0xB1:
		var cfg [1]byte
		if err := d.adapter.SendGeneral(opcodeReadBankReg, nil, nil, cfg[:]); err != nil {
			return d.wrapErr(err)
		}
		cfg[0] |= 1
		err := d.withWriteEnable(func() error {
			return d.wrapErr(d.adapter.SendGeneral(opcodeWriteBankReg, nil, cfg[:], nil))
		})
		if err != nil {
			return err
		}
		d.desc.addressSize = 32
		return nil
	case sfdp.FourByteWrite0x80Via0x17:
		if err := d.adapter.SendGeneral(opcodeWriteExtendedAddrLegacy, nil, []byte{0x80}, nil); err != nil {
			return d.wrapErr(err)
		}
		d.desc.addressSize = 32
		return nil
	case sfdp.FourByteExtAddrRegister:
		d.desc.extendedAddrRegWriteOpcode = 0xC5
		d.desc.addressSize = 24
		return nil
	}
	return nil
}

func (d *Device) executeSoftReset(kind sfdp.SoftResetKind) error {
	switch kind {
	case sfdp.SoftResetNone:
		return nil
	case sfdp.SoftResetSingleF0:
		return d.wrapErr(d.adapter.SendGeneral(opcodeSoftResetF0, nil, nil, nil))
	case sfdp.SoftResetEnableThen66_99:
		if err := d.adapter.SendGeneral(opcodeSoftResetEnable66, nil, nil, nil); err != nil {
			return d.wrapErr(err)
		}
		return d.wrapErr(d.adapter.SendGeneral(opcodeSoftReset99, nil, nil, nil))
	}
	return nil
}
