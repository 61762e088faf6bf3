package flash

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgreave/qspiflash/qspi"
)

// MaxReadyRetries bounds the memory-ready poll. The source this driver is
// descended from decremented this counter instead of incrementing it,
// which made the budget meaningless; this implementation counts up.
const MaxReadyRetries = 10000

const (
	opcodeWriteEnable  = 0x06
	opcodeWriteDisable = 0x04
	opcodeStatusRead1  = 0x05
	opcodeReadID       = 0x9F
	opcodeGlobalUnprot = 0x98
)

const manufacturerSST = 0xBF

// statusBitWIP and statusBitWEL are bit positions within status register 1.
// statusBitFail is the program/erase-fail bit some parts set alongside WIP
// clearing to report that the operation itself did not succeed.
const (
	statusBitWIP  = 0
	statusBitWEL  = 1
	statusBitFail = 5
)

// Sleeper is the host sleep primitive named in the external interfaces.
// The default is backed by time.Sleep; tests inject a fake to avoid
// spending wall-clock time on the ready-poll loop.
type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Logger is the host's leveled logging sink. A nil Logger silences all
// output, generalizing the teacher's LogFunc-or-nil convention.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

func (d *Device) log() Logger {
	if d.cfg.Logger != nil {
		return d.cfg.Logger
	}
	return nil
}

func (d *Device) logf(l func(Logger, string, ...any), format string, args ...any) {
	if lg := d.log(); lg != nil {
		l(lg, format, args...)
	}
}

// pollMemoryReady polls status register 1 once per millisecond until the
// write-in-progress bit clears or the retry budget is exhausted, then
// checks the program/erase-fail bit before reporting success.
func (d *Device) pollMemoryReady() error {
	var status byte
	var err error
	for i := 0; i < MaxReadyRetries; i++ {
		status, err = d.statusRead1()
		if err != nil {
			return err
		}
		if status&(1<<statusBitWIP) == 0 {
			if status&(1<<statusBitFail) != 0 {
				return fmt.Errorf("%w: program/erase-fail bit set in status register 1", ErrDeviceError)
			}
			return nil
		}
		d.sleeper().Sleep(time.Millisecond)
	}
	return ErrReadyFailed
}

// wrapErr folds a transport-level qspi.ErrDeviceError into this package's
// own ErrDeviceError sentinel, so a caller checking errors.Is against the
// single DEVICE_ERROR taxonomy entry catches both a bad not-initialized
// guard and a real bus failure from the same Read/Program/Erase call.
func (d *Device) wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, qspi.ErrDeviceError) {
		return fmt.Errorf("%w: %v", ErrDeviceError, err)
	}
	return err
}

func (d *Device) sleeper() Sleeper {
	if d.cfg.Sleeper != nil {
		return d.cfg.Sleeper
	}
	return realSleeper{}
}

func (d *Device) statusRead1() (byte, error) {
	var out [1]byte
	if err := d.adapter.SendGeneral(opcodeStatusRead1, nil, nil, out[:]); err != nil {
		return 0, d.wrapErr(err)
	}
	return out[0], nil
}

func (d *Device) statusRead2() (byte, error) {
	opcode := d.desc.statusReg2ReadOpcode
	var out [1]byte
	if err := d.adapter.SendGeneral(opcode, nil, nil, out[:]); err != nil {
		return 0, d.wrapErr(err)
	}
	return out[0], nil
}

// withWriteEnable issues write-enable, confirms the latch actually set,
// runs op, and polls memory-ready afterward. The device clears WEL on its
// own at command completion; the caller never has to clear it explicitly.
func (d *Device) withWriteEnable(op func() error) error {
	if err := d.adapter.SendGeneral(opcodeWriteEnable, nil, nil, nil); err != nil {
		return d.wrapErr(err)
	}
	if err := d.pollMemoryReady(); err != nil {
		return err
	}
	status, err := d.statusRead1()
	if err != nil {
		return err
	}
	if status&(1<<statusBitWEL) == 0 {
		return ErrWrenFailed
	}

	if err := op(); err != nil {
		return err
	}

	return d.pollMemoryReady()
}

// clearBlockProtection implements the post-discovery unprotect step: SST
// parts get a global unprotect command; everything else gets its status
// register cleared except WIP/WEL.
func (d *Device) clearBlockProtection() error {
	var id [3]byte
	if err := d.adapter.SendGeneral(opcodeReadID, nil, nil, id[:]); err != nil {
		return d.wrapErr(err)
	}

	if id[0] == manufacturerSST {
		return d.withWriteEnable(func() error {
			return d.wrapErr(d.adapter.SendGeneral(opcodeGlobalUnprot, nil, nil, nil))
		})
	}

	sr1, err := d.statusRead1()
	if err != nil {
		return err
	}
	clearedSR1 := sr1 & ((1 << statusBitWIP) | (1 << statusBitWEL))

	sr2, err := d.statusRead2()
	if err != nil {
		return err
	}

	return d.withWriteEnable(func() error {
		if d.desc.statusReg2WriteOpcode == OpcodeNone {
			return d.wrapErr(d.adapter.SendGeneral(opcodeWriteSR1, nil, []byte{clearedSR1, sr2}, nil))
		}
		if err := d.adapter.SendGeneral(opcodeWriteSR1, nil, []byte{clearedSR1}, nil); err != nil {
			return d.wrapErr(err)
		}
		return d.wrapErr(d.adapter.SendGeneral(d.desc.statusReg2WriteOpcode, nil, []byte{sr2}, nil))
	})
}

const opcodeWriteSR1 = 0x01

var _ qspi.View = (*Descriptor)(nil)
