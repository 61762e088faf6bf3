package flash

import "testing"

// threeTypeDescriptor builds a 1MiB single-region descriptor supporting
// 4KiB/32KiB/64KiB erase, matching a typical SFDP-discovered NOR part.
func threeTypeDescriptor() *Descriptor {
	d := &Descriptor{
		deviceSizeBytes: 1 << 20,
		eraseTypes: [4]EraseType{
			{Opcode: 0x20, SizeBytes: 4096},
			{Opcode: 0x52, SizeBytes: 32768},
			{Opcode: 0xD8, SizeBytes: 65536},
			{Opcode: OpcodeUnsupported},
		},
	}
	d.buildSingleRegion()
	d.minCommonEraseSize = 4096
	return d
}

func TestPlanEraseGreedilyPicksLargestFittingType(t *testing.T) {
	d := threeTypeDescriptor()

	steps := d.planErase(0, 102400)
	want := []eraseStep{
		{Opcode: 0xD8, Addr: 0, ChunkSz: 65536},
		{Opcode: 0x52, Addr: 65536, ChunkSz: 32768},
		{Opcode: 0x20, Addr: 98304, ChunkSz: 4096},
	}
	if len(steps) != len(want) {
		t.Fatalf("steps = %+v, want %+v", steps, want)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Errorf("step %d = %+v, want %+v", i, steps[i], want[i])
		}
	}
}

func TestPlanEraseExactlyOneBlock(t *testing.T) {
	d := threeTypeDescriptor()

	steps := d.planErase(65536, 65536)
	if len(steps) != 1 {
		t.Fatalf("steps = %+v, want 1 step", steps)
	}
	if steps[0].Opcode != 0xD8 || steps[0].Addr != 65536 || steps[0].ChunkSz != 65536 {
		t.Errorf("step = %+v, want {0xD8 65536 65536}", steps[0])
	}
}

func TestPlanEraseCoversRequestedRangeExactly(t *testing.T) {
	d := threeTypeDescriptor()

	const addr, size = 4096, 4096 * 40
	steps := d.planErase(addr, size)

	var total uint64
	cursor := uint64(addr)
	for _, s := range steps {
		if s.Addr != cursor {
			t.Fatalf("step addr %d, want contiguous at %d", s.Addr, cursor)
		}
		cursor += uint64(s.ChunkSz)
		total += uint64(s.ChunkSz)
	}
	if total != size {
		t.Errorf("total erased = %d, want %d", total, size)
	}
}

func TestPlanEraseRespectsRegionBoundary(t *testing.T) {
	d := threeTypeDescriptor()
	d.regions = []Region{
		{SizeBytes: 65536, HighBoundary: 65535, EraseTypesBitfield: 0x01}, // 4KiB only
		{SizeBytes: 1<<20 - 65536, HighBoundary: 1<<20 - 1, EraseTypesBitfield: 0x07},
	}

	steps := d.planErase(0, 131072)

	var total uint64
	for _, s := range steps {
		total += uint64(s.ChunkSz)
		if s.Addr < 65536 && s.Opcode != 0x20 {
			t.Errorf("step in region 0 used opcode 0x%02X, want 0x20 (4KiB only)", s.Opcode)
		}
	}
	if total != 131072 {
		t.Errorf("total erased = %d, want %d", total, 131072)
	}

	last := steps[len(steps)-1]
	if last.Opcode != 0xD8 {
		t.Errorf("final step in region 1 used opcode 0x%02X, want 0xD8 (64KiB available there)", last.Opcode)
	}
}

func TestValidateEraseParamsRejectsMisalignedAddress(t *testing.T) {
	d := threeTypeDescriptor()

	if err := d.validateEraseParams(100, 4096); err == nil {
		t.Fatal("expected ErrInvalidEraseParams for an unaligned start address")
	}
}

func TestValidateEraseParamsRejectsMisalignedEnd(t *testing.T) {
	d := threeTypeDescriptor()

	if err := d.validateEraseParams(0, 100); err == nil {
		t.Fatal("expected ErrInvalidEraseParams for an unaligned end address")
	}
}

func TestValidateEraseParamsRejectsPastEndOfDevice(t *testing.T) {
	d := threeTypeDescriptor()

	if err := d.validateEraseParams(d.deviceSizeBytes-4096, 8192); err == nil {
		t.Fatal("expected ErrInvalidEraseParams for a request past the end of the device")
	}
}

func TestValidateEraseParamsAcceptsZeroSize(t *testing.T) {
	d := threeTypeDescriptor()

	if err := d.validateEraseParams(123, 0); err != nil {
		t.Errorf("validateEraseParams(_, 0) = %v, want nil", err)
	}
}
