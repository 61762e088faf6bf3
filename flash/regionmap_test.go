package flash

import "testing"

func TestBuildSingleRegionUnionsSupportedEraseTypes(t *testing.T) {
	d := &Descriptor{
		deviceSizeBytes: 2048,
		eraseTypes: [4]EraseType{
			{Opcode: 0x20, SizeBytes: 4096},
			{Opcode: OpcodeUnsupported},
			{Opcode: 0xD8, SizeBytes: 65536},
			{Opcode: OpcodeUnsupported},
		},
	}
	d.buildSingleRegion()

	if len(d.regions) != 1 {
		t.Fatalf("len(regions) = %d, want 1", len(d.regions))
	}
	if d.regions[0].EraseTypesBitfield != 0x05 { // bits 0 and 2
		t.Errorf("bitfield = 0x%02X, want 0x05", d.regions[0].EraseTypesBitfield)
	}
	if d.regions[0].HighBoundary != 2047 {
		t.Errorf("HighBoundary = %d, want 2047", d.regions[0].HighBoundary)
	}
}

func TestValidateRegionsAcceptsContiguousLayout(t *testing.T) {
	d := &Descriptor{
		regions: []Region{
			{SizeBytes: 4096, HighBoundary: 4095},
			{SizeBytes: 8192, HighBoundary: 12287},
		},
	}
	if err := d.validateRegions(); err != nil {
		t.Errorf("validateRegions() = %v, want nil", err)
	}
}

func TestValidateRegionsRejectsGap(t *testing.T) {
	d := &Descriptor{
		regions: []Region{
			{SizeBytes: 4096, HighBoundary: 4095},
			{SizeBytes: 8192, HighBoundary: 20479}, // leaves a gap after 4095
		},
	}
	if err := d.validateRegions(); err == nil {
		t.Fatal("expected ErrParsingFailed for a discontiguous region layout")
	}
}

func TestValidateRegionsRejectsEmpty(t *testing.T) {
	d := &Descriptor{}
	if err := d.validateRegions(); err == nil {
		t.Fatal("expected ErrParsingFailed for zero regions")
	}
}

func TestRegionOfPicksContainingRegion(t *testing.T) {
	d := &Descriptor{
		regions: []Region{
			{HighBoundary: 4095},
			{HighBoundary: 12287},
			{HighBoundary: 1<<20 - 1},
		},
	}
	cases := []struct {
		addr uint64
		want int
	}{
		{0, 0}, {4095, 0}, {4096, 1}, {12287, 1}, {12288, 2}, {1<<20 - 1, 2},
	}
	for _, c := range cases {
		if got := d.regionOf(c.addr); got != c.want {
			t.Errorf("regionOf(%d) = %d, want %d", c.addr, got, c.want)
		}
	}
}

func TestGetEraseSizeAtPicksSmallestSupportedInRegion(t *testing.T) {
	d := &Descriptor{
		eraseTypes: [4]EraseType{
			{Opcode: 0x20, SizeBytes: 4096},
			{Opcode: 0x52, SizeBytes: 32768},
			{Opcode: 0xD8, SizeBytes: 65536},
			{Opcode: OpcodeUnsupported},
		},
		regions: []Region{
			{HighBoundary: 65535, EraseTypesBitfield: 0x06}, // 32K and 64K only
			{HighBoundary: 1<<20 - 1, EraseTypesBitfield: 0x07},
		},
	}
	if got := d.GetEraseSizeAt(0); got != 32768 {
		t.Errorf("GetEraseSizeAt(region0) = %d, want 32768", got)
	}
	if got := d.GetEraseSizeAt(65536); got != 4096 {
		t.Errorf("GetEraseSizeAt(region1) = %d, want 4096", got)
	}
}

func TestEraseTypeSizeForBitReturnsLowestSetBit(t *testing.T) {
	d := &Descriptor{
		eraseTypes: [4]EraseType{
			{SizeBytes: 4096}, {SizeBytes: 32768}, {SizeBytes: 65536}, {SizeBytes: 0},
		},
	}
	if got := d.eraseTypeSizeForBit(0x06); got != 32768 {
		t.Errorf("eraseTypeSizeForBit(0x06) = %d, want 32768 (bit 1 is lowest set)", got)
	}
	if got := d.eraseTypeSizeForBit(0x00); got != 0 {
		t.Errorf("eraseTypeSizeForBit(0x00) = %d, want 0", got)
	}
}
