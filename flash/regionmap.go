package flash

// regionOf returns the index of the region containing addr. Region count
// is small (at most MaxRegions), so a linear scan over the sorted
// boundaries is the right tool — the same way the teacher's device table
// lookup (spiflash.deviceLookup) scans a short list rather than indexing
// into a map.
func (d *Descriptor) regionOf(addr uint64) int {
	for i, r := range d.regions {
		if addr <= r.HighBoundary {
			return i
		}
	}
	return len(d.regions) - 1
}

// buildSingleRegion installs the single-region fallback described for a
// device with no Sector Map Table: the whole device is one region, and
// its erase-type bitfield is the union of every supported erase type.
func (d *Descriptor) buildSingleRegion() {
	var bf uint8
	for i, et := range d.eraseTypes {
		if et.Opcode != OpcodeUnsupported {
			bf |= 1 << uint(i)
		}
	}
	d.regions = []Region{{
		SizeBytes:          uint32(d.deviceSizeBytes),
		HighBoundary:       d.deviceSizeBytes - 1,
		EraseTypesBitfield: bf,
	}}
}

// validateRegions checks the contiguity invariant: region i's high
// boundary must sit exactly region_size_bytes[i] above region i-1's.
func (d *Descriptor) validateRegions() error {
	if len(d.regions) == 0 || len(d.regions) > MaxRegions {
		return ErrParsingFailed
	}
	var expectedLow uint64 // boundary[-1] := -1, so region 0 starts at 0
	for _, r := range d.regions {
		if r.HighBoundary+1 < uint64(r.SizeBytes) {
			return ErrParsingFailed
		}
		if r.HighBoundary+1-uint64(r.SizeBytes) != expectedLow {
			return ErrParsingFailed
		}
		expectedLow = r.HighBoundary + 1
	}
	return nil
}

// eraseTypeSizeForBit returns the erase size for the lowest-indexed set
// bit in bf, or 0 if bf is zero.
func (d *Descriptor) eraseTypeSizeForBit(bf uint8) uint32 {
	for i := 0; i < 4; i++ {
		if bf&(1<<uint(i)) != 0 {
			return d.eraseTypes[i].SizeBytes
		}
	}
	return 0
}

// GetEraseSize returns the minimum erase-type size common to every
// region, or 0 if no single type is supported everywhere.
func (d *Descriptor) GetEraseSize() uint32 {
	return d.minCommonEraseSize
}

// GetEraseSizeAt returns the smallest erase-type size supported by the
// region that contains addr.
func (d *Descriptor) GetEraseSizeAt(addr uint64) uint32 {
	r := d.regions[d.regionOf(addr)]
	var smallest uint32
	for i := 0; i < 4; i++ {
		if r.EraseTypesBitfield&(1<<uint(i)) == 0 {
			continue
		}
		sz := d.eraseTypes[i].SizeBytes
		if smallest == 0 || sz < smallest {
			smallest = sz
		}
	}
	return smallest
}
