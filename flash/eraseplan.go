package flash

// eraseStep is one planned erase command: the opcode to send, the address
// to send it at, and the number of bytes it covers.
type eraseStep struct {
	Opcode  byte
	Addr    uint64
	ChunkSz uint32
}

// validateEraseParams checks the alignment and range rules an erase
// request must satisfy before the planner is allowed to walk it.
func (d *Descriptor) validateEraseParams(addr, size uint64) error {
	if size == 0 {
		return nil
	}
	if addr+size > d.deviceSizeBytes {
		return ErrInvalidEraseParams
	}
	if addr%uint64(d.GetEraseSizeAt(addr)) != 0 {
		return ErrInvalidEraseParams
	}
	if (addr+size)%uint64(d.GetEraseSizeAt(addr+size-1)) != 0 {
		return ErrInvalidEraseParams
	}
	return nil
}

// planErase walks [addr, addr+size) selecting, at each step, the largest
// erase type whose bit is set in the current region's bitfield such that
// the type both fits the remaining size and doesn't cross the region's
// high boundary. If no type both fits, the largest surviving type after
// pruning is used instead (ties broken toward the highest index).
func (d *Descriptor) planErase(addr, size uint64) []eraseStep {
	var steps []eraseStep

	region := d.regionOf(addr)
	for size > 0 {
		if addr > d.regions[region].HighBoundary {
			region = d.regionOf(addr)
		}

		bf := d.regions[region].EraseTypesBitfield
		remainingInRegion := d.regions[region].HighBoundary - addr + 1

		t := d.chooseEraseType(bf, size, remainingInRegion)

		et := d.eraseTypes[t]
		chunk := et.SizeBytes - uint32(addr%uint64(et.SizeBytes))
		if uint64(chunk) > size {
			chunk = uint32(size)
		}

		steps = append(steps, eraseStep{Opcode: et.Opcode, Addr: addr, ChunkSz: chunk})

		addr += uint64(chunk)
		size -= uint64(chunk)
	}

	return steps
}

// chooseEraseType picks the largest bit set in bf whose erase-type size
// satisfies both size >= type.size and remainingInRegion >= type.size. Bits
// that fail either test are pruned (for this step only) and, if nothing
// remains that passes, the largest surviving bit is used regardless.
func (d *Descriptor) chooseEraseType(bf uint8, size, remainingInRegion uint64) int {
	working := bf

	best := -1
	for i := 3; i >= 0; i-- {
		if working&(1<<uint(i)) == 0 {
			continue
		}
		sz := uint64(d.eraseTypes[i].SizeBytes)
		if size >= sz && remainingInRegion >= sz {
			return i
		}
		if best < 0 {
			best = i
		}
	}

	if best >= 0 {
		return best
	}

	// bf had no bits set at all; this should not happen for a validated
	// descriptor, but fall back to the smallest declared erase type.
	for i := 0; i < 4; i++ {
		if d.eraseTypes[i].Opcode != OpcodeUnsupported {
			return i
		}
	}
	return 0
}
