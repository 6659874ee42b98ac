package malloc

// place commits asize bytes of blk to the caller, splitting off a trailing
// free fragment when the remainder is large enough to stand on its own. No
// coalescing is attempted here: a fresh split can never have a free
// neighbor to its left (that region was just claimed), and the block to
// its right is untouched by the split.
func (a *Allocator) place(blk blockRef, asize int) {
	a.freelistRemove(blk)

	remainder := int(blk.size()) - asize
	if remainder < minBlockSize {
		// Remainder too small to host a free block on its own; surrender it
		// as internal fragmentation. The next block's prevBlockSize already
		// equals size(blk) and does not need to change.
		blk.setAllocated(true)
		return
	}

	blk.setSize(uint32(asize), true)

	frag := a.block(blk.offset + int64(asize))
	frag.setSize(uint32(remainder), false)
	frag.setPrevBlockSize(uint32(asize))

	after := a.block(frag.offset + int64(remainder))
	after.setPrevBlockSize(uint32(remainder))

	a.freelistInsert(frag)
}
