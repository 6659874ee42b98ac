package malloc

// coalesce merges blk -- whose allocated bit has just been cleared, either
// by Free or by a fresh heap extension -- with any free neighbors, then
// reinserts the (possibly grown) result into the free-list registry.
// Neighbors are found without footers: the next block sits at
// blk.offset+blk.size(), and the previous one at blk.offset-blk.prevBlockSize().
// The prologue and epilogue sentinels are always allocated, so the
// prevFree/nextFree cases below only ever fire for true interior blocks.
func (a *Allocator) coalesce(blk blockRef) blockRef {
	next := blk.next()
	prev := blk.prevAdjacent()
	nextFree := !next.allocated()
	prevFree := !prev.allocated()

	switch {
	case prevFree && nextFree:
		afterNext := next.next()
		a.freelistRemove(next)
		a.freelistRemove(prev)
		merged := prev.size() + blk.size() + next.size()
		prev.setSize(merged, false)
		blk = prev
		afterNext.setPrevBlockSize(blk.size())

	case prevFree && !nextFree:
		a.freelistRemove(prev)
		merged := prev.size() + blk.size()
		prev.setSize(merged, false)
		blk = prev
		next.setPrevBlockSize(blk.size())

	case !prevFree && nextFree:
		afterNext := next.next()
		a.freelistRemove(next)
		merged := blk.size() + next.size()
		blk.setSize(merged, false)
		afterNext.setPrevBlockSize(blk.size())

	default:
		// neither neighbor is free: nothing to merge
	}

	a.freelistInsert(blk)
	return blk
}
