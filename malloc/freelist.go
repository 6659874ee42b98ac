package malloc

// rootSlot returns the address of bucket i's root slot inside the
// bucket-root table living at the very start of the arena.
func (a *Allocator) rootSlot(i int) *int64 {
	return (*int64)(indexPointer(a.base, rootTableOffset+int64(i)*8))
}

func (a *Allocator) root(i int) blockRef { return a.block(*a.rootSlot(i)) }

func (a *Allocator) setRoot(i int, b blockRef) { *a.rootSlot(i) = b.offset }

// freelistInsert adds blk to the head of its size class's list (LIFO: the
// most recently freed block in a bucket is found first).
func (a *Allocator) freelistInsert(blk blockRef) {
	b := bucket(int(blk.size()))
	oldHead := a.root(b)
	blk.setFreePrev(a.nilBlock())
	blk.setFreeNext(oldHead)
	if oldHead.valid() {
		oldHead.setFreePrev(blk)
	}
	a.setRoot(b, blk)
	a.freeCount++
}

// freelistRemove unlinks blk from whichever bucket list it currently
// occupies. The bucket is computed from the size in blk's header, so the
// caller must call this before resizing blk, while that size still matches
// the one it was inserted under.
func (a *Allocator) freelistRemove(blk blockRef) {
	b := bucket(int(blk.size()))
	prev := blk.freePrev()
	next := blk.freeNext()
	if prev.valid() {
		prev.setFreeNext(next)
	} else {
		a.setRoot(b, next)
	}
	if next.valid() {
		next.setFreePrev(prev)
	}
	a.freeCount--
}
