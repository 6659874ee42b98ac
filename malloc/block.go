package malloc

import "unsafe"

// header is the 8-byte in-band block header: two packed 32-bit fields, no
// footer. blockSize carries the total block size (header + payload) in its
// top 29 bits and flags in the low 3; only bit 0 (allocated) is used.
// prevSize is the total size of the block immediately before this one in
// address order, letting the coalescer find that neighbor without a
// footer of its own.
type header struct {
	blockSize uint32
	prevSize  uint32
}

const (
	headerSize = int(unsafe.Sizeof(header{})) // 8

	flagAlloc uint32 = 1
	sizeMask  uint32 = ^uint32(0x7)

	linksSize    = 16 // next + prev offsets, int64 each
	minBlockSize = headerSize + linksSize // 24
)

// blockRef is the "BlockRef" abstraction: a handle on a block expressed as
// a byte offset from the arena base, plus the allocator that owns the
// arena. It is the single place that turns an offset into a pointer, so
// all other code operates on offsets -- which stay valid across arena
// growth, unlike raw pointers into a backing array that might (in a less
// careful Provider) be reallocated.
type blockRef struct {
	a      *Allocator
	offset int64
}

// nilBlock is the sentinel "no block" reference. Offset 0 can never be a
// real block: the bucket-root table occupies the arena's first
// NumBuckets*8 bytes, so every real block starts at a strictly positive
// offset.
func (a *Allocator) nilBlock() blockRef { return blockRef{a: a, offset: 0} }

func (a *Allocator) block(offset int64) blockRef { return blockRef{a: a, offset: offset} }

func (b blockRef) valid() bool { return b.offset != 0 }

func (b blockRef) ptr() unsafe.Pointer { return unsafe.Add(b.a.base, uintptr(b.offset)) }

func (b blockRef) header() *header { return (*header)(b.ptr()) }

func (b blockRef) size() uint32 { return b.header().blockSize & sizeMask }

func (b blockRef) allocated() bool { return b.header().blockSize&flagAlloc != 0 }

// setSize overwrites both the size and the allocated flag. sz is masked to
// a multiple of 8, matching the block_size field's packing contract.
func (b blockRef) setSize(sz uint32, alloc bool) {
	v := sz & sizeMask
	if alloc {
		v |= flagAlloc
	}
	b.header().blockSize = v
}

func (b blockRef) setAllocated(alloc bool) {
	h := b.header()
	if alloc {
		h.blockSize |= flagAlloc
	} else {
		h.blockSize &^= flagAlloc
	}
}

func (b blockRef) prevBlockSize() uint32 { return b.header().prevSize }

func (b blockRef) setPrevBlockSize(v uint32) { b.header().prevSize = v }

// next returns the block immediately after b in address order. Valid for
// any block including the prologue; never valid to call on the epilogue
// (size 0 would walk nowhere useful).
func (b blockRef) next() blockRef { return b.a.block(b.offset + int64(b.size())) }

// prevAdjacent returns the block immediately before b in address order,
// found via b's own prevBlockSize field rather than a footer.
func (b blockRef) prevAdjacent() blockRef {
	return b.a.block(b.offset - int64(b.prevBlockSize()))
}

// payload returns the address handed to the caller: right after the
// header.
func (b blockRef) payload() unsafe.Pointer { return unsafe.Add(b.ptr(), headerSize) }

// freeLinks is the doubly-linked free-list pointer pair threaded through
// the first 16 bytes of a free block's payload. These offsets are
// meaningful only while the block is free; once allocated, that space
// belongs to the caller.
type freeLinks struct {
	next int64
	prev int64
}

func (b blockRef) links() *freeLinks { return (*freeLinks)(unsafe.Add(b.ptr(), headerSize)) }

func (b blockRef) freeNext() blockRef { return b.a.block(b.links().next) }
func (b blockRef) freePrev() blockRef { return b.a.block(b.links().prev) }

func (b blockRef) setFreeNext(n blockRef) { b.links().next = n.offset }
func (b blockRef) setFreePrev(p blockRef) { b.links().prev = p.offset }

func alignUp8(n int) int { return (n + 7) &^ 7 }
