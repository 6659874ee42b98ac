// Package malloc implements a segregated-fit dynamic memory allocator over
// a contiguous, monotonically growable arena obtained from an external
// sbrk-like arena.Provider. It exposes the classic three operations --
// Malloc, Free, Realloc -- tuned for throughput and utilization rather
// than raw simplicity: in-band headers with no footers, a hybrid
// power-of-two/arithmetic bucketing scheme, first-fit-within-bucket
// search, and non-boundary-tag coalescing.
//
// An Allocator is strictly single-threaded: nothing here is safe for
// concurrent use from multiple goroutines against one instance. Running
// several independent Allocators concurrently, each over its own arena, is
// fine -- see cmd/segfitbench.
package malloc

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/ktcheng/segfit/arena"
	"github.com/ktcheng/segfit/internal/history"
)

// rootTableOffset is where the bucket-root table begins: the very first
// byte the arena provider ever hands out.
const rootTableOffset = 0

// rootTableSize is the number of bytes the bucket-root table occupies.
const rootTableSize = NumBuckets * 8

// ErrBadOptions is wrapped into New's error when the requested initial
// chunk can't even host a prologue, one minimum free block and an
// epilogue.
var ErrBadOptions = errors.New("malloc: initial chunk too small")

// Allocator is a segregated-fit heap over one arena.Provider.
type Allocator struct {
	provider arena.Provider
	base     unsafe.Pointer
	size     int64 // total bytes obtained from provider so far

	freeCount int

	opts    Options
	history *history.Ring[Op]
}

// New lays out the bucket-root table, prologue sentinel, one initial free
// block and the epilogue sentinel at the head of a fresh arena, the way
// mm_init does in the reference implementation.
func New(p arena.Provider, opts Options) (*Allocator, error) {
	opts = opts.withDefaults()
	if opts.InitialChunk < rootBlockFootprint() {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d",
			ErrBadOptions, rootBlockFootprint(), opts.InitialChunk)
	}

	a := &Allocator{provider: p, opts: opts}
	if opts.HistoryDepth > 0 {
		a.history = history.New[Op](opts.HistoryDepth)
	}

	base, ok := p.Extend(rootTableSize)
	if !ok {
		return nil, fmt.Errorf("malloc: init: %w", arena.ErrExhausted)
	}
	a.base = base
	a.size = int64(rootTableSize)
	for i := 0; i < NumBuckets; i++ {
		a.setRoot(i, a.nilBlock())
	}

	chunk := alignUp8(opts.InitialChunk)
	if _, ok := p.Extend(chunk); !ok {
		return nil, fmt.Errorf("malloc: init: %w", arena.ErrExhausted)
	}

	prologueOffset := a.size
	prologue := a.block(prologueOffset)
	prologue.setSize(uint32(headerSize), true)
	prologue.setPrevBlockSize(0)

	initOffset := prologueOffset + int64(headerSize)
	initSize := chunk - 2*headerSize
	initBlock := a.block(initOffset)
	initBlock.setSize(uint32(initSize), false)
	initBlock.setPrevBlockSize(uint32(headerSize))

	epilogueOffset := initOffset + int64(initSize)
	epilogue := a.block(epilogueOffset)
	epilogue.setSize(0, true)
	epilogue.setPrevBlockSize(uint32(initSize))

	a.size += int64(chunk)

	// The reference implementation hardcodes the initial free block into
	// the top bucket, since its fixed CHUNKSIZE always happens to land
	// there anyway. Options.InitialChunk is configurable here, so the
	// initial block is classified the same way any other free block is --
	// this still puts it in the top bucket for the default chunk size,
	// and keeps a later freelistRemove (e.g. from a coalesce) looking in
	// the bucket the block actually lives in for smaller configured chunks.
	a.freelistInsert(initBlock)

	return a, nil
}

// rootBlockFootprint is the minimum InitialChunk that can host a prologue,
// one free block of at least minBlockSize bytes, and an epilogue.
func rootBlockFootprint() int { return headerSize + minBlockSize + headerSize }

// ArenaSize reports the total number of bytes obtained from the arena
// provider so far, root-table included.
func (a *Allocator) ArenaSize() int { return int(a.size) }

// applyNearPowerOfTwoHeuristic rounds requests near a power-of-two boundary
// up to that boundary: sizes in (100, 500) that are already within 1/8 of
// the next power of two tend to recur exactly at that boundary, so
// pre-rounding improves bucket coherence at a small internal-fragmentation
// cost.
func applyNearPowerOfTwoHeuristic(size int) int {
	p2 := roundUpPowerOfTwo(size)
	if size > 100 && size < 500 && size >= p2-p2/8 {
		return p2
	}
	return size
}

// Malloc returns a pointer to at least size usable, 8-byte-aligned bytes,
// or (nil, false) if the arena cannot be extended far enough to satisfy
// the request.
func (a *Allocator) Malloc(size int) (unsafe.Pointer, bool) {
	if size <= 0 {
		return nil, false
	}

	size = applyNearPowerOfTwoHeuristic(size)
	asize := alignUp8(size + headerSize)
	if asize < minBlockSize {
		asize = minBlockSize
	}

	if blk := a.find(asize); blk.valid() {
		a.place(blk, asize)
		p := blk.payload()
		a.record(Op{Kind: OpMalloc, Addr: uintptr(p), Size: size})
		return p, true
	}

	blk := a.extendHeap(a.opts.ExtensionChunk)
	if !blk.valid() || int(blk.size()) < asize {
		// Either the provider is exhausted, or the fixed extension chunk
		// (deliberately not grown to max(ExtensionChunk, asize) -- see
		// Options.ExtensionChunk) was too small for this request.
		return nil, false
	}
	a.place(blk, asize)
	p := blk.payload()
	a.record(Op{Kind: OpMalloc, Addr: uintptr(p), Size: size})
	return p, true
}

// Free returns p, which must have been returned by a prior Malloc/Realloc
// and not yet freed, to the allocator. Passing any other address is
// undefined behavior, matching the C contract this allocator is ported
// from.
func (a *Allocator) Free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	offset := int64(uintptr(p)-uintptr(a.base)) - int64(headerSize)
	blk := a.block(offset)
	a.record(Op{Kind: OpFree, Addr: uintptr(p), Size: int(blk.size()) - headerSize})
	blk.setAllocated(false)
	a.coalesce(blk)
}

// Realloc is malloc+copy+free: it never attempts to grow a block in
// place.
func (a *Allocator) Realloc(p unsafe.Pointer, newSize int) (unsafe.Pointer, bool) {
	if p == nil {
		return a.Malloc(newSize)
	}
	if newSize <= 0 {
		a.Free(p)
		return nil, true
	}

	oldOffset := int64(uintptr(p)-uintptr(a.base)) - int64(headerSize)
	oldBlk := a.block(oldOffset)
	oldUsable := int(oldBlk.size()) - headerSize

	newPtr, ok := a.Malloc(newSize)
	if !ok {
		return nil, false
	}

	copySize := newSize
	if oldUsable < copySize {
		copySize = oldUsable
	}
	if copySize > 0 {
		oldBytes := unsafe.Slice((*byte)(p), oldUsable)
		newBytes := unsafe.Slice((*byte)(newPtr), newSize)
		copy(newBytes, oldBytes[:copySize])
	}

	a.Free(p)
	a.record(Op{Kind: OpRealloc, Addr: uintptr(newPtr), Size: newSize})
	return newPtr, true
}

// extendHeap grows the arena by n bytes and folds that growth into the
// heap's block sequence by reusing the old epilogue's header as the new
// free block's header, then coalescing with the previous tail block if it
// was free. Returns the nilBlock if the provider refuses to extend.
func (a *Allocator) extendHeap(n int) blockRef {
	n = alignUp8(n)
	if _, ok := a.provider.Extend(n); !ok {
		return a.nilBlock()
	}

	oldEpilogueOffset := a.size - int64(headerSize)
	blk := a.block(oldEpilogueOffset)
	blk.setSize(uint32(n), false)

	a.size += int64(n)

	newEpilogue := a.block(a.size - int64(headerSize))
	newEpilogue.setSize(0, true)
	newEpilogue.setPrevBlockSize(blk.size())

	return a.coalesce(blk)
}

func indexPointer(base unsafe.Pointer, offset int64) unsafe.Pointer {
	return unsafe.Add(base, uintptr(offset))
}
