package malloc

import "fmt"

// Violation describes one broken invariant found by CheckHeap.
type Violation struct {
	Rule   string
	Offset int64
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s @%d: %s", v.Rule, v.Offset, v.Detail)
}

// Report is the result of a CheckHeap pass: zero or more Violations, plus
// the operations that most recently touched the heap, to save a caller the
// trouble of reproducing a failure from scratch.
type Report struct {
	Violations []Violation
	History    []Op
}

func (r Report) OK() bool { return len(r.Violations) == 0 }

// CheckHeap walks the block chain from the prologue to the epilogue and
// verifies the invariants a correctly-functioning allocator must maintain:
// every block is 8-byte aligned, the walk reaches the epilogue exactly
// (no overrun, no gap), each block's prevBlockSize matches the block
// before it, no two adjacent blocks are both free, and every free block is
// registered in the bucket its own size maps to. It never panics on a
// corrupt heap -- a malformed size can only make the walk stop early or
// report more violations, never run off the end of the arena, since every
// offset is bounds-checked before it is followed.
func (a *Allocator) CheckHeap() Report {
	var r Report
	r.History = a.History()

	add := func(rule string, offset int64, format string, args ...any) {
		r.Violations = append(r.Violations, Violation{
			Rule: rule, Offset: offset, Detail: fmt.Sprintf(format, args...),
		})
	}

	seenFree := make(map[int64]uint32)

	offset := int64(rootTableSize) + int64(headerSize) // first block after prologue
	prevWasFree := false
	prevOffset := int64(rootTableSize)

	for offset < a.size-int64(headerSize) {
		blk := a.block(offset)

		if offset%8 != 0 {
			add("alignment", offset, "block offset not 8-byte aligned")
		}

		sz := int64(blk.size())
		if sz < int64(minBlockSize) && sz != 0 {
			add("coverage", offset, "block size %d below minimum %d", sz, minBlockSize)
			break
		}
		if sz == 0 {
			add("coverage", offset, "zero-size interior block, cannot continue walk")
			break
		}

		if blk.prevBlockSize() != 0 {
			expected := offset - prevOffset
			if int64(blk.prevBlockSize()) != expected {
				add("linkage", offset, "prevBlockSize=%d, expected %d", blk.prevBlockSize(), expected)
			}
		}

		free := !blk.allocated()
		if free && prevWasFree {
			add("no-adjacent-free", offset, "two consecutive free blocks")
		}
		if free {
			seenFree[offset] = blk.size()
		}

		prevWasFree = free
		prevOffset = offset
		offset += sz
	}

	if offset != a.size-int64(headerSize) {
		add("coverage", offset, "walk ended at %d, epilogue expected at %d", offset, a.size-int64(headerSize))
	}

	// Free-list soundness: every block the walk saw as free must be
	// reachable from its bucket's root, and nothing else should be.
	listed := make(map[int64]bool)
	for i := 0; i < NumBuckets; i++ {
		for blk := a.root(i); blk.valid(); blk = blk.freeNext() {
			if blk.offset%8 != 0 || blk.offset < int64(rootTableSize)+int64(headerSize) ||
				blk.offset+int64(minBlockSize) > a.size {
				add("free-list", blk.offset, "bucket %d links to an offset outside the heap", i)
				break
			}
			wantBucket := bucket(int(blk.size()))
			if wantBucket != i {
				add("free-list", blk.offset, "listed in bucket %d but size %d maps to bucket %d", i, blk.size(), wantBucket)
			}
			if _, ok := seenFree[blk.offset]; !ok {
				add("free-list", blk.offset, "listed as free but heap walk found it allocated or nonexistent")
			}
			listed[blk.offset] = true
		}
	}
	for off := range seenFree {
		if !listed[off] {
			add("free-list", off, "free block not reachable from any bucket root")
		}
	}
	if len(listed) != a.freeCount {
		add("free-list", 0, "freeCount=%d but %d blocks reachable from bucket roots", a.freeCount, len(listed))
	}

	return r
}
