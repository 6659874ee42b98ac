package malloc

// topBucketThreshold is the bucket index at and above which the finder
// always searches from the largest bucket downward: jumbo requests only
// ever fit in the top few buckets, so probing the small ones first would
// be pure waste.
const topBucketThreshold = 44

// find implements first-fit-within-bucket with a top-bucket fallback. It
// returns the nilBlock if no free block of at least asize bytes exists.
func (a *Allocator) find(asize int) blockRef {
	if a.freeCount == 0 {
		return a.nilBlock()
	}

	b := bucket(asize)

	// Near-empty heap or jumbo request: large free blocks only live in the
	// top buckets, so walk from the top down instead of probing bucket b
	// (which is very likely empty) first.
	if a.freeCount == 1 || b >= topBucketThreshold {
		for z := NumBuckets - 1; z >= b; z-- {
			if blk := a.root(z); blk.valid() && int(blk.size()) >= asize {
				return blk
			}
		}
		return a.nilBlock()
	}

	// Normal path: first fit within bucket b, unrolled two at a time.
	for blk := a.root(b); blk.valid(); {
		if int(blk.size()) >= asize {
			return blk
		}
		next := blk.freeNext()
		if next.valid() && int(next.size()) >= asize {
			return next
		}
		blk = next
	}

	// No fit in b: take the first non-empty bucket above it.
	for z := b + 1; z < NumBuckets; z += 2 {
		if blk := a.root(z); blk.valid() {
			return blk
		}
		if z+1 < NumBuckets {
			if blk := a.root(z + 1); blk.valid() {
				return blk
			}
		}
	}

	return a.nilBlock()
}
