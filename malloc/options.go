package malloc

// Options tunes the allocator's heap-growth policy. The zero value is not
// meant to be used directly -- call DefaultOptions and override only the
// fields that matter, the way gopool.DefaultOption works in the
// concurrency package this module's worker pool was adapted from.
type Options struct {
	// InitialChunk is the number of bytes requested from the arena
	// provider at Init time, laid out as prologue + one free block +
	// epilogue.
	InitialChunk int

	// ExtensionChunk is the fixed number of bytes requested from the
	// arena provider whenever Malloc can't satisfy a request from the
	// existing free lists.
	//
	// This is deliberately a fixed amount rather than max(ExtensionChunk,
	// requested size): a single allocation larger than ExtensionChunk can
	// legitimately fail to be satisfied even when the provider has plenty
	// of room left. See TestExtension_FixedChunkCanStarveLargeRequest.
	ExtensionChunk int

	// HistoryDepth is the number of recent operations recorded for
	// CheckHeap's violation reports. 0 disables history tracking.
	HistoryDepth int
}

// DefaultOptions returns the tuning used by the reference implementation
// this allocator is ported from: a 58176-byte initial chunk and a
// 35200-byte extension chunk.
func DefaultOptions() Options {
	return Options{
		InitialChunk:   58176,
		ExtensionChunk: 35200,
		HistoryDepth:   32,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.InitialChunk <= 0 {
		o.InitialChunk = d.InitialChunk
	}
	if o.ExtensionChunk <= 0 {
		o.ExtensionChunk = d.ExtensionChunk
	}
	if o.HistoryDepth < 0 {
		o.HistoryDepth = 0
	}
	return o
}
