package malloc

import (
	"math/rand"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktcheng/segfit/arena"
)

func newTestAllocator(t *testing.T, opts Options) *Allocator {
	t.Helper()
	a, err := New(arena.NewSimulated(16<<20), opts)
	require.NoError(t, err)
	return a
}

// soleFreeBlock finds the one free block in an allocator right after New,
// regardless of which bucket its size classifies into -- only the
// default, large InitialChunk happens to land in the top bucket.
func soleFreeBlock(t *testing.T, a *Allocator) blockRef {
	t.Helper()
	require.Equal(t, 1, a.freeCount)
	for i := 0; i < NumBuckets; i++ {
		if blk := a.root(i); blk.valid() {
			return blk
		}
	}
	t.Fatal("no free block found despite freeCount == 1")
	return blockRef{}
}

func writeByte(p unsafe.Pointer, off int, v byte) {
	*(*byte)(unsafe.Add(p, off)) = v
}

func readByte(p unsafe.Pointer, off int) byte {
	return *(*byte)(unsafe.Add(p, off))
}

// S1: small alloc/free round trip.
func TestScenario_SmallAllocFreeRoundTrip(t *testing.T) {
	a := newTestAllocator(t, DefaultOptions())

	p, ok := a.Malloc(16)
	require.True(t, ok)
	require.NotNil(t, p)

	writeByte(p, 0, 0x42)
	assert.Equal(t, byte(0x42), readByte(p, 0))

	a.Free(p)
	report := a.CheckHeap()
	assert.True(t, report.OK(), "%v", report.Violations)
}

// S2: splitting a large free block on a small request.
func TestScenario_SplitsOnSmallRequest(t *testing.T) {
	a := newTestAllocator(t, DefaultOptions())

	before := a.freeCount
	p, ok := a.Malloc(32)
	require.True(t, ok)
	require.NotNil(t, p)

	// The initial free block was far larger than 32+header bytes, so a
	// split must have left a trailing free fragment in its place; without
	// a split the free count would have dropped to zero.
	assert.Equal(t, before, a.freeCount)

	report := a.CheckHeap()
	assert.True(t, report.OK(), "%v", report.Violations)
}

// S3: three-way coalesce -- free the middle of three adjacent allocations
// after freeing its neighbors, and confirm they merge into one block.
func TestScenario_ThreeWayCoalesce(t *testing.T) {
	a := newTestAllocator(t, DefaultOptions())

	p1, ok := a.Malloc(64)
	require.True(t, ok)
	p2, ok := a.Malloc(64)
	require.True(t, ok)
	p3, ok := a.Malloc(64)
	require.True(t, ok)

	a.Free(p1)
	a.Free(p3)
	report := a.CheckHeap()
	require.True(t, report.OK(), "%v", report.Violations)

	a.Free(p2)
	report = a.CheckHeap()
	require.True(t, report.OK(), "%v", report.Violations)

	// After the three-way merge, a request that fits inside the
	// combined span should succeed without the arena growing.
	sizeBefore := a.ArenaSize()
	p4, ok := a.Malloc(100)
	require.True(t, ok)
	assert.Equal(t, sizeBefore, a.ArenaSize())
	_ = p4
}

// S4: heap extension when no free block is large enough.
func TestScenario_HeapExtensionOnMiss(t *testing.T) {
	a := newTestAllocator(t, Options{InitialChunk: rootBlockFootprint() + 64, ExtensionChunk: 4096, HistoryDepth: 8})

	before := a.ArenaSize()
	p, ok := a.Malloc(2048)
	require.True(t, ok)
	require.NotNil(t, p)
	assert.Greater(t, a.ArenaSize(), before)

	report := a.CheckHeap()
	assert.True(t, report.OK(), "%v", report.Violations)
}

// S5: realloc grow preserves content.
func TestScenario_ReallocGrowPreservesContent(t *testing.T) {
	a := newTestAllocator(t, DefaultOptions())

	p, ok := a.Malloc(16)
	require.True(t, ok)
	for i := 0; i < 16; i++ {
		writeByte(p, i, byte(i))
	}

	grown, ok := a.Realloc(p, 256)
	require.True(t, ok)
	require.NotNil(t, grown)
	for i := 0; i < 16; i++ {
		assert.Equal(t, byte(i), readByte(grown, i))
	}

	report := a.CheckHeap()
	assert.True(t, report.OK(), "%v", report.Violations)
}

// S6: near-power-of-two rounding in (100, 500).
func TestScenario_NearPowerOfTwoRounding(t *testing.T) {
	assert.Equal(t, 256, applyNearPowerOfTwoHeuristic(240))
	assert.Equal(t, 128, applyNearPowerOfTwoHeuristic(120))
	assert.Equal(t, 50, applyNearPowerOfTwoHeuristic(50))
	assert.Equal(t, 600, applyNearPowerOfTwoHeuristic(600))
}

func TestMalloc_ZeroOrNegativeSizeFails(t *testing.T) {
	a := newTestAllocator(t, DefaultOptions())
	_, ok := a.Malloc(0)
	assert.False(t, ok)
	_, ok = a.Malloc(-1)
	assert.False(t, ok)
}

func TestFree_Nil(t *testing.T) {
	a := newTestAllocator(t, DefaultOptions())
	assert.NotPanics(t, func() { a.Free(nil) })
}

func TestRealloc_NilActsAsMalloc(t *testing.T) {
	a := newTestAllocator(t, DefaultOptions())
	p, ok := a.Realloc(nil, 32)
	assert.True(t, ok)
	assert.NotNil(t, p)
}

func TestRealloc_ZeroSizeActsAsFree(t *testing.T) {
	a := newTestAllocator(t, DefaultOptions())
	p, ok := a.Malloc(32)
	require.True(t, ok)
	out, ok := a.Realloc(p, 0)
	assert.True(t, ok)
	assert.Nil(t, out)
}

// TestExtension_FixedChunkCanStarveLargeRequest documents the deliberately
// preserved latent bug in Options.ExtensionChunk: a request larger than
// ExtensionChunk can fail even when the provider has ample room left,
// because extendHeap always grows by exactly ExtensionChunk rather than
// max(ExtensionChunk, requested size).
func TestExtension_FixedChunkCanStarveLargeRequest(t *testing.T) {
	opts := Options{
		InitialChunk:   rootBlockFootprint() + 64,
		ExtensionChunk: 128,
		HistoryDepth:   4,
	}
	a := newTestAllocator(t, opts)

	_, ok := a.Malloc(4096)
	assert.False(t, ok, "a request far larger than ExtensionChunk must fail even though the simulated arena has plenty of remaining capacity")
}

// TestMalloc_FailsOnTrueArenaExhaustion covers the ArenaExhausted error
// kind distinct from TestExtension_FixedChunkCanStarveLargeRequest above:
// here the provider itself has no remaining capacity to extend into, not
// merely a fixed ExtensionChunk smaller than the request.
func TestMalloc_FailsOnTrueArenaExhaustion(t *testing.T) {
	opts := Options{
		InitialChunk:   rootBlockFootprint() + 64,
		ExtensionChunk: 4096,
		HistoryDepth:   4,
	}
	capacity := rootTableSize + alignUp8(opts.InitialChunk)
	a, err := New(arena.NewSimulated(capacity), opts)
	require.NoError(t, err)

	before := a.ArenaSize()
	_, ok := a.Malloc(4096)
	assert.False(t, ok, "extendHeap must fail once the underlying provider has no capacity left to grant")
	assert.Equal(t, before, a.ArenaSize(), "a failed extension must not change the arena's recorded size")
}

func TestAllocator_RandomizedWorkloadStaysConsistent(t *testing.T) {
	a := newTestAllocator(t, DefaultOptions())
	rng := rand.New(rand.NewSource(1))

	live := map[int]unsafe.Pointer{}
	next := 0
	for i := 0; i < 2000; i++ {
		switch rng.Intn(3) {
		case 0, 1:
			size := 1 + rng.Intn(512)
			p, ok := a.Malloc(size)
			if ok {
				live[next] = p
				next++
			}
		case 2:
			if len(live) == 0 {
				continue
			}
			for k, p := range live {
				a.Free(p)
				delete(live, k)
				break
			}
		}
	}

	report := a.CheckHeap()
	assert.True(t, report.OK(), "%v", report.Violations)
}
