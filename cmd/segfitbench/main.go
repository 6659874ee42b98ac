// Command segfitbench replays one or more malloc-lab-style `.rep` trace
// files against a fresh malloc.Allocator per file and reports throughput
// and space utilization, in the spirit of the classic malloc-lab mdriver.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"
	"unsafe"

	"github.com/ktcheng/segfit/arena"
	"github.com/ktcheng/segfit/internal/trace"
	"github.com/ktcheng/segfit/internal/workerpool"
	"github.com/ktcheng/segfit/malloc"
)

func main() {
	concurrency := flag.Int("j", 1, "number of trace files to replay concurrently")
	arenaCapacity := flag.Int("arena", 64<<20, "bytes reserved for each simulated arena")
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "usage: segfitbench [-j N] [-arena bytes] trace.rep [trace2.rep ...]")
		os.Exit(2)
	}

	results := make([]result, len(paths))
	jobs := make([]workerpool.Job, len(paths))
	for i, path := range paths {
		i, path := i, path
		jobs[i] = func(int) {
			r, err := runTrace(path, *arenaCapacity)
			if err != nil {
				r = result{path: path, err: err}
			}
			results[i] = r
		}
	}
	workerpool.Run(jobs, *concurrency)

	status := 0
	for _, r := range results {
		if r.err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", r.path, r.err)
			status = 1
			continue
		}
		fmt.Printf("%-32s %8d ops  %10.1f ops/ms  util %5.1f%%\n",
			r.path, r.ops, r.opsPerMs, r.utilization*100)
	}
	os.Exit(status)
}

type result struct {
	path        string
	ops         int
	opsPerMs    float64
	utilization float64
	err         error
}

func runTrace(path string, arenaCapacity int) (result, error) {
	ops, err := trace.Load(path)
	if err != nil {
		return result{}, err
	}

	a, err := malloc.New(arena.NewSimulated(arenaCapacity), malloc.DefaultOptions())
	if err != nil {
		return result{}, fmt.Errorf("malloc.New: %w", err)
	}

	ptrs := make(map[int]unsafe.Pointer, len(ops))
	liveSize := make(map[int]int, len(ops))
	live := 0
	peakLive := 0
	peakArena := 0

	start := time.Now()
	for _, op := range ops {
		switch op.Kind {
		case trace.OpAlloc:
			p, ok := a.Malloc(op.Size)
			if !ok {
				return result{}, fmt.Errorf("malloc(%d) failed for id %d", op.Size, op.ID)
			}
			ptrs[op.ID] = p
			liveSize[op.ID] = op.Size
			live += op.Size

		case trace.OpRealloc:
			old := ptrs[op.ID]
			p, ok := a.Realloc(old, op.Size)
			if !ok {
				return result{}, fmt.Errorf("realloc(%d) failed for id %d", op.Size, op.ID)
			}
			live += op.Size - liveSize[op.ID]
			ptrs[op.ID] = p
			liveSize[op.ID] = op.Size

		case trace.OpFree:
			a.Free(ptrs[op.ID])
			live -= liveSize[op.ID]
			delete(ptrs, op.ID)
			delete(liveSize, op.ID)
		}

		if live > peakLive {
			peakLive = live
		}
		if sz := a.ArenaSize(); sz > peakArena {
			peakArena = sz
		}
	}
	elapsed := time.Since(start)

	util := 0.0
	if peakArena > 0 {
		util = float64(peakLive) / float64(peakArena)
	}

	return result{
		path:        path,
		ops:         len(ops),
		opsPerMs:    float64(len(ops)) / (float64(elapsed.Microseconds()) / 1000.0),
		utilization: util,
	}, nil
}
