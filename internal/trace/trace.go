// Package trace parses `.rep` allocator trace files: one operation per
// line, in the format the classic malloc-lab driver uses --
//
//	a <id> <size>   allocate <size> bytes, remember the result under <id>
//	r <id> <size>   reallocate the block remembered under <id> to <size> bytes
//	f <id>          free the block remembered under <id>
//
// Lines are read through one mcache-backed buffer per file, recycled the
// same way bufiox.DefaultReader grows and frees its read buffer, since a
// trace file can be large enough that scanning it line-by-line with naive
// per-line allocation would dominate a benchmark run's own cost.
package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/bytedance/gopkg/lang/mcache"

	"github.com/ktcheng/segfit/internal/hack"
)

// OpKind identifies which of the three trace operations a line encodes.
type OpKind int

const (
	OpAlloc OpKind = iota
	OpRealloc
	OpFree
)

// Op is one parsed trace line.
type Op struct {
	Kind OpKind
	ID   int
	Size int
}

// Load reads and parses every line of the `.rep` file at path.
func Load(path string) ([]Op, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads and parses every line from r. The scratch buffer used to
// stage reads is obtained from mcache and freed before Parse returns.
func Parse(r io.Reader) ([]Op, error) {
	const initialBufSize = 64 << 10
	buf := mcache.Malloc(initialBufSize)
	defer mcache.Free(buf)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(buf, 1<<20)

	var ops []Op
	line := 0
	for scanner.Scan() {
		line++
		text := hack.ByteSliceToString(scanner.Bytes())
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		op, err := parseLine(text)
		if err != nil {
			return nil, fmt.Errorf("trace: line %d: %w", line, err)
		}
		ops = append(ops, op)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	return ops, nil
}

func parseLine(text string) (Op, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return Op{}, fmt.Errorf("malformed line %q", text)
	}

	id, err := strconv.Atoi(fields[1])
	if err != nil {
		return Op{}, fmt.Errorf("bad id in %q: %w", text, err)
	}

	switch fields[0] {
	case "a":
		if len(fields) != 3 {
			return Op{}, fmt.Errorf("malformed alloc line %q", text)
		}
		size, err := strconv.Atoi(fields[2])
		if err != nil {
			return Op{}, fmt.Errorf("bad size in %q: %w", text, err)
		}
		return Op{Kind: OpAlloc, ID: id, Size: size}, nil

	case "r":
		if len(fields) != 3 {
			return Op{}, fmt.Errorf("malformed realloc line %q", text)
		}
		size, err := strconv.Atoi(fields[2])
		if err != nil {
			return Op{}, fmt.Errorf("bad size in %q: %w", text, err)
		}
		return Op{Kind: OpRealloc, ID: id, Size: size}, nil

	case "f":
		return Op{Kind: OpFree, ID: id}, nil

	default:
		return Op{}, fmt.Errorf("unknown op %q in %q", fields[0], text)
	}
}
