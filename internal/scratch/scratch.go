/*
 * Copyright 2024 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package scratch pools size-classed byte buffers for tests and the
// benchmark harness, so repeatedly generating payloads at a range of
// sizes doesn't thrash the garbage collector. Unlike a production buffer
// pool, the bucketing here is a flat power-of-two ladder and there is no
// footer-based ownership check: callers are trusted not to Put a buffer
// they didn't Get from this package.
package scratch

import (
	"math/bits"
	"sync"
)

const (
	minPoolSize = 64
	maxPoolSize = 1 << 20
)

type sizedPool struct {
	sync.Pool
	size int
}

var pools []*sizedPool

func init() {
	for sz := minPoolSize; sz <= maxPoolSize; sz <<= 1 {
		sz := sz
		pools = append(pools, &sizedPool{
			Pool: sync.Pool{New: func() interface{} {
				b := make([]byte, sz)
				return &b
			}},
			size: sz,
		})
	}
}

func poolIndex(size int) int {
	if size <= minPoolSize {
		return 0
	}
	i := bits.Len(uint(size - 1))
	return i - bits.Len(uint(minPoolSize-1))
}

// Get returns a buffer of length size. Its contents are not zeroed.
func Get(size int) []byte {
	if size <= 0 {
		return nil
	}
	i := poolIndex(size)
	if i < 0 || i >= len(pools) {
		return make([]byte, size)
	}
	p := pools[i]
	buf := p.Get().(*[]byte)
	return (*buf)[:size]
}

// Put returns buf to the pool it was allocated from, sized by its
// capacity. Buffers whose capacity doesn't match one of the pool's size
// classes are silently dropped instead of pooled.
func Put(buf []byte) {
	c := cap(buf)
	i := poolIndex(c)
	if i < 0 || i >= len(pools) || pools[i].size != c {
		return
	}
	full := buf[:c]
	pools[i].Put(&full)
}

// Fill writes a deterministic, reproducible pattern of n bytes derived
// from seed into a freshly-pooled buffer, for generating payloads in
// tests and the benchmark harness that can be checksummed and compared
// after a round trip through the allocator.
func Fill(n int, seed uint64) []byte {
	buf := Get(n)
	h := seed
	for i := range buf {
		h ^= uint64(i)
		h *= 1099511628211
		buf[i] = byte(h >> 56)
	}
	return buf
}
