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

// Package checksum is a modified, non-cross-platform-compatible FNV-1a
// variant, tuned for verifying that a payload survived a malloc/realloc
// round trip intact rather than for on-disk or on-wire use.
//
// It computes 8 bytes per round by converting bytes to uint64 directly,
// so it does not produce the same result across differing CPU
// architectures. DO NOT persist the return value.
package checksum

import "unsafe"

const (
	fnvHashOffset64 = uint64(14695981039346656037)
	fnvHashPrime64  = uint64(1099511628211)
)

// OfBytes returns the checksum of b.
func OfBytes(b []byte) uint64 {
	if len(b) == 0 {
		return fnvHashOffset64
	}
	return doHash(unsafe.Pointer(&b[0]), len(b))
}

// OfMemory returns the checksum of the n bytes starting at p, for
// verifying a raw allocator payload without first wrapping it in a slice
// header.
func OfMemory(p unsafe.Pointer, n int) uint64 {
	if n == 0 {
		return fnvHashOffset64
	}
	return doHash(p, n)
}

func doHash(p unsafe.Pointer, n int) uint64 {
	h := fnvHashOffset64
	i := 0
	for m := n >> 3; i < m; i++ {
		h ^= *(*uint64)(unsafe.Add(p, i<<3))
		h *= fnvHashPrime64
	}
	i = i << 3
	for ; i < n; i++ {
		h ^= uint64(*(*byte)(unsafe.Add(p, i)))
		h *= fnvHashPrime64
	}
	return h
}
