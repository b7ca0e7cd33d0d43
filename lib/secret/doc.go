// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds key material and broker credentials outside the
// Go heap.
//
// A [Buffer] is an anonymous mmap region, mlocked so it is never
// swapped and marked MADV_DONTDUMP so it never lands in a core dump.
// Close zeroes, unlocks and unmaps it; any read after Close panics.
//
// [ReadFile] loads a key file (or stdin for "-") straight into a
// Buffer, trimming surrounding whitespace and zeroing the heap copy.
package secret
