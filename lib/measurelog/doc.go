// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// Package measurelog persists device counts on the agent's local disk.
//
// Each measurement is appended to measurements.json as its own
// single-element JSON array, exactly as it was published. The file is
// therefore a concatenation of arrays ("[{...}][{...}]"), not one JSON
// document; readers on the queen side split on "][" and existing
// tooling depends on that layout, so it is kept.
//
// When the file grows past the rotation threshold it is compressed to
// measurements.<unix-millis>.json.<ext> next to the original (zstd by
// default, lz4 when configured for weaker CPUs) and a fresh file is
// started. A threshold of zero disables rotation.
package measurelog
