// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the ant-agent entrypoint helpers that run
// before or after the structured logger exists: [Fatal] for errors out
// of run(), and [NewLogger], which builds the JSON logger at the level
// the DEBUG environment variable selects.
package process
