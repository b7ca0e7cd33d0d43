// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os"
)

// Fatal prints "error: err" to stderr and exits 1. main uses it for
// errors returned before or outside the structured logger.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
