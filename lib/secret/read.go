// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// maxFileSize bounds what ReadFile accepts. Keys and tokens are a few
// hundred bytes.
const maxFileSize = 64 << 10

// ReadFile reads path ("-" for stdin) into a Buffer with surrounding
// whitespace removed. An empty or whitespace-only source is an error.
func ReadFile(path string) (*Buffer, error) {
	var source io.Reader = os.Stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		source = file
	}

	data, err := io.ReadAll(io.LimitReader(source, maxFileSize+1))
	if err != nil {
		Zero(data)
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) > maxFileSize {
		Zero(data)
		return nil, fmt.Errorf("%s exceeds %d bytes", path, maxFileSize)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		Zero(data)
		return nil, fmt.Errorf("%s is empty", path)
	}
	buffer, err := NewFromBytes(trimmed)
	Zero(data)
	return buffer, err
}
