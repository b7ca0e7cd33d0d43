// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// DebugVariable switches the agent to debug logging.
const DebugVariable = "DEBUG"

// DebugEnabled reports whether a DEBUG value turns debug logging on:
// anything non-empty except "0" and "false".
func DebugEnabled(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "0", "false":
		return false
	default:
		return true
	}
}

// NewLogger returns a JSON logger on w. DEBUG is read once, here.
func NewLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if DebugEnabled(os.Getenv(DebugVariable)) {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
