// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"log/slog"
	"strings"
)

// Logger returns a debug-level text logger that writes through t.Log.
func Logger(t interface {
	Helper()
	Log(args ...any)
}) *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{t: t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testWriter struct {
	t interface {
		Helper()
		Log(args ...any)
	}
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
