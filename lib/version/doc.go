// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build of the ant-agent binary.
//
// [GitCommit], [GitDirty], [BuildTime] and [Version] are injected with
// -ldflags -X, for example:
//
//	go build -ldflags "-X github.com/pheromon/antagent/lib/version.GitCommit=$(git rev-parse --short HEAD)" ./cmd/ant-agent
//
// Without injection they read "unknown" and "0.1.0-dev". [Info] is the
// --version line, also published by the status endpoint.
package version
