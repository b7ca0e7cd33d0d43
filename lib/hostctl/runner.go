// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package hostctl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner runs a program to completion and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args []string) ([]byte, error)
}

// stderrTail bounds how much stderr is quoted in an error.
const stderrTail = 512

// ExecRunner runs programs with os/exec.
type ExecRunner struct{}

// Run executes name with args. A non-zero exit is returned as an error
// that includes the end of stderr.
func (ExecRunner) Run(ctx context.Context, name string, args []string) ([]byte, error) {
	command := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	err := command.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		message := strings.TrimSpace(stderr.String())
		if len(message) > stderrTail {
			message = message[len(message)-stderrTail:]
		}
		if message == "" {
			return stdout.Bytes(), fmt.Errorf("%s: %w", name, err)
		}
		return stdout.Bytes(), fmt.Errorf("%s: %w: %s", name, err, message)
	}
	return stdout.Bytes(), fmt.Errorf("running %s: %w", name, err)
}
