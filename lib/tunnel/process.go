// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Process is a started tunnel subprocess.
type Process interface {
	// PID identifies the process (and its process group) in logs.
	PID() int

	// Stderr is the process's diagnostic stream. It reaches EOF when
	// the process exits.
	Stderr() io.Reader

	// Wait blocks until the process exits. It is called only after
	// Stderr has reached EOF.
	Wait() error

	// Signal delivers sig to the whole process group. Signalling a
	// process that has already exited is not an error.
	Signal(sig unix.Signal) error
}

// Starter launches tunnel subprocesses. Tests substitute a fake.
type Starter interface {
	Start(name string, args []string) (Process, error)
}

// ExecStarter starts real processes with os/exec, each in a new
// process group so that signals reach ssh and anything it spawns.
type ExecStarter struct{}

// Start launches name with args. The process is not tied to any
// context: it lives until it exits on its own or is signalled.
func (ExecStarter) Start(name string, args []string) (Process, error) {
	command := exec.Command(name, args...)
	command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stderr, err := command.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", name, err)
	}
	return &execProcess{command: command, stderr: stderr}, nil
}

type execProcess struct {
	command *exec.Cmd
	stderr  io.Reader
}

func (p *execProcess) PID() int { return p.command.Process.Pid }

func (p *execProcess) Stderr() io.Reader { return p.stderr }

func (p *execProcess) Wait() error { return p.command.Wait() }

func (p *execProcess) Signal(sig unix.Signal) error {
	// Negative PID addresses the process group created by Setpgid.
	err := unix.Kill(-p.command.Process.Pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}
