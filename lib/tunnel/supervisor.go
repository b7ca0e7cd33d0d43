// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/pheromon/antagent/lib/clock"
)

// Diagnostic markers ssh -v writes to stderr.
const (
	successMarker   = "remote forward success"
	portInUseMarker = "Warning: remote port forwarding failed for listen port"
)

// Failure reasons reported to the queen.
const (
	ReasonPortInUse = "Port already in use"
	ReasonTimeout   = "SSH timeout"
)

// Defaults for Config fields left zero.
const (
	DefaultCommand   = "ssh"
	DefaultTimeout   = 60 * time.Second
	DefaultKillGrace = 2 * time.Second
)

// ErrBusy is returned by Open while a tunnel is connecting, established,
// or closing.
var ErrBusy = errors.New("tunnel already open")

// Failure is the error returned by Open when an attempt resolves to
// Failed. Reason is the text reported to the queen.
type Failure struct {
	Reason string
}

func (f *Failure) Error() string { return "tunnel failed: " + f.Reason }

// Target names the two ends of a reverse forward.
type Target struct {
	// QueenPort is the port opened on the remote host.
	QueenPort string

	// AntPort is the local port the remote port forwards to.
	AntPort string

	// Host is the ssh destination, e.g. "tunnel@queen.example.org".
	Host string
}

// Forward returns the -R argument for the target.
func (t Target) Forward() string {
	return t.QueenPort + ":localhost:" + t.AntPort
}

// State is the lifecycle position of a Handle.
type State int

const (
	Connecting State = iota
	Established
	Failed
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Established:
		return "established"
	case Failed:
		return "failed"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config controls how tunnels are started.
type Config struct {
	// Command is the ssh binary. Default "ssh".
	Command string

	// ExtraOptions are inserted before the -R forward, after the fixed
	// "-v -N -o StrictHostKeyChecking=no". Typical uses are "-i <key>"
	// and "-o ServerAliveInterval=30".
	ExtraOptions []string

	// Timeout bounds establishment. Default 60s.
	Timeout time.Duration

	// KillGrace is how long Close waits after SIGINT before SIGKILL.
	// Default 2s.
	KillGrace time.Duration
}

// Handle is the supervisor's view of one tunnel process.
type Handle struct {
	target  Target
	process Process
	state   State
	reason  string

	// started is closed once Start has returned, successfully or not.
	started chan struct{}

	// exited is closed once the process has exited and been reaped, or
	// immediately after a failed Start.
	exited chan struct{}
}

// Status is a snapshot of the held handle.
type Status struct {
	State  State
	Target Target
	PID    int
	Reason string
}

// Supervisor owns the single tunnel handle.
type Supervisor struct {
	config  Config
	starter Starter
	clock   clock.Clock
	logger  *slog.Logger

	mu     sync.Mutex
	handle *Handle
}

// NewSupervisor creates a Supervisor. Zero Config fields take their
// defaults.
func NewSupervisor(config Config, starter Starter, clk clock.Clock, logger *slog.Logger) *Supervisor {
	if config.Command == "" {
		config.Command = DefaultCommand
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.KillGrace <= 0 {
		config.KillGrace = DefaultKillGrace
	}
	return &Supervisor{
		config:  config,
		starter: starter,
		clock:   clk,
		logger:  logger,
	}
}

func (s *Supervisor) arguments(target Target) []string {
	arguments := []string{"-v", "-N", "-o", "StrictHostKeyChecking=no"}
	arguments = append(arguments, s.config.ExtraOptions...)
	return append(arguments, "-R", target.Forward(), target.Host)
}

// Status reports the held handle. The boolean is false when no handle
// is held.
func (s *Supervisor) Status() (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return Status{}, false
	}
	status := Status{
		State:  s.handle.state,
		Target: s.handle.target,
		Reason: s.handle.reason,
	}
	if s.handle.process != nil {
		status.PID = s.handle.process.PID()
	}
	return status, true
}

// resolution is one racer's verdict. A nil failure means Established.
type resolution struct {
	source  string
	failure *Failure
}

// Open starts a tunnel to target and blocks until the attempt
// resolves. It returns nil when the tunnel is established, ErrBusy
// when another tunnel is connecting, established, or closing, and a
// *Failure otherwise. A previously failed handle is closed and
// replaced. ctx only bounds the wait; cancelling it does not stop the
// process.
func (s *Supervisor) Open(ctx context.Context, target Target) error {
	s.mu.Lock()
	previous := s.handle
	if previous != nil && previous.state != Failed {
		state := previous.state
		s.mu.Unlock()
		s.logger.Info("refusing to open tunnel", "state", state.String(), "queen_port", target.QueenPort)
		return ErrBusy
	}
	handle := &Handle{
		target:  target,
		state:   Connecting,
		started: make(chan struct{}),
		exited:  make(chan struct{}),
	}
	s.handle = handle
	s.mu.Unlock()

	if previous != nil {
		s.logger.Info("replacing failed tunnel", "reason", previous.reason)
		s.terminate(previous)
	}

	arguments := s.arguments(target)
	process, err := s.starter.Start(s.config.Command, arguments)
	if err != nil {
		failure := &Failure{Reason: fmt.Sprintf("SSH start: %v", err)}
		s.mu.Lock()
		if s.handle == handle {
			s.handle = nil
		}
		s.mu.Unlock()
		close(handle.started)
		close(handle.exited)
		s.logger.Error("starting tunnel process", "error", err)
		return failure
	}

	s.mu.Lock()
	handle.process = process
	s.mu.Unlock()
	close(handle.started)

	logger := s.logger.With("pid", process.PID(), "queen_port", target.QueenPort, "ant_port", target.AntPort, "host", target.Host)
	logger.Info("tunnel process started", "arguments", strings.Join(arguments, " "))

	// Capacity 1 with non-blocking sends: the first racer to send
	// owns the outcome, later ones are discarded.
	resolved := make(chan resolution, 1)
	offer := func(r resolution) bool {
		select {
		case resolved <- r:
			return true
		default:
			return false
		}
	}

	timer := s.clock.AfterFunc(s.config.Timeout, func() {
		offer(resolution{source: "timer", failure: &Failure{Reason: ReasonTimeout}})
	})

	go s.monitor(handle, offer, logger)

	var result resolution
	select {
	case result = <-resolved:
	case <-ctx.Done():
		timer.Stop()
		result = resolution{source: "context", failure: &Failure{Reason: ctx.Err().Error()}}
	}
	if result.source != "timer" {
		timer.Stop()
	}

	s.mu.Lock()
	if handle.state == Connecting {
		if result.failure == nil {
			handle.state = Established
		} else {
			handle.state = Failed
			handle.reason = result.failure.Reason
		}
	}
	s.mu.Unlock()

	if result.failure != nil {
		logger.Warn("tunnel failed", "reason", result.failure.Reason, "source", result.source)
		return result.failure
	}
	logger.Info("tunnel established")
	return nil
}

// monitor reads stderr until EOF, then reaps the process. It offers
// an outcome on each marker and on exit; only the first is taken.
func (s *Supervisor) monitor(handle *Handle, offer func(resolution) bool, logger *slog.Logger) {
	stderr := handle.process.Stderr()
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		logger.Debug("ssh stderr", "line", line)
		switch {
		case strings.Contains(line, successMarker):
			if !offer(resolution{source: "stderr"}) {
				logger.Info("tunnel reported success after the attempt resolved")
			}
		case strings.Contains(line, portInUseMarker):
			offer(resolution{source: "stderr", failure: &Failure{Reason: ReasonPortInUse}})
		}
	}
	if err := scanner.Err(); err != nil {
		// ssh blocks once the pipe fills, so keep reading to EOF.
		logger.Warn("reading ssh stderr, discarding the rest", "error", err)
		if _, err := io.Copy(io.Discard, stderr); err != nil {
			logger.Warn("draining ssh stderr", "error", err)
		}
	}

	waitErr := handle.process.Wait()
	exitReason := "exit status 0"
	if waitErr != nil {
		exitReason = waitErr.Error()
	}
	offer(resolution{source: "exit", failure: &Failure{Reason: "SSH exited: " + exitReason}})

	s.mu.Lock()
	previousState := handle.state
	handle.state = Closed
	if s.handle == handle {
		s.handle = nil
	}
	s.mu.Unlock()
	close(handle.exited)

	if previousState == Established {
		logger.Warn("established tunnel exited", "exit", exitReason)
	} else {
		logger.Info("tunnel process exited", "exit", exitReason, "state", previousState.String())
	}
}

// Close terminates the held tunnel, if any, and returns once its
// process has exited.
func (s *Supervisor) Close() {
	s.mu.Lock()
	handle := s.handle
	if handle == nil {
		s.mu.Unlock()
		s.logger.Debug("close requested with no tunnel")
		return
	}
	alreadyClosing := handle.state == Closing
	handle.state = Closing
	s.mu.Unlock()

	if alreadyClosing {
		<-handle.exited
		return
	}
	s.terminate(handle)

	s.mu.Lock()
	if s.handle == handle {
		s.handle = nil
	}
	s.mu.Unlock()
}

// terminate interrupts the handle's process group, escalating to
// SIGKILL after the grace period, and waits for the exit.
func (s *Supervisor) terminate(handle *Handle) {
	<-handle.started
	s.mu.Lock()
	process := handle.process
	s.mu.Unlock()
	if process == nil {
		<-handle.exited
		return
	}

	logger := s.logger.With("pid", process.PID())
	if err := process.Signal(unix.SIGINT); err != nil {
		logger.Warn("interrupting tunnel", "error", err)
	}

	select {
	case <-handle.exited:
		logger.Info("tunnel closed")
		return
	case <-s.clock.After(s.config.KillGrace):
	}

	logger.Warn("tunnel ignored interrupt, killing", "grace", s.config.KillGrace)
	if err := process.Signal(unix.SIGKILL); err != nil {
		logger.Error("killing tunnel", "error", err)
	}
	<-handle.exited
}
