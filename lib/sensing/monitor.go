// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package sensing

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pheromon/antagent/lib/clock"
)

// States reported while the helper is not producing transitions.
const (
	StateStopped  = "stopped"
	StateStarting = "starting"
)

// DefaultRestartDelay is how long Run waits before restarting a helper
// that exited.
const DefaultRestartDelay = 5 * time.Second

// controlQueueSize bounds the commands waiting to be written to the
// helper's stdin.
const controlQueueSize = 16

// ErrControlBacklog is returned when the helper has stopped reading
// its commands and the control queue is full.
var ErrControlBacklog = errors.New("sensing helper is not reading commands")

// Session is a running helper process.
type Session struct {
	// Control receives JSON command lines.
	Control io.WriteCloser

	// Events yields JSON event lines and reaches EOF when the helper
	// exits.
	Events io.Reader

	// Wait reaps the helper. It is called after Events reaches EOF.
	Wait func() error
}

// Starter launches the helper. Tests substitute a pipe-backed fake.
type Starter interface {
	Start(ctx context.Context, name string, args []string) (*Session, error)
}

// ExecStarter runs the helper with os/exec. Cancelling ctx kills it.
type ExecStarter struct{}

// Start launches name with args, wiring stdin and stdout as the
// control and event streams. The helper's stderr is discarded.
func (ExecStarter) Start(ctx context.Context, name string, args []string) (*Session, error) {
	command := exec.CommandContext(ctx, name, args...)
	control, err := command.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	events, err := command.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", name, err)
	}
	return &Session{Control: control, Events: events, Wait: command.Wait}, nil
}

// MonitorConfig describes the helper command.
type MonitorConfig struct {
	Command      string
	Args         []string
	RestartDelay time.Duration
}

type controlLine struct {
	Command string `json:"command"`
	Period  int    `json:"period,omitempty"`
	Address string `json:"address,omitempty"`
}

// Monitor is the exec-backed Engine.
type Monitor struct {
	config  MonitorConfig
	starter Starter
	clock   clock.Clock
	logger  *slog.Logger
	events  chan Event

	mu      sync.Mutex
	control chan controlLine
	state   string
	desired *controlLine
	tracked map[string]struct{}
}

// NewMonitor creates a Monitor. Events are delivered on the channel
// returned by Events; the buffer absorbs short stalls of the consumer,
// after which reading the helper's output blocks.
func NewMonitor(config MonitorConfig, starter Starter, clk clock.Clock, logger *slog.Logger) *Monitor {
	if config.RestartDelay <= 0 {
		config.RestartDelay = DefaultRestartDelay
	}
	return &Monitor{
		config:  config,
		starter: starter,
		clock:   clk,
		logger:  logger,
		events:  make(chan Event, 64),
		state:   StateStopped,
		tracked: make(map[string]struct{}),
	}
}

// Events returns the decoded event stream. It is closed when Run
// returns.
func (m *Monitor) Events() <-chan Event { return m.events }

// Record implements Engine.
func (m *Monitor) Record(periodSeconds int) error {
	if periodSeconds <= 0 {
		return fmt.Errorf("record period must be positive, got %d", periodSeconds)
	}
	return m.request(controlLine{Command: "record", Period: periodSeconds}, true)
}

// Pause implements Engine.
func (m *Monitor) Pause() error {
	return m.request(controlLine{Command: "pause"}, true)
}

// TrackAddress implements Engine. Addresses are compared
// case-insensitively.
func (m *Monitor) TrackAddress(address string) error {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return errors.New("empty hardware address")
	}
	m.mu.Lock()
	m.tracked[address] = struct{}{}
	m.mu.Unlock()
	return m.request(controlLine{Command: "track", Address: address}, false)
}

// State implements Engine.
func (m *Monitor) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Tracked returns the tracked addresses in sorted order.
func (m *Monitor) Tracked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	addresses := make([]string, 0, len(m.tracked))
	for address := range m.tracked {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)
	return addresses
}

// request records line as the desired recording state (when
// remember is set) and queues it for a running helper. It never waits
// on the helper: write failures are logged by the forwarder, and a
// full queue is reported as ErrControlBacklog.
func (m *Monitor) request(line controlLine, remember bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if remember {
		m.desired = &line
	}
	if m.control == nil {
		m.logger.Debug("sensing helper not running, request deferred", "command", line.Command)
		return nil
	}
	select {
	case m.control <- line:
		return nil
	default:
		return fmt.Errorf("sending %s: %w", line.Command, ErrControlBacklog)
	}
}

// forwardControl writes the replay lines and then every queued line to
// the helper until the queue is closed.
func (m *Monitor) forwardControl(writer io.Writer, replay []controlLine, queue <-chan controlLine, done chan<- struct{}) {
	defer close(done)
	for _, line := range replay {
		if err := writeControl(writer, line); err != nil {
			m.logger.Warn("replaying sensing state", "error", err)
			break
		}
	}
	for line := range queue {
		if err := writeControl(writer, line); err != nil {
			m.logger.Warn("forwarding sensing command", "command", line.Command, "error", err)
		}
	}
}

func writeControl(writer io.Writer, line controlLine) error {
	data, err := json.Marshal(line)
	if err != nil {
		return err
	}
	if _, err := writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("sending %s to sensing helper: %w", line.Command, err)
	}
	return nil
}

// Run keeps the helper running until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	defer close(m.events)
	for {
		if err := m.runOnce(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error("sensing helper stopped", "error", err, "restart_in", m.config.RestartDelay)
			m.emit(ctx, Event{Type: EventMonitorError, Message: err.Error(), Observed: m.clock.Now()})
		}
		select {
		case <-ctx.Done():
			return
		case <-m.clock.After(m.config.RestartDelay):
		}
	}
}

// runOnce starts the helper, replays the desired state, and reads
// events until the helper exits.
func (m *Monitor) runOnce(ctx context.Context) error {
	m.setState(StateStarting)
	session, err := m.starter.Start(ctx, m.config.Command, m.config.Args)
	if err != nil {
		m.setState(StateStopped)
		return err
	}

	queue := make(chan controlLine, controlQueueSize)
	forwarded := make(chan struct{})
	m.mu.Lock()
	m.control = queue
	replay := m.replayLocked()
	m.mu.Unlock()
	go m.forwardControl(session.Control, replay, queue, forwarded)
	m.logger.Info("sensing helper started", "command", m.config.Command, "replayed", len(replay))

	scanner := bufio.NewScanner(session.Events)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			m.logger.Warn("undecodable sensing event", "line", string(line), "error", err)
			continue
		}
		event.Observed = m.clock.Now()
		if !m.accept(&event) {
			continue
		}
		m.emit(ctx, event)
	}
	scanErr := scanner.Err()

	m.mu.Lock()
	m.control = nil
	close(queue)
	m.state = StateStopped
	m.mu.Unlock()
	// Closing stdin also releases a forwarder stuck in a write.
	session.Control.Close()
	<-forwarded

	waitErr := session.Wait()
	if scanErr != nil {
		return fmt.Errorf("reading sensing events: %w", scanErr)
	}
	if waitErr != nil {
		return fmt.Errorf("sensing helper exited: %w", waitErr)
	}
	return errors.New("sensing helper exited")
}

// replayLocked returns the lines that bring a fresh helper to the
// desired state: tracked addresses first, then record or pause.
func (m *Monitor) replayLocked() []controlLine {
	var lines []controlLine
	addresses := make([]string, 0, len(m.tracked))
	for address := range m.tracked {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)
	for _, address := range addresses {
		lines = append(lines, controlLine{Command: "track", Address: address})
	}
	if m.desired != nil {
		lines = append(lines, *m.desired)
	}
	return lines
}

// accept applies an event to the monitor's own state and reports
// whether it should be delivered.
func (m *Monitor) accept(event *Event) bool {
	switch event.Type {
	case EventTransition:
		m.setState(event.To)
		return true
	case EventMACDetected:
		event.Address = strings.ToLower(event.Address)
		m.mu.Lock()
		_, tracked := m.tracked[event.Address]
		m.mu.Unlock()
		return tracked
	case EventProcessed, EventMonitorError:
		return true
	default:
		m.logger.Debug("ignoring sensing event", "type", string(event.Type))
		return false
	}
}

func (m *Monitor) setState(state string) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

func (m *Monitor) emit(ctx context.Context, event Event) {
	select {
	case m.events <- event:
	case <-ctx.Done():
	}
}
