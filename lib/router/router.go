// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pheromon/antagent/lib/clock"
	"github.com/pheromon/antagent/lib/hostctl"
	"github.com/pheromon/antagent/lib/schema"
	"github.com/pheromon/antagent/lib/sensing"
	"github.com/pheromon/antagent/lib/settings"
	"github.com/pheromon/antagent/lib/tunnel"
)

// ErrValidation marks an argument that failed syntax or range checks.
var ErrValidation = errors.New("invalid argument")

// DefaultRebootDelay separates the reboot reply from the reboot.
const DefaultRebootDelay = 1 * time.Second

// resultInitRestartFailed is the init reply when reconciliation fails.
// The queen matches on this exact text.
const resultInitRestartFailed = "Error in restarting 6sense"

// Sender queues an outbound message. *reply.Port satisfies it.
type Sender interface {
	Send(topic string, payload []byte, options schema.DeliveryOptions)
}

// Scheduler is the schedule coordinator. The hour setters and Apply
// store the configuration and move the matching jobs as one step.
type Scheduler interface {
	SetWakeupHour(hour int) error
	SetSleepHour(hour int) error
	Apply(next settings.Configuration) error
	Reconcile(ctx context.Context) error
}

// Tunnels is the tunnel supervisor.
type Tunnels interface {
	Open(ctx context.Context, target tunnel.Target) error
	Close()
}

// Host performs host-level actions.
type Host interface {
	Execute(ctx context.Context, name string, args []string) (string, error)
	Capture(ctx context.Context) (hostctl.Frame, error)
	Reboot(ctx context.Context) error
	SetClock(t time.Time) error
}

// Config holds the router's collaborators.
type Config struct {
	// Identity is the agent identity used in topic names.
	Identity string

	Settings  *settings.Store
	Scheduler Scheduler
	Engine    sensing.Engine
	Tunnels   Tunnels
	Host      Host
	Sender    Sender
	Clock     clock.Clock

	// Location interprets bare init timestamps. Nil means time.Local.
	Location *time.Location

	// RebootDelay defaults to DefaultRebootDelay.
	RebootDelay time.Duration

	// BeforeReboot runs just before the reboot command, typically
	// writing the reboot marker. An error is logged and the reboot
	// proceeds.
	BeforeReboot func(correlationID string) error

	Logger *slog.Logger
}

// Router dispatches commands to their handlers.
type Router struct {
	config Config
}

// New creates a Router.
func New(config Config) *Router {
	if config.RebootDelay <= 0 {
		config.RebootDelay = DefaultRebootDelay
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	return &Router{config: config}
}

// call is one command in flight.
type call struct {
	command       schema.Command
	replyTopic    string
	correlationID string
	logger        *slog.Logger
}

// verbDefinition describes one verb: its accepted argument count
// (maxArgs < 0 means unbounded), the reply sent when the count is
// wrong, and the handler.
type verbDefinition struct {
	minArgs     int
	maxArgs     int
	arityResult string
	handler     func(ctx context.Context, r *Router, c *call)
}

// verbs maps each verb to its definition. Verbs not in this map are
// dropped.
var verbs = map[string]verbDefinition{
	"status":          {0, 0, schema.ResultKO, handleStatus},
	"reboot":          {0, 0, schema.ResultKO, handleReboot},
	"start_tracking":  {1, 1, schema.ResultKO, handleStartTracking},
	"execute":         {1, -1, schema.ResultKO, handleExecute},
	"picture":         {0, 0, schema.ResultKO, handlePicture},
	"resumerecord":    {0, 0, schema.ResultKO, handleResumeRecord},
	"pauserecord":     {0, 0, schema.ResultKO, handlePauseRecord},
	"closetunnel":     {0, 0, schema.ResultKO, handleCloseTunnel},
	"changeperiod":    {1, 1, schema.ResultKO, handleChangePeriod},
	"changestarttime": {1, 1, schema.ResultKO, handleChangeStartTime},
	"changestoptime":  {1, 1, schema.ResultKO, handleChangeStopTime},
	"opentunnel":      {3, 3, schema.ResultKO, handleOpenTunnel},
	"init":            {3, 4, schema.ResultInitArguments, handleInit},
}

// Handle parses raw and runs the matching handler. It returns once the
// handler has queued its reply (or decided not to send one).
func (r *Router) Handle(ctx context.Context, raw, replyTopic string) {
	command := schema.ParseCommand(raw)
	correlationID := uuid.NewString()
	logger := r.config.Logger.With("correlation_id", correlationID, "verb", command.Verb)

	definition, exists := verbs[command.Verb]
	if !exists {
		logger.Warn("unrecognized command", "command", raw)
		return
	}

	c := &call{
		command:       command,
		replyTopic:    replyTopic,
		correlationID: correlationID,
		logger:        logger,
	}

	count := len(command.Args)
	if count < definition.minArgs || (definition.maxArgs >= 0 && count > definition.maxArgs) {
		logger.Warn("wrong argument count", "args", command.Args, "min", definition.minArgs, "max", definition.maxArgs)
		r.reply(c, definition.arityResult)
		return
	}

	logger.Info("processing command", "args", command.Args)
	start := r.config.Clock.Now()
	definition.handler(ctx, r, c)
	logger.Debug("command handled", "duration", r.config.Clock.Now().Sub(start))
}

// reply queues {command, result} on the call's reply topic.
func (r *Router) reply(c *call, result string) {
	payload := schema.CommandResult{Command: c.command.Verb, Result: result}.Encode()
	r.config.Sender.Send(c.replyTopic, payload, schema.DeliveryOptions{})
}

var (
	periodPattern = regexp.MustCompile(`^\d{1,5}$`)
	hourPattern   = regexp.MustCompile(`^\d{1,2}$`)
)

// parseBounded matches value against pattern and converts it.
func parseBounded(value string, pattern *regexp.Regexp, name string) (int, error) {
	if !pattern.MatchString(value) {
		return 0, fmt.Errorf("%w: %s %q", ErrValidation, name, value)
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %v", ErrValidation, name, value, err)
	}
	return parsed, nil
}

func parsePeriod(value string) (int, error) {
	period, err := parseBounded(value, periodPattern, "period")
	if err != nil {
		return 0, err
	}
	if err := settings.ValidateMeasurePeriod(period); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return period, nil
}

func parseHour(value string) (int, error) {
	hour, err := parseBounded(value, hourPattern, "hour")
	if err != nil {
		return 0, err
	}
	if err := settings.ValidateHour(hour); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return hour, nil
}
