// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"errors"
	"time"

	"github.com/pheromon/antagent/lib/hostctl"
	"github.com/pheromon/antagent/lib/schema"
	"github.com/pheromon/antagent/lib/settings"
	"github.com/pheromon/antagent/lib/tunnel"
)

func handleStatus(_ context.Context, r *Router, c *call) {
	state := r.config.Engine.State()
	r.config.Sender.Send(schema.WifiStatusTopic(r.config.Identity), []byte(state), schema.DeliveryOptions{})
	r.reply(c, schema.ResultOK)
}

func handleReboot(_ context.Context, r *Router, c *call) {
	r.reply(c, schema.ResultOK)
	c.logger.Warn("reboot scheduled", "delay", r.config.RebootDelay)
	r.config.Clock.AfterFunc(r.config.RebootDelay, func() {
		if r.config.BeforeReboot != nil {
			if err := r.config.BeforeReboot(c.correlationID); err != nil {
				c.logger.Error("writing reboot marker", "error", err)
			}
		}
		if err := r.config.Host.Reboot(context.Background()); err != nil {
			c.logger.Error("reboot failed", "error", err)
		}
	})
}

func handleStartTracking(_ context.Context, r *Router, c *call) {
	if err := r.config.Engine.TrackAddress(c.command.Args[0]); err != nil {
		c.logger.Error("tracking address", "error", err)
		r.reply(c, err.Error())
		return
	}
	r.reply(c, schema.ResultOK)
}

func handleExecute(ctx context.Context, r *Router, c *call) {
	output, err := r.config.Host.Execute(ctx, c.command.Args[0], c.command.Args[1:])
	if err != nil {
		c.logger.Warn("execute failed", "error", err)
		r.reply(c, err.Error())
		return
	}
	r.reply(c, output)
}

func handlePicture(ctx context.Context, r *Router, c *call) {
	frame, err := r.config.Host.Capture(ctx)
	if err != nil {
		c.logger.Warn("picture failed", "error", err)
		r.reply(c, err.Error())
		return
	}
	r.config.Sender.Send(schema.ImageTopic(r.config.Identity), frame.Image, schema.DeliveryOptions{})
}

func handleResumeRecord(_ context.Context, r *Router, c *call) {
	period := r.config.Settings.Snapshot().MeasurePeriodSeconds
	if err := r.config.Engine.Record(period); err != nil {
		c.logger.Error("resuming recording", "error", err)
		r.reply(c, err.Error())
		return
	}
	r.reply(c, schema.ResultOK)
}

func handlePauseRecord(_ context.Context, r *Router, c *call) {
	if err := r.config.Engine.Pause(); err != nil {
		c.logger.Error("pausing recording", "error", err)
		r.reply(c, err.Error())
		return
	}
	r.reply(c, schema.ResultOK)
}

func handleCloseTunnel(_ context.Context, r *Router, c *call) {
	r.reply(c, schema.ResultOK)
	r.config.Sender.Send(schema.ClientStatusTopic(r.config.Identity), []byte(schema.ClientStatusConnected), schema.DeliveryOptions{})
	r.config.Tunnels.Close()
}

func handleOpenTunnel(ctx context.Context, r *Router, c *call) {
	target := tunnel.Target{
		QueenPort: c.command.Args[0],
		AntPort:   c.command.Args[1],
		Host:      c.command.Args[2],
	}
	err := r.config.Tunnels.Open(ctx, target)
	if err == nil {
		r.reply(c, schema.ResultOK)
		r.config.Sender.Send(schema.ClientStatusTopic(r.config.Identity), []byte(schema.ClientStatusTunnelling), schema.DeliveryOptions{})
		return
	}

	reason := err.Error()
	var failure *tunnel.Failure
	switch {
	case errors.Is(err, tunnel.ErrBusy):
		reason = "Tunnel already open"
	case errors.As(err, &failure):
		reason = failure.Reason
	}
	c.logger.Warn("could not make the tunnel", "reason", reason)
	r.reply(c, schema.ResultErrorPrefix+reason)
}

func handleChangePeriod(ctx context.Context, r *Router, c *call) {
	value := c.command.Args[0]
	period, err := parsePeriod(value)
	if err == nil {
		err = r.config.Settings.SetMeasurePeriod(period)
	}
	if err != nil {
		c.logger.Warn("rejecting period change", "error", err)
		r.reply(c, schema.ResultKO)
		return
	}
	if !r.reconcile(ctx, c) {
		return
	}
	r.reply(c, value)
}

func handleChangeStartTime(ctx context.Context, r *Router, c *call) {
	changeHour(ctx, r, c, r.config.Scheduler.SetWakeupHour)
}

func handleChangeStopTime(ctx context.Context, r *Router, c *call) {
	changeHour(ctx, r, c, r.config.Scheduler.SetSleepHour)
}

// changeHour validates an hour, hands it to set (which stores it and
// moves the job that fires at it), and reconciles.
func changeHour(ctx context.Context, r *Router, c *call, set func(int) error) {
	value := c.command.Args[0]
	hour, err := parseHour(value)
	if err == nil {
		err = set(hour)
	}
	if err != nil {
		c.logger.Warn("rejecting hour change", "error", err)
		r.reply(c, schema.ResultKO)
		return
	}
	if !r.reconcile(ctx, c) {
		return
	}
	r.reply(c, value)
}

func handleInit(ctx context.Context, r *Router, c *call) {
	args := c.command.Args
	next, deviceTime, err := parseInit(args, r.config.Location)
	if err != nil {
		c.logger.Warn("error in arguments of init", "args", args, "error", err)
		r.reply(c, schema.ResultInitArguments)
		return
	}
	// The clock is set before the jobs are re-armed so their next
	// firing is computed against the corrected time.
	if !deviceTime.IsZero() {
		if err := r.config.Host.SetClock(deviceTime); err != nil {
			c.logger.Warn("setting system clock", "time", deviceTime, "error", err)
		}
	}
	if err := r.config.Scheduler.Apply(next); err != nil {
		c.logger.Warn("error in arguments of init", "error", err)
		r.reply(c, schema.ResultInitArguments)
		return
	}

	if err := r.config.Scheduler.Reconcile(ctx); err != nil {
		c.logger.Error("reconcile after init", "error", err)
		r.reply(c, resultInitRestartFailed)
		return
	}
	c.logger.Debug("init done")
	r.reply(c, schema.ResultOK)
}

// parseInit validates every init argument before anything is applied.
// The returned time is zero when no datetime was given.
func parseInit(args []string, location *time.Location) (settings.Configuration, time.Time, error) {
	period, err := parsePeriod(args[0])
	if err != nil {
		return settings.Configuration{}, time.Time{}, err
	}
	wakeup, err := parseHour(args[1])
	if err != nil {
		return settings.Configuration{}, time.Time{}, err
	}
	sleep, err := parseHour(args[2])
	if err != nil {
		return settings.Configuration{}, time.Time{}, err
	}
	configuration := settings.Configuration{
		MeasurePeriodSeconds: period,
		WakeupHour:           wakeup,
		SleepHour:            sleep,
	}
	if len(args) < 4 {
		return configuration, time.Time{}, nil
	}
	deviceTime, err := hostctl.ParseDeviceTime(args[3], location)
	if err != nil {
		return settings.Configuration{}, time.Time{}, errors.Join(ErrValidation, err)
	}
	return configuration, deviceTime, nil
}

// reconcile runs the coordinator's reconcile. A failure is logged and
// reported as false; the caller then sends no reply.
func (r *Router) reconcile(ctx context.Context, c *call) bool {
	if err := r.config.Scheduler.Reconcile(ctx); err != nil {
		c.logger.Error("error in reconcile", "error", err)
		return false
	}
	return true
}
