// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pheromon/antagent/lib/broker"
	"github.com/pheromon/antagent/lib/clock"
	"github.com/pheromon/antagent/lib/config"
	"github.com/pheromon/antagent/lib/hostctl"
	"github.com/pheromon/antagent/lib/hwinfo"
	"github.com/pheromon/antagent/lib/measurelog"
	"github.com/pheromon/antagent/lib/process"
	"github.com/pheromon/antagent/lib/reply"
	"github.com/pheromon/antagent/lib/router"
	"github.com/pheromon/antagent/lib/schedule"
	"github.com/pheromon/antagent/lib/schema"
	"github.com/pheromon/antagent/lib/sensing"
	"github.com/pheromon/antagent/lib/settings"
	"github.com/pheromon/antagent/lib/statusapi"
	"github.com/pheromon/antagent/lib/tunnel"
	"github.com/pheromon/antagent/lib/version"
	"github.com/pheromon/antagent/lib/watchdog"
)

// rebootMarkerMaxAge is how old a reboot marker may be and still be
// reported as the cause of this start.
const rebootMarkerMaxAge = 15 * time.Minute

// runAgent wires every component and blocks until ctx is cancelled.
func runAgent(ctx context.Context, agentConfig *config.Config, logOutput io.Writer) error {
	logger := process.NewLogger(logOutput)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	identity, err := agentConfig.LoadIdentity()
	if err != nil {
		return fmt.Errorf("loading identity: %w", err)
	}
	defer identity.Close()
	logger = logger.With("ant", identity.ID)

	location, err := agentConfig.Location()
	if err != nil {
		return err
	}
	clk := clock.Real()

	lastReboot := checkRebootMarker(agentConfig.Paths.RebootMarker(), clk.Now(), logger)

	store, err := settings.NewStore(agentConfig.InitialSettings(), agentConfig.Paths.SettingsSnapshot(),
		logger.With("component", "settings"))
	if err != nil {
		return err
	}

	// The session, the outbox and the router refer to each other; the
	// adapters below are bound before anything runs.
	var (
		port     *reply.Port
		commands *router.Router
	)
	session := broker.New(broker.Config{
		URL:                  identity.BrokerURL(),
		Identity:             identity.ID,
		Username:             agentConfig.Broker.Username,
		Password:             identity.Token,
		KeepAlive:            agentConfig.Broker.KeepAlive,
		MaxReconnectInterval: agentConfig.Broker.MaxReconnectInterval,
		ConnectTimeout:       agentConfig.Broker.ConnectTimeout,
	},
		broker.HandlerFunc(func(ctx context.Context, raw, replyTopic string) {
			commands.Handle(ctx, raw, replyTopic)
		}),
		broker.SenderFunc(func(topic string, payload []byte, options schema.DeliveryOptions) {
			port.Send(topic, payload, options)
		}),
		logger.With("component", "broker"),
	)
	port = reply.New(session, clk, agentConfig.Outbox.MaxBytes, logger.With("component", "outbox"))

	compression, err := measurelog.ParseCompression(agentConfig.Measurements.Compression)
	if err != nil {
		return err
	}
	measurements := measurelog.New(measurelog.Config{
		Path:        agentConfig.Paths.Measurements,
		RotateBytes: agentConfig.Measurements.RotateBytes,
		Compression: compression,
	}, clk, logger.With("component", "measurelog"))

	monitor := sensing.NewMonitor(sensing.MonitorConfig{
		Command:      agentConfig.Sensing.Command,
		Args:         agentConfig.Sensing.Args,
		RestartDelay: agentConfig.Sensing.RestartDelay,
	}, sensing.ExecStarter{}, clk, logger.With("component", "sensing"))
	pump := sensing.NewPump(identity.ID, port, measurements, logger.With("component", "pump"))

	coordinator := schedule.New(schedule.Config{
		Settings:    store,
		Recorder:    monitor,
		Clock:       clk,
		Location:    location,
		SettleDelay: agentConfig.Schedule.SettleDelay,
		Logger:      logger.With("component", "schedule"),
	})

	supervisor := tunnel.NewSupervisor(tunnel.Config{
		Command:      agentConfig.Tunnel.Command,
		ExtraOptions: agentConfig.Tunnel.ExtraOptions,
		Timeout:      agentConfig.Tunnel.Timeout,
		KillGrace:    agentConfig.Tunnel.KillGrace,
	}, tunnel.ExecStarter{}, clk, logger.With("component", "tunnel"))

	var setClock hostctl.ClockSetter
	if !agentConfig.Commands.SetClock {
		setClock = func(t time.Time) error {
			logger.Info("system clock setting disabled", "requested", t)
			return nil
		}
	}
	host := hostctl.New(hostctl.Config{
		RebootCommand:  agentConfig.Commands.Reboot,
		CameraCommand:  agentConfig.Commands.Camera,
		ImagePath:      agentConfig.Commands.ImagePath,
		ExecuteTimeout: agentConfig.Commands.ExecuteTimeout,
	}, hostctl.ExecRunner{}, setClock, logger.With("component", "host"))

	markerPath := agentConfig.Paths.RebootMarker()
	commands = router.New(router.Config{
		Identity:    identity.ID,
		Settings:    store,
		Scheduler:   coordinator,
		Engine:      monitor,
		Tunnels:     supervisor,
		Host:        host,
		Sender:      port,
		Clock:       clk,
		Location:    location,
		RebootDelay: agentConfig.Commands.RebootDelay,
		BeforeReboot: func(correlationID string) error {
			return watchdog.Write(markerPath, watchdog.Marker{
				Reason:        "reboot",
				CorrelationID: correlationID,
				Identity:      identity.ID,
				Timestamp:     clk.Now(),
			})
		},
		Logger: logger.With("component", "router"),
	})

	var workers sync.WaitGroup
	start := func(name string, run func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			run(ctx)
			logger.Debug("worker stopped", "worker", name)
		}()
	}

	start("sensing", monitor.Run)
	start("pump", func(ctx context.Context) { pump.Run(ctx, monitor.Events()) })

	if err := coordinator.Start(); err != nil {
		return fmt.Errorf("installing schedule: %w", err)
	}
	defer coordinator.Stop()
	start("reconcile", func(ctx context.Context) {
		if err := coordinator.Reconcile(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("startup reconcile", "error", err)
		}
	})

	if agentConfig.Status.Listen != "" {
		status := statusapi.New(statusapi.Sources{
			Identity:   identity.ID,
			Version:    version.Info(),
			Settings:   store,
			Jobs:       coordinator,
			Tunnel:     supervisor,
			Outbox:     port,
			Engine:     monitor,
			Connected:  session.Connected,
			LastReboot: lastReboot,
			Host:       hwinfo.NewProber(),
		}, logger.With("component", "status"))
		start("status", func(ctx context.Context) {
			if err := status.Serve(ctx, agentConfig.Status.Listen); err != nil {
				logger.Error("status endpoint stopped", "error", err)
			}
		})
	}

	logger.Info("ant agent running",
		"version", version.Info(),
		"broker", identity.BrokerURL(),
		"settings", store.Snapshot(),
	)

	// The outbox drains before the session disconnects.
	outboxDone := make(chan struct{})
	go func() {
		port.Run(ctx)
		close(outboxDone)
	}()
	sessionContext, stopSession := context.WithCancel(context.Background())
	go func() {
		<-outboxDone
		stopSession()
	}()

	sessionErr := session.Run(sessionContext)
	cancel()
	<-outboxDone
	supervisor.Close()
	workers.Wait()
	logger.Info("ant agent stopped")
	return sessionErr
}

// checkRebootMarker reports a recent commanded reboot and clears the
// marker.
func checkRebootMarker(path string, now time.Time, logger *slog.Logger) *watchdog.Marker {
	marker, recent, err := watchdog.Check(path, rebootMarkerMaxAge, now)
	if err != nil {
		logger.Warn("reading reboot marker", "path", path, "error", err)
	}
	if clearErr := watchdog.Clear(path); clearErr != nil {
		logger.Warn("clearing reboot marker", "path", path, "error", clearErr)
	}
	if !recent {
		return nil
	}
	logger.Info("started after a commanded reboot",
		"correlation_id", marker.CorrelationID,
		"requested_at", marker.Timestamp,
	)
	return &marker
}
