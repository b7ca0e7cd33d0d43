// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pheromon/antagent/lib/clock"
	"github.com/pheromon/antagent/lib/cron"
	"github.com/pheromon/antagent/lib/settings"
)

// DefaultSettleDelay is how long Reconcile waits between pausing and
// deciding, giving the sensing engine time to quiesce.
const DefaultSettleDelay = 3 * time.Second

// Recorder is the part of the sensing engine the coordinator drives.
type Recorder interface {
	Record(periodSeconds int) error
	Pause() error
}

// Slot identifies one of the two daily jobs.
type Slot int

const (
	// StartSlot resumes recording at the wakeup hour.
	StartSlot Slot = iota

	// StopSlot pauses recording at the sleep hour.
	StopSlot
)

func (s Slot) String() string {
	switch s {
	case StartSlot:
		return "start"
	case StopSlot:
		return "stop"
	default:
		return fmt.Sprintf("Slot(%d)", int(s))
	}
}

// Job is one installed daily trigger.
type Job struct {
	Slot   Slot
	Hour   int
	Minute int

	schedule cron.Schedule
	timer    *clock.Timer
	next     time.Time
}

// JobStatus describes an installed job for status reporting.
type JobStatus struct {
	Slot     string    `json:"slot"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next"`
}

// Config holds the coordinator's collaborators.
type Config struct {
	Settings *settings.Store
	Recorder Recorder
	Clock    clock.Clock

	// Location is the zone hours are interpreted in. Nil means
	// time.Local.
	Location *time.Location

	// SettleDelay defaults to DefaultSettleDelay when zero.
	SettleDelay time.Duration

	Logger *slog.Logger
}

// Coordinator owns the start and stop jobs and serializes every
// decision that touches recording state.
type Coordinator struct {
	settings    *settings.Store
	recorder    Recorder
	clock       clock.Clock
	location    *time.Location
	settleDelay time.Duration
	logger      *slog.Logger

	mu         sync.Mutex
	jobs       [2]*Job
	generation uint64
}

// New creates a Coordinator with no jobs installed.
func New(config Config) *Coordinator {
	location := config.Location
	if location == nil {
		location = time.Local
	}
	settleDelay := config.SettleDelay
	if settleDelay <= 0 {
		settleDelay = DefaultSettleDelay
	}
	return &Coordinator{
		settings:    config.Settings,
		recorder:    config.Recorder,
		clock:       config.Clock,
		location:    location,
		settleDelay: settleDelay,
		logger:      config.Logger,
	}
}

// Start installs both jobs from the current configuration.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	configuration := c.settings.Snapshot()
	if err := c.installLocked(StartSlot, configuration.WakeupHour); err != nil {
		return err
	}
	return c.installLocked(StopSlot, configuration.SleepHour)
}

// Stop cancels both jobs.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for index, job := range c.jobs {
		if job != nil {
			job.timer.Stop()
			c.jobs[index] = nil
		}
	}
}

// InstallStartJob replaces the start job with one firing daily at
// hour:00.
func (c *Coordinator) InstallStartJob(hour int) error {
	return c.install(StartSlot, hour)
}

// InstallStopJob replaces the stop job with one firing daily at
// hour:00.
func (c *Coordinator) InstallStopJob(hour int) error {
	return c.install(StopSlot, hour)
}

// SetWakeupHour stores hour as the wakeup hour and moves the start job
// to it. Other configuration changes cannot interleave, so the start
// job always fires at the stored wakeup hour. A rejected hour changes
// nothing; a job that cannot be re-armed is logged and the stored hour
// stands.
func (c *Coordinator) SetWakeupHour(hour int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.settings.SetWakeupHour(hour); err != nil {
		return err
	}
	c.reinstallLocked(StartSlot, hour)
	return nil
}

// SetSleepHour is SetWakeupHour for the sleep hour and the stop job.
func (c *Coordinator) SetSleepHour(hour int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.settings.SetSleepHour(hour); err != nil {
		return err
	}
	c.reinstallLocked(StopSlot, hour)
	return nil
}

// Apply replaces the whole configuration and moves both jobs to its
// hours in one step.
func (c *Coordinator) Apply(next settings.Configuration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.settings.Set(next); err != nil {
		return err
	}
	c.reinstallLocked(StartSlot, next.WakeupHour)
	c.reinstallLocked(StopSlot, next.SleepHour)
	return nil
}

func (c *Coordinator) reinstallLocked(slot Slot, hour int) {
	if err := c.installLocked(slot, hour); err != nil {
		c.logger.Error("reinstalling job", "slot", slot.String(), "hour", hour, "error", err)
	}
}

func (c *Coordinator) install(slot Slot, hour int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.installLocked(slot, hour)
}

func (c *Coordinator) installLocked(slot Slot, hour int) error {
	if err := settings.ValidateHour(hour); err != nil {
		return fmt.Errorf("installing %s job: %w", slot, err)
	}
	schedule, err := cron.Daily(hour, 0, c.location)
	if err != nil {
		return fmt.Errorf("installing %s job: %w", slot, err)
	}

	if previous := c.jobs[slot]; previous != nil {
		previous.timer.Stop()
		c.logger.Info("cancelled job", "slot", slot.String(), "schedule", previous.schedule.String())
	}

	job := &Job{Slot: slot, Hour: hour, schedule: schedule}
	if err := c.armLocked(job); err != nil {
		c.jobs[slot] = nil
		return err
	}
	c.jobs[slot] = job
	c.logger.Info("installed job",
		"slot", slot.String(),
		"schedule", schedule.String(),
		"next", job.next,
	)
	return nil
}

// armLocked aims job's timer at the next match after now. The delay is
// always positive because Next is strictly after now.
func (c *Coordinator) armLocked(job *Job) error {
	now := c.clock.Now()
	next, err := job.schedule.Next(now)
	if err != nil {
		return err
	}
	job.next = next
	job.timer = c.clock.AfterFunc(next.Sub(now), func() { c.fire(job) })
	return nil
}

// fire runs a job's action and re-arms it. A job that has been
// replaced or stopped since it was armed does nothing.
func (c *Coordinator) fire(job *Job) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.jobs[job.Slot] != job {
		return
	}

	switch job.Slot {
	case StartSlot:
		period := c.settings.Snapshot().MeasurePeriodSeconds
		c.logger.Info("restarting measurements", "period_seconds", period)
		if err := c.recorder.Record(period); err != nil {
			c.logger.Error("scheduled record failed", "error", err)
		}
	case StopSlot:
		c.logger.Info("pausing measurements")
		if err := c.recorder.Pause(); err != nil {
			c.logger.Error("scheduled pause failed", "error", err)
		}
	}

	if err := c.armLocked(job); err != nil {
		c.logger.Error("re-arming job", "slot", job.Slot.String(), "error", err)
		c.jobs[job.Slot] = nil
	}
}

// Jobs reports the installed jobs in slot order.
func (c *Coordinator) Jobs() []JobStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	var statuses []JobStatus
	for _, job := range c.jobs {
		if job == nil {
			continue
		}
		statuses = append(statuses, JobStatus{
			Slot:     job.Slot.String(),
			Schedule: job.schedule.String(),
			Next:     job.next,
		})
	}
	return statuses
}

// Reconcile pauses recording, waits the settle delay, and resumes
// recording with the current period if the current hour is inside the
// configured window. A reconcile overtaken by a later one during its
// settle delay returns nil without acting. Cancelling ctx abandons the
// wait and leaves recording paused.
func (c *Coordinator) Reconcile(ctx context.Context) error {
	c.mu.Lock()
	c.generation++
	generation := c.generation
	err := c.recorder.Pause()
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("pausing before reconcile: %w", err)
	}

	select {
	case <-c.clock.After(c.settleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		c.logger.Debug("reconcile superseded", "generation", generation, "latest", c.generation)
		return nil
	}

	configuration := c.settings.Snapshot()
	hour := c.clock.Now().In(c.location).Hour()
	if !configuration.InWindow(hour) {
		c.logger.Info("outside recording window, staying paused",
			"hour", hour,
			"wakeup_hour", configuration.WakeupHour,
			"sleep_hour", configuration.SleepHour,
		)
		return nil
	}

	c.logger.Info("restarting measurements",
		"hour", hour,
		"period_seconds", configuration.MeasurePeriodSeconds,
	)
	if err := c.recorder.Record(configuration.MeasurePeriodSeconds); err != nil {
		return fmt.Errorf("resuming after reconcile: %w", err)
	}
	return nil
}
