// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pheromon/antagent/lib/codec"
)

// Limits on configuration values.
const (
	MinMeasurePeriod = 1
	MaxMeasurePeriod = 99999
	MaxHour          = 23
)

// ErrOutOfRange is returned (wrapped) when a value violates the
// Configuration invariants. The store is left unchanged.
var ErrOutOfRange = errors.New("value out of range")

// Configuration is the measurement period and the daily recording
// window [WakeupHour, SleepHour) in device-local hours.
type Configuration struct {
	MeasurePeriodSeconds int `cbor:"measure_period_seconds" json:"measure_period_seconds"`
	WakeupHour           int `cbor:"wakeup_hour" json:"wakeup_hour"`
	SleepHour            int `cbor:"sleep_hour" json:"sleep_hour"`
}

// Default is the configuration a freshly installed agent starts with.
func Default() Configuration {
	return Configuration{
		MeasurePeriodSeconds: 300,
		WakeupHour:           7,
		SleepHour:            22,
	}
}

// Validate checks every invariant.
func (c Configuration) Validate() error {
	if err := ValidateMeasurePeriod(c.MeasurePeriodSeconds); err != nil {
		return err
	}
	if err := ValidateHour(c.WakeupHour); err != nil {
		return fmt.Errorf("wakeup hour: %w", err)
	}
	if err := ValidateHour(c.SleepHour); err != nil {
		return fmt.Errorf("sleep hour: %w", err)
	}
	return nil
}

// InWindow reports whether recording should be active at hour. The
// comparison does not wrap midnight: when WakeupHour >= SleepHour the
// window is empty.
func (c Configuration) InWindow(hour int) bool {
	return c.WakeupHour <= hour && hour < c.SleepHour
}

// ValidateMeasurePeriod checks a period in seconds.
func ValidateMeasurePeriod(seconds int) error {
	if seconds < MinMeasurePeriod || seconds > MaxMeasurePeriod {
		return fmt.Errorf("measure period %d not in [%d, %d]: %w",
			seconds, MinMeasurePeriod, MaxMeasurePeriod, ErrOutOfRange)
	}
	return nil
}

// ValidateHour checks an hour of day.
func ValidateHour(hour int) error {
	if hour < 0 || hour > MaxHour {
		return fmt.Errorf("hour %d not in [0, %d]: %w", hour, MaxHour, ErrOutOfRange)
	}
	return nil
}

// Store is the single owner of the live Configuration.
type Store struct {
	mu           sync.Mutex
	current      Configuration
	snapshotPath string
	logger       *slog.Logger
}

// NewStore returns a store holding initial, or the persisted snapshot
// at snapshotPath when one exists and is valid. An empty snapshotPath
// disables persistence. A missing snapshot is normal (first boot); an
// unreadable or invalid one is logged and initial is used.
func NewStore(initial Configuration, snapshotPath string, logger *slog.Logger) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("initial configuration: %w", err)
	}

	store := &Store{
		current:      initial,
		snapshotPath: snapshotPath,
		logger:       logger,
	}

	if snapshotPath == "" {
		return store, nil
	}

	restored, err := readSnapshot(snapshotPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		logger.Warn("ignoring settings snapshot", "path", snapshotPath, "error", err)
	default:
		store.current = restored
		logger.Info("restored settings snapshot",
			"path", snapshotPath,
			"measure_period_seconds", restored.MeasurePeriodSeconds,
			"wakeup_hour", restored.WakeupHour,
			"sleep_hour", restored.SleepHour,
		)
	}
	return store, nil
}

// Snapshot returns a copy of the current configuration.
func (s *Store) Snapshot() Configuration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetMeasurePeriod replaces the measurement period.
func (s *Store) SetMeasurePeriod(seconds int) error {
	return s.update(func(c *Configuration) { c.MeasurePeriodSeconds = seconds })
}

// SetWakeupHour replaces the hour recording starts.
func (s *Store) SetWakeupHour(hour int) error {
	return s.update(func(c *Configuration) { c.WakeupHour = hour })
}

// SetSleepHour replaces the hour recording stops.
func (s *Store) SetSleepHour(hour int) error {
	return s.update(func(c *Configuration) { c.SleepHour = hour })
}

// Set replaces all fields at once.
func (s *Store) Set(next Configuration) error {
	return s.update(func(c *Configuration) { *c = next })
}

// update applies mutate to a copy, validates it, and commits it only
// when valid.
func (s *Store) update(mutate func(*Configuration)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := s.current
	mutate(&candidate)
	if err := candidate.Validate(); err != nil {
		return err
	}
	s.current = candidate

	if s.snapshotPath != "" {
		if err := writeSnapshot(s.snapshotPath, candidate); err != nil {
			s.logger.Warn("persisting settings snapshot", "path", s.snapshotPath, "error", err)
		}
	}
	return nil
}

func readSnapshot(path string) (Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Configuration{}, err
	}
	var restored Configuration
	if err := codec.Unmarshal(data, &restored); err != nil {
		return Configuration{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	if err := restored.Validate(); err != nil {
		return Configuration{}, fmt.Errorf("snapshot %s: %w", path, err)
	}
	return restored, nil
}

// writeSnapshot replaces the snapshot atomically: write a temporary
// file in the same directory, fsync, rename.
func writeSnapshot(path string, configuration Configuration) error {
	data, err := codec.Marshal(configuration)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating temporary snapshot: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary snapshot: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary snapshot: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming snapshot into place: %w", err)
	}
	return nil
}
