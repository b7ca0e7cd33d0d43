// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package watchdog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Marker describes a reboot the agent is about to perform.
type Marker struct {
	// Reason is the command that requested the reboot, e.g. "reboot".
	Reason string `json:"reason"`

	// CorrelationID ties the marker to the command's log lines.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Identity is the agent identity that wrote the marker.
	Identity string `json:"identity"`

	// Timestamp is when the reboot was initiated. Check uses it to
	// ignore markers left behind by unrelated restarts.
	Timestamp time.Time `json:"timestamp"`
}

// Write atomically replaces the marker at path. The parent directory
// is created if needed; the file has mode 0600.
func Write(path string, marker Marker) error {
	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling reboot marker: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating marker directory: %w", err)
	}

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating temporary marker: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary marker: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary marker: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary marker: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming marker into place: %w", err)
	}

	// The rename must survive the power cut that follows.
	if parent, err := os.Open(filepath.Dir(path)); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}

// Read parses the marker at path. A missing file yields an error
// wrapping os.ErrNotExist.
func Read(path string) (Marker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Marker{}, err
	}
	var marker Marker
	if err := json.Unmarshal(data, &marker); err != nil {
		return Marker{}, fmt.Errorf("parsing reboot marker %s: %w", path, err)
	}
	return marker, nil
}

// Check returns the marker at path and true when it exists and was
// written no more than maxAge before now. A missing or stale marker
// yields false with no error; an unreadable one is an error.
func Check(path string, maxAge time.Duration, now time.Time) (Marker, bool, error) {
	marker, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Marker{}, false, nil
		}
		return Marker{}, false, err
	}
	if now.Sub(marker.Timestamp) > maxAge {
		return Marker{}, false, nil
	}
	return marker, true, nil
}

// Clear removes the marker. Removing a missing marker is not an error.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing reboot marker: %w", err)
	}
	return nil
}
