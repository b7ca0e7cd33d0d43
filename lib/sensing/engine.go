// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package sensing

import "time"

// Engine is the sensing engine as seen by the rest of the agent.
type Engine interface {
	// Record starts (or restarts) recording with the given sampling
	// period in seconds.
	Record(periodSeconds int) error

	// Pause stops recording.
	Pause() error

	// TrackAddress adds a hardware address whose sightings are
	// reported individually.
	TrackAddress(address string) error

	// State is the engine's current state name, as published on the
	// wifi status topic.
	State() string
}

// EventType names an engine event.
type EventType string

const (
	EventProcessed    EventType = "processed"
	EventMACDetected  EventType = "macDetected"
	EventTransition   EventType = "transition"
	EventMonitorError EventType = "monitorError"
)

// Event is one line of helper output, decoded.
type Event struct {
	Type EventType `json:"type"`

	// Devices is the device count of a processed measurement window.
	Devices int `json:"devices,omitempty"`

	// Address and Signal describe a sighting of a tracked address.
	Address string `json:"mac_address,omitempty"`
	Signal  int    `json:"signal_strength,omitempty"`

	// From and To are the states of a transition.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	// Message describes a monitor error.
	Message string `json:"message,omitempty"`

	// Observed is stamped by the Monitor when the line is read.
	Observed time.Time `json:"-"`
}
