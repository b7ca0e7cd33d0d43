// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// BroadcastFilter is the subscription filter for commands addressed
// to every agent.
const BroadcastFilter = "all/#"

// DirectFilter returns the subscription filter for commands addressed
// to id alone.
func DirectFilter(id string) string { return id + "/#" }

// Status values published on the client status topic.
const (
	ClientStatusConnected  = "connected"
	ClientStatusTunnelling = "tunnelling"
)

// InitTopic carries the empty announcement an agent publishes once
// per process on its first successful connection.
func InitTopic(id string) string { return "init/" + id }

// CommandResultTopic carries every command reply.
func CommandResultTopic(id string) string { return "cmdResult/" + id }

// WifiStatusTopic carries the sensing engine state.
func WifiStatusTopic(id string) string { return "status/" + id + "/wifi" }

// ClientStatusTopic carries the tunnel status.
func ClientStatusTopic(id string) string { return "status/" + id + "/client" }

// MeasurementTopic carries periodic device counts.
func MeasurementTopic(id string) string { return "measurement/" + id + "/measurement" }

// TrackingTopic carries sightings of tracked hardware addresses.
func TrackingTopic(id string) string { return "measurement/" + id + "/tracking" }

// ImageTopic carries raw camera captures.
func ImageTopic(id string) string { return "image/" + id }
