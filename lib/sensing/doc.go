// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// Package sensing connects the agent to its wifi sensing engine.
//
// [Engine] is the control surface the router and schedule coordinator
// drive: record with a period, pause, track a hardware address, and
// report the current state. [Monitor] implements it by supervising a
// monitor helper process that speaks JSON lines:
//
//	agent -> helper (stdin)
//	  {"command":"record","period":300}
//	  {"command":"pause"}
//	  {"command":"track","address":"aa:bb:cc:dd:ee:ff"}
//
//	helper -> agent (stdout)
//	  {"type":"processed","devices":12}
//	  {"type":"macDetected","mac_address":"aa:bb:cc:dd:ee:ff","signal_strength":-61}
//	  {"type":"transition","from":"sleeping","to":"recording"}
//	  {"type":"monitorError","message":"interface wlan1 disappeared"}
//
// The monitor remembers the last record/pause request and every
// tracked address and replays them whenever the helper (re)starts, so
// a crashed helper comes back in the state the agent last asked for.
// Requests made while the helper is down are not errors.
//
// [Pump] turns the event stream into telemetry: device counts are
// appended to the measurement log and published, sightings and state
// transitions are published, and monitor errors are logged.
package sensing
