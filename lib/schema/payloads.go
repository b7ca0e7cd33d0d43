// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"time"
)

// Reply results shared by several verbs.
const (
	ResultOK            = "OK"
	ResultKO            = "KO"
	ResultInitArguments = "Error in arguments"
	ResultErrorPrefix   = "Error : "
)

// CommandResult is the body published on the command result topic.
type CommandResult struct {
	Command string `json:"command"`
	Result  string `json:"result"`
}

// Encode returns the JSON form of the result.
func (r CommandResult) Encode() []byte {
	// A struct of two strings always marshals.
	data, _ := json.Marshal(r)
	return data
}

// Measurement is one device count. Measurements are published and
// persisted as single-element JSON arrays.
type Measurement struct {
	Value int    `json:"value"`
	Date  string `json:"date"`
}

// Sighting is one observation of a tracked hardware address.
type Sighting struct {
	Address string `json:"address"`
	Date    string `json:"date"`
	Signal  int    `json:"signal"`
}

// FormatDate renders t the way the queen parses timestamps: UTC with
// millisecond precision and a trailing Z.
func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// EncodeMeasurement returns the single-element array payload for a
// device count observed at t.
func EncodeMeasurement(value int, t time.Time) []byte {
	data, _ := json.Marshal([]Measurement{{Value: value, Date: FormatDate(t)}})
	return data
}

// EncodeSighting returns the single-element array payload for one
// tracked address observed at t.
func EncodeSighting(address string, signal int, t time.Time) []byte {
	data, _ := json.Marshal([]Sighting{{Address: address, Date: FormatDate(t), Signal: signal}})
	return data
}
