// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"slices"
	"testing"
	"time"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantVerb string
		wantArgs []string
	}{
		{"bare_verb", "status", "status", nil},
		{"one_arg", "changeperiod 120", "changeperiod", []string{"120"}},
		{"whitespace_runs", "  opentunnel\t2222   22 queen@host \n", "opentunnel", []string{"2222", "22", "queen@host"}},
		{"blank", "   ", "", nil},
		{"empty", "", "", nil},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			command := ParseCommand(test.raw)
			if command.Verb != test.wantVerb {
				t.Errorf("Verb = %q, want %q", command.Verb, test.wantVerb)
			}
			if len(command.Args) != len(test.wantArgs) || !slices.Equal(command.Args, test.wantArgs) {
				t.Errorf("Args = %q, want %q", command.Args, test.wantArgs)
			}
		})
	}
}

func TestCommandString(t *testing.T) {
	command := ParseCommand("init   300 7  22")
	if got := command.String(); got != "init 300 7 22" {
		t.Errorf("String() = %q", got)
	}
	if got := ParseCommand("status").String(); got != "status" {
		t.Errorf("String() = %q", got)
	}
}

func TestTopics(t *testing.T) {
	const id = "ant-42"
	tests := []struct {
		got  string
		want string
	}{
		{DirectFilter(id), "ant-42/#"},
		{InitTopic(id), "init/ant-42"},
		{CommandResultTopic(id), "cmdResult/ant-42"},
		{WifiStatusTopic(id), "status/ant-42/wifi"},
		{ClientStatusTopic(id), "status/ant-42/client"},
		{MeasurementTopic(id), "measurement/ant-42/measurement"},
		{TrackingTopic(id), "measurement/ant-42/tracking"},
		{ImageTopic(id), "image/ant-42"},
	}
	for _, test := range tests {
		if test.got != test.want {
			t.Errorf("got %q, want %q", test.got, test.want)
		}
	}
}

func TestCommandResultEncode(t *testing.T) {
	got := string(CommandResult{Command: "changeperiod", Result: "120"}.Encode())
	want := `{"command":"changeperiod","result":"120"}`
	if got != want {
		t.Errorf("Encode() = %s, want %s", got, want)
	}
}

func TestEncodeMeasurement(t *testing.T) {
	observed := time.Date(2026, 3, 4, 5, 6, 7, 891_000_000, time.FixedZone("UTC+2", 2*3600))
	got := string(EncodeMeasurement(17, observed))
	want := `[{"value":17,"date":"2026-03-04T03:06:07.891Z"}]`
	if got != want {
		t.Errorf("EncodeMeasurement = %s, want %s", got, want)
	}
}

func TestEncodeSighting(t *testing.T) {
	observed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	var decoded []Sighting
	if err := json.Unmarshal(EncodeSighting("aa:bb:cc:dd:ee:ff", -61, observed), &decoded); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	want := []Sighting{{Address: "aa:bb:cc:dd:ee:ff", Date: "2026-03-04T05:06:07.000Z", Signal: -61}}
	if !slices.Equal(decoded, want) {
		t.Errorf("decoded = %+v, want %+v", decoded, want)
	}
}

func TestEnvelopeSize(t *testing.T) {
	envelope := Envelope{Topic: "image/a", Payload: make([]byte, 100)}
	if got := envelope.Size(); got != 107 {
		t.Errorf("Size() = %d, want 107", got)
	}
}
