// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package sensing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pheromon/antagent/lib/schema"
	"github.com/pheromon/antagent/lib/testutil"
)

type sentMessage struct {
	topic   string
	payload string
	options schema.DeliveryOptions
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeSender) Send(topic string, payload []byte, options schema.DeliveryOptions) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{topic: topic, payload: string(payload), options: options})
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeAppender struct {
	fragments []string
	err       error
}

func (f *fakeAppender) Append(fragment []byte) error {
	f.fragments = append(f.fragments, string(fragment))
	return f.err
}

var observed = time.Date(2026, 8, 2, 14, 15, 16, 0, time.UTC)

func TestPumpHandle(t *testing.T) {
	tests := []struct {
		name         string
		event        Event
		want         []sentMessage
		wantAppended []string
	}{
		{
			name:  "processed",
			event: Event{Type: EventProcessed, Devices: 12, Observed: observed},
			want: []sentMessage{{
				topic:   "measurement/ant-7/measurement",
				payload: `[{"value":12,"date":"2026-08-02T14:15:16.000Z"}]`,
				options: schema.AtLeastOnce,
			}},
			wantAppended: []string{`[{"value":12,"date":"2026-08-02T14:15:16.000Z"}]`},
		},
		{
			name:  "mac_detected",
			event: Event{Type: EventMACDetected, Address: "aa:bb:cc:dd:ee:ff", Signal: -61, Observed: observed},
			want: []sentMessage{{
				topic:   "measurement/ant-7/tracking",
				payload: `[{"address":"aa:bb:cc:dd:ee:ff","date":"2026-08-02T14:15:16.000Z","signal":-61}]`,
				options: schema.AtLeastOnce,
			}},
		},
		{
			name:  "transition",
			event: Event{Type: EventTransition, From: "sleeping", To: "recording", Observed: observed},
			want:  []sentMessage{{topic: "status/ant-7/wifi", payload: "recording"}},
		},
		{
			name:  "monitor_error",
			event: Event{Type: EventMonitorError, Message: "wlan1 gone", Observed: observed},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sender := &fakeSender{}
			appender := &fakeAppender{}
			pump := NewPump("ant-7", sender, appender, testutil.Logger(t))
			pump.Handle(test.event)

			got := sender.messages()
			if len(got) != len(test.want) {
				t.Fatalf("sent %+v, want %+v", got, test.want)
			}
			for i := range got {
				if got[i] != test.want[i] {
					t.Errorf("message %d = %+v, want %+v", i, got[i], test.want[i])
				}
			}
			if len(appender.fragments) != len(test.wantAppended) {
				t.Fatalf("appended %v, want %v", appender.fragments, test.wantAppended)
			}
			for i := range appender.fragments {
				if appender.fragments[i] != test.wantAppended[i] {
					t.Errorf("fragment %d = %s, want %s", i, appender.fragments[i], test.wantAppended[i])
				}
			}
		})
	}
}

func TestPumpPublishesWhenFileWriteFails(t *testing.T) {
	sender := &fakeSender{}
	pump := NewPump("ant-7", sender, &fakeAppender{err: errors.New("disk full")}, testutil.Logger(t))
	pump.Handle(Event{Type: EventProcessed, Devices: 1, Observed: observed})
	if len(sender.messages()) != 1 {
		t.Fatal("measurement not published after file write failure")
	}
}

func TestPumpRunStopsOnClose(t *testing.T) {
	sender := &fakeSender{}
	pump := NewPump("ant-7", sender, nil, testutil.Logger(t))
	events := make(chan Event, 2)
	events <- Event{Type: EventTransition, To: "recording"}
	events <- Event{Type: EventProcessed, Devices: 4, Observed: observed}
	close(events)

	done := make(chan struct{})
	go func() {
		pump.Run(context.Background(), events)
		close(done)
	}()
	testutil.RequireClosed(t, done, 5*time.Second, "Run returned")
	if got := len(sender.messages()); got != 2 {
		t.Fatalf("sent %d messages, want 2", got)
	}
}
