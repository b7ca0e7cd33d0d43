// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pheromon/antagent/lib/clock"
	"github.com/pheromon/antagent/lib/hostctl"
	"github.com/pheromon/antagent/lib/schema"
	"github.com/pheromon/antagent/lib/settings"
	"github.com/pheromon/antagent/lib/testutil"
	"github.com/pheromon/antagent/lib/tunnel"
)

const (
	testIdentity   = "ant-7"
	testReplyTopic = "cmdResult/ant-7"
)

// fakeSender records every queued message in order.
type fakeSender struct {
	mu       sync.Mutex
	messages []schema.Envelope
}

func (f *fakeSender) Send(topic string, payload []byte, options schema.DeliveryOptions) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, schema.Envelope{Topic: topic, Payload: payload, Options: options})
}

func (f *fakeSender) sent() []schema.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]schema.Envelope(nil), f.messages...)
}

// replies decodes the messages sent on the reply topic.
func (f *fakeSender) replies(t *testing.T) []schema.CommandResult {
	t.Helper()
	var results []schema.CommandResult
	for _, envelope := range f.sent() {
		if envelope.Topic != testReplyTopic {
			continue
		}
		var result schema.CommandResult
		if err := json.Unmarshal(envelope.Payload, &result); err != nil {
			t.Fatalf("decoding reply %q: %v", envelope.Payload, err)
		}
		results = append(results, result)
	}
	return results
}

// fakeScheduler stores configuration changes in settings and records
// the job moves as strings ("start:<hour>", "stop:<hour>").
type fakeScheduler struct {
	settings     *settings.Store
	mu           sync.Mutex
	calls        []string
	reconcileErr error
}

func (f *fakeScheduler) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeScheduler) SetWakeupHour(hour int) error {
	if err := f.settings.SetWakeupHour(hour); err != nil {
		return err
	}
	f.record("start:" + strconv.Itoa(hour))
	return nil
}

func (f *fakeScheduler) SetSleepHour(hour int) error {
	if err := f.settings.SetSleepHour(hour); err != nil {
		return err
	}
	f.record("stop:" + strconv.Itoa(hour))
	return nil
}

func (f *fakeScheduler) Apply(next settings.Configuration) error {
	if err := f.settings.Set(next); err != nil {
		return err
	}
	f.record("start:" + strconv.Itoa(next.WakeupHour))
	f.record("stop:" + strconv.Itoa(next.SleepHour))
	return nil
}

func (f *fakeScheduler) Reconcile(context.Context) error {
	f.record("reconcile")
	return f.reconcileErr
}

func (f *fakeScheduler) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeEngine struct {
	mu        sync.Mutex
	calls     []string
	state     string
	recordErr error
	trackErr  error
}

func (f *fakeEngine) Record(period int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "record:"+strconv.Itoa(period))
	return f.recordErr
}

func (f *fakeEngine) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "pause")
	return nil
}

func (f *fakeEngine) TrackAddress(address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "track:"+address)
	return f.trackErr
}

func (f *fakeEngine) State() string { return f.state }

type fakeTunnels struct {
	mu      sync.Mutex
	opened  []tunnel.Target
	openErr error
	closed  int
}

func (f *fakeTunnels) Open(_ context.Context, target tunnel.Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, target)
	return f.openErr
}

func (f *fakeTunnels) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

type fakeHost struct {
	mu         sync.Mutex
	executed   [][]string
	output     string
	executeErr error
	frame      hostctl.Frame
	captureErr error
	reboots    int
	clockSet   []time.Time
}

func (f *fakeHost) Execute(_ context.Context, name string, args []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, append([]string{name}, args...))
	return f.output, f.executeErr
}

func (f *fakeHost) Capture(context.Context) (hostctl.Frame, error) {
	return f.frame, f.captureErr
}

func (f *fakeHost) Reboot(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reboots++
	return nil
}

func (f *fakeHost) SetClock(t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clockSet = append(f.clockSet, t)
	return nil
}

func (f *fakeHost) rebootCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reboots
}

type harness struct {
	router    *Router
	settings  *settings.Store
	scheduler *fakeScheduler
	engine    *fakeEngine
	tunnels   *fakeTunnels
	host      *fakeHost
	sender    *fakeSender
	clock     *clock.FakeClock
	markers   []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := settings.NewStore(settings.Default(), "", testutil.Logger(t))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	h := &harness{
		settings:  store,
		scheduler: &fakeScheduler{settings: store},
		engine:    &fakeEngine{state: "recording"},
		tunnels:   &fakeTunnels{},
		host:      &fakeHost{},
		sender:    &fakeSender{},
		clock:     clock.Fake(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)),
	}
	h.router = New(Config{
		Identity:  testIdentity,
		Settings:  store,
		Scheduler: h.scheduler,
		Engine:    h.engine,
		Tunnels:   h.tunnels,
		Host:      h.host,
		Sender:    h.sender,
		Clock:     h.clock,
		Location:  time.UTC,
		BeforeReboot: func(correlationID string) error {
			h.markers = append(h.markers, correlationID)
			return nil
		},
		Logger: testutil.Logger(t),
	})
	return h
}

func (h *harness) handle(raw string) {
	h.router.Handle(context.Background(), raw, testReplyTopic)
}

func requireReplies(t *testing.T, h *harness, want ...schema.CommandResult) {
	t.Helper()
	got := h.sender.replies(t)
	if len(want) == 0 && len(got) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("replies = %+v, want %+v", got, want)
	}
}

func TestArityMismatch(t *testing.T) {
	tests := []struct {
		raw  string
		verb string
		want string
	}{
		{"changeperiod", "changeperiod", schema.ResultKO},
		{"changeperiod 1 2", "changeperiod", schema.ResultKO},
		{"status now", "status", schema.ResultKO},
		{"execute", "execute", schema.ResultKO},
		{"opentunnel 1 2", "opentunnel", schema.ResultKO},
		{"start_tracking", "start_tracking", schema.ResultKO},
		{"init 300 7", "init", schema.ResultInitArguments},
		{"init 300 7 22 2026-01-01T00:00:00 extra", "init", schema.ResultInitArguments},
	}
	for _, test := range tests {
		t.Run(test.raw, func(t *testing.T) {
			h := newHarness(t)
			h.handle(test.raw)
			requireReplies(t, h, schema.CommandResult{Command: test.verb, Result: test.want})
			if got := h.settings.Snapshot(); got != settings.Default() {
				t.Errorf("settings changed to %+v", got)
			}
			if calls := h.scheduler.recorded(); len(calls) != 0 {
				t.Errorf("scheduler called: %v", calls)
			}
		})
	}
}

func TestUnknownVerbIsDropped(t *testing.T) {
	for _, raw := range []string{"badverb", "", "   ", "STATUS"} {
		h := newHarness(t)
		h.handle(raw)
		if sent := h.sender.sent(); len(sent) != 0 {
			t.Errorf("%q: sent %v, want nothing", raw, sent)
		}
	}
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	h.handle("status")

	sent := h.sender.sent()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sent))
	}
	if sent[0].Topic != "status/ant-7/wifi" || string(sent[0].Payload) != "recording" {
		t.Errorf("first message = %s %q", sent[0].Topic, sent[0].Payload)
	}
	requireReplies(t, h, schema.CommandResult{Command: "status", Result: schema.ResultOK})
}

func TestChangePeriod(t *testing.T) {
	h := newHarness(t)
	h.handle("changeperiod 120")

	if got := h.settings.Snapshot().MeasurePeriodSeconds; got != 120 {
		t.Errorf("period = %d, want 120", got)
	}
	if calls := h.scheduler.recorded(); !reflect.DeepEqual(calls, []string{"reconcile"}) {
		t.Errorf("scheduler calls = %v", calls)
	}
	requireReplies(t, h, schema.CommandResult{Command: "changeperiod", Result: "120"})
}

func TestChangePeriodRejected(t *testing.T) {
	for _, value := range []string{"0", "abc", "123456", "-5", "1.5"} {
		t.Run(value, func(t *testing.T) {
			h := newHarness(t)
			h.handle("changeperiod " + value)
			requireReplies(t, h, schema.CommandResult{Command: "changeperiod", Result: schema.ResultKO})
			if got := h.settings.Snapshot(); got != settings.Default() {
				t.Errorf("settings changed to %+v", got)
			}
		})
	}
}

func TestChangePeriodReconcileFailureSendsNoReply(t *testing.T) {
	h := newHarness(t)
	h.scheduler.reconcileErr = errors.New("engine down")
	h.handle("changeperiod 60")

	requireReplies(t, h)
	if got := h.settings.Snapshot().MeasurePeriodSeconds; got != 60 {
		t.Errorf("period = %d, want 60", got)
	}
}

func TestChangeHours(t *testing.T) {
	tests := []struct {
		raw        string
		verb       string
		wantCalls  []string
		wantWakeup int
		wantSleep  int
	}{
		{"changestarttime 9", "changestarttime", []string{"start:9", "reconcile"}, 9, 22},
		{"changestoptime 18", "changestoptime", []string{"stop:18", "reconcile"}, 7, 18},
		{"changestarttime 09", "changestarttime", []string{"start:9", "reconcile"}, 9, 22},
	}
	for _, test := range tests {
		t.Run(test.raw, func(t *testing.T) {
			h := newHarness(t)
			h.handle(test.raw)

			if calls := h.scheduler.recorded(); !reflect.DeepEqual(calls, test.wantCalls) {
				t.Errorf("scheduler calls = %v, want %v", calls, test.wantCalls)
			}
			snapshot := h.settings.Snapshot()
			if snapshot.WakeupHour != test.wantWakeup || snapshot.SleepHour != test.wantSleep {
				t.Errorf("window = [%d, %d)", snapshot.WakeupHour, snapshot.SleepHour)
			}
			value := test.raw[len(test.verb)+1:]
			requireReplies(t, h, schema.CommandResult{Command: test.verb, Result: value})
		})
	}
}

func TestChangeHourRejected(t *testing.T) {
	for _, raw := range []string{"changestarttime 24", "changestoptime 123", "changestoptime x"} {
		t.Run(raw, func(t *testing.T) {
			h := newHarness(t)
			h.handle(raw)
			replies := h.sender.replies(t)
			if len(replies) != 1 || replies[0].Result != schema.ResultKO {
				t.Errorf("replies = %+v, want one KO", replies)
			}
			if calls := h.scheduler.recorded(); len(calls) != 0 {
				t.Errorf("scheduler called: %v", calls)
			}
		})
	}
}

func TestOpenTunnel(t *testing.T) {
	tests := []struct {
		name       string
		openErr    error
		wantResult string
		wantStatus bool
	}{
		{"established", nil, schema.ResultOK, true},
		{"port in use", &tunnel.Failure{Reason: tunnel.ReasonPortInUse}, "Error : Port already in use", false},
		{"timeout", &tunnel.Failure{Reason: tunnel.ReasonTimeout}, "Error : SSH timeout", false},
		{"busy", tunnel.ErrBusy, "Error : Tunnel already open", false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(t)
			h.tunnels.openErr = test.openErr
			h.handle("opentunnel 2222 22 queen.example.net")

			want := tunnel.Target{QueenPort: "2222", AntPort: "22", Host: "queen.example.net"}
			if len(h.tunnels.opened) != 1 || h.tunnels.opened[0] != want {
				t.Fatalf("opened = %+v, want [%+v]", h.tunnels.opened, want)
			}
			requireReplies(t, h, schema.CommandResult{Command: "opentunnel", Result: test.wantResult})

			sent := h.sender.sent()
			var statuses []string
			for _, envelope := range sent {
				if envelope.Topic == "status/ant-7/client" {
					statuses = append(statuses, string(envelope.Payload))
				}
			}
			if test.wantStatus {
				if !reflect.DeepEqual(statuses, []string{schema.ClientStatusTunnelling}) {
					t.Errorf("client statuses = %v", statuses)
				}
				if sent[0].Topic != testReplyTopic {
					t.Errorf("first message on %s, want the reply first", sent[0].Topic)
				}
			} else if len(statuses) != 0 {
				t.Errorf("client statuses = %v, want none", statuses)
			}
		})
	}
}

func TestCloseTunnel(t *testing.T) {
	h := newHarness(t)
	h.handle("closetunnel")

	sent := h.sender.sent()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sent))
	}
	if sent[0].Topic != testReplyTopic {
		t.Errorf("first message on %s, want reply", sent[0].Topic)
	}
	if sent[1].Topic != "status/ant-7/client" || string(sent[1].Payload) != schema.ClientStatusConnected {
		t.Errorf("second message = %s %q", sent[1].Topic, sent[1].Payload)
	}
	if h.tunnels.closed != 1 {
		t.Errorf("Close called %d times, want 1", h.tunnels.closed)
	}
}

func TestReboot(t *testing.T) {
	h := newHarness(t)
	h.handle("reboot")

	requireReplies(t, h, schema.CommandResult{Command: "reboot", Result: schema.ResultOK})
	if h.host.rebootCount() != 0 {
		t.Fatal("rebooted before the delay")
	}

	h.clock.Advance(999 * time.Millisecond)
	if h.host.rebootCount() != 0 {
		t.Fatal("rebooted before the delay")
	}
	h.clock.Advance(time.Millisecond)
	if h.host.rebootCount() != 1 {
		t.Fatalf("reboots = %d, want 1", h.host.rebootCount())
	}
	if len(h.markers) != 1 || h.markers[0] == "" {
		t.Errorf("markers = %v, want one correlation id", h.markers)
	}
}

func TestRecordingVerbs(t *testing.T) {
	h := newHarness(t)
	h.handle("pauserecord")
	h.handle("resumerecord")

	if !reflect.DeepEqual(h.engine.calls, []string{"pause", "record:300"}) {
		t.Errorf("engine calls = %v", h.engine.calls)
	}
	requireReplies(t, h,
		schema.CommandResult{Command: "pauserecord", Result: schema.ResultOK},
		schema.CommandResult{Command: "resumerecord", Result: schema.ResultOK},
	)
}

func TestResumeRecordFailure(t *testing.T) {
	h := newHarness(t)
	h.engine.recordErr = errors.New("helper crashed")
	h.handle("resumerecord")
	requireReplies(t, h, schema.CommandResult{Command: "resumerecord", Result: "helper crashed"})
}

func TestStartTracking(t *testing.T) {
	h := newHarness(t)
	h.handle("start_tracking AA:BB:CC:DD:EE:FF")

	if !reflect.DeepEqual(h.engine.calls, []string{"track:AA:BB:CC:DD:EE:FF"}) {
		t.Errorf("engine calls = %v", h.engine.calls)
	}
	requireReplies(t, h, schema.CommandResult{Command: "start_tracking", Result: schema.ResultOK})
}

func TestExecute(t *testing.T) {
	h := newHarness(t)
	h.host.output = "up 3 days\n"
	h.handle("execute uptime -p")

	if !reflect.DeepEqual(h.host.executed, [][]string{{"uptime", "-p"}}) {
		t.Errorf("executed = %v", h.host.executed)
	}
	requireReplies(t, h, schema.CommandResult{Command: "execute", Result: "up 3 days\n"})

	h = newHarness(t)
	h.host.executeErr = errors.New("exit status 1")
	h.handle("execute false")
	requireReplies(t, h, schema.CommandResult{Command: "execute", Result: "exit status 1"})
}

func TestPicture(t *testing.T) {
	h := newHarness(t)
	h.host.frame = hostctl.Frame{Image: []byte{0xff, 0xd8, 0xff}, Digest: "abc"}
	h.handle("picture")

	sent := h.sender.sent()
	if len(sent) != 1 || sent[0].Topic != "image/ant-7" || string(sent[0].Payload) != "\xff\xd8\xff" {
		t.Fatalf("sent = %+v, want one image", sent)
	}

	h = newHarness(t)
	h.host.captureErr = errors.New("no camera")
	h.handle("picture")
	requireReplies(t, h, schema.CommandResult{Command: "picture", Result: "no camera"})
}

func TestInit(t *testing.T) {
	h := newHarness(t)
	h.handle("init 600 8 20 2026-03-02T11:30:00.000Z")

	want := settings.Configuration{MeasurePeriodSeconds: 600, WakeupHour: 8, SleepHour: 20}
	if got := h.settings.Snapshot(); got != want {
		t.Errorf("settings = %+v, want %+v", got, want)
	}
	wantTime := time.Date(2026, 3, 2, 11, 30, 0, 0, time.UTC)
	if len(h.host.clockSet) != 1 || !h.host.clockSet[0].Equal(wantTime) {
		t.Errorf("clock set to %v, want %v", h.host.clockSet, wantTime)
	}
	wantCalls := []string{"start:8", "stop:20", "reconcile"}
	if calls := h.scheduler.recorded(); !reflect.DeepEqual(calls, wantCalls) {
		t.Errorf("scheduler calls = %v, want %v", calls, wantCalls)
	}
	requireReplies(t, h, schema.CommandResult{Command: "init", Result: schema.ResultOK})
}

func TestInitWithoutDate(t *testing.T) {
	h := newHarness(t)
	h.handle("init 60 0 23")

	if len(h.host.clockSet) != 0 {
		t.Errorf("clock set without a date: %v", h.host.clockSet)
	}
	requireReplies(t, h, schema.CommandResult{Command: "init", Result: schema.ResultOK})
}

func TestInitInvalidLeavesSettingsUnchanged(t *testing.T) {
	for _, raw := range []string{
		"init 0 7 22",
		"init 300 24 22",
		"init 300 7 99",
		"init 300 7 22 yesterday",
	} {
		t.Run(raw, func(t *testing.T) {
			h := newHarness(t)
			h.handle(raw)
			requireReplies(t, h, schema.CommandResult{Command: "init", Result: schema.ResultInitArguments})
			if got := h.settings.Snapshot(); got != settings.Default() {
				t.Errorf("settings changed to %+v", got)
			}
			if len(h.host.clockSet) != 0 {
				t.Errorf("clock set: %v", h.host.clockSet)
			}
		})
	}
}

func TestInitReconcileFailure(t *testing.T) {
	h := newHarness(t)
	h.scheduler.reconcileErr = errors.New("engine down")
	h.handle("init 300 7 22")
	requireReplies(t, h, schema.CommandResult{Command: "init", Result: "Error in restarting 6sense"})
}
