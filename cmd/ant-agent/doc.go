// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// ant-agent runs on a field sensor ("ant") and takes commands from
// the queen over MQTT.
//
// It keeps one persistent broker session, dispatches every command to
// the router on its own goroutine, and publishes replies and telemetry
// through a bounded outbox that survives broker outages. The sensing
// helper is started and paused by the daily schedule and by remote
// commands; its measurements are published and appended to the
// measurement file.
//
// Usage:
//
//	ant-agent --config /etc/ant/agent.yaml
//	ant-agent --keygen /opt/ant/PRIVATE/ant.key
//	ant-agent --seal-to age1... < token.txt
//
// --keygen writes a new age key and prints its recipient. --seal-to
// reads a broker token on stdin and prints it sealed for common.json's
// mqttTokenSealed field.
package main
