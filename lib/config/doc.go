// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the ant agent's configuration.
//
// The agent configuration is one YAML file named by the --config flag
// ([LoadFile]) or the ANT_CONFIG environment variable ([Load]). There
// is no search path. Fields left out of the file keep the values from
// [Default]. Path fields and the status listen address expand ${VAR}
// and ${VAR:-default} after loading.
//
// The ant's identity lives apart from the agent configuration, in the
// provisioning files every ant is flashed with: id.json names the ant
// and common.json carries the broker address and token. Both are JSON
// with comments allowed. The broker token is either plain (mqttToken)
// or sealed to the ant's age key (mqttTokenSealed); [LoadIdentity]
// returns it in a [secret.Buffer] either way.
package config
