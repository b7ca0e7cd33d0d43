// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// Package router parses and executes remote commands.
//
// A command is a whitespace-separated string: a verb followed by
// positional arguments. [Router.Handle] looks the verb up in a fixed
// table whose entries declare the accepted argument count. A known verb
// with the wrong arity is answered with an arity failure ("KO", or
// "Error in arguments" for init) and changes nothing. An unknown verb
// is logged and dropped without a reply.
//
// Every reply is a {command, result} JSON object on the agent's
// command result topic, queued through the reply port. Some verbs also
// publish on other topics: status (wifi state), picture (the image),
// opentunnel and closetunnel (client status).
//
// Verbs that destroy the agent's reachability (reboot, closetunnel)
// queue their reply before acting. Reboot defers the reboot itself by
// a fixed delay on the clock.
//
// Configuration verbs (changeperiod, changestarttime, changestoptime,
// init) validate every argument before mutating anything, then
// reinstall the affected schedule jobs and reconcile before replying.
// If reconciliation fails the change stays applied, the failure is
// logged, and the change verbs send no reply.
//
// Each handled command is assigned a random correlation ID that is
// attached to all of its log lines.
package router
