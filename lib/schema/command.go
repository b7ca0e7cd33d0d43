// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "strings"

// Command is one inbound control message split into its verb and
// positional arguments.
type Command struct {
	Verb string
	Args []string
}

// ParseCommand splits raw on runs of whitespace. The first token is
// the verb. A blank raw string yields a Command with an empty Verb.
func ParseCommand(raw string) Command {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return Command{}
	}
	return Command{Verb: fields[0], Args: fields[1:]}
}

// String reassembles the command with single spaces.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Verb
	}
	return c.Verb + " " + strings.Join(c.Args, " ")
}
