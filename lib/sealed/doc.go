// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed seals the broker token to an ant's age key so the
// token can sit in config files and provisioning images in the clear.
//
// [Seal] encrypts to one or more age x25519 recipients and returns
// base64 text that fits in a YAML or JSON string. [Open] reverses it
// with a private key held in a [secret.Buffer] and returns the token in
// another Buffer. [GenerateKeypair] creates a key for a new ant and
// [LoadIdentity] reads and validates one from disk.
package sealed
