// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pheromon/antagent/lib/sealed"
	"github.com/pheromon/antagent/lib/secret"
)

// runKeygen writes a fresh private key to path, refusing to overwrite
// one, and prints the recipient.
func runKeygen(path string, stdout io.Writer) error {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		return err
	}
	defer keypair.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s already exists", path)
		}
		return fmt.Errorf("creating key file: %w", err)
	}
	if _, err := file.Write(keypair.PrivateKey.Bytes()); err != nil {
		file.Close()
		return fmt.Errorf("writing key file: %w", err)
	}
	if _, err := io.WriteString(file, "\n"); err != nil {
		file.Close()
		return fmt.Errorf("writing key file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing key file: %w", err)
	}

	fmt.Fprintln(stdout, keypair.PublicKey)
	return nil
}

// runSeal reads a token from stdin and prints it sealed to recipients.
func runSeal(recipients []string, stdout io.Writer) error {
	token, err := secret.ReadFile("-")
	if err != nil {
		return fmt.Errorf("reading token: %w", err)
	}
	defer token.Close()

	ciphertext, err := sealed.Seal(token.Bytes(), recipients)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, ciphertext)
	return nil
}
