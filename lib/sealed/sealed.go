// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/pheromon/antagent/lib/secret"
)

// ErrNoRecipients is returned by Seal when given no recipient keys.
var ErrNoRecipients = errors.New("sealed: no recipients")

// Keypair is an age x25519 keypair. PrivateKey holds the
// AGE-SECRET-KEY-1... text; PublicKey is the age1... recipient.
type Keypair struct {
	PrivateKey *secret.Buffer
	PublicKey  string
}

// Close releases the private key.
func (k *Keypair) Close() error {
	if k.PrivateKey == nil {
		return nil
	}
	return k.PrivateKey.Close()
}

// GenerateKeypair creates a new keypair. The caller must Close it.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age identity: %w", err)
	}
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// Seal encrypts plaintext to every recipient and returns standard
// base64 ciphertext.
func Seal(plaintext []byte, recipientKeys []string) (string, error) {
	if len(recipientKeys) == 0 {
		return "", ErrNoRecipients
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return "", fmt.Errorf("recipient %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return "", fmt.Errorf("starting encryption: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("encrypting: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finishing encryption: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext.Bytes()), nil
}

// Open decrypts base64 ciphertext produced by Seal. The private key is
// borrowed, not closed. The caller must Close the result.
func Open(ciphertext string, privateKey *secret.Buffer) (*secret.Buffer, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decoding ciphertext: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(raw), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("reading plaintext: %w", err)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("sealed value is empty")
	}
	return secret.NewFromBytes(plaintext)
}

// LoadIdentity reads a private key file and checks that it parses.
func LoadIdentity(path string) (*secret.Buffer, error) {
	key, err := secret.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading identity: %w", err)
	}
	if _, err := age.ParseX25519Identity(key.String()); err != nil {
		key.Close()
		return nil, fmt.Errorf("identity %s: %w", path, err)
	}
	return key, nil
}
