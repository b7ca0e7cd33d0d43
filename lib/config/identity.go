// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/pheromon/antagent/lib/sealed"
	"github.com/pheromon/antagent/lib/secret"
)

// ErrNoToken is returned when common.json carries neither form of the
// broker token.
var ErrNoToken = errors.New("common.json has no mqttToken or mqttTokenSealed")

// Identity is who the ant is and how it reaches the broker.
type Identity struct {
	ID   string
	Host string
	Port int

	// Token is the broker password. The caller must Close it.
	Token *secret.Buffer
}

// BrokerURL returns the tcp:// URL of the broker.
func (i *Identity) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", i.Host, i.Port)
}

// Close releases the token.
func (i *Identity) Close() error {
	if i.Token == nil {
		return nil
	}
	return i.Token.Close()
}

type idFile struct {
	ID string `json:"id"`
}

type commonFile struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Token       string `json:"mqttToken"`
	SealedToken string `json:"mqttTokenSealed"`
}

// LoadIdentity reads the provisioning files named in c and resolves
// the broker token. Broker.Host and Broker.Port in c take precedence
// over common.json.
func (c *Config) LoadIdentity() (*Identity, error) {
	var id idFile
	if err := readJSONC(c.Identity.IDFile, &id); err != nil {
		return nil, err
	}
	if id.ID == "" {
		return nil, fmt.Errorf("%s: id is empty", c.Identity.IDFile)
	}

	var common commonFile
	if err := readJSONC(c.Identity.CommonFile, &common); err != nil {
		return nil, err
	}

	identity := &Identity{ID: id.ID, Host: common.Host, Port: common.Port}
	if c.Broker.Host != "" {
		identity.Host = c.Broker.Host
	}
	if c.Broker.Port != 0 {
		identity.Port = c.Broker.Port
	}
	if identity.Host == "" || identity.Port == 0 {
		return nil, fmt.Errorf("broker address incomplete: host %q port %d", identity.Host, identity.Port)
	}

	token, err := c.resolveToken(common)
	if err != nil {
		return nil, err
	}
	identity.Token = token
	return identity, nil
}

// resolveToken prefers the sealed token when both are present.
func (c *Config) resolveToken(common commonFile) (*secret.Buffer, error) {
	switch {
	case common.SealedToken != "":
		if c.Identity.KeyFile == "" {
			return nil, errors.New("mqttTokenSealed needs identity.key_file")
		}
		key, err := sealed.LoadIdentity(c.Identity.KeyFile)
		if err != nil {
			return nil, err
		}
		defer key.Close()
		token, err := sealed.Open(common.SealedToken, key)
		if err != nil {
			return nil, fmt.Errorf("opening broker token: %w", err)
		}
		return token, nil
	case common.Token != "":
		return secret.NewFromBytes([]byte(common.Token))
	default:
		return nil, ErrNoToken
	}
}

func readJSONC(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), target); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
