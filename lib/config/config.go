// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pheromon/antagent/lib/measurelog"
	"github.com/pheromon/antagent/lib/settings"
)

// EnvironmentVariable names the configuration file when no flag is
// given.
const EnvironmentVariable = "ANT_CONFIG"

// Config is the agent configuration.
type Config struct {
	Identity     IdentityConfig     `yaml:"identity"`
	Broker       BrokerConfig       `yaml:"broker"`
	Schedule     ScheduleConfig     `yaml:"schedule"`
	Tunnel       TunnelConfig       `yaml:"tunnel"`
	Commands     CommandsConfig     `yaml:"commands"`
	Sensing      SensingConfig      `yaml:"sensing"`
	Paths        PathsConfig        `yaml:"paths"`
	Outbox       OutboxConfig       `yaml:"outbox"`
	Status       StatusConfig       `yaml:"status"`
	Measurements MeasurementsConfig `yaml:"measurements"`
}

// IdentityConfig locates the provisioning files.
type IdentityConfig struct {
	// IDFile is id.json: {"id": "..."}.
	IDFile string `yaml:"id_file"`

	// CommonFile is common.json: broker host, port and token.
	CommonFile string `yaml:"common_file"`

	// KeyFile is the age private key that opens mqttTokenSealed. Only
	// read when the token is sealed.
	KeyFile string `yaml:"key_file"`
}

// BrokerConfig shapes the MQTT session. Host and Port override
// common.json when set.
type BrokerConfig struct {
	Host                 string        `yaml:"host"`
	Port                 int           `yaml:"port"`
	Username             string        `yaml:"username"`
	KeepAlive            time.Duration `yaml:"keepalive"`
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
}

// ScheduleConfig holds the first-boot Configuration and the reconcile
// settle delay. Timezone is an IANA name or "Local".
type ScheduleConfig struct {
	MeasurePeriodSeconds int           `yaml:"measure_period_seconds"`
	WakeupHour           int           `yaml:"wakeup_hour"`
	SleepHour            int           `yaml:"sleep_hour"`
	SettleDelay          time.Duration `yaml:"settle_delay"`
	Timezone             string        `yaml:"timezone"`
}

// TunnelConfig configures the reverse SSH tunnel.
type TunnelConfig struct {
	Command      string        `yaml:"command"`
	ExtraOptions []string      `yaml:"extra_options"`
	Timeout      time.Duration `yaml:"timeout"`
	KillGrace    time.Duration `yaml:"kill_grace"`
}

// CommandsConfig holds host command lines.
type CommandsConfig struct {
	Reboot         []string      `yaml:"reboot"`
	Camera         []string      `yaml:"camera"`
	ImagePath      string        `yaml:"image_path"`
	ExecuteTimeout time.Duration `yaml:"execute_timeout"`
	RebootDelay    time.Duration `yaml:"reboot_delay"`
	SetClock       bool          `yaml:"set_clock"`
}

// SensingConfig names the sensing helper.
type SensingConfig struct {
	Command      string        `yaml:"command"`
	Args         []string      `yaml:"args"`
	RestartDelay time.Duration `yaml:"restart_delay"`
}

// PathsConfig locates persisted state.
type PathsConfig struct {
	// StateDir holds the settings snapshot and the reboot marker.
	StateDir string `yaml:"state_dir"`

	// Measurements is the append-only measurement file.
	Measurements string `yaml:"measurements"`
}

// SettingsSnapshot is where the live Configuration is persisted.
func (p PathsConfig) SettingsSnapshot() string { return filepath.Join(p.StateDir, "settings.cbor") }

// RebootMarker is where a commanded reboot is recorded.
func (p PathsConfig) RebootMarker() string { return filepath.Join(p.StateDir, "reboot-marker.json") }

// OutboxConfig bounds the reply outbox.
type OutboxConfig struct {
	MaxBytes int `yaml:"max_bytes"`
}

// StatusConfig configures the loopback status endpoint. An empty
// Listen disables it.
type StatusConfig struct {
	Listen string `yaml:"listen"`
}

// MeasurementsConfig configures measurement file rotation. A zero
// RotateBytes disables rotation.
type MeasurementsConfig struct {
	RotateBytes int64  `yaml:"rotate_bytes"`
	Compression string `yaml:"compression"`
}

// Default returns the configuration of a stock ant.
func Default() *Config {
	initial := settings.Default()
	return &Config{
		Identity: IdentityConfig{
			IDFile:     "${ANT_HOME:-/opt/ant}/PRIVATE/id.json",
			CommonFile: "${ANT_HOME:-/opt/ant}/PRIVATE/common.json",
			KeyFile:    "${ANT_HOME:-/opt/ant}/PRIVATE/ant.key",
		},
		Broker: BrokerConfig{
			Username:             "lyre",
			KeepAlive:            10 * time.Second,
			MaxReconnectInterval: time.Minute,
			ConnectTimeout:       30 * time.Second,
		},
		Schedule: ScheduleConfig{
			MeasurePeriodSeconds: initial.MeasurePeriodSeconds,
			WakeupHour:           initial.WakeupHour,
			SleepHour:            initial.SleepHour,
			SettleDelay:          3 * time.Second,
			Timezone:             "Local",
		},
		Tunnel: TunnelConfig{
			Command:   "ssh",
			Timeout:   time.Minute,
			KillGrace: 2 * time.Second,
		},
		Commands: CommandsConfig{
			Reboot:      []string{"reboot"},
			ImagePath:   "/tmp/image.jpg",
			RebootDelay: time.Second,
			SetClock:    true,
		},
		Sensing: SensingConfig{
			Command:      "${ANT_HOME:-/opt/ant}/bin/6sense",
			RestartDelay: 5 * time.Second,
		},
		Paths: PathsConfig{
			StateDir:     "${ANT_STATE:-/var/lib/ant}",
			Measurements: "${ANT_STATE:-/var/lib/ant}/measurements.json",
		},
		Outbox: OutboxConfig{
			MaxBytes: 8 << 20,
		},
		Measurements: MeasurementsConfig{
			RotateBytes: 16 << 20,
			Compression: string(measurelog.CompressionZstd),
		},
	}
}

// Load reads the file named by ANT_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s is not set; pass --config or set it", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile reads, expands, and validates the file at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default, then expands and validates.
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	config.expandVariables()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// InitialSettings is the Configuration used when no snapshot exists.
func (c *Config) InitialSettings() settings.Configuration {
	return settings.Configuration{
		MeasurePeriodSeconds: c.Schedule.MeasurePeriodSeconds,
		WakeupHour:           c.Schedule.WakeupHour,
		SleepHour:            c.Schedule.SleepHour,
	}
}

// Location resolves Schedule.Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Schedule.Timezone == "" || c.Schedule.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Schedule.Timezone)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if err := c.InitialSettings().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("schedule: %w", err))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("schedule.timezone: %w", err))
	}
	if c.Identity.IDFile == "" {
		errs = append(errs, errors.New("identity.id_file is required"))
	}
	if c.Identity.CommonFile == "" {
		errs = append(errs, errors.New("identity.common_file is required"))
	}
	if c.Broker.Port < 0 || c.Broker.Port > 65535 {
		errs = append(errs, fmt.Errorf("broker.port %d out of range", c.Broker.Port))
	}
	if c.Broker.KeepAlive <= 0 {
		errs = append(errs, errors.New("broker.keepalive must be positive"))
	}
	if c.Tunnel.Command == "" {
		errs = append(errs, errors.New("tunnel.command is required"))
	}
	if c.Sensing.Command == "" {
		errs = append(errs, errors.New("sensing.command is required"))
	}
	if c.Paths.StateDir == "" {
		errs = append(errs, errors.New("paths.state_dir is required"))
	}
	if c.Paths.Measurements == "" {
		errs = append(errs, errors.New("paths.measurements is required"))
	}
	if c.Outbox.MaxBytes <= 0 {
		errs = append(errs, errors.New("outbox.max_bytes must be positive"))
	}
	if c.Measurements.RotateBytes < 0 {
		errs = append(errs, errors.New("measurements.rotate_bytes must not be negative"))
	}
	if _, err := measurelog.ParseCompression(c.Measurements.Compression); err != nil {
		errs = append(errs, fmt.Errorf("measurements.compression: %w", err))
	}

	return errors.Join(errs...)
}

// expandVariables expands ${VAR} and ${VAR:-default} in every path.
func (c *Config) expandVariables() {
	for _, field := range []*string{
		&c.Identity.IDFile,
		&c.Identity.CommonFile,
		&c.Identity.KeyFile,
		&c.Sensing.Command,
		&c.Commands.ImagePath,
		&c.Paths.StateDir,
		&c.Paths.Measurements,
		&c.Status.Listen,
	} {
		*field = expandVars(*field)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars substitutes environment variables. An unset or empty
// variable takes its default, or the empty string.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}
