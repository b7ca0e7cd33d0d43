// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package hostctl

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"
)

// Defaults for Config fields left empty.
var (
	DefaultRebootCommand = []string{"reboot"}
	DefaultImagePath     = "/tmp/image.jpg"
)

// DefaultCameraCommand returns the fswebcam invocation writing a
// 1280x720 frame to imagePath.
func DefaultCameraCommand(imagePath string) []string {
	return []string{"fswebcam", "-r", "1280x720", imagePath}
}

// Config holds the host commands.
type Config struct {
	// RebootCommand is run by Reboot. Default ["reboot"].
	RebootCommand []string

	// CameraCommand must write a JPEG to ImagePath. Default
	// fswebcam at 1280x720.
	CameraCommand []string

	// ImagePath is where CameraCommand leaves its frame.
	ImagePath string

	// ExecuteTimeout bounds Execute and Capture. Zero means no bound.
	ExecuteTimeout time.Duration
}

// ClockSetter sets the system wall clock.
type ClockSetter func(time.Time) error

// SetSystemClock sets the wall clock with settimeofday(2). It needs
// CAP_SYS_TIME.
func SetSystemClock(t time.Time) error {
	timeval := unix.NsecToTimeval(t.UnixNano())
	if err := unix.Settimeofday(&timeval); err != nil {
		return fmt.Errorf("settimeofday: %w", err)
	}
	return nil
}

// Host runs host-level actions.
type Host struct {
	config   Config
	runner   Runner
	setClock ClockSetter
	logger   *slog.Logger
}

// New creates a Host. A nil setClock uses SetSystemClock.
func New(config Config, runner Runner, setClock ClockSetter, logger *slog.Logger) *Host {
	if len(config.RebootCommand) == 0 {
		config.RebootCommand = DefaultRebootCommand
	}
	if config.ImagePath == "" {
		config.ImagePath = DefaultImagePath
	}
	if len(config.CameraCommand) == 0 {
		config.CameraCommand = DefaultCameraCommand(config.ImagePath)
	}
	if setClock == nil {
		setClock = SetSystemClock
	}
	return &Host{config: config, runner: runner, setClock: setClock, logger: logger}
}

func (h *Host) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.config.ExecuteTimeout > 0 {
		return context.WithTimeout(ctx, h.config.ExecuteTimeout)
	}
	return context.WithCancel(ctx)
}

// Execute runs name with args and returns its stdout.
func (h *Host) Execute(ctx context.Context, name string, args []string) (string, error) {
	ctx, cancel := h.bounded(ctx)
	defer cancel()

	output, err := h.runner.Run(ctx, name, args)
	if err != nil {
		return "", err
	}
	h.logger.Info("executed command", "program", name, "args", args, "stdout_bytes", len(output))
	return string(output), nil
}

// Frame is one camera capture.
type Frame struct {
	Image []byte

	// Digest is the hex BLAKE3-256 of Image, logged so a frame the
	// queen received can be matched to the capture that produced it.
	Digest string
}

// Capture runs the camera command and reads the frame it wrote. A
// stale frame from an earlier capture is removed first so a camera
// that silently writes nothing is reported as an error.
func (h *Host) Capture(ctx context.Context) (Frame, error) {
	if err := os.Remove(h.config.ImagePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Frame{}, fmt.Errorf("removing stale frame: %w", err)
	}

	ctx, cancel := h.bounded(ctx)
	defer cancel()

	command := h.config.CameraCommand
	if _, err := h.runner.Run(ctx, command[0], command[1:]); err != nil {
		return Frame{}, err
	}

	image, err := os.ReadFile(h.config.ImagePath)
	if err != nil {
		return Frame{}, fmt.Errorf("reading frame: %w", err)
	}
	sum := blake3.Sum256(image)
	frame := Frame{Image: image, Digest: hex.EncodeToString(sum[:])}
	h.logger.Info("captured frame", "bytes", len(image), "blake3", frame.Digest)
	return frame, nil
}

// Reboot runs the reboot command. On success the process is usually
// killed before Reboot returns.
func (h *Host) Reboot(ctx context.Context) error {
	command := h.config.RebootCommand
	h.logger.Warn("rebooting", "command", command)
	_, err := h.runner.Run(ctx, command[0], command[1:])
	return err
}

// SetClock sets the system clock to t.
func (h *Host) SetClock(t time.Time) error {
	if err := h.setClock(t); err != nil {
		return err
	}
	h.logger.Info("system clock set", "time", t.Format(time.RFC3339))
	return nil
}

// deviceTimeLayouts are tried in order by ParseDeviceTime.
var deviceTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDeviceTime parses the datetime argument of init. Timestamps
// with a zone (the queen sends ISO 8601 with "Z") are absolute; bare
// timestamps are wall-clock time in location. The value is
// case-insensitive and any fractional seconds on a bare timestamp
// are discarded.
func ParseDeviceTime(value string, location *time.Location) (time.Time, error) {
	if location == nil {
		location = time.Local
	}
	normalized := strings.ToUpper(strings.TrimSpace(value))
	if parsed, err := time.Parse(time.RFC3339Nano, normalized); err == nil {
		return parsed, nil
	}
	bare, _, _ := strings.Cut(normalized, ".")
	for _, layout := range deviceTimeLayouts[1:] {
		if parsed, err := time.ParseInLocation(layout, bare, location); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", value)
}
