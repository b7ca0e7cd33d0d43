// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package measurelog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/pheromon/antagent/lib/clock"
)

// Compression selects the codec for rotated files.
type Compression string

const (
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// ParseCompression accepts "zstd", "lz4", or "" (zstd).
func ParseCompression(name string) (Compression, error) {
	switch Compression(name) {
	case "", CompressionZstd:
		return CompressionZstd, nil
	case CompressionLZ4:
		return CompressionLZ4, nil
	default:
		return "", fmt.Errorf("unknown rotation compression %q (want zstd or lz4)", name)
	}
}

func (c Compression) extension() string {
	if c == CompressionLZ4 {
		return ".lz4"
	}
	return ".zst"
}

func (c Compression) newWriter(destination io.Writer) (io.WriteCloser, error) {
	if c == CompressionLZ4 {
		return lz4.NewWriter(destination), nil
	}
	return zstd.NewWriter(destination, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

// Config controls a Log.
type Config struct {
	// Path of the live file, e.g. /var/lib/ant/measurements.json.
	Path string

	// RotateBytes is the size past which the live file is rotated.
	// Zero disables rotation.
	RotateBytes int64

	Compression Compression
}

// Log appends measurement fragments to a file.
type Log struct {
	config Config
	clock  clock.Clock
	logger *slog.Logger

	mu sync.Mutex
}

// New returns a Log writing to config.Path. The file and its directory
// are created on first append.
func New(config Config, clk clock.Clock, logger *slog.Logger) *Log {
	if config.Compression == "" {
		config.Compression = CompressionZstd
	}
	return &Log{config: config, clock: clk, logger: logger}
}

// Path returns the live file path.
func (l *Log) Path() string { return l.config.Path }

// Append writes fragment to the end of the live file, then rotates if
// the file has outgrown the threshold.
func (l *Log) Append(fragment []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.config.Path), 0o755); err != nil {
		return fmt.Errorf("creating measurement directory: %w", err)
	}
	file, err := os.OpenFile(l.config.Path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening measurement log: %w", err)
	}
	if _, err := file.Write(fragment); err != nil {
		file.Close()
		return fmt.Errorf("appending measurement: %w", err)
	}
	info, err := file.Stat()
	closeErr := file.Close()
	if err != nil {
		return fmt.Errorf("stat measurement log: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("closing measurement log: %w", closeErr)
	}

	if l.config.RotateBytes > 0 && info.Size() > l.config.RotateBytes {
		if err := l.rotateLocked(); err != nil {
			// The measurement itself is safely on disk; the next
			// append retries the rotation.
			l.logger.Warn("rotating measurement log", "path", l.config.Path, "error", err)
		}
	}
	return nil
}

// rotatedPath returns the archive name for the live file at the
// current time.
func (l *Log) rotatedPath() string {
	directory, name := filepath.Split(l.config.Path)
	extension := filepath.Ext(name)
	stem := strings.TrimSuffix(name, extension)
	stamp := l.clock.Now().UnixMilli()
	return filepath.Join(directory, fmt.Sprintf("%s.%d%s%s", stem, stamp, extension, l.config.Compression.extension()))
}

func (l *Log) rotateLocked() error {
	source, err := os.Open(l.config.Path)
	if err != nil {
		return err
	}
	defer source.Close()

	archivePath := l.rotatedPath()
	temporaryPath := archivePath + ".tmp"
	archive, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}

	fail := func(err error) error {
		archive.Close()
		os.Remove(temporaryPath)
		return err
	}

	writer, err := l.config.Compression.newWriter(archive)
	if err != nil {
		return fail(fmt.Errorf("creating %s writer: %w", l.config.Compression, err))
	}
	written, err := io.Copy(writer, source)
	if err != nil {
		writer.Close()
		return fail(fmt.Errorf("compressing: %w", err))
	}
	if err := writer.Close(); err != nil {
		return fail(fmt.Errorf("finishing %s stream: %w", l.config.Compression, err))
	}
	if err := archive.Sync(); err != nil {
		return fail(fmt.Errorf("syncing archive: %w", err))
	}
	if err := archive.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing archive: %w", err)
	}
	if err := os.Rename(temporaryPath, archivePath); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming archive into place: %w", err)
	}
	if err := os.Remove(l.config.Path); err != nil {
		return fmt.Errorf("removing rotated file: %w", err)
	}

	l.logger.Info("rotated measurement log",
		"archive", archivePath,
		"bytes", written,
		"compression", string(l.config.Compression),
	)
	return nil
}
