// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package measurelog

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/pheromon/antagent/lib/clock"
	"github.com/pheromon/antagent/lib/schema"
	"github.com/pheromon/antagent/lib/testutil"
)

var observed = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

func TestAppendConcatenatesFragments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "measurements.json")
	log := New(Config{Path: path}, clock.Fake(observed), testutil.Logger(t))

	if err := log.Append(schema.EncodeMeasurement(3, observed)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Append(schema.EncodeMeasurement(5, observed.Add(time.Minute))); err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := `[{"value":3,"date":"2026-07-01T09:00:00.000Z"}][{"value":5,"date":"2026-07-01T09:01:00.000Z"}]`
	if string(data) != want {
		t.Fatalf("file = %s\nwant   %s", data, want)
	}
}

func TestRotation(t *testing.T) {
	tests := []struct {
		compression Compression
		extension   string
		decompress  func(t *testing.T, data []byte) []byte
	}{
		{CompressionZstd, ".json.zst", func(t *testing.T, data []byte) []byte {
			decoder, err := zstd.NewReader(bytes.NewReader(data))
			if err != nil {
				t.Fatal(err)
			}
			defer decoder.Close()
			plain, err := io.ReadAll(decoder)
			if err != nil {
				t.Fatal(err)
			}
			return plain
		}},
		{CompressionLZ4, ".json.lz4", func(t *testing.T, data []byte) []byte {
			plain, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
			if err != nil {
				t.Fatal(err)
			}
			return plain
		}},
	}
	for _, test := range tests {
		t.Run(string(test.compression), func(t *testing.T) {
			directory := t.TempDir()
			path := filepath.Join(directory, "measurements.json")
			fakeClock := clock.Fake(observed)
			log := New(Config{Path: path, RotateBytes: 60, Compression: test.compression}, fakeClock, testutil.Logger(t))

			first := schema.EncodeMeasurement(1, observed)
			second := schema.EncodeMeasurement(2, observed)
			if err := log.Append(first); err != nil {
				t.Fatal(err)
			}
			if _, err := os.Stat(path); err != nil {
				t.Fatalf("live file missing below threshold: %v", err)
			}
			if err := log.Append(second); err != nil {
				t.Fatal(err)
			}

			if _, err := os.Stat(path); !os.IsNotExist(err) {
				t.Fatalf("live file still present after rotation: %v", err)
			}
			archivePath := filepath.Join(directory, "measurements.1782896400000"+test.extension)
			archived, err := os.ReadFile(archivePath)
			if err != nil {
				t.Fatalf("reading archive: %v", err)
			}
			plain := test.decompress(t, archived)
			if want := string(first) + string(second); string(plain) != want {
				t.Fatalf("archive content = %s, want %s", plain, want)
			}

			// The next append starts a fresh file.
			third := schema.EncodeMeasurement(3, observed)
			if err := log.Append(third); err != nil {
				t.Fatal(err)
			}
			data, _ := os.ReadFile(path)
			if string(data) != string(third) {
				t.Fatalf("fresh file = %s", data)
			}
		})
	}
}

func TestParseCompression(t *testing.T) {
	for input, want := range map[string]Compression{"": CompressionZstd, "zstd": CompressionZstd, "lz4": CompressionLZ4} {
		got, err := ParseCompression(input)
		if err != nil || got != want {
			t.Errorf("ParseCompression(%q) = %q, %v", input, got, err)
		}
	}
	if _, err := ParseCompression("gzip"); err == nil {
		t.Error("ParseCompression(gzip) succeeded")
	}
}
