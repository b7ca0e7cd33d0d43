// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// CPUReading is the cumulative busy and idle jiffies from the first
// line of /proc/stat:
//
//	cpu  user nice system idle iowait irq softirq steal [guest guest_nice]
//
// guest time is already counted in user and nice.
type CPUReading struct {
	Busy uint64
	Idle uint64
}

// readCPUStats returns nil when path is missing or malformed.
func readCPUStats(path string) *CPUReading {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return nil
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 9 || fields[0] != "cpu" {
		return nil
	}

	values := make([]uint64, 8)
	for index := range values {
		parsed, err := strconv.ParseUint(fields[index+1], 10, 64)
		if err != nil {
			return nil
		}
		values[index] = parsed
	}
	return &CPUReading{
		Busy: values[0] + values[1] + values[2] + values[5] + values[6] + values[7],
		Idle: values[3] + values[4],
	}
}

// CPUPercent is the busy share between two readings, 0 when either is
// missing or no time passed.
func CPUPercent(previous, current *CPUReading) float64 {
	if previous == nil || current == nil {
		return 0
	}
	if current.Busy < previous.Busy || current.Idle < previous.Idle {
		return 0
	}
	busy := current.Busy - previous.Busy
	total := busy + current.Idle - previous.Idle
	if total == 0 {
		return 0
	}
	return float64(busy) / float64(total) * 100
}
