// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// Snapshot is one health reading.
type Snapshot struct {
	Hostname      string  `json:"hostname"`
	Kernel        string  `json:"kernel"`
	Model         string  `json:"model,omitempty"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	Load1         float64 `json:"load1"`
	Load5         float64 `json:"load5"`
	Load15        float64 `json:"load15"`
	MemoryTotalMB int     `json:"memory_total_mb"`
	MemoryUsedMB  int     `json:"memory_used_mb"`
	CPUPercent    float64 `json:"cpu_percent"`
	TemperatureMC int     `json:"temperature_millicelsius,omitempty"`
}

// Prober takes snapshots. CPU utilization is measured between
// consecutive calls; the first call reports zero.
type Prober struct {
	procRoot string
	sysRoot  string

	mu       sync.Mutex
	previous *CPUReading
}

// NewProber reads the live /proc and /sys.
func NewProber() *Prober {
	return &Prober{procRoot: "/proc", sysRoot: "/sys"}
}

// Snapshot takes a reading.
func (p *Prober) Snapshot() Snapshot {
	snapshot := Snapshot{
		Kernel:        kernelRelease(),
		Model:         readModel(p.procRoot, p.sysRoot),
		TemperatureMC: readInt(filepath.Join(p.sysRoot, "class/thermal/thermal_zone0/temp")),
	}
	snapshot.Hostname, _ = os.Hostname()

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err == nil {
		unit := uint64(info.Unit)
		total := uint64(info.Totalram) * unit
		free := (uint64(info.Freeram) + uint64(info.Bufferram)) * unit
		snapshot.UptimeSeconds = int64(info.Uptime)
		snapshot.Load1 = loadAverage(uint64(info.Loads[0]))
		snapshot.Load5 = loadAverage(uint64(info.Loads[1]))
		snapshot.Load15 = loadAverage(uint64(info.Loads[2]))
		snapshot.MemoryTotalMB = int(total >> 20)
		if total >= free {
			snapshot.MemoryUsedMB = int((total - free) >> 20)
		}
	}

	current := readCPUStats(filepath.Join(p.procRoot, "stat"))
	p.mu.Lock()
	snapshot.CPUPercent = CPUPercent(p.previous, current)
	p.previous = current
	p.mu.Unlock()

	return snapshot
}

// loadAverage converts a sysinfo load, fixed point with 16 fractional
// bits, to a float.
func loadAverage(raw uint64) float64 {
	return float64(raw) / (1 << 16)
}

func kernelRelease() string {
	var utsname unix.Utsname
	if err := unix.Uname(&utsname); err != nil {
		return ""
	}
	return unix.ByteSliceToString(utsname.Release[:])
}

// readModel prefers the device-tree model (Raspberry Pi and other
// ARM boards), then the "Model" or "model name" line of cpuinfo.
func readModel(procRoot, sysRoot string) string {
	if data, err := os.ReadFile(filepath.Join(sysRoot, "firmware/devicetree/base/model")); err == nil {
		if model := strings.TrimRight(string(data), "\x00\n "); model != "" {
			return model
		}
	}

	file, err := os.Open(filepath.Join(procRoot, "cpuinfo"))
	if err != nil {
		return ""
	}
	defer file.Close()

	var modelName string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, found := strings.Cut(scanner.Text(), ":")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "Model":
			return strings.TrimSpace(value)
		case "model name":
			if modelName == "" {
				modelName = strings.TrimSpace(value)
			}
		}
	}
	return modelName
}

func readInt(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	value, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return value
}
