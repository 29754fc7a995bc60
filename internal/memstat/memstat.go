// Package memstat samples accelerator and system memory for budget checks
// and heartbeat snapshots.
package memstat

import (
	"bufio"
	"encoding/csv"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"lexd/pkg/types"
)

// Sampler produces point-in-time memory snapshots. Sampling must never
// fail hard: unknown values are reported as zero with Source saying why.
type Sampler interface {
	Sample() types.MemorySnapshot
}

// NvidiaSampler shells out to nvidia-smi for device memory and reads
// /proc/meminfo for system memory. When nvidia-smi is unavailable the
// snapshot degrades to system-only numbers.
type NvidiaSampler struct {
	// SmiPath overrides the nvidia-smi binary, for tests.
	SmiPath string
	// MeminfoPath overrides /proc/meminfo, for tests.
	MeminfoPath string
}

func (s *NvidiaSampler) Sample() types.MemorySnapshot {
	snap := types.MemorySnapshot{Source: "system", SampledAt: time.Now()}
	snap.SystemTotalMB, snap.SystemUsedMB = readMeminfo(s.meminfoPath())

	total, used, ok := queryDevice(s.smiPath())
	if ok {
		snap.Source = "nvidia-smi"
		snap.DeviceTotalMB = total
		snap.DeviceUsedMB = used
		if total > used {
			snap.DeviceFreeMB = total - used
		}
	}
	return snap
}

func (s *NvidiaSampler) smiPath() string {
	if s.SmiPath != "" {
		return s.SmiPath
	}
	return "nvidia-smi"
}

func (s *NvidiaSampler) meminfoPath() string {
	if s.MeminfoPath != "" {
		return s.MeminfoPath
	}
	return "/proc/meminfo"
}

func queryDevice(bin string) (totalMB, usedMB int, ok bool) {
	cmd := exec.Command(bin, "--query-gpu=memory.total,memory.used", "--format=csv,noheader,nounits")
	output, err := cmd.Output()
	if err != nil {
		return 0, 0, false
	}
	return ParseSmiCSV(string(output))
}

// ParseSmiCSV parses `memory.total,memory.used` CSV rows from nvidia-smi.
// With multiple devices only the first row is used; the budget applies to
// the single accelerator the host runs on.
func ParseSmiCSV(out string) (totalMB, usedMB int, ok bool) {
	r := csv.NewReader(strings.NewReader(out))
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil || len(records) == 0 || len(records[0]) < 2 {
		return 0, 0, false
	}
	total, err1 := strconv.Atoi(strings.TrimSpace(records[0][0]))
	used, err2 := strconv.Atoi(strings.TrimSpace(records[0][1]))
	if err1 != nil || err2 != nil || total <= 0 {
		return 0, 0, false
	}
	return total, used, true
}

// readMeminfo returns system total/used in MB; zeros on any failure.
// /proc/meminfo values are in kB.
func readMeminfo(path string) (totalMB, usedMB int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	var memTotal, memAvailable int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}
		val, _ := strconv.ParseInt(parts[1], 10, 64)
		switch strings.TrimSuffix(parts[0], ":") {
		case "MemTotal":
			memTotal = val
		case "MemAvailable":
			memAvailable = val
		}
	}
	totalMB = int(memTotal / 1024)
	if memTotal > memAvailable {
		usedMB = int((memTotal - memAvailable) / 1024)
	}
	return totalMB, usedMB
}

// StaticSampler returns a fixed snapshot; tests mutate it between calls.
type StaticSampler struct {
	Snap types.MemorySnapshot
}

func (s *StaticSampler) Sample() types.MemorySnapshot {
	snap := s.Snap
	if snap.Source == "" {
		snap.Source = "static"
	}
	snap.SampledAt = time.Now()
	return snap
}
