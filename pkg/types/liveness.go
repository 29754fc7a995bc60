package types

import "time"

// MemorySnapshot captures accelerator and system memory at one instant.
// Device numbers are zero when no accelerator is visible; Source then
// says where the snapshot came from ("nvidia-smi", "system", "static").
type MemorySnapshot struct {
	DeviceTotalMB int       `json:"device_total_mb"`
	DeviceUsedMB  int       `json:"device_used_mb"`
	DeviceFreeMB  int       `json:"device_free_mb"`
	SystemTotalMB int       `json:"system_total_mb"`
	SystemUsedMB  int       `json:"system_used_mb"`
	Source        string    `json:"source"`
	SampledAt     time.Time `json:"sampled_at"`
}

// DeviceUsedFrac returns used/total for the accelerator, or 0 when no
// device totals are known (callers must treat unknown as not-exceeded).
func (m MemorySnapshot) DeviceUsedFrac() float64 {
	if m.DeviceTotalMB <= 0 {
		return 0
	}
	return float64(m.DeviceUsedMB) / float64(m.DeviceTotalMB)
}

// LivenessReport is the host's periodically rewritten heartbeat record.
// The host is its only writer; every other component treats it as
// read-only and judges host health by staleness, not content.
type LivenessReport struct {
	HostID        string              `json:"host_id"`
	OverallStatus string              `json:"overall_status"`
	ModelStates   map[Slot]ModelState `json:"model_states"`
	LastHeartbeat time.Time           `json:"last_heartbeat"`
	CrashCount    int                 `json:"crash_count"`
	Memory        MemorySnapshot      `json:"memory_snapshot"`
}

// Stale reports whether the heartbeat is older than ttl at time now.
// A zero LastHeartbeat is always stale.
func (r LivenessReport) Stale(now time.Time, ttl time.Duration) bool {
	if r.LastHeartbeat.IsZero() {
		return true
	}
	return now.Sub(r.LastHeartbeat) > ttl
}

// CrashedView reinterprets a stale report: any model the dead host last
// claimed as loading or ready is gone with the process, so readers
// surface those slots as crashed rather than repeat the stale claim.
func (r LivenessReport) CrashedView() LivenessReport {
	states := make(map[Slot]ModelState, len(r.ModelStates))
	for slot, st := range r.ModelStates {
		switch st {
		case StateLoading, StateReady:
			states[slot] = StateCrashed
		default:
			states[slot] = st
		}
	}
	r.ModelStates = states
	r.OverallStatus = "crashed"
	return r
}
