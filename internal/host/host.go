// Package host implements the isolated model host process: exclusive
// custody of model memory, a single-request poll loop over the ipc
// mailbox, and a heartbeat that rewrites the liveness report on a fixed
// cadence regardless of in-flight work.
package host

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lexd/internal/catalog"
	"lexd/internal/ipc"
	"lexd/internal/memstat"
	"lexd/pkg/types"
)

// Defaults applied when corresponding HostConfig fields are unset.
const (
	defaultHeartbeatEvery   = 5 * time.Second
	defaultPollEvery        = 100 * time.Millisecond
	defaultCeilingFrac      = 0.85
	defaultMaxTokens        = 512
	defaultMinTokensFloor   = 64
	defaultLowMemShrinkFrac = 0.5
	defaultLowMemFreeMB     = 1024
)

// HostConfig encapsulates all tunables for Host construction.
type HostConfig struct {
	ID      string
	Catalog *catalog.Catalog
	Runtime Runtime
	Mailbox ipc.Mailbox
	Mem     memstat.Sampler

	MemoryCeilingFrac float64
	HeartbeatEvery    time.Duration
	PollEvery         time.Duration
	MaxTokensDefault  int
	MinTokensFloor    int
	LowMemShrinkFrac  float64
	LowMemFreeMB      int

	Logger    zerolog.Logger
	Publisher EventPublisher
}

type slotState struct {
	State types.ModelState
	Err   string
}

// Host owns all model state. One instance per worker process.
type Host struct {
	cfg HostConfig
	log zerolog.Logger
	pub EventPublisher

	mu        sync.Mutex
	slots     map[types.Slot]*slotState
	oomCount  int
	startTime time.Time
}

// New constructs a Host from HostConfig, filling unset fields with
// package defaults.
func New(cfg HostConfig) *Host {
	if cfg.ID == "" {
		cfg.ID = "lexd-host"
	}
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = defaultHeartbeatEvery
	}
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = defaultPollEvery
	}
	if cfg.MemoryCeilingFrac <= 0 {
		cfg.MemoryCeilingFrac = defaultCeilingFrac
	}
	if cfg.MaxTokensDefault <= 0 {
		cfg.MaxTokensDefault = defaultMaxTokens
	}
	if cfg.MinTokensFloor <= 0 {
		cfg.MinTokensFloor = defaultMinTokensFloor
	}
	if cfg.LowMemShrinkFrac <= 0 {
		cfg.LowMemShrinkFrac = defaultLowMemShrinkFrac
	}
	if cfg.LowMemFreeMB <= 0 {
		cfg.LowMemFreeMB = defaultLowMemFreeMB
	}
	if cfg.Mem == nil {
		cfg.Mem = &memstat.NvidiaSampler{}
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	h := &Host{
		cfg:       cfg,
		log:       cfg.Logger,
		pub:       cfg.Publisher,
		slots:     make(map[types.Slot]*slotState),
		startTime: time.Now(),
	}
	for _, slot := range []types.Slot{types.SlotEmbedder, types.SlotUtility, types.SlotReasoning} {
		h.slots[slot] = &slotState{State: types.StateUnloaded}
	}
	return h
}

// Run drives the host until ctx is canceled: a heartbeat goroutine plus
// the main poll loop handling one request at a time.
func (h *Host) Run(ctx context.Context) error {
	// First liveness report goes out before any request is served so the
	// startup coordinator can observe the host coming up.
	h.writeLiveness()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(h.cfg.HeartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.writeLiveness()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		default:
		}
		req, ok, err := h.cfg.Mailbox.TakeRequest()
		if err != nil {
			// Transient mailbox read failure; retry on the next poll.
			h.log.Warn().Err(err).Msg("mailbox read failed")
			ok = false
		}
		if !ok {
			select {
			case <-ctx.Done():
				wg.Wait()
				return ctx.Err()
			case <-time.After(h.cfg.PollEvery):
			}
			continue
		}
		resp := h.Handle(ctx, req)
		if err := h.cfg.Mailbox.PostResponse(resp); err != nil {
			h.log.Error().Err(err).Str("request_id", req.ID).Msg("post response failed")
		}
		// Refresh liveness right after state-changing work so the
		// supervisor sees the new model states promptly.
		h.writeLiveness()
	}
}

func (h *Host) writeLiveness() {
	snap := h.cfg.Mem.Sample()
	h.mu.Lock()
	states := make(map[types.Slot]types.ModelState, len(h.slots))
	overall := "healthy"
	for slot, st := range h.slots {
		states[slot] = st.State
		if st.State == types.StateError {
			overall = "degraded"
		}
	}
	oom := h.oomCount
	h.mu.Unlock()

	rep := types.LivenessReport{
		HostID:        h.cfg.ID,
		OverallStatus: overall,
		ModelStates:   states,
		LastHeartbeat: time.Now(),
		CrashCount:    oom,
		Memory:        snap,
	}
	if err := h.cfg.Mailbox.WriteLiveness(rep); err != nil {
		h.log.Error().Err(err).Msg("write liveness failed")
		return
	}
	heartbeatsTotal.Inc()
	deviceUsedFrac.Set(snap.DeviceUsedFrac())
}

// Status builds the operator-facing snapshot returned by ActionStatus.
func (h *Host) Status() types.StatusResult {
	snap := h.cfg.Mem.Sample()
	h.mu.Lock()
	defer h.mu.Unlock()
	states := make(map[types.Slot]types.ModelState, len(h.slots))
	for slot, st := range h.slots {
		states[slot] = st.State
	}
	return types.StatusResult{
		ModelStates: states,
		Memory:      snap,
		UptimeSecs:  int64(time.Since(h.startTime).Seconds()),
		CrashCount:  h.oomCount,
		Overwrites:  h.cfg.Mailbox.Overwrites(),
	}
}

func (h *Host) setState(slot types.Slot, state types.ModelState, errMsg string) {
	h.mu.Lock()
	st := h.slots[slot]
	st.State = state
	st.Err = errMsg
	h.mu.Unlock()
}

func (h *Host) stateOf(slot types.Slot) types.ModelState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.slots[slot].State
}
