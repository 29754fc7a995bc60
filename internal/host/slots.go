package host

import (
	"context"
	"fmt"

	"lexd/pkg/types"
)

// Load brings a slot's model into residency. For the large-model slots
// (utility, reasoning) the policy is strict single-occupant: whatever
// currently holds the accelerator is unconditionally evicted before the
// new load begins. This is not an LRU cache.
func (h *Host) Load(ctx context.Context, slot types.Slot) error {
	path, ok := h.cfg.Catalog.PathFor(slot)
	if !ok {
		h.setState(slot, types.StateError, "no model assigned")
		return ErrModelNotFound(string(slot))
	}

	// Fast path: already resident.
	if h.stateOf(slot) == types.StateReady {
		return nil
	}

	// Eviction comes first: the outgoing occupant's footprint must not
	// count against the incoming model's budget.
	if slot.IsLarge() {
		h.evictLargeSlot(slot)
	}

	// Pre-flight budget check on the post-eviction reading. Failing fast
	// here beats attempting the load and crashing the whole process.
	snap := h.cfg.Mem.Sample()
	if frac := snap.DeviceUsedFrac(); frac >= h.cfg.MemoryCeilingFrac {
		msg := fmt.Sprintf("memory ceiling exceeded before load: %.0f%% used (ceiling %.0f%%)",
			frac*100, h.cfg.MemoryCeilingFrac*100)
		h.setState(slot, types.StateError, msg)
		h.pub.Publish(Event{Name: "load_rejected", Slot: string(slot), Fields: map[string]any{"used_frac": frac}})
		return memoryExceededError{msg: msg}
	}

	h.setState(slot, types.StateLoading, "")
	h.pub.Publish(Event{Name: "load_start", Slot: string(slot), Fields: map[string]any{"path": path}})

	if err := h.cfg.Runtime.Load(ctx, slot, path); err != nil {
		h.setState(slot, types.StateError, err.Error())
		h.pub.Publish(Event{Name: "load_error", Slot: string(slot), Fields: map[string]any{"err": err.Error()}})
		return err
	}

	h.setState(slot, types.StateReady, "")
	h.pub.Publish(Event{Name: "load_done", Slot: string(slot), Fields: map[string]any{}})
	return nil
}

// evictLargeSlot frees the accelerator occupant other than keep.
func (h *Host) evictLargeSlot(keep types.Slot) {
	for _, other := range types.LargeSlots {
		if other == keep {
			continue
		}
		if h.stateOf(other) == types.StateUnloaded {
			continue
		}
		h.cfg.Runtime.Unload(other)
		h.setState(other, types.StateUnloaded, "")
		h.pub.Publish(Event{Name: "evict", Slot: string(other), Fields: map[string]any{"for": string(keep)}})
	}
	h.cfg.Runtime.Reclaim()
}

// UnloadAll force-unloads every resident model and reclaims memory.
func (h *Host) UnloadAll() {
	for slot := range h.slots {
		if h.stateOf(slot) == types.StateUnloaded {
			continue
		}
		h.cfg.Runtime.Unload(slot)
		h.setState(slot, types.StateUnloaded, "")
	}
	h.cfg.Runtime.Reclaim()
	h.pub.Publish(Event{Name: "unload_all", Fields: map[string]any{}})
}
