package host

import (
	"context"
	"fmt"

	"lexd/pkg/types"
)

// Generate runs one completion on a ready large-model slot. Three guards
// apply in order: a pre-flight ceiling check, dynamic token-budget
// shrinking when device memory is low, and unconditional reclamation
// after the call. A runtime OOM is fatal for all resident models; the
// failed request is answered, never retried.
func (h *Host) Generate(ctx context.Context, p types.GeneratePayload) (types.GenerateResult, error) {
	slot := p.Slot
	if slot == "" {
		slot = types.SlotUtility
	}
	if !slot.IsLarge() {
		return types.GenerateResult{}, fmt.Errorf("slot %s cannot generate", slot)
	}
	if h.stateOf(slot) != types.StateReady {
		return types.GenerateResult{}, notReadyError{slot: string(slot)}
	}

	snap := h.cfg.Mem.Sample()
	if frac := snap.DeviceUsedFrac(); frac >= h.cfg.MemoryCeilingFrac {
		return types.GenerateResult{}, memoryExceededError{
			msg: fmt.Sprintf("memory ceiling exceeded before generation: %.0f%% used", frac*100),
		}
	}

	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = h.cfg.MaxTokensDefault
	}
	truncated := false
	if snap.DeviceTotalMB > 0 && snap.DeviceFreeMB < h.cfg.LowMemFreeMB {
		shrunk := int(float64(maxTokens) * h.cfg.LowMemShrinkFrac)
		if shrunk < h.cfg.MinTokensFloor {
			shrunk = h.cfg.MinTokensFloor
		}
		if shrunk < maxTokens {
			maxTokens = shrunk
			truncated = true
			h.pub.Publish(Event{Name: "token_shrink", Slot: string(slot), Fields: map[string]any{
				"free_mb": snap.DeviceFreeMB, "max_tokens": maxTokens,
			}})
		}
	}

	defer h.cfg.Runtime.Reclaim()

	text, used, err := h.cfg.Runtime.Generate(ctx, slot, p.Prompt, maxTokens)
	if err != nil {
		if IsOOM(err) {
			h.onOOM(slot, err)
		}
		return types.GenerateResult{}, err
	}
	return types.GenerateResult{Text: text, TokensUsed: used, Truncated: truncated}, nil
}

// Embed runs the always-resident embedding model over the input texts.
func (h *Host) Embed(ctx context.Context, p types.EmbedPayload) (types.EmbedResult, error) {
	if h.stateOf(types.SlotEmbedder) != types.StateReady {
		return types.EmbedResult{}, notReadyError{slot: string(types.SlotEmbedder)}
	}
	vectors, err := h.cfg.Runtime.Embed(ctx, p.Texts)
	if err != nil {
		if IsOOM(err) {
			h.onOOM(types.SlotEmbedder, err)
		}
		return types.EmbedResult{}, err
	}
	return types.EmbedResult{Vectors: vectors}, nil
}

// onOOM is the fatal local path: every resident model is force-unloaded
// so the next load starts from a clean device.
func (h *Host) onOOM(slot types.Slot, cause error) {
	h.log.Error().Err(cause).Str("slot", string(slot)).Msg("allocation failed, unloading all models")
	h.mu.Lock()
	h.oomCount++
	h.mu.Unlock()
	oomTotal.Inc()
	h.UnloadAll()
	h.pub.Publish(Event{Name: "oom", Slot: string(slot), Fields: map[string]any{"err": cause.Error()}})
}
