package host

import (
	"context"

	"lexd/pkg/types"
)

// Runtime abstracts the model backend the host drives. Implementations
// must surface allocation failures via ErrOOM so the host can apply its
// fatal-unload policy.
type Runtime interface {
	// Load brings the model file into residency for a slot.
	Load(ctx context.Context, slot types.Slot, path string) error
	// Generate produces a completion on a loaded slot. Returns text and
	// the number of tokens produced.
	Generate(ctx context.Context, slot types.Slot, prompt string, maxTokens int) (string, int, error)
	// Embed encodes texts with the embedder slot's model.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Unload releases the slot's model. Idempotent.
	Unload(slot types.Slot)
	// Reclaim frees any memory the backend can release without unloading
	// models (scratch buffers, caches). Called after every generation.
	Reclaim()
}
