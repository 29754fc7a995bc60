//go:build !llama

package host

// This file provides a no-CGO stub for the llama runtime. It is compiled
// when the 'llama' build tag is NOT set, keeping default builds and CI
// CGO-free. The real runtime lives in runtime_llama.go (tagged 'llama').

import (
	"context"

	"lexd/pkg/types"
)

var llamaBuilt = false

type llamaRuntime struct{}

// NewLlamaRuntime returns a stub that refuses every operation, so builds
// without the 'llama' tag fail fast instead of faking inference.
func NewLlamaRuntime(ctxSize, threads int) Runtime {
	return &llamaRuntime{}
}

func (r *llamaRuntime) Load(ctx context.Context, slot types.Slot, path string) error {
	return ErrRuntimeUnavailable("llama support not built (missing 'llama' build tag)")
}

func (r *llamaRuntime) Generate(ctx context.Context, slot types.Slot, prompt string, maxTokens int) (string, int, error) {
	return "", 0, ErrRuntimeUnavailable("llama support not built (missing 'llama' build tag)")
}

func (r *llamaRuntime) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, ErrRuntimeUnavailable("llama support not built (missing 'llama' build tag)")
}

func (r *llamaRuntime) Unload(slot types.Slot) {}

func (r *llamaRuntime) Reclaim() {}
