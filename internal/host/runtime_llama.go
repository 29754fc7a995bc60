//go:build llama

package host

import (
	"context"
	"errors"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"

	"lexd/pkg/types"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// llamaRuntime drives go-llama.cpp models, one per slot.
type llamaRuntime struct {
	ctxSize int
	threads int

	mu     sync.Mutex
	models map[types.Slot]*llama.LLama
}

// NewLlamaRuntime returns the in-process llama.cpp backend.
func NewLlamaRuntime(ctxSize, threads int) Runtime {
	if ctxSize <= 0 {
		ctxSize = 2048
	}
	if threads <= 0 {
		threads = 4
	}
	return &llamaRuntime{ctxSize: ctxSize, threads: threads, models: make(map[types.Slot]*llama.LLama)}
}

func (r *llamaRuntime) Load(ctx context.Context, slot types.Slot, path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("model path is empty")
	}
	opts := []llama.ModelOption{llama.SetContext(r.ctxSize)}
	if slot == types.SlotEmbedder {
		opts = append(opts, llama.EnableEmbeddings)
	}
	m, err := llama.New(path, opts...)
	if err != nil {
		if isAllocFailure(err) {
			return ErrOOM(err)
		}
		return err
	}
	r.mu.Lock()
	if old := r.models[slot]; old != nil {
		old.Free()
	}
	r.models[slot] = m
	r.mu.Unlock()
	return nil
}

func (r *llamaRuntime) Generate(ctx context.Context, slot types.Slot, prompt string, maxTokens int) (string, int, error) {
	r.mu.Lock()
	m := r.models[slot]
	r.mu.Unlock()
	if m == nil {
		return "", 0, errors.New("model not loaded for slot " + string(slot))
	}
	tokens := 0
	m.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		tokens++
		return true
	})
	text, err := m.Predict(prompt,
		llama.SetTokens(maxTokens),
		llama.SetThreads(r.threads),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", tokens, ctx.Err()
		}
		if isAllocFailure(err) {
			return "", tokens, ErrOOM(err)
		}
		return "", tokens, err
	}
	return text, tokens, nil
}

func (r *llamaRuntime) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	r.mu.Lock()
	m := r.models[types.SlotEmbedder]
	r.mu.Unlock()
	if m == nil {
		return nil, errors.New("embedder not loaded")
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		vec, err := m.Embeddings(text)
		if err != nil {
			if isAllocFailure(err) {
				return nil, ErrOOM(err)
			}
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (r *llamaRuntime) Unload(slot types.Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m := r.models[slot]; m != nil {
		m.Free()
		delete(r.models, slot)
	}
}

func (r *llamaRuntime) Reclaim() {
	// go-llama.cpp frees scratch state with the model; nothing further to
	// release between generations.
}

func isAllocFailure(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "out of memory") ||
		strings.Contains(msg, "failed to allocate") ||
		strings.Contains(msg, "cuda error")
}
