package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"lexd/internal/catalog"
	"lexd/internal/ipc"
	"lexd/internal/memstat"
	"lexd/pkg/types"
)

// fakeRuntime records load/unload calls and can inject failures.
type fakeRuntime struct {
	mu        sync.Mutex
	loaded    map[types.Slot]string
	reclaims  int
	loadErr   error
	genErr    error
	embedErr  error
	lastMaxTK int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{loaded: make(map[types.Slot]string)}
}

func (f *fakeRuntime) Load(ctx context.Context, slot types.Slot, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return f.loadErr
	}
	f.loaded[slot] = path
	return nil
}

func (f *fakeRuntime) Generate(ctx context.Context, slot types.Slot, prompt string, maxTokens int) (string, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastMaxTK = maxTokens
	if f.genErr != nil {
		return "", 0, f.genErr
	}
	return fmt.Sprintf("completion for %q", prompt), 7, nil
}

func (f *fakeRuntime) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func (f *fakeRuntime) Unload(slot types.Slot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.loaded, slot)
}

func (f *fakeRuntime) Reclaim() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reclaims++
}

func (f *fakeRuntime) residentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.loaded)
}

// residencySampler derives device usage from the fake runtime's resident
// set: near-full while a large model is loaded, near-idle otherwise.
type residencySampler struct {
	rt *fakeRuntime
}

func (s *residencySampler) Sample() types.MemorySnapshot {
	used := 1024
	s.rt.mu.Lock()
	for _, slot := range types.LargeSlots {
		if _, ok := s.rt.loaded[slot]; ok {
			used = 7400
		}
	}
	s.rt.mu.Unlock()
	return types.MemorySnapshot{DeviceTotalMB: 8192, DeviceUsedMB: used, DeviceFreeMB: 8192 - used}
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"legal-embed.gguf", "clause-mini.gguf", "counsel-large.gguf"} {
		createModelFile(t, dir, name, 1)
	}
	cat, err := catalog.Load(dir, catalog.Overrides{})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return cat
}

// createModelFile writes a placeholder gguf file of sizeMB megabytes.
func createModelFile(t *testing.T, dir, name string, sizeMB int) {
	t.Helper()
	data := make([]byte, sizeMB*1024*1024)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func newTestHost(t *testing.T, rt Runtime, mem memstat.Sampler) (*Host, *ipc.MemoryMailbox, *MemoryPublisher) {
	t.Helper()
	mb := ipc.NewMemoryMailbox()
	pub := NewMemoryPublisher()
	if mem == nil {
		mem = &memstat.StaticSampler{Snap: types.MemorySnapshot{DeviceTotalMB: 8192, DeviceUsedMB: 1024, DeviceFreeMB: 7168}}
	}
	h := New(HostConfig{
		ID:        "test-host",
		Catalog:   testCatalog(t),
		Runtime:   rt,
		Mailbox:   mb,
		Mem:       mem,
		Publisher: pub,
	})
	return h, mb, pub
}
