// Package catalog maps model slots to model files on disk.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lexd/pkg/types"
)

// Entry describes one model file assigned to a slot.
type Entry struct {
	Slot   types.Slot
	Path   string
	SizeMB int
}

// Catalog resolves slots to model files.
type Catalog struct {
	entries map[types.Slot]Entry
}

// PathFor returns the model file path for a slot.
func (c *Catalog) PathFor(slot types.Slot) (string, bool) {
	e, ok := c.entries[slot]
	return e.Path, ok
}

// SizeMBFor returns the on-disk size estimate for a slot's model.
func (c *Catalog) SizeMBFor(slot types.Slot) int {
	return c.entries[slot].SizeMB
}

// Entries returns all assignments, for logging.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out
}

// Overrides pins slots to explicit paths, bypassing classification.
type Overrides struct {
	Embedder  string
	Utility   string
	Reasoning string
}

// Load scans dir for *.gguf files and assigns them to slots. Filenames
// containing "embed" go to the embedder slot; of the remainder, the
// smallest file becomes the utility model and the largest the reasoning
// model. A file is never assigned to both large slots: a lone non-embed
// file serves utility only and reasoning stays unassigned. Overrides win
// over classification. Missing slots are not an error; the host fails
// the corresponding load with model-not-found.
func Load(dir string, ov Overrides) (*Catalog, error) {
	base, err := expandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	dirents, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	type candidate struct {
		path   string
		sizeMB int
	}
	var embed, rest []candidate
	for _, e := range dirents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		p := filepath.Join(abs, name)
		c := candidate{path: p, sizeMB: fileSizeMB(p)}
		if strings.Contains(strings.ToLower(name), "embed") {
			embed = append(embed, c)
		} else {
			rest = append(rest, c)
		}
	}

	cat := &Catalog{entries: make(map[types.Slot]Entry)}
	if len(embed) > 0 {
		cat.entries[types.SlotEmbedder] = Entry{Slot: types.SlotEmbedder, Path: embed[0].path, SizeMB: embed[0].sizeMB}
	}
	switch {
	case len(rest) == 1:
		// A lone model serves the utility slot only. Assigning it to both
		// slots would turn every switch into an evict-and-reload of the
		// same file.
		cat.entries[types.SlotUtility] = Entry{Slot: types.SlotUtility, Path: rest[0].path, SizeMB: rest[0].sizeMB}
	case len(rest) > 1:
		smallest, largest := rest[0], rest[0]
		for _, c := range rest[1:] {
			if c.sizeMB < smallest.sizeMB {
				smallest = c
			}
			if c.sizeMB > largest.sizeMB {
				largest = c
			}
		}
		if largest.path == smallest.path {
			// All files tie on size; keep the slots distinct anyway.
			for _, c := range rest {
				if c.path != smallest.path {
					largest = c
					break
				}
			}
		}
		cat.entries[types.SlotUtility] = Entry{Slot: types.SlotUtility, Path: smallest.path, SizeMB: smallest.sizeMB}
		cat.entries[types.SlotReasoning] = Entry{Slot: types.SlotReasoning, Path: largest.path, SizeMB: largest.sizeMB}
	}

	applyOverride(cat, types.SlotEmbedder, ov.Embedder)
	applyOverride(cat, types.SlotUtility, ov.Utility)
	applyOverride(cat, types.SlotReasoning, ov.Reasoning)
	return cat, nil
}

func applyOverride(cat *Catalog, slot types.Slot, path string) {
	if path == "" {
		return
	}
	cat.entries[slot] = Entry{Slot: slot, Path: path, SizeMB: fileSizeMB(path)}
}

func fileSizeMB(path string) int {
	fi, err := os.Stat(path)
	if err != nil {
		// Unknown size gets a conservative minimum so budget checks are
		// not bypassed by an unreadable file.
		return 1
	}
	mb := int(fi.Size() / (1024 * 1024))
	if mb <= 0 {
		mb = 1
	}
	return mb
}

// expandHome expands a leading '~' to the user's home directory.
func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
