package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"lexd/pkg/types"
)

// Register file names under the mailbox directory.
const (
	requestFile  = "request.json"
	responseFile = "response.json"
	livenessFile = "liveness.json"
)

// FileMailbox implements Mailbox on three JSON files in one directory.
// Writes go to a temp file followed by rename so a reader never observes
// a half-written record; a reader that loses the race to a concurrent
// rename sees a missing file, which is reported as empty, not an error.
type FileMailbox struct {
	dir        string
	mu         sync.Mutex
	overwrites atomic.Uint64
}

// NewFileMailbox creates dir if needed and returns a mailbox over it.
func NewFileMailbox(dir string) (*FileMailbox, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty mailbox dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mailbox dir: %w", err)
	}
	return &FileMailbox{dir: dir}, nil
}

// Dir returns the backing directory.
func (f *FileMailbox) Dir() string { return f.dir }

func (f *FileMailbox) PostRequest(req types.Request) error {
	return f.post(requestFile, "request", req)
}

func (f *FileMailbox) TakeRequest() (types.Request, bool, error) {
	var req types.Request
	ok, err := f.take(requestFile, &req)
	return req, ok, err
}

func (f *FileMailbox) PostResponse(resp types.Response) error {
	return f.post(responseFile, "response", resp)
}

func (f *FileMailbox) TakeResponse() (types.Response, bool, error) {
	var resp types.Response
	ok, err := f.take(responseFile, &resp)
	return resp, ok, err
}

func (f *FileMailbox) WriteLiveness(rep types.LivenessReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeFile(livenessFile, rep)
}

func (f *FileMailbox) ReadLiveness() (types.LivenessReport, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rep types.LivenessReport
	ok, err := f.readFile(livenessFile, &rep)
	return rep, ok, err
}

func (f *FileMailbox) Overwrites() uint64 { return f.overwrites.Load() }

func (f *FileMailbox) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, name := range []string{requestFile, responseFile} {
		if err := os.Remove(filepath.Join(f.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("clear %s: %w", name, err)
		}
	}
	return nil
}

func (f *FileMailbox) post(name, register string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := os.Stat(filepath.Join(f.dir, name)); err == nil {
		f.overwrites.Add(1)
		overwritesTotal.WithLabelValues(register).Inc()
	}
	return f.writeFile(name, v)
}

func (f *FileMailbox) take(name string, v any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok, err := f.readFile(name, v)
	if err != nil || !ok {
		return false, err
	}
	if err := os.Remove(filepath.Join(f.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("consume %s: %w", name, err)
	}
	return true, nil
}

func (f *FileMailbox) writeFile(name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(f.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("temp %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(f.dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

// readFile returns ok=false for missing files and for records that do not
// decode (a partial write from a crashed peer); both are transient and
// resolved by the next poll or the next Post.
func (f *FileMailbox) readFile(name string, v any) (bool, error) {
	b, err := os.ReadFile(filepath.Join(f.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if len(b) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, nil
	}
	return true, nil
}
