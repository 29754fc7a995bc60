package ipc

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"lexd/pkg/types"
)

func testMailboxes(t *testing.T) map[string]Mailbox {
	t.Helper()
	fm, err := NewFileMailbox(t.TempDir())
	if err != nil {
		t.Fatalf("file mailbox: %v", err)
	}
	return map[string]Mailbox{
		"memory": NewMemoryMailbox(),
		"file":   fm,
	}
}

func TestTakeConsumesRequest(t *testing.T) {
	for name, mb := range testMailboxes(t) {
		if err := mb.PostRequest(types.Request{ID: "r1", Action: types.ActionStatus}); err != nil {
			t.Fatalf("%s: post: %v", name, err)
		}
		got, ok, err := mb.TakeRequest()
		if err != nil || !ok {
			t.Fatalf("%s: take: ok=%v err=%v", name, ok, err)
		}
		if got.ID != "r1" {
			t.Errorf("%s: expected r1 got %s", name, got.ID)
		}
		if _, ok, _ := mb.TakeRequest(); ok {
			t.Errorf("%s: second take should be empty", name)
		}
	}
}

func TestLastWriteWinsAndOverwriteCounted(t *testing.T) {
	for name, mb := range testMailboxes(t) {
		_ = mb.PostRequest(types.Request{ID: "old"})
		_ = mb.PostRequest(types.Request{ID: "new"})
		got, ok, err := mb.TakeRequest()
		if err != nil || !ok {
			t.Fatalf("%s: take: ok=%v err=%v", name, ok, err)
		}
		if got.ID != "new" {
			t.Errorf("%s: expected overwrite to win, got %s", name, got.ID)
		}
		if mb.Overwrites() != 1 {
			t.Errorf("%s: expected 1 overwrite, got %d", name, mb.Overwrites())
		}
	}
}

func TestResponseRoundTrip(t *testing.T) {
	for name, mb := range testMailboxes(t) {
		_ = mb.PostResponse(types.Response{RequestID: "r1", Success: true})
		got, ok, err := mb.TakeResponse()
		if err != nil || !ok {
			t.Fatalf("%s: take response: ok=%v err=%v", name, ok, err)
		}
		if got.RequestID != "r1" || !got.Success {
			t.Errorf("%s: unexpected response %+v", name, got)
		}
	}
}

func TestLivenessReadDoesNotConsume(t *testing.T) {
	for name, mb := range testMailboxes(t) {
		rep := types.LivenessReport{HostID: "h1", LastHeartbeat: time.Now()}
		if err := mb.WriteLiveness(rep); err != nil {
			t.Fatalf("%s: write liveness: %v", name, err)
		}
		for i := 0; i < 2; i++ {
			got, ok, err := mb.ReadLiveness()
			if err != nil || !ok {
				t.Fatalf("%s: read %d: ok=%v err=%v", name, i, ok, err)
			}
			if got.HostID != "h1" {
				t.Errorf("%s: expected h1 got %s", name, got.HostID)
			}
		}
	}
}

func TestClearDropsPendingButKeepsLiveness(t *testing.T) {
	for name, mb := range testMailboxes(t) {
		_ = mb.PostRequest(types.Request{ID: "r1"})
		_ = mb.PostResponse(types.Response{RequestID: "r1"})
		_ = mb.WriteLiveness(types.LivenessReport{HostID: "h1", LastHeartbeat: time.Now()})
		if err := mb.Clear(); err != nil {
			t.Fatalf("%s: clear: %v", name, err)
		}
		if _, ok, _ := mb.TakeRequest(); ok {
			t.Errorf("%s: request survived clear", name)
		}
		if _, ok, _ := mb.TakeResponse(); ok {
			t.Errorf("%s: response survived clear", name)
		}
		if _, ok, _ := mb.ReadLiveness(); !ok {
			t.Errorf("%s: liveness should survive clear", name)
		}
	}
}

func TestFileMailboxToleratesPartialWrite(t *testing.T) {
	dir := t.TempDir()
	mb, err := NewFileMailbox(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	// Simulate a peer that crashed mid-write: truncated JSON on disk.
	if err := os.WriteFile(filepath.Join(dir, "request.json"), []byte(`{"id":"r1","ac`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok, err := mb.TakeRequest(); ok || err != nil {
		t.Fatalf("expected empty no-error read, got ok=%v err=%v", ok, err)
	}
	// A fresh post recovers the register.
	if err := mb.PostRequest(types.Request{ID: "r2"}); err != nil {
		t.Fatalf("post: %v", err)
	}
	got, ok, err := mb.TakeRequest()
	if err != nil || !ok || got.ID != "r2" {
		t.Fatalf("expected r2, got %+v ok=%v err=%v", got, ok, err)
	}
}

func TestFileMailboxMissingDirRejected(t *testing.T) {
	if _, err := NewFileMailbox(""); err == nil {
		t.Fatal("expected error for empty dir")
	}
}
