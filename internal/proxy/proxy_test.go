package proxy

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"lexd/internal/ipc"
	"lexd/pkg/types"
)

func freshLiveness(states map[types.Slot]types.ModelState) types.LivenessReport {
	if states == nil {
		states = map[types.Slot]types.ModelState{
			types.SlotEmbedder:  types.StateUnloaded,
			types.SlotUtility:   types.StateUnloaded,
			types.SlotReasoning: types.StateUnloaded,
		}
	}
	return types.LivenessReport{
		HostID:        "test-host",
		OverallStatus: "healthy",
		ModelStates:   states,
		LastHeartbeat: time.Now(),
	}
}

func newTestClient(mb ipc.Mailbox) *Client {
	return New(Config{
		Mailbox:        mb,
		LoadTimeout:    500 * time.Millisecond,
		RequestTimeout: 200 * time.Millisecond,
		PollEvery:      5 * time.Millisecond,
		HeartbeatTTL:   30 * time.Second,
	})
}

// respond runs a fake host that answers every request via handle until
// the test ends.
func respond(t *testing.T, mb ipc.Mailbox, handle func(types.Request) types.Response) {
	t.Helper()
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			req, ok, _ := mb.TakeRequest()
			if ok {
				_ = mb.PostResponse(handle(req))
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()
	t.Cleanup(func() {
		close(done)
		wg.Wait()
	})
}

func TestEnsureReadyStaleLivenessNoRequest(t *testing.T) {
	mb := ipc.NewMemoryMailbox()
	rep := freshLiveness(nil)
	rep.LastHeartbeat = time.Now().Add(-time.Minute)
	_ = mb.WriteLiveness(rep)

	c := newTestClient(mb)
	err := c.EnsureReady(context.Background(), types.SlotUtility)
	if !IsHostUnavailable(err) {
		t.Fatalf("expected host unavailable, got %v", err)
	}
	if _, ok, _ := mb.TakeRequest(); ok {
		t.Fatal("no request may be posted to a stale host")
	}
}

func TestEnsureReadyMissingLiveness(t *testing.T) {
	mb := ipc.NewMemoryMailbox()
	c := newTestClient(mb)
	if err := c.EnsureReady(context.Background(), types.SlotUtility); !IsHostUnavailable(err) {
		t.Fatalf("expected host unavailable, got %v", err)
	}
}

func TestEnsureReadyAlreadyReadySkipsRequest(t *testing.T) {
	mb := ipc.NewMemoryMailbox()
	_ = mb.WriteLiveness(freshLiveness(map[types.Slot]types.ModelState{types.SlotUtility: types.StateReady}))
	c := newTestClient(mb)
	if err := c.EnsureReady(context.Background(), types.SlotUtility); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, ok, _ := mb.TakeRequest(); ok {
		t.Fatal("ready slot must not trigger a load request")
	}
}

func TestEnsureReadyIssuesLoad(t *testing.T) {
	mb := ipc.NewMemoryMailbox()
	_ = mb.WriteLiveness(freshLiveness(nil))
	var gotAction types.Action
	respond(t, mb, func(req types.Request) types.Response {
		gotAction = req.Action
		return types.Response{RequestID: req.ID, Success: true}
	})
	c := newTestClient(mb)
	if err := c.EnsureReady(context.Background(), types.SlotReasoning); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if gotAction != types.ActionLoadReasoning {
		t.Errorf("expected load_reasoning, got %s", gotAction)
	}
}

func TestStaleResponseIgnored(t *testing.T) {
	mb := ipc.NewMemoryMailbox()
	_ = mb.WriteLiveness(freshLiveness(map[types.Slot]types.ModelState{types.SlotUtility: types.StateReady}))

	respond(t, mb, func(req types.Request) types.Response {
		// Answer with a stale correlation token first; the real answer
		// follows once the proxy has discarded the stale one.
		go func() {
			time.Sleep(30 * time.Millisecond)
			data, _ := json.Marshal(types.GenerateResult{Text: "real answer", TokensUsed: 2})
			_ = mb.PostResponse(types.Response{RequestID: req.ID, Success: true, Data: data})
		}()
		return types.Response{RequestID: "stale-id-from-before", Success: true}
	})

	c := newTestClient(mb)
	res, err := c.Generate(context.Background(), "what is the holding", 0, types.SlotUtility)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Text != "real answer" {
		t.Errorf("expected real answer, got %q", res.Text)
	}
}

func TestGenerateWithFallbackOnDeadHost(t *testing.T) {
	mb := ipc.NewMemoryMailbox()
	rep := freshLiveness(nil)
	rep.LastHeartbeat = time.Now().Add(-2 * time.Minute)
	_ = mb.WriteLiveness(rep)

	c := newTestClient(mb)
	out := c.GenerateWithFallback(context.Background(), "summarize the opinion")
	if out != FallbackAnswer {
		t.Errorf("expected canned answer, got %q", out)
	}
	if !c.FallbackMode() {
		t.Error("fallback mode must be set")
	}
	if !strings.Contains(out, "degraded") {
		t.Error("fallback text must be marked as degraded output")
	}
}

func TestFallbackModeClearsOnSuccess(t *testing.T) {
	mb := ipc.NewMemoryMailbox()
	_ = mb.WriteLiveness(freshLiveness(map[types.Slot]types.ModelState{types.SlotUtility: types.StateReady}))
	respond(t, mb, func(req types.Request) types.Response {
		data, _ := json.Marshal(types.GenerateResult{Text: "ok", TokensUsed: 1})
		return types.Response{RequestID: req.ID, Success: true, Data: data}
	})

	c := newTestClient(mb)
	c.fallbackMode.Store(true)
	out := c.GenerateWithFallback(context.Background(), "cite the statute")
	if out != "ok" {
		t.Fatalf("expected model output, got %q", out)
	}
	if c.FallbackMode() {
		t.Error("fallback mode must clear after success")
	}
}

func TestRoundTripTimeout(t *testing.T) {
	mb := ipc.NewMemoryMailbox()
	_ = mb.WriteLiveness(freshLiveness(map[types.Slot]types.ModelState{types.SlotUtility: types.StateReady}))
	c := newTestClient(mb)

	start := time.Now()
	_, err := c.Generate(context.Background(), "no one is listening", 0, types.SlotUtility)
	if !IsRequestTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout took far longer than configured")
	}
}

func TestErrorResponseSurfaced(t *testing.T) {
	mb := ipc.NewMemoryMailbox()
	_ = mb.WriteLiveness(freshLiveness(map[types.Slot]types.ModelState{types.SlotEmbedder: types.StateReady}))
	respond(t, mb, func(req types.Request) types.Response {
		return types.Response{RequestID: req.ID, Success: false, Error: "embedder exploded"}
	})
	c := newTestClient(mb)
	if _, err := c.Embed(context.Background(), []string{"a"}); err == nil || !strings.Contains(err.Error(), "embedder exploded") {
		t.Fatalf("expected surfaced error, got %v", err)
	}
}

func TestUnloadAllAndStatus(t *testing.T) {
	mb := ipc.NewMemoryMailbox()
	_ = mb.WriteLiveness(freshLiveness(nil))
	respond(t, mb, func(req types.Request) types.Response {
		switch req.Action {
		case types.ActionUnloadAll:
			return types.Response{RequestID: req.ID, Success: true}
		case types.ActionStatus:
			data, _ := json.Marshal(types.StatusResult{CrashCount: 2})
			return types.Response{RequestID: req.ID, Success: true, Data: data}
		}
		return types.Response{RequestID: req.ID, Success: false, Error: "unexpected"}
	})
	c := newTestClient(mb)
	if err := c.UnloadAll(context.Background()); err != nil {
		t.Fatalf("unload all: %v", err)
	}
	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.CrashCount != 2 {
		t.Errorf("crash count: %d", st.CrashCount)
	}
}
