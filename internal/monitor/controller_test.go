package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lexd/pkg/types"
)

// fakeActions counts executions and can inject failures.
type fakeActions struct {
	mu       sync.Mutex
	clears   int
	hosts    int
	apis     int
	orphans  int
	failNext error
}

func (f *fakeActions) bump(n *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	*n++
	err := f.failNext
	return err
}

func (f *fakeActions) ClearModelMemory(ctx context.Context) error { return f.bump(&f.clears) }
func (f *fakeActions) RestartHost(ctx context.Context) error      { return f.bump(&f.hosts) }
func (f *fakeActions) RestartAPI(ctx context.Context) error       { return f.bump(&f.apis) }
func (f *fakeActions) KillOrphans(ctx context.Context) error      { return f.bump(&f.orphans) }

func (f *fakeActions) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clears + f.hosts + f.apis + f.orphans
}

func unhealthyReport(failingChecks ...string) types.HealthReport {
	checks := map[string]types.CheckResult{
		types.CheckAPI:       {Healthy: true, Hard: true},
		types.CheckModelHost: {Healthy: true},
		types.CheckMemory:    {Healthy: true, Hard: true},
		types.CheckProcesses: {Healthy: true, Hard: true},
	}
	for _, name := range failingChecks {
		res := checks[name]
		res.Healthy = false
		checks[name] = res
	}
	return types.HealthReport{Timestamp: time.Now(), Checks: checks, OverallHealthy: len(failingChecks) == 0}
}

func newTestController(a Actions, now *time.Time) *Controller {
	return NewController(ControllerConfig{
		Threshold:   3,
		Cooldown:    300 * time.Second,
		MaxAttempts: 5,
		Actions:     a,
		Now:         func() time.Time { return *now },
	})
}

func TestNoActionBelowThreshold(t *testing.T) {
	a := &fakeActions{}
	now := time.Now()
	c := newTestController(a, &now)
	ctx := context.Background()

	c.Observe(ctx, unhealthyReport(types.CheckAPI))
	c.Observe(ctx, unhealthyReport(types.CheckAPI))
	if a.total() != 0 {
		t.Fatalf("expected no actions below threshold, got %d", a.total())
	}
	if c.State().ConsecutiveFailures != 2 {
		t.Errorf("consecutive: %d", c.State().ConsecutiveFailures)
	}
}

func TestHealthyTickResetsConsecutive(t *testing.T) {
	a := &fakeActions{}
	now := time.Now()
	c := newTestController(a, &now)
	ctx := context.Background()

	c.Observe(ctx, unhealthyReport(types.CheckAPI))
	c.Observe(ctx, unhealthyReport(types.CheckAPI))
	c.Observe(ctx, unhealthyReport())
	st := c.State()
	if st.ConsecutiveFailures != 0 {
		t.Errorf("expected reset, got %d", st.ConsecutiveFailures)
	}
	if st.FailureCount != 2 {
		t.Errorf("failure count must accumulate, got %d", st.FailureCount)
	}
}

func TestThresholdTriggersExactlyOneActionSet(t *testing.T) {
	a := &fakeActions{}
	now := time.Now()
	c := newTestController(a, &now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c.Observe(ctx, unhealthyReport(types.CheckAPI))
	}
	if a.apis != 1 {
		t.Fatalf("expected one api restart, got %d", a.apis)
	}
	if a.clears+a.hosts+a.orphans != 0 {
		t.Error("only the failing check's action may run")
	}

	// A second trigger inside the cooldown window executes nothing.
	now = now.Add(time.Minute)
	for i := 0; i < 3; i++ {
		c.Observe(ctx, unhealthyReport(types.CheckAPI))
	}
	if a.apis != 1 {
		t.Fatalf("cooldown must suppress the second round, got %d restarts", a.apis)
	}

	// Outside the cooldown the next round may run.
	now = now.Add(10 * time.Minute)
	c.Observe(ctx, unhealthyReport(types.CheckAPI))
	if a.apis != 2 {
		t.Fatalf("expected second round after cooldown, got %d", a.apis)
	}
}

func TestActionPerFailingCheck(t *testing.T) {
	a := &fakeActions{}
	now := time.Now()
	c := newTestController(a, &now)
	ctx := context.Background()

	rep := unhealthyReport(types.CheckMemory, types.CheckModelHost, types.CheckProcesses)
	for i := 0; i < 3; i++ {
		c.Observe(ctx, rep)
	}
	if a.clears != 1 || a.hosts != 1 || a.orphans != 1 {
		t.Errorf("expected one of each: clears=%d hosts=%d orphans=%d", a.clears, a.hosts, a.orphans)
	}
	if a.apis != 0 {
		t.Error("api restart must not run for a passing api check")
	}
}

func TestAttemptCapReachesManualIntervention(t *testing.T) {
	a := &fakeActions{failNext: errors.New("still broken")}
	now := time.Now()
	c := newTestController(a, &now)
	ctx := context.Background()

	for round := 0; round < 7; round++ {
		for i := 0; i < 3; i++ {
			c.Observe(ctx, unhealthyReport(types.CheckAPI))
		}
		now = now.Add(10 * time.Minute)
	}
	st := c.State()
	if !st.ManualIntervention {
		t.Fatal("expected manual intervention after attempt cap")
	}
	if st.AttemptCount != 5 {
		t.Errorf("attempts must stop at cap, got %d", st.AttemptCount)
	}
	// Once latched, further unhealthy ticks execute nothing.
	before := a.total()
	c.Observe(ctx, unhealthyReport(types.CheckAPI))
	if a.total() != before {
		t.Error("controller must stop intervening after manual-intervention latch")
	}
}

func TestSuccessfulRoundDecrementsNotResets(t *testing.T) {
	a := &fakeActions{}
	now := time.Now()
	c := newTestController(a, &now)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		c.Observe(ctx, unhealthyReport(types.CheckAPI))
	}
	// Third tick triggered a successful round: 3 -> 2, then the fourth
	// unhealthy tick pushed it back to 3.
	if got := c.State().ConsecutiveFailures; got != 3 {
		t.Errorf("expected decrement-then-increment to land on 3, got %d", got)
	}
	if got := c.State().AttemptCount; got != 1 {
		t.Errorf("attempts: %d", got)
	}
}

func TestFailedRoundDoesNotDecrement(t *testing.T) {
	a := &fakeActions{failNext: errors.New("relaunch failed")}
	now := time.Now()
	c := newTestController(a, &now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c.Observe(ctx, unhealthyReport(types.CheckAPI))
	}
	if got := c.State().ConsecutiveFailures; got != 3 {
		t.Errorf("failed round must not decrement, got %d", got)
	}
}

func TestResetManual(t *testing.T) {
	a := &fakeActions{failNext: errors.New("broken")}
	now := time.Now()
	c := newTestController(a, &now)
	ctx := context.Background()
	for round := 0; round < 7; round++ {
		for i := 0; i < 3; i++ {
			c.Observe(ctx, unhealthyReport(types.CheckAPI))
		}
		now = now.Add(10 * time.Minute)
	}
	if !c.State().ManualIntervention {
		t.Fatal("setup: expected manual intervention")
	}
	c.ResetManual()
	st := c.State()
	if st.ManualIntervention || st.AttemptCount != 0 || st.ConsecutiveFailures != 0 {
		t.Errorf("reset left state %+v", st)
	}
}
