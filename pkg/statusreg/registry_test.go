package statusreg_test

import (
	"strings"
	"testing"
	"time"

	"hive/pkg/protocol"
	"hive/pkg/statusreg"
)

func statusEnvelope(t *testing.T, from string, st protocol.Status) protocol.Envelope {
	t.Helper()
	env, err := protocol.New(from, protocol.Broadcast, protocol.TypeStatus, st)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func TestObserveAndGet(t *testing.T) {
	reg := statusreg.New(time.Minute)
	reg.Observe(statusEnvelope(t, "frontend", protocol.Status{
		Status:         protocol.StatusWorking,
		CurrentTaskID:  "task-1",
		CompletedCount: 3,
	}))

	e, ok := reg.Get("frontend")
	if !ok {
		t.Fatal("frontend not found")
	}
	if e.Status != protocol.StatusWorking || e.CurrentTaskID != "task-1" || e.CompletedCount != 3 {
		t.Errorf("entry = %+v", e)
	}
}

func TestUnknownAgent(t *testing.T) {
	reg := statusreg.New(time.Minute)
	if _, ok := reg.Get("ghost"); ok {
		t.Error("unknown agent should not be found")
	}
	if got := reg.Describe("ghost"); !strings.Contains(got, "not reported") {
		t.Errorf("Describe = %q", got)
	}
}

func TestTwoMissedHeartbeatsMeansOffline(t *testing.T) {
	reg := statusreg.New(time.Minute)
	reg.Observe(statusEnvelope(t, "backend", protocol.Status{Status: protocol.StatusIdle}))

	// One interval late: still current.
	base := time.Now()
	reg.SetNowFunc(func() time.Time { return base.Add(90 * time.Second) })
	if e, _ := reg.Get("backend"); e.Status != protocol.StatusIdle {
		t.Errorf("status after one missed beat = %q", e.Status)
	}

	// Past two intervals: offline.
	reg.SetNowFunc(func() time.Time { return base.Add(3 * time.Minute) })
	if e, _ := reg.Get("backend"); e.Status != protocol.StatusOffline {
		t.Errorf("status after two missed beats = %q", e.Status)
	}
}

func TestNonStatusEnvelopesIgnored(t *testing.T) {
	reg := statusreg.New(time.Minute)
	env, _ := protocol.New("frontend", "chatter", protocol.TypeProgress, protocol.Progress{TaskID: "t", Output: "x"})
	reg.Observe(env)
	if _, ok := reg.Get("frontend"); ok {
		t.Error("progress envelope should not create an entry")
	}
}

func TestDescribeWorkingAgent(t *testing.T) {
	reg := statusreg.New(time.Minute)
	reg.Observe(statusEnvelope(t, "frontend", protocol.Status{
		Status:        protocol.StatusWorking,
		CurrentTaskID: "task-9",
	}))
	got := reg.Describe("frontend")
	if !strings.Contains(got, "working") || !strings.Contains(got, "task-9") {
		t.Errorf("Describe = %q", got)
	}
}
